package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/artisan-market-backend/internal/http/middleware"
	"github.com/ignatzorin/artisan-market-backend/internal/pkg/apperror"
)

var errUserNotFound = errors.New("пользователь не найден в контексте")

// currentUserID извлекает userID из контекста.
func currentUserID(c *gin.Context) (uuid.UUID, error) {
	raw, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return uuid.Nil, errUserNotFound
	}

	userID, ok := raw.(uuid.UUID)
	if !ok {
		return uuid.Nil, errUserNotFound
	}

	return userID, nil
}

// currentUserRole извлекает роль пользователя из контекста.
func currentUserRole(c *gin.Context) (string, error) {
	raw, exists := c.Get(middleware.ContextRoleKey)
	if !exists {
		return "", errUserNotFound
	}

	role, ok := raw.(string)
	if !ok {
		return "", errUserNotFound
	}

	return role, nil
}

// pathUUID читает параметр пути как UUID. Формат уже проверен
// middleware.UUIDValidator, но парсим защитно.
func pathUUID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperror.New(apperror.ErrCodeBadRequest, "некорректный идентификатор в пути запроса")
	}
	return id, nil
}

// requestMeta собирает метаданные запроса для записи сессии.
func requestMeta(c *gin.Context) map[string]string {
	return map[string]string{
		"user_agent": c.GetHeader("User-Agent"),
		"ip":         c.ClientIP(),
	}
}
