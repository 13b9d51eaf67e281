package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/artisan-market-backend/internal/logger"
	"github.com/ignatzorin/artisan-market-backend/internal/pkg/apperror"
)

// ErrorHandler обрабатывает ошибки централизованно.
// AppError переводится в статус и сообщение, остальные ошибки маскируются.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Проверяем, не был ли уже отправлен ответ
		if c.Writer.Written() {
			return
		}

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		statusCode := http.StatusInternalServerError
		message := "внутренняя ошибка сервера"
		code := string(apperror.ErrCodeInternal)

		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			statusCode = appErr.HTTPStatus
			message = appErr.Message
			code = string(appErr.Code)
		}

		if logger.Log != nil {
			entry := logger.Log.WithFields(logrus.Fields{
				"error":  err.Error(),
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
				"status": statusCode,
			})
			if statusCode >= http.StatusInternalServerError {
				entry.Error("Request error")
			} else {
				entry.Warn("Request rejected")
			}
		}

		c.JSON(statusCode, gin.H{"error": message, "code": code})
	}
}
