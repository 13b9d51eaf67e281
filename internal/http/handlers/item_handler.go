package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/artisan-market-backend/internal/domain/valueobject"
	"github.com/ignatzorin/artisan-market-backend/internal/dto"
	"github.com/ignatzorin/artisan-market-backend/internal/http/response"
	"github.com/ignatzorin/artisan-market-backend/internal/models"
	"github.com/ignatzorin/artisan-market-backend/internal/repository"
	"github.com/ignatzorin/artisan-market-backend/internal/validation"
)

// ItemHandler предоставляет HTTP слой каталога изделий.
type ItemHandler struct {
	items *repository.ItemRepository
}

// NewItemHandler создаёт хэндлер.
func NewItemHandler(items *repository.ItemRepository) *ItemHandler {
	return &ItemHandler{items: items}
}

// Create обрабатывает POST /items. Доступно только мастерам.
func (h *ItemHandler) Create(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		response.Unauthorized(c, "требуется авторизация")
		return
	}
	role, err := currentUserRole(c)
	if err != nil || role != models.RoleSeller {
		response.Forbidden(c, "добавлять изделия может только мастер")
		return
	}

	var req dto.CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := validation.ValidateItemTitle(req.Title); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.Description != "" {
		if err := validation.ValidateItemDescription(req.Description); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	if _, err := valueobject.NewPrice(req.ListPrice, ""); err != nil {
		response.Error(c, err)
		return
	}

	item := &models.Item{
		SellerID:    userID,
		Title:       req.Title,
		Description: req.Description,
		ListPrice:   req.ListPrice,
		IsActive:    true,
	}
	if err := h.items.Create(c.Request.Context(), item); err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, item)
}

// Get обрабатывает GET /items/:id.
func (h *ItemHandler) Get(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	item, err := h.items.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, item)
}

// List обрабатывает GET /items с limit/offset пагинацией.
func (h *ItemHandler) List(c *gin.Context) {
	limit := queryInt(c, "limit", 20, 100)
	offset := queryInt(c, "offset", 0, 1<<30)

	items, err := h.items.List(c.Request.Context(), limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, items, len(items), limit, offset)
}

// ListMine обрабатывает GET /items/my — каталог текущего мастера.
func (h *ItemHandler) ListMine(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		response.Unauthorized(c, "требуется авторизация")
		return
	}

	items, err := h.items.ListBySeller(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, items)
}

// queryInt читает числовой query параметр с дефолтом и верхней границей.
func queryInt(c *gin.Context, name string, def, max int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}
