package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/artisan-market-backend/internal/domain/valueobject"
	"github.com/ignatzorin/artisan-market-backend/internal/dto"
	"github.com/ignatzorin/artisan-market-backend/internal/http/response"
	"github.com/ignatzorin/artisan-market-backend/internal/service"
	"github.com/ignatzorin/artisan-market-backend/internal/validation"
)

// NegotiationHandler предоставляет HTTP слой торга за цену.
type NegotiationHandler struct {
	negotiations *service.NegotiationService
}

// NewNegotiationHandler создаёт хэндлер.
func NewNegotiationHandler(negotiations *service.NegotiationService) *NegotiationHandler {
	return &NegotiationHandler{negotiations: negotiations}
}

// Create обрабатывает POST /negotiations — открытие торга начальным предложением.
func (h *NegotiationHandler) Create(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		response.Unauthorized(c, "требуется авторизация")
		return
	}

	var req dto.CreateNegotiationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	in := service.CreateNegotiationInput{
		InitiatorID:  userID,
		OpeningPrice: req.OpeningPrice,
		CustomSpec:   req.CustomSpec,
		Note:         req.Note,
	}

	// Инициатор указывает контрагента; вторая сторона выводится из него самого.
	if req.SellerID != "" {
		sellerID, err := uuid.Parse(req.SellerID)
		if err != nil {
			response.BadRequest(c, "некорректный seller_id")
			return
		}
		in.SellerID = sellerID
		in.CustomerID = userID
	} else if req.CustomerID != "" {
		customerID, err := uuid.Parse(req.CustomerID)
		if err != nil {
			response.BadRequest(c, "некорректный customer_id")
			return
		}
		in.CustomerID = customerID
		in.SellerID = userID
	} else {
		response.BadRequest(c, "нужно указать контрагента: seller_id или customer_id")
		return
	}

	if req.ItemID != nil && *req.ItemID != "" {
		itemID, err := uuid.Parse(*req.ItemID)
		if err != nil {
			response.BadRequest(c, "некорректный item_id")
			return
		}
		in.ItemID = &itemID
	}

	if req.CustomSpec != nil && *req.CustomSpec != "" {
		if err := validation.ValidateCustomSpec(*req.CustomSpec); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	if req.Note != nil && *req.Note != "" {
		if err := validation.ValidateNote(*req.Note); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}

	thread, err := h.negotiations.CreateNegotiation(c.Request.Context(), in)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.NewNegotiationResponse(thread))
}

// Respond обрабатывает POST /negotiations/:id/respond — ход counter, accept или reject.
func (h *NegotiationHandler) Respond(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		response.Unauthorized(c, "требуется авторизация")
		return
	}

	threadID, err := pathUUID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	kind, err := valueobject.NewEventKind(req.Action)
	if err != nil {
		response.Error(c, err)
		return
	}
	if req.Note != nil && *req.Note != "" {
		if err := validation.ValidateNote(*req.Note); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}

	thread, err := h.negotiations.Respond(c.Request.Context(), threadID, userID, kind, req.Price, req.Note)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.NewNegotiationResponse(thread))
}

// Cancel обрабатывает POST /negotiations/:id/cancel.
func (h *NegotiationHandler) Cancel(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		response.Unauthorized(c, "требуется авторизация")
		return
	}

	threadID, err := pathUUID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.CancelNegotiationRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.BadRequest(c, err.Error())
		return
	}
	if req.Reason != "" {
		if err := validation.ValidateCancelReason(req.Reason); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}

	cancelled, err := h.negotiations.Cancel(c.Request.Context(), threadID, userID, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{"cancelled": cancelled})
}

// ListMy обрабатывает GET /negotiations — активные торги текущего пользователя.
// Параметр role=customer|seller сужает выборку до одной стороны.
func (h *NegotiationHandler) ListMy(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		response.Unauthorized(c, "требуется авторизация")
		return
	}

	role := c.Query("role")
	threads, err := h.negotiations.ActiveNegotiations(c.Request.Context(), userID, role)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.NewNegotiationListResponse(threads))
}

// History обрабатывает GET /negotiations/:id/events — полный журнал торга.
func (h *NegotiationHandler) History(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		response.Unauthorized(c, "требуется авторизация")
		return
	}

	threadID, err := pathUUID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	events, err := h.negotiations.History(c.Request.Context(), threadID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.NewLedgerEventListResponse(events))
}

// RetryConversion обрабатывает POST /negotiations/:id/convert — повторная
// попытка оформить заказ, если после accept конвертация не прошла.
func (h *NegotiationHandler) RetryConversion(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		response.Unauthorized(c, "требуется авторизация")
		return
	}

	threadID, err := pathUUID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	thread, err := h.negotiations.RetryConversion(c.Request.Context(), threadID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.NewNegotiationResponse(thread))
}
