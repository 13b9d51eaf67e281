package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/artisan-market-backend/internal/domain/entity"
	"github.com/ignatzorin/artisan-market-backend/internal/models"
	"github.com/ignatzorin/artisan-market-backend/internal/service"
)

// AuthResponse возвращается на регистрацию, вход и обновление токенов.
type AuthResponse struct {
	User         *models.User `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
}

// NewAuthResponse собирает ответ из результата сервиса аутентификации.
func NewAuthResponse(result *service.AuthResult) *AuthResponse {
	return &AuthResponse{
		User:         result.User,
		AccessToken:  result.TokenPair.AccessToken,
		RefreshToken: result.TokenPair.RefreshToken,
	}
}

// NegotiationResponse — торг в том виде, в котором его видит клиент.
type NegotiationResponse struct {
	ID           uuid.UUID  `json:"id"`
	CustomerID   uuid.UUID  `json:"customer_id"`
	SellerID     uuid.UUID  `json:"seller_id"`
	ItemID       *uuid.UUID `json:"item_id,omitempty"`
	CustomSpec   *string    `json:"custom_spec,omitempty"`
	Status       string     `json:"status"`
	CurrentPrice *float64   `json:"current_price,omitempty"`
	RoundCount   int        `json:"round_count"`
	LastActor    string     `json:"last_actor,omitempty"`
	OrderID      *uuid.UUID `json:"order_id,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NewNegotiationResponse преобразует доменную сущность в DTO.
func NewNegotiationResponse(thread *entity.NegotiationThread) *NegotiationResponse {
	return &NegotiationResponse{
		ID:           thread.ID,
		CustomerID:   thread.CustomerID,
		SellerID:     thread.SellerID,
		ItemID:       thread.ItemID,
		CustomSpec:   thread.CustomSpec,
		Status:       string(thread.Status),
		CurrentPrice: thread.CurrentPrice,
		RoundCount:   thread.RoundCount,
		LastActor:    string(thread.LastActor),
		OrderID:      thread.OrderID,
		ExpiresAt:    thread.ExpiresAt,
		CreatedAt:    thread.CreatedAt,
		UpdatedAt:    thread.UpdatedAt,
	}
}

// NewNegotiationListResponse преобразует список торгов.
func NewNegotiationListResponse(threads []*entity.NegotiationThread) []*NegotiationResponse {
	out := make([]*NegotiationResponse, 0, len(threads))
	for _, thread := range threads {
		out = append(out, NewNegotiationResponse(thread))
	}
	return out
}

// LedgerEventResponse — одна запись журнала торга.
type LedgerEventResponse struct {
	ID        uuid.UUID `json:"id"`
	ThreadID  uuid.UUID `json:"thread_id"`
	Sequence  int64     `json:"sequence"`
	Actor     string    `json:"actor"`
	Kind      string    `json:"kind"`
	Price     *float64  `json:"price,omitempty"`
	Note      *string   `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewLedgerEventListResponse преобразует журнал торга в DTO.
func NewLedgerEventListResponse(events []*entity.LedgerEvent) []*LedgerEventResponse {
	out := make([]*LedgerEventResponse, 0, len(events))
	for _, event := range events {
		out = append(out, &LedgerEventResponse{
			ID:        event.ID,
			ThreadID:  event.ThreadID,
			Sequence:  event.Sequence,
			Actor:     string(event.Actor),
			Kind:      string(event.Kind),
			Price:     event.Price,
			Note:      event.Note,
			CreatedAt: event.CreatedAt,
		})
	}
	return out
}
