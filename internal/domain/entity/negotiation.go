package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/artisan-market-backend/internal/domain/valueobject"
	"github.com/ignatzorin/artisan-market-backend/internal/pkg/apperror"
)

// NegotiationThread — один торг между покупателем и мастером за одну позицию.
// Поля Status, CurrentPrice, RoundCount, LastActor и LastSequence являются
// кэшем свёртки журнала и обновляются только вместе с записью в журнал.
type NegotiationThread struct {
	ID         uuid.UUID
	CustomerID uuid.UUID
	SellerID   uuid.UUID
	// Предмет торга: либо позиция каталога, либо свободное описание кастомной работы.
	ItemID       *uuid.UUID
	CustomSpec   *string
	Status       valueobject.NegotiationStatus
	CurrentPrice *float64
	RoundCount   int
	LastActor    valueobject.Actor
	LastSequence int64
	OrderID      *uuid.UUID
	ExpiresAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewNegotiationThread создаёт торг без событий; первое событие propose
// добавляется той же транзакцией, что и сама запись.
func NewNegotiationThread(customerID, sellerID uuid.UUID, itemID *uuid.UUID, customSpec *string) (*NegotiationThread, error) {
	if customerID == sellerID {
		return nil, apperror.ErrSelfNegotiation
	}
	if itemID == nil && (customSpec == nil || *customSpec == "") {
		return nil, apperror.ErrInvalidSubject
	}

	now := time.Now()
	return &NegotiationThread{
		ID:         uuid.New(),
		CustomerID: customerID,
		SellerID:   sellerID,
		ItemID:     itemID,
		CustomSpec: customSpec,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// RoleOf определяет роль пользователя в этом торге.
func (t *NegotiationThread) RoleOf(userID uuid.UUID) (valueobject.Actor, error) {
	switch userID {
	case t.CustomerID:
		return valueobject.ActorCustomer, nil
	case t.SellerID:
		return valueobject.ActorSeller, nil
	}
	return "", apperror.ErrNotParticipant
}

func (t *NegotiationThread) IsParticipant(userID uuid.UUID) bool {
	return userID == t.CustomerID || userID == t.SellerID
}

// NextSequence возвращает номер, под которым вызывающая сторона рассчитывает
// записать следующее событие журнала.
func (t *NegotiationThread) NextSequence() int64 {
	return t.LastSequence + 1
}

// LedgerEvent — неизменяемая запись журнала торга. Номера sequence монотонны
// внутри торга и уникальны на уровне хранилища.
type LedgerEvent struct {
	ID        uuid.UUID
	ThreadID  uuid.UUID
	Sequence  int64
	Actor     valueobject.Actor
	Kind      valueobject.EventKind
	Price     *float64
	Note      *string
	CreatedAt time.Time
}

// NewLedgerEvent валидирует и создаёт событие журнала.
func NewLedgerEvent(threadID uuid.UUID, sequence int64, actor valueobject.Actor, kind valueobject.EventKind, price *float64, note *string) (*LedgerEvent, error) {
	if !actor.IsValid() {
		return nil, apperror.New(apperror.ErrCodeValidation, "некорректный актор торга")
	}
	if !kind.IsValid() {
		return nil, apperror.New(apperror.ErrCodeValidation, "некорректный тип события торга")
	}
	if kind.RequiresPrice() {
		if price == nil {
			return nil, apperror.New(apperror.ErrCodeValidation, "для предложения цены требуется цена")
		}
		if _, err := valueobject.NewPrice(*price, ""); err != nil {
			return nil, err
		}
	} else if price != nil {
		// accept/reject/cancel/expire цену не несут
		return nil, apperror.New(apperror.ErrCodeValidation, "событие этого типа не может нести цену")
	}
	if sequence < 1 {
		return nil, apperror.New(apperror.ErrCodeValidation, "номер события должен начинаться с единицы")
	}

	return &LedgerEvent{
		ID:        uuid.New(),
		ThreadID:  threadID,
		Sequence:  sequence,
		Actor:     actor,
		Kind:      kind,
		Price:     price,
		Note:      note,
		CreatedAt: time.Now(),
	}, nil
}
