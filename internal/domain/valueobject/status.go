package valueobject

import "github.com/ignatzorin/artisan-market-backend/internal/pkg/apperror"

type NegotiationStatus string

const (
	NegotiationStatusPending        NegotiationStatus = "pending"
	NegotiationStatusCounterOffered NegotiationStatus = "counter_offered"
	NegotiationStatusAccepted       NegotiationStatus = "accepted"
	NegotiationStatusRejected       NegotiationStatus = "rejected"
	NegotiationStatusExpired        NegotiationStatus = "expired"
	NegotiationStatusCancelled      NegotiationStatus = "cancelled"
	NegotiationStatusCompleted      NegotiationStatus = "completed"
)

func (s NegotiationStatus) IsValid() bool {
	switch s {
	case NegotiationStatusPending, NegotiationStatusCounterOffered, NegotiationStatusAccepted,
		NegotiationStatusRejected, NegotiationStatusExpired, NegotiationStatusCancelled,
		NegotiationStatusCompleted:
		return true
	}
	return false
}

// IsTerminal сообщает, закрыт ли торг окончательно.
// Статус accepted не терминальный: он живёт до конвертации в заказ.
func (s NegotiationStatus) IsTerminal() bool {
	switch s {
	case NegotiationStatusRejected, NegotiationStatusExpired, NegotiationStatusCancelled, NegotiationStatusCompleted:
		return true
	}
	return false
}

// IsSweepable сообщает, может ли фоновый процесс перевести торг в expired.
func (s NegotiationStatus) IsSweepable() bool {
	return s == NegotiationStatusPending || s == NegotiationStatusCounterOffered
}

func NewNegotiationStatus(status string) (NegotiationStatus, error) {
	s := NegotiationStatus(status)
	if !s.IsValid() {
		return "", apperror.New(apperror.ErrCodeValidation, "некорректный статус торга")
	}
	return s, nil
}

// Actor обозначает сторону, совершающую действие в торге.
type Actor string

const (
	ActorCustomer Actor = "customer"
	ActorSeller   Actor = "seller"
	ActorSystem   Actor = "system"
)

func (a Actor) IsValid() bool {
	switch a {
	case ActorCustomer, ActorSeller, ActorSystem:
		return true
	}
	return false
}

// IsParticipant сообщает, является ли актор человеком-участником торга.
func (a Actor) IsParticipant() bool {
	return a == ActorCustomer || a == ActorSeller
}

func NewActor(actor string) (Actor, error) {
	a := Actor(actor)
	if !a.IsValid() {
		return "", apperror.New(apperror.ErrCodeValidation, "некорректный актор торга")
	}
	return a, nil
}

// EventKind обозначает тип записи в журнале торга.
type EventKind string

const (
	EventKindPropose EventKind = "propose"
	EventKindCounter EventKind = "counter"
	EventKindAccept  EventKind = "accept"
	EventKindReject  EventKind = "reject"
	EventKindCancel  EventKind = "cancel"
	EventKindExpire  EventKind = "expire"
)

func (k EventKind) IsValid() bool {
	switch k {
	case EventKindPropose, EventKindCounter, EventKindAccept, EventKindReject, EventKindCancel, EventKindExpire:
		return true
	}
	return false
}

// RequiresPrice сообщает, обязана ли запись этого типа нести цену.
func (k EventKind) RequiresPrice() bool {
	return k == EventKindPropose || k == EventKindCounter
}

func NewEventKind(kind string) (EventKind, error) {
	k := EventKind(kind)
	if !k.IsValid() {
		return "", apperror.New(apperror.ErrCodeValidation, "некорректный тип события торга")
	}
	return k, nil
}
