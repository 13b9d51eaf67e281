package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/artisan-market-backend/internal/domain/entity"
	"github.com/ignatzorin/artisan-market-backend/internal/domain/valueobject"
)

// NegotiationRepository хранит треды торга и их журнал.
//
// AppendEvent — единица конкурентного контроля: в одной транзакции
// добавляется запись журнала и обновляется кэш треда при условии, что
// last_sequence не изменился с момента чтения. Проигравший гонку получает
// apperror.ErrSequenceConflict и обязан перечитать тред.
type NegotiationRepository interface {
	// CreateThread сохраняет тред вместе с первым событием propose атомарно.
	CreateThread(ctx context.Context, thread *entity.NegotiationThread, first *entity.LedgerEvent) error
	GetThread(ctx context.Context, id uuid.UUID) (*entity.NegotiationThread, error)
	// AppendEvent записывает событие под номером event.Sequence и применяет
	// новые кэшированные поля thread. Условие успеха: в хранилище
	// last_sequence == event.Sequence-1.
	AppendEvent(ctx context.Context, thread *entity.NegotiationThread, event *entity.LedgerEvent) error
	// CompleteThread переводит accepted-тред в completed, привязывая заказ.
	// Возвращает false, если тред уже completed (повторная конвертация).
	CompleteThread(ctx context.Context, threadID, orderID uuid.UUID) (bool, error)
	ListActiveByParticipant(ctx context.Context, userID uuid.UUID, role valueobject.Actor) ([]*entity.NegotiationThread, error)
	// ListExpired возвращает идентификаторы тредов, у которых истёк срок ответа.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	// History возвращает полный журнал в порядке sequence; доступен и для
	// закрытых тредов (требование аудита).
	History(ctx context.Context, threadID uuid.UUID) ([]*entity.LedgerEvent, error)
}
