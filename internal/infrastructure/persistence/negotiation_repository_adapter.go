package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignatzorin/artisan-market-backend/internal/domain/entity"
	"github.com/ignatzorin/artisan-market-backend/internal/domain/valueobject"
	"github.com/ignatzorin/artisan-market-backend/internal/pkg/apperror"
)

// pgUniqueViolation — код ошибки PostgreSQL для нарушения уникальности.
const pgUniqueViolation = "23505"

// NegotiationRepositoryAdapter реализует NegotiationRepository поверх PostgreSQL.
type NegotiationRepositoryAdapter struct {
	db *sqlx.DB
}

func NewNegotiationRepositoryAdapter(db *sqlx.DB) *NegotiationRepositoryAdapter {
	return &NegotiationRepositoryAdapter{db: db}
}

func (r *NegotiationRepositoryAdapter) CreateThread(ctx context.Context, thread *entity.NegotiationThread, first *entity.LedgerEvent) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось начать транзакцию")
	}
	defer tx.Rollback()

	threadQuery := `
		INSERT INTO negotiation_threads
			(id, customer_id, seller_id, item_id, custom_spec, status, current_price,
			 round_count, last_actor, last_sequence, order_id, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = tx.ExecContext(ctx, threadQuery,
		thread.ID, thread.CustomerID, thread.SellerID, thread.ItemID, thread.CustomSpec,
		string(thread.Status), thread.CurrentPrice, thread.RoundCount, string(thread.LastActor),
		thread.LastSequence, thread.OrderID, thread.ExpiresAt, thread.CreatedAt, thread.UpdatedAt,
	)
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось создать торг")
	}

	if err := insertEvent(ctx, tx, first); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось зафиксировать создание торга")
	}
	return nil
}

func (r *NegotiationRepositoryAdapter) GetThread(ctx context.Context, id uuid.UUID) (*entity.NegotiationThread, error) {
	var row threadRow
	query := `
		SELECT id, customer_id, seller_id, item_id, custom_spec, status, current_price,
		       round_count, last_actor, last_sequence, order_id, expires_at, created_at, updated_at
		FROM negotiation_threads WHERE id = $1
	`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrThreadNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить торг")
	}
	return row.toEntity(), nil
}

// AppendEvent — сердце оптимистической блокировки. Обновление кэша треда
// обусловлено неизменностью last_sequence; уникальный индекс по
// (thread_id, sequence) страхует от двойной записи события.
func (r *NegotiationRepositoryAdapter) AppendEvent(ctx context.Context, thread *entity.NegotiationThread, event *entity.LedgerEvent) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось начать транзакцию")
	}
	defer tx.Rollback()

	updateQuery := `
		UPDATE negotiation_threads
		SET status = $2, current_price = $3, round_count = $4, last_actor = $5,
		    last_sequence = $6, expires_at = $7, updated_at = $8
		WHERE id = $1 AND last_sequence = $9
	`
	res, err := tx.ExecContext(ctx, updateQuery,
		thread.ID, string(thread.Status), thread.CurrentPrice, thread.RoundCount,
		string(thread.LastActor), event.Sequence, thread.ExpiresAt, time.Now(),
		event.Sequence-1,
	)
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось обновить торг")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось обновить торг")
	}
	if affected == 0 {
		return apperror.ErrSequenceConflict
	}

	if err := insertEvent(ctx, tx, event); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось зафиксировать событие торга")
	}
	return nil
}

func (r *NegotiationRepositoryAdapter) CompleteThread(ctx context.Context, threadID, orderID uuid.UUID) (bool, error) {
	query := `
		UPDATE negotiation_threads
		SET status = $3, order_id = $2, expires_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = $4 AND order_id IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, threadID, orderID,
		string(valueobject.NegotiationStatusCompleted), string(valueobject.NegotiationStatusAccepted))
	if err != nil {
		return false, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось завершить торг")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось завершить торг")
	}
	return affected == 1, nil
}

func (r *NegotiationRepositoryAdapter) ListActiveByParticipant(ctx context.Context, userID uuid.UUID, role valueobject.Actor) ([]*entity.NegotiationThread, error) {
	column := "customer_id"
	if role == valueobject.ActorSeller {
		column = "seller_id"
	}

	var rows []threadRow
	query := `
		SELECT id, customer_id, seller_id, item_id, custom_spec, status, current_price,
		       round_count, last_actor, last_sequence, order_id, expires_at, created_at, updated_at
		FROM negotiation_threads
		WHERE ` + column + ` = $1 AND status IN ($2, $3, $4)
		ORDER BY updated_at DESC
	`
	err := r.db.SelectContext(ctx, &rows, query, userID,
		string(valueobject.NegotiationStatusPending),
		string(valueobject.NegotiationStatusCounterOffered),
		string(valueobject.NegotiationStatusAccepted))
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить активные торги")
	}
	return toThreadEntities(rows), nil
}

func (r *NegotiationRepositoryAdapter) ListExpired(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 100
	}
	var ids []uuid.UUID
	query := `
		SELECT id FROM negotiation_threads
		WHERE status IN ($1, $2) AND expires_at IS NOT NULL AND expires_at < $3
		ORDER BY expires_at
		LIMIT $4
	`
	err := r.db.SelectContext(ctx, &ids, query,
		string(valueobject.NegotiationStatusPending),
		string(valueobject.NegotiationStatusCounterOffered),
		now, limit)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить просроченные торги")
	}
	return ids, nil
}

func (r *NegotiationRepositoryAdapter) History(ctx context.Context, threadID uuid.UUID) ([]*entity.LedgerEvent, error) {
	var rows []eventRow
	query := `
		SELECT id, thread_id, sequence, actor, kind, price, note, created_at
		FROM negotiation_ledger_events
		WHERE thread_id = $1
		ORDER BY sequence
	`
	if err := r.db.SelectContext(ctx, &rows, query, threadID); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить журнал торга")
	}

	events := make([]*entity.LedgerEvent, len(rows))
	for i, row := range rows {
		events[i] = row.toEntity()
	}
	return events, nil
}

func insertEvent(ctx context.Context, tx *sqlx.Tx, event *entity.LedgerEvent) error {
	query := `
		INSERT INTO negotiation_ledger_events (id, thread_id, sequence, actor, kind, price, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := tx.ExecContext(ctx, query,
		event.ID, event.ThreadID, event.Sequence, string(event.Actor), string(event.Kind),
		event.Price, event.Note, event.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return apperror.ErrSequenceConflict
		}
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось записать событие торга")
	}
	return nil
}

type threadRow struct {
	ID           uuid.UUID  `db:"id"`
	CustomerID   uuid.UUID  `db:"customer_id"`
	SellerID     uuid.UUID  `db:"seller_id"`
	ItemID       *uuid.UUID `db:"item_id"`
	CustomSpec   *string    `db:"custom_spec"`
	Status       string     `db:"status"`
	CurrentPrice *float64   `db:"current_price"`
	RoundCount   int        `db:"round_count"`
	LastActor    string     `db:"last_actor"`
	LastSequence int64      `db:"last_sequence"`
	OrderID      *uuid.UUID `db:"order_id"`
	ExpiresAt    *time.Time `db:"expires_at"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

func (row *threadRow) toEntity() *entity.NegotiationThread {
	return &entity.NegotiationThread{
		ID:           row.ID,
		CustomerID:   row.CustomerID,
		SellerID:     row.SellerID,
		ItemID:       row.ItemID,
		CustomSpec:   row.CustomSpec,
		Status:       valueobject.NegotiationStatus(row.Status),
		CurrentPrice: row.CurrentPrice,
		RoundCount:   row.RoundCount,
		LastActor:    valueobject.Actor(row.LastActor),
		LastSequence: row.LastSequence,
		OrderID:      row.OrderID,
		ExpiresAt:    row.ExpiresAt,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

func toThreadEntities(rows []threadRow) []*entity.NegotiationThread {
	result := make([]*entity.NegotiationThread, len(rows))
	for i, row := range rows {
		result[i] = row.toEntity()
	}
	return result
}

type eventRow struct {
	ID        uuid.UUID  `db:"id"`
	ThreadID  uuid.UUID  `db:"thread_id"`
	Sequence  int64      `db:"sequence"`
	Actor     string     `db:"actor"`
	Kind      string     `db:"kind"`
	Price     *float64   `db:"price"`
	Note      *string    `db:"note"`
	CreatedAt time.Time  `db:"created_at"`
}

func (row *eventRow) toEntity() *entity.LedgerEvent {
	return &entity.LedgerEvent{
		ID:        row.ID,
		ThreadID:  row.ThreadID,
		Sequence:  row.Sequence,
		Actor:     valueobject.Actor(row.Actor),
		Kind:      valueobject.EventKind(row.Kind),
		Price:     row.Price,
		Note:      row.Note,
		CreatedAt: row.CreatedAt,
	}
}
