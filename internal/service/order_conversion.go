package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/artisan-market-backend/internal/domain/entity"
	"github.com/ignatzorin/artisan-market-backend/internal/models"
	"github.com/ignatzorin/artisan-market-backend/internal/pkg/apperror"
)

// OrderConverter превращает принятый торг в обязывающий заказ.
// Реализация обязана быть идемпотентной по идентификатору торга: повторный
// вызов после временного сбоя не создаёт дублирующий заказ.
type OrderConverter interface {
	Convert(ctx context.Context, thread *entity.NegotiationThread) (*models.PurchaseOrder, error)
}

// PurchaseOrderConverter — реализация OrderConverter поверх PostgreSQL.
// Идемпотентность обеспечена уникальным индексом по negotiation_id и
// вставкой через ON CONFLICT DO NOTHING.
type PurchaseOrderConverter struct {
	db *sqlx.DB
}

// NewPurchaseOrderConverter создаёт конвертер заказов.
func NewPurchaseOrderConverter(db *sqlx.DB) *PurchaseOrderConverter {
	return &PurchaseOrderConverter{db: db}
}

// Convert создаёт заказ по итоговым условиям торга либо возвращает уже
// созданный ранее заказ этого торга.
func (c *PurchaseOrderConverter) Convert(ctx context.Context, thread *entity.NegotiationThread) (*models.PurchaseOrder, error) {
	if thread.CurrentPrice == nil {
		return nil, apperror.New(apperror.ErrCodeInternal, "у принятого торга отсутствует итоговая цена")
	}

	insertQuery := `
		INSERT INTO purchase_orders
			(id, negotiation_id, customer_id, seller_id, item_id, custom_spec, final_price, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (negotiation_id) DO NOTHING
	`
	_, err := c.db.ExecContext(ctx, insertQuery,
		uuid.New(), thread.ID, thread.CustomerID, thread.SellerID,
		thread.ItemID, thread.CustomSpec, *thread.CurrentPrice, models.PurchaseOrderStatusNew,
	)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось создать заказ")
	}

	// Читаем независимо от того, чья вставка победила.
	var order models.PurchaseOrder
	selectQuery := `
		SELECT id, negotiation_id, customer_id, seller_id, item_id, custom_spec, final_price, status, created_at, updated_at
		FROM purchase_orders WHERE negotiation_id = $1
	`
	if err := c.db.GetContext(ctx, &order, selectQuery, thread.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrOrderNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить заказ")
	}
	return &order, nil
}
