package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/artisan-market-backend/internal/models"
	"github.com/ignatzorin/artisan-market-backend/internal/pkg/apperror"
)

// ItemRepository отвечает за позиции каталога мастеров.
type ItemRepository struct {
	db *sqlx.DB
}

// NewItemRepository создаёт репозиторий каталога.
func NewItemRepository(db *sqlx.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// Create сохраняет новую позицию каталога.
func (r *ItemRepository) Create(ctx context.Context, item *models.Item) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	now := time.Now()
	item.CreatedAt = now
	item.UpdatedAt = now

	query := `
		INSERT INTO items (id, seller_id, title, description, list_price, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		item.ID, item.SellerID, item.Title, item.Description, item.ListPrice,
		item.IsActive, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось создать позицию каталога")
	}
	return nil
}

// GetByID возвращает позицию каталога.
func (r *ItemRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	var item models.Item
	query := `
		SELECT id, seller_id, title, description, list_price, is_active, created_at, updated_at
		FROM items WHERE id = $1
	`
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrItemNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить позицию каталога")
	}
	return &item, nil
}

// List возвращает активные позиции каталога с пагинацией.
func (r *ItemRepository) List(ctx context.Context, limit, offset int) ([]models.Item, error) {
	var items []models.Item
	query := `
		SELECT id, seller_id, title, description, list_price, is_active, created_at, updated_at
		FROM items WHERE is_active = TRUE
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	if err := r.db.SelectContext(ctx, &items, query, limit, offset); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить каталог")
	}
	return items, nil
}

// ListBySeller возвращает позиции конкретного мастера, включая скрытые.
func (r *ItemRepository) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.Item, error) {
	var items []models.Item
	query := `
		SELECT id, seller_id, title, description, list_price, is_active, created_at, updated_at
		FROM items WHERE seller_id = $1
		ORDER BY created_at DESC
	`
	if err := r.db.SelectContext(ctx, &items, query, sellerID); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить позиции мастера")
	}
	return items, nil
}
