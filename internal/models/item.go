package models

import (
	"time"

	"github.com/google/uuid"
)

// Item описывает позицию каталога мастера: изделие ручной работы,
// за которое можно торговаться.
type Item struct {
	ID          uuid.UUID `db:"id" json:"id"`
	SellerID    uuid.UUID `db:"seller_id" json:"seller_id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	// ListPrice — стартовая цена в каталоге; итоговая цена определяется торгом.
	ListPrice float64   `db:"list_price" json:"list_price"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
