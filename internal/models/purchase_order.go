package models

import (
	"time"

	"github.com/google/uuid"
)

// Статусы заказа после успешного торга.
const (
	PurchaseOrderStatusNew        = "new"
	PurchaseOrderStatusInProgress = "in_progress"
	PurchaseOrderStatusShipped    = "shipped"
	PurchaseOrderStatusClosed     = "closed"
)

// PurchaseOrder — обязывающий заказ, созданный из принятого торга.
// Связь с торгом строго один к одному: NegotiationID уникален.
type PurchaseOrder struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	NegotiationID uuid.UUID  `db:"negotiation_id" json:"negotiation_id"`
	CustomerID    uuid.UUID  `db:"customer_id" json:"customer_id"`
	SellerID      uuid.UUID  `db:"seller_id" json:"seller_id"`
	ItemID        *uuid.UUID `db:"item_id" json:"item_id,omitempty"`
	CustomSpec    *string    `db:"custom_spec" json:"custom_spec,omitempty"`
	FinalPrice    float64    `db:"final_price" json:"final_price"`
	Status        string     `db:"status" json:"status"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}
