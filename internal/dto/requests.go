package dto

// RegisterRequest — запрос регистрации пользователя.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// LoginRequest — запрос входа.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest — запрос обновления пары токенов.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// CreateItemRequest — запрос на добавление изделия в каталог мастера.
type CreateItemRequest struct {
	Title       string  `json:"title" binding:"required"`
	Description string  `json:"description"`
	ListPrice   float64 `json:"list_price" binding:"required"`
}

// CreateNegotiationRequest — запрос на открытие торга.
// Указывается либо item_id (изделие из каталога), либо custom_spec
// (описание индивидуального заказа).
type CreateNegotiationRequest struct {
	SellerID     string  `json:"seller_id"`
	CustomerID   string  `json:"customer_id"`
	ItemID       *string `json:"item_id"`
	CustomSpec   *string `json:"custom_spec"`
	OpeningPrice float64 `json:"opening_price" binding:"required"`
	Note         *string `json:"note"`
}

// RespondRequest — ответный ход в торге: counter, accept или reject.
type RespondRequest struct {
	Action string   `json:"action" binding:"required"`
	Price  *float64 `json:"price"`
	Note   *string  `json:"note"`
}

// CancelNegotiationRequest — запрос отмены торга.
type CancelNegotiationRequest struct {
	Reason string `json:"reason"`
}
