package valueobject

import (
	"fmt"

	"github.com/ignatzorin/artisan-market-backend/internal/pkg/apperror"
)

// Предельная цена защищает от опечаток вида лишнего нуля.
const MaxPrice = 100000000.0

type Price struct {
	Amount   float64
	Currency string
}

func NewPrice(amount float64, currency string) (Price, error) {
	if amount <= 0 {
		return Price{}, apperror.New(apperror.ErrCodeValidation, "цена должна быть положительной")
	}
	if amount > MaxPrice {
		return Price{}, apperror.New(apperror.ErrCodeValidation, "цена превышает допустимый максимум")
	}
	if currency == "" {
		currency = "RUB"
	}
	return Price{Amount: amount, Currency: currency}, nil
}

func (p Price) String() string {
	return fmt.Sprintf("%.2f %s", p.Amount, p.Currency)
}
