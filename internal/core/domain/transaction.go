package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypePurchase TransactionType = "purchase"
	TransactionTypeSale     TransactionType = "sale"
)

func (t TransactionType) Valid() bool {
	return t == TransactionTypePurchase || t == TransactionTypeSale
}

// Transaction is one dated purchase or sale. Price is the product price
// snapshotted at write time; TotalAmount = Price * Quantity. For a given
// user no two transactions share the same Date.
type Transaction struct {
	ID          string
	UserID      string
	ProductID   string
	Type        TransactionType
	Quantity    int
	Price       decimal.Decimal
	TotalAmount decimal.Decimal
	Date        time.Time // day granularity, UTC midnight
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
