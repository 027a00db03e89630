package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEntry is the per-user costing aggregate. TotalValue/TotalQuantity
// (when TotalQuantity > 0) is the weighted-average unit cost of everything
// the user currently holds. Created lazily on the user's first transaction.
type LedgerEntry struct {
	UserID        string
	TotalQuantity int
	TotalValue    decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AverageCost returns TotalValue / TotalQuantity. Callers must check
// TotalQuantity > 0 first.
func (e LedgerEntry) AverageCost() decimal.Decimal {
	return e.TotalValue.Div(decimal.NewFromInt(int64(e.TotalQuantity)))
}
