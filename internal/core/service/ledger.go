package service

import (
	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

// Weighted-average costing over the per-user ledger entry. Both functions are
// pure: they return the new entry and the product stock delta to persist, and
// the caller commits everything in one atomic unit.

func decimalFromInt(n int) decimal.Decimal {
	return decimal.NewFromInt(int64(n))
}

// applyToLedger folds one purchase or sale into the entry. A purchase adds
// quantity at the product's current price; a sale removes quantity at the
// entry's average unit cost.
func applyToLedger(entry domain.LedgerEntry, product domain.Product, txType domain.TransactionType, quantity int) (domain.LedgerEntry, int, error) {
	qty := decimalFromInt(quantity)

	if txType == domain.TransactionTypePurchase {
		entry.TotalQuantity += quantity
		entry.TotalValue = entry.TotalValue.Add(product.Price.Mul(qty))
		return entry, quantity, nil
	}

	if product.Quantity < quantity {
		return entry, 0, ErrInsufficientStock
	}
	if entry.TotalQuantity <= 0 {
		return entry, 0, ErrNoCostBasis
	}

	newQuantity := entry.TotalQuantity - quantity
	if newQuantity < 0 {
		return entry, 0, ErrInsufficientLedgerQuantity
	}

	costRemoved := entry.AverageCost().Mul(qty)
	entry.TotalQuantity = newQuantity
	entry.TotalValue = entry.TotalValue.Sub(costRemoved)
	return entry, -quantity, nil
}

// revertFromLedger undoes a previously committed transaction's effect, used
// by update (revert then re-apply) and delete. Reverting a purchase removes
// its quantity and recorded value; reverting a sale returns the quantity at
// the entry's current average cost, or at the record's price snapshot when
// the entry is empty.
func revertFromLedger(entry domain.LedgerEntry, rec domain.Transaction) (domain.LedgerEntry, int, error) {
	qty := decimalFromInt(rec.Quantity)

	if rec.Type == domain.TransactionTypePurchase {
		newQuantity := entry.TotalQuantity - rec.Quantity
		if newQuantity < 0 {
			return entry, 0, ErrInsufficientLedgerQuantity
		}
		// Sales in between were costed at a blended average, so removing
		// this purchase's recorded value can underrun what is left. A
		// negative cost basis would corrupt every later average.
		newValue := entry.TotalValue.Sub(rec.Price.Mul(qty))
		if newValue.IsNegative() {
			return entry, 0, ErrInsufficientLedgerQuantity
		}
		entry.TotalQuantity = newQuantity
		entry.TotalValue = newValue
		return entry, -rec.Quantity, nil
	}

	unitCost := rec.Price
	if entry.TotalQuantity > 0 {
		unitCost = entry.AverageCost()
	}
	entry.TotalQuantity += rec.Quantity
	entry.TotalValue = entry.TotalValue.Add(unitCost.Mul(qty))
	return entry, rec.Quantity, nil
}
