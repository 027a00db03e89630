package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

const (
	lockRetryInterval = 20 * time.Millisecond
	lockMaxAttempts   = 50
)

// TransactionInput carries the caller-supplied fields of a create or update.
// A zero Date means today.
type TransactionInput struct {
	ProductID string
	Type      domain.TransactionType
	Quantity  int
	Date      time.Time
}

// TransactionService orchestrates the ledger core. Every mutation runs under
// the user's lock and inside one atomic store transaction spanning the stock
// check, the ledger update, the product stock update, the date cascade and
// the record write; any failure rolls the whole unit back.
type TransactionService struct {
	db     port.Database
	locker port.UserLocker
	now    func() time.Time
}

func NewTransactionService(db port.Database, locker port.UserLocker) *TransactionService {
	return &TransactionService{
		db:     db,
		locker: locker,
		now:    time.Now,
	}
}

func (s *TransactionService) RecordTransaction(ctx context.Context, userID string, in TransactionInput) (*domain.Transaction, error) {
	if err := validateInput(userID, in); err != nil {
		return nil, err
	}

	date := in.Date
	if date.IsZero() {
		date = s.now()
	}
	date = domain.Day(date)
	now := s.now()

	var created domain.Transaction
	err := s.withUserLock(ctx, userID, func() error {
		return s.db.WithinTx(ctx, func(st port.Store) error {
			product, err := st.GetProduct(ctx, in.ProductID)
			if err != nil {
				return err
			}
			if product == nil {
				return fmt.Errorf("%w: product %s", ErrNotFound, in.ProductID)
			}

			entry, err := loadLedgerEntry(ctx, st, userID)
			if err != nil {
				return err
			}

			newEntry, stockDelta, err := applyToLedger(entry, *product, in.Type, in.Quantity)
			if err != nil {
				return err
			}

			if err := s.freeDateSlot(ctx, st, userID, date, time.Time{}, ""); err != nil {
				return err
			}

			created = domain.Transaction{
				ID:          uuid.NewString(),
				UserID:      userID,
				ProductID:   product.ID,
				Type:        in.Type,
				Quantity:    in.Quantity,
				Price:       product.Price,
				TotalAmount: product.Price.Mul(decimalFromInt(in.Quantity)),
				Date:        date,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := st.InsertTransaction(ctx, created); err != nil {
				return fmt.Errorf("insert transaction: %w", err)
			}
			if err := st.UpsertLedgerEntry(ctx, newEntry); err != nil {
				return fmt.Errorf("upsert ledger entry: %w", err)
			}
			if err := st.UpdateProductQuantity(ctx, product.ID, product.Quantity+stockDelta, product.Version); err != nil {
				return fmt.Errorf("update product stock: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *TransactionService) UpdateTransaction(ctx context.Context, recordID, userID string, in TransactionInput) (*domain.Transaction, error) {
	if recordID == "" {
		return nil, fmt.Errorf("%w: record id is required", ErrValidation)
	}
	if err := validateInput(userID, in); err != nil {
		return nil, err
	}

	date := in.Date
	if date.IsZero() {
		date = s.now()
	}
	date = domain.Day(date)

	var updated domain.Transaction
	err := s.withUserLock(ctx, userID, func() error {
		return s.db.WithinTx(ctx, func(st port.Store) error {
			rec, err := loadOwnedTransaction(ctx, st, recordID, userID)
			if err != nil {
				return err
			}

			entry, err := loadLedgerEntry(ctx, st, userID)
			if err != nil {
				return err
			}

			// Revert the old record's effect, then apply the new values as a
			// fresh transaction, so the ledger always equals the fold of the
			// live records.
			entry, oldDelta, err := revertFromLedger(entry, *rec)
			if err != nil {
				return err
			}

			oldProduct, err := st.GetProduct(ctx, rec.ProductID)
			if err != nil {
				return err
			}
			if oldProduct == nil {
				return fmt.Errorf("%w: product %s", ErrNotFound, rec.ProductID)
			}
			if oldProduct.Quantity+oldDelta < 0 {
				return ErrInsufficientStock
			}

			newProduct := oldProduct
			if in.ProductID != rec.ProductID {
				newProduct, err = st.GetProduct(ctx, in.ProductID)
				if err != nil {
					return err
				}
				if newProduct == nil {
					return fmt.Errorf("%w: product %s", ErrNotFound, in.ProductID)
				}
			}

			// The stock the new transaction sees includes the reverted old
			// effect when both touch the same product.
			applied := *newProduct
			if in.ProductID == rec.ProductID {
				applied.Quantity += oldDelta
			}

			entry, newDelta, err := applyToLedger(entry, applied, in.Type, in.Quantity)
			if err != nil {
				return err
			}

			updated = *rec
			updated.ProductID = newProduct.ID
			updated.Type = in.Type
			updated.Quantity = in.Quantity
			updated.Price = newProduct.Price
			updated.TotalAmount = newProduct.Price.Mul(decimalFromInt(in.Quantity))
			updated.Date = date
			updated.UpdatedAt = s.now()

			if domain.SameDay(rec.Date, date) {
				if err := st.UpdateTransaction(ctx, updated); err != nil {
					return fmt.Errorf("update transaction: %w", err)
				}
			} else {
				// The record must vacate its old day before the cascade runs,
				// or a shifted record landing there would trip the unique
				// (user, date) key. Delete and reinsert within the unit.
				if err := st.DeleteTransaction(ctx, rec.ID); err != nil {
					return fmt.Errorf("delete transaction: %w", err)
				}
				if err := s.freeDateSlot(ctx, st, userID, date, rec.Date, rec.ID); err != nil {
					return err
				}
				if err := st.InsertTransaction(ctx, updated); err != nil {
					return fmt.Errorf("insert transaction: %w", err)
				}
			}
			if err := st.UpsertLedgerEntry(ctx, entry); err != nil {
				return fmt.Errorf("upsert ledger entry: %w", err)
			}

			if in.ProductID == rec.ProductID {
				return storeProductQuantity(ctx, st, *oldProduct, oldDelta+newDelta)
			}
			if err := storeProductQuantity(ctx, st, *oldProduct, oldDelta); err != nil {
				return err
			}
			return storeProductQuantity(ctx, st, *newProduct, newDelta)
		})
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *TransactionService) DeleteTransaction(ctx context.Context, recordID, userID string) error {
	if recordID == "" || userID == "" {
		return fmt.Errorf("%w: record id and user id are required", ErrValidation)
	}

	return s.withUserLock(ctx, userID, func() error {
		return s.db.WithinTx(ctx, func(st port.Store) error {
			rec, err := loadOwnedTransaction(ctx, st, recordID, userID)
			if err != nil {
				return err
			}

			product, err := st.GetProduct(ctx, rec.ProductID)
			if err != nil {
				return err
			}
			if product == nil {
				return fmt.Errorf("%w: product %s", ErrNotFound, rec.ProductID)
			}

			entry, err := loadLedgerEntry(ctx, st, userID)
			if err != nil {
				return err
			}

			entry, delta, err := revertFromLedger(entry, *rec)
			if err != nil {
				return err
			}
			if product.Quantity+delta < 0 {
				return ErrInsufficientStock
			}

			if err := st.DeleteTransaction(ctx, rec.ID); err != nil {
				return fmt.Errorf("delete transaction: %w", err)
			}
			if err := st.UpsertLedgerEntry(ctx, entry); err != nil {
				return fmt.Errorf("upsert ledger entry: %w", err)
			}
			return storeProductQuantity(ctx, st, *product, delta)
		})
	})
}

// ListTransactions returns the user's transactions ordered by date; filter
// narrows by type when non-empty.
func (s *TransactionService) ListTransactions(ctx context.Context, userID string, filter domain.TransactionType) ([]domain.Transaction, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if filter != "" && !filter.Valid() {
		return nil, fmt.Errorf("%w: unknown transaction type %q", ErrValidation, filter)
	}
	return s.db.ListTransactions(ctx, userID, filter)
}

func (s *TransactionService) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return s.db.GetProduct(ctx, id)
}

func (s *TransactionService) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.db.ListProducts(ctx)
}

// freeDateSlot vacates the target day by shifting conflicting records
// forward. Moves are computed in ascending date order but applied in reverse,
// so every record vacates its old day before an earlier record lands on it;
// the store's unique (user, date) key would otherwise reject the
// intermediate state.
func (s *TransactionService) freeDateSlot(ctx context.Context, st port.Store, userID string, target, previous time.Time, excludeID string) error {
	var (
		records []domain.Transaction
		err     error
	)
	if !previous.IsZero() && domain.Day(target).Before(domain.Day(previous)) {
		// A record moving earlier only displaces the span it jumps over;
		// nothing shifted lands past the vacated previous day.
		records, err = st.ListTransactionsBetween(ctx, userID, target, previous)
	} else {
		records, err = st.ListTransactionsFrom(ctx, userID, target)
	}
	if err != nil {
		return fmt.Errorf("list transactions from %s: %w", domain.FormatDay(target), err)
	}

	moves, err := reconcileDates(records, target, previous, excludeID)
	if err != nil {
		return err
	}

	for i := len(moves) - 1; i >= 0; i-- {
		if err := st.UpdateTransactionDate(ctx, moves[i].ID, moves[i].Date); err != nil {
			return fmt.Errorf("shift transaction %s: %w", moves[i].ID, err)
		}
	}
	return nil
}

func (s *TransactionService) withUserLock(ctx context.Context, userID string, fn func() error) error {
	acquired := false
	for attempt := 0; attempt < lockMaxAttempts; attempt++ {
		ok, err := s.locker.AcquireUserLock(ctx, userID)
		if err != nil {
			return fmt.Errorf("acquire user lock: %w", err)
		}
		if ok {
			acquired = true
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
	if !acquired {
		return ErrUserBusy
	}
	// Release must go through even when the request context was canceled,
	// or the user stays locked until the TTL expires.
	defer func() {
		_ = s.locker.ReleaseUserLock(context.WithoutCancel(ctx), userID)
	}()

	return fn()
}

func validateInput(userID string, in TransactionInput) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if in.ProductID == "" {
		return fmt.Errorf("%w: product id is required", ErrValidation)
	}
	if !in.Type.Valid() {
		return fmt.Errorf("%w: type must be purchase or sale", ErrValidation)
	}
	if in.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	return nil
}

func loadLedgerEntry(ctx context.Context, st port.Store, userID string) (domain.LedgerEntry, error) {
	entry, err := st.GetLedgerEntry(ctx, userID)
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("get ledger entry: %w", err)
	}
	if entry == nil {
		return domain.LedgerEntry{UserID: userID}, nil
	}
	return *entry, nil
}

func loadOwnedTransaction(ctx context.Context, st port.Store, recordID, userID string) (*domain.Transaction, error) {
	rec, err := st.GetTransaction(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	if rec == nil || rec.UserID != userID {
		return nil, fmt.Errorf("%w: transaction %s", ErrNotFound, recordID)
	}
	return rec, nil
}

func storeProductQuantity(ctx context.Context, st port.Store, product domain.Product, delta int) error {
	if err := st.UpdateProductQuantity(ctx, product.ID, product.Quantity+delta, product.Version); err != nil {
		return fmt.Errorf("update product stock: %w", err)
	}
	return nil
}
