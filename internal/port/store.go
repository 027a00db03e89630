package port

import (
	"context"
	"time"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

// Store is the persistence surface the ledger core writes through. Lookups
// return (nil, nil) when the row does not exist.
type Store interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)

	// UpdateProductQuantity sets the on-hand stock with a version check for
	// optimistic locking.
	UpdateProductQuantity(ctx context.Context, id string, quantity, version int) error

	GetLedgerEntry(ctx context.Context, userID string) (*domain.LedgerEntry, error)
	UpsertLedgerEntry(ctx context.Context, entry domain.LedgerEntry) error

	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)

	// ListTransactions returns the user's transactions ordered by date
	// ascending; filter narrows by type when non-empty.
	ListTransactions(ctx context.Context, userID string, filter domain.TransactionType) ([]domain.Transaction, error)

	// ListTransactionsFrom returns the user's transactions dated on or after
	// from, ascending.
	ListTransactionsFrom(ctx context.Context, userID string, from time.Time) ([]domain.Transaction, error)

	// ListTransactionsBetween returns the user's transactions dated within
	// [from, to] inclusive, ascending.
	ListTransactionsBetween(ctx context.Context, userID string, from, to time.Time) ([]domain.Transaction, error)

	InsertTransaction(ctx context.Context, tx domain.Transaction) error
	UpdateTransaction(ctx context.Context, tx domain.Transaction) error
	UpdateTransactionDate(ctx context.Context, id string, date time.Time) error
	DeleteTransaction(ctx context.Context, id string) error
}

// Database is a Store that can also execute a function inside one atomic
// transaction scope. Everything fn does through the passed Store commits
// together or not at all.
type Database interface {
	Store

	WithinTx(ctx context.Context, fn func(s Store) error) error
}
