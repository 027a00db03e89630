package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

var ErrDuplicateDate = errors.New("duplicate transaction date for user")

// MemoryAdapter is an in-memory port.Database. WithinTx runs the function
// against a deep copy of the state and swaps it in only on success, so a
// failing unit leaves nothing behind; it also backs single-node runs and the
// service tests.
type MemoryAdapter struct {
	mu    sync.RWMutex
	state *memoryState
}

type memoryState struct {
	products     map[string]domain.Product
	ledgers      map[string]domain.LedgerEntry
	transactions map[string]domain.Transaction
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{state: &memoryState{
		products:     make(map[string]domain.Product),
		ledgers:      make(map[string]domain.LedgerEntry),
		transactions: make(map[string]domain.Transaction),
	}}
}

func (s *memoryState) clone() *memoryState {
	next := &memoryState{
		products:     make(map[string]domain.Product, len(s.products)),
		ledgers:      make(map[string]domain.LedgerEntry, len(s.ledgers)),
		transactions: make(map[string]domain.Transaction, len(s.transactions)),
	}
	for k, v := range s.products {
		next.products[k] = v
	}
	for k, v := range s.ledgers {
		next.ledgers[k] = v
	}
	for k, v := range s.transactions {
		next.transactions[k] = v
	}
	return next
}

func (m *MemoryAdapter) WithinTx(ctx context.Context, fn func(s port.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.state.clone()
	if err := fn(&memoryStore{state: next}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.state = next
	return nil
}

// SeedProduct inserts or replaces a catalog product; fixtures and tests only.
func (m *MemoryAdapter) SeedProduct(p domain.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.products[p.ID] = p
}

func (m *MemoryAdapter) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&memoryStore{state: m.state}).GetProduct(ctx, id)
}

func (m *MemoryAdapter) ListProducts(ctx context.Context) ([]domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&memoryStore{state: m.state}).ListProducts(ctx)
}

func (m *MemoryAdapter) UpdateProductQuantity(ctx context.Context, id string, quantity, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memoryStore{state: m.state}).UpdateProductQuantity(ctx, id, quantity, version)
}

func (m *MemoryAdapter) GetLedgerEntry(ctx context.Context, userID string) (*domain.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&memoryStore{state: m.state}).GetLedgerEntry(ctx, userID)
}

func (m *MemoryAdapter) UpsertLedgerEntry(ctx context.Context, entry domain.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memoryStore{state: m.state}).UpsertLedgerEntry(ctx, entry)
}

func (m *MemoryAdapter) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&memoryStore{state: m.state}).GetTransaction(ctx, id)
}

func (m *MemoryAdapter) ListTransactions(ctx context.Context, userID string, filter domain.TransactionType) ([]domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&memoryStore{state: m.state}).ListTransactions(ctx, userID, filter)
}

func (m *MemoryAdapter) ListTransactionsFrom(ctx context.Context, userID string, from time.Time) ([]domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&memoryStore{state: m.state}).ListTransactionsFrom(ctx, userID, from)
}

func (m *MemoryAdapter) ListTransactionsBetween(ctx context.Context, userID string, from, to time.Time) ([]domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&memoryStore{state: m.state}).ListTransactionsBetween(ctx, userID, from, to)
}

func (m *MemoryAdapter) InsertTransaction(ctx context.Context, tx domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memoryStore{state: m.state}).InsertTransaction(ctx, tx)
}

func (m *MemoryAdapter) UpdateTransaction(ctx context.Context, tx domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memoryStore{state: m.state}).UpdateTransaction(ctx, tx)
}

func (m *MemoryAdapter) UpdateTransactionDate(ctx context.Context, id string, date time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memoryStore{state: m.state}).UpdateTransactionDate(ctx, id, date)
}

func (m *MemoryAdapter) DeleteTransaction(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memoryStore{state: m.state}).DeleteTransaction(ctx, id)
}

// memoryStore operates on one state snapshot without locking; the adapter
// holds the lock around it.
type memoryStore struct {
	state *memoryState
}

func (s *memoryStore) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	p, ok := s.state.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *memoryStore) ListProducts(_ context.Context) ([]domain.Product, error) {
	out := make([]domain.Product, 0, len(s.state.products))
	for _, p := range s.state.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryStore) UpdateProductQuantity(_ context.Context, id string, quantity, version int) error {
	p, ok := s.state.products[id]
	if !ok {
		return fmt.Errorf("product %s not found", id)
	}
	if p.Version != version {
		return ErrOptimisticLock
	}
	p.Quantity = quantity
	p.Version++
	p.UpdatedAt = time.Now()
	s.state.products[id] = p
	return nil
}

func (s *memoryStore) GetLedgerEntry(_ context.Context, userID string) (*domain.LedgerEntry, error) {
	e, ok := s.state.ledgers[userID]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *memoryStore) UpsertLedgerEntry(_ context.Context, entry domain.LedgerEntry) error {
	if prev, ok := s.state.ledgers[entry.UserID]; ok {
		entry.CreatedAt = prev.CreatedAt
	} else if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.UpdatedAt = time.Now()
	s.state.ledgers[entry.UserID] = entry
	return nil
}

func (s *memoryStore) GetTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	tx, ok := s.state.transactions[id]
	if !ok {
		return nil, nil
	}
	return &tx, nil
}

func (s *memoryStore) ListTransactions(_ context.Context, userID string, filter domain.TransactionType) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, tx := range s.state.transactions {
		if tx.UserID != userID {
			continue
		}
		if filter != "" && tx.Type != filter {
			continue
		}
		out = append(out, tx)
	}
	sortByDate(out)
	return out, nil
}

func (s *memoryStore) ListTransactionsFrom(_ context.Context, userID string, from time.Time) ([]domain.Transaction, error) {
	from = domain.Day(from)
	var out []domain.Transaction
	for _, tx := range s.state.transactions {
		if tx.UserID != userID || tx.Date.Before(from) {
			continue
		}
		out = append(out, tx)
	}
	sortByDate(out)
	return out, nil
}

func (s *memoryStore) ListTransactionsBetween(_ context.Context, userID string, from, to time.Time) ([]domain.Transaction, error) {
	from, to = domain.Day(from), domain.Day(to)
	var out []domain.Transaction
	for _, tx := range s.state.transactions {
		if tx.UserID != userID || tx.Date.Before(from) || tx.Date.After(to) {
			continue
		}
		out = append(out, tx)
	}
	sortByDate(out)
	return out, nil
}

func (s *memoryStore) InsertTransaction(_ context.Context, tx domain.Transaction) error {
	if _, ok := s.state.transactions[tx.ID]; ok {
		return fmt.Errorf("transaction %s already exists", tx.ID)
	}
	if s.dateTaken(tx.UserID, tx.Date, tx.ID) {
		return fmt.Errorf("%w: %s on %s", ErrDuplicateDate, tx.UserID, domain.FormatDay(tx.Date))
	}
	tx.Date = domain.Day(tx.Date)
	s.state.transactions[tx.ID] = tx
	return nil
}

func (s *memoryStore) UpdateTransaction(_ context.Context, tx domain.Transaction) error {
	if _, ok := s.state.transactions[tx.ID]; !ok {
		return fmt.Errorf("transaction %s not found", tx.ID)
	}
	if s.dateTaken(tx.UserID, tx.Date, tx.ID) {
		return fmt.Errorf("%w: %s on %s", ErrDuplicateDate, tx.UserID, domain.FormatDay(tx.Date))
	}
	tx.Date = domain.Day(tx.Date)
	s.state.transactions[tx.ID] = tx
	return nil
}

func (s *memoryStore) UpdateTransactionDate(_ context.Context, id string, date time.Time) error {
	tx, ok := s.state.transactions[id]
	if !ok {
		return fmt.Errorf("transaction %s not found", id)
	}
	if s.dateTaken(tx.UserID, date, id) {
		return fmt.Errorf("%w: %s on %s", ErrDuplicateDate, tx.UserID, domain.FormatDay(date))
	}
	tx.Date = domain.Day(date)
	tx.UpdatedAt = time.Now()
	s.state.transactions[id] = tx
	return nil
}

func (s *memoryStore) DeleteTransaction(_ context.Context, id string) error {
	if _, ok := s.state.transactions[id]; !ok {
		return fmt.Errorf("transaction %s not found", id)
	}
	delete(s.state.transactions, id)
	return nil
}

func (s *memoryStore) dateTaken(userID string, date time.Time, selfID string) bool {
	date = domain.Day(date)
	for _, other := range s.state.transactions {
		if other.ID == selfID {
			continue
		}
		if other.UserID == userID && domain.SameDay(other.Date, date) {
			return true
		}
	}
	return false
}

func sortByDate(txs []domain.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		if !txs[i].Date.Equal(txs[j].Date) {
			return txs[i].Date.Before(txs[j].Date)
		}
		return txs[i].ID < txs[j].ID
	})
}

// MemoryLocker serializes per-user operations within one process.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]bool)}
}

func (l *MemoryLocker) AcquireUserLock(_ context.Context, userID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[userID] {
		return false, nil
	}
	l.held[userID] = true
	return true, nil
}

func (l *MemoryLocker) ReleaseUserLock(_ context.Context, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, userID)
	return nil
}
