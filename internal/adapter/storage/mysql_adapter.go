package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

var ErrOptimisticLock = errors.New("optimistic lock conflict")

// MySQLAdapter implements port.Database. Reads outside WithinTx run against
// the pool; WithinTx binds one serializable sql.Tx and commits or rolls back
// the whole unit.
type MySQLAdapter struct {
	mysqlStore
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{mysqlStore: mysqlStore{q: db}, db: db}
}

// EnsureSchema creates the tables if they do not exist.
func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(Schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) WithinTx(ctx context.Context, fn func(s port.Store) error) error {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&mysqlStore{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// UpsertProduct inserts or refreshes a catalog product; used by the seed
// command and tests.
func (m *MySQLAdapter) UpsertProduct(ctx context.Context, p domain.Product) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO products (id, name, price, quantity, version)
		VALUES (?, ?, ?, ?, 0)
		ON DUPLICATE KEY UPDATE name = VALUES(name), price = VALUES(price), quantity = VALUES(quantity)`,
		p.ID, p.Name, p.Price.String(), p.Quantity,
	)
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type mysqlStore struct {
	q dbtx
}

func (s *mysqlStore) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var (
		p     domain.Product
		price string
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT id, name, price, quantity, version, created_at, updated_at
		FROM products WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &price, &p.Quantity, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parse product price: %w", err)
	}
	return &p, nil
}

func (s *mysqlStore) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, name, price, quantity, version, created_at, updated_at
		FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		var (
			p     domain.Product
			price string
		)
		if err := rows.Scan(&p.ID, &p.Name, &price, &p.Quantity, &p.Version, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		if p.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse product price: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *mysqlStore) UpdateProductQuantity(ctx context.Context, id string, quantity, version int) error {
	result, err := s.q.ExecContext(ctx, `
		UPDATE products
		SET quantity = ?, version = version + 1, updated_at = NOW()
		WHERE id = ? AND version = ?`,
		quantity, id, version,
	)
	if err != nil {
		return fmt.Errorf("update product quantity: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrOptimisticLock
	}
	return nil
}

func (s *mysqlStore) GetLedgerEntry(ctx context.Context, userID string) (*domain.LedgerEntry, error) {
	var (
		e     domain.LedgerEntry
		value string
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT user_id, total_quantity, total_value, created_at, updated_at
		FROM ledger_entries WHERE user_id = ?`, userID,
	).Scan(&e.UserID, &e.TotalQuantity, &value, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query ledger entry: %w", err)
	}
	if e.TotalValue, err = decimal.NewFromString(value); err != nil {
		return nil, fmt.Errorf("parse ledger value: %w", err)
	}
	return &e, nil
}

func (s *mysqlStore) UpsertLedgerEntry(ctx context.Context, entry domain.LedgerEntry) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO ledger_entries (user_id, total_quantity, total_value)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE
			total_quantity = VALUES(total_quantity),
			total_value = VALUES(total_value),
			updated_at = NOW()`,
		entry.UserID, entry.TotalQuantity, entry.TotalValue.String(),
	)
	if err != nil {
		return fmt.Errorf("upsert ledger entry: %w", err)
	}
	return nil
}

const transactionColumns = `id, user_id, product_id, type, quantity, price, total_amount, transaction_date, created_at, updated_at`

func (s *mysqlStore) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions WHERE id = ?`, id)

	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *mysqlStore) ListTransactions(ctx context.Context, userID string, filter domain.TransactionType) ([]domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions WHERE user_id = ?`
	args := []any{userID}
	if filter != "" {
		query += ` AND type = ?`
		args = append(args, string(filter))
	}
	query += ` ORDER BY transaction_date, id`

	return s.queryTransactions(ctx, query, args...)
}

func (s *mysqlStore) ListTransactionsFrom(ctx context.Context, userID string, from time.Time) ([]domain.Transaction, error) {
	return s.queryTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE user_id = ? AND transaction_date >= ?
		ORDER BY transaction_date, id`,
		userID, domain.FormatDay(from),
	)
}

func (s *mysqlStore) ListTransactionsBetween(ctx context.Context, userID string, from, to time.Time) ([]domain.Transaction, error) {
	return s.queryTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE user_id = ? AND transaction_date BETWEEN ? AND ?
		ORDER BY transaction_date, id`,
		userID, domain.FormatDay(from), domain.FormatDay(to),
	)
}

func (s *mysqlStore) InsertTransaction(ctx context.Context, tx domain.Transaction) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.UserID, tx.ProductID, string(tx.Type), tx.Quantity,
		tx.Price.String(), tx.TotalAmount.String(), domain.FormatDay(tx.Date),
		tx.CreatedAt, tx.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (s *mysqlStore) UpdateTransaction(ctx context.Context, tx domain.Transaction) error {
	result, err := s.q.ExecContext(ctx, `
		UPDATE transactions
		SET product_id = ?, type = ?, quantity = ?, price = ?, total_amount = ?,
			transaction_date = ?, updated_at = NOW()
		WHERE id = ?`,
		tx.ProductID, string(tx.Type), tx.Quantity, tx.Price.String(),
		tx.TotalAmount.String(), domain.FormatDay(tx.Date), tx.ID,
	)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("transaction %s not found", tx.ID)
	}
	return nil
}

func (s *mysqlStore) UpdateTransactionDate(ctx context.Context, id string, date time.Time) error {
	result, err := s.q.ExecContext(ctx, `
		UPDATE transactions
		SET transaction_date = ?, updated_at = NOW()
		WHERE id = ?`,
		domain.FormatDay(date), id,
	)
	if err != nil {
		return fmt.Errorf("update transaction date: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("transaction %s not found", id)
	}
	return nil
}

func (s *mysqlStore) DeleteTransaction(ctx context.Context, id string) error {
	result, err := s.q.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("transaction %s not found", id)
	}
	return nil
}

func (s *mysqlStore) queryTransactions(ctx context.Context, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tx)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		tx           domain.Transaction
		txType       string
		price, total string
		date         time.Time
	)
	err := row.Scan(&tx.ID, &tx.UserID, &tx.ProductID, &txType, &tx.Quantity,
		&price, &total, &date, &tx.CreatedAt, &tx.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan transaction: %w", err)
	}

	tx.Type = domain.TransactionType(txType)
	tx.Date = domain.Day(date)
	if tx.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parse transaction price: %w", err)
	}
	if tx.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("parse transaction total: %w", err)
	}
	return &tx, nil
}
