package tests

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
)

type testEnv struct {
	db        *storage.MySQLAdapter
	service   *service.TransactionService
	userID    string
	productID string
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		mysqlDSN = "root:root@tcp(localhost:3306)/stockledger?parseTime=true"
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	adapter := storage.NewMySQLAdapter(db)
	if err := adapter.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema failed: %v", err)
	}

	userID := "it-user-" + uuid.NewString()[:8]
	productID := "it-product-" + uuid.NewString()[:8]

	if err := adapter.UpsertProduct(ctx, domain.Product{
		ID: productID, Name: "Integration Widget",
		Price: decimal.RequireFromString("100.00"), Quantity: 50,
	}); err != nil {
		t.Fatalf("seed product failed: %v", err)
	}

	t.Cleanup(func() {
		db.ExecContext(ctx, `DELETE FROM transactions WHERE user_id = ?`, userID)
		db.ExecContext(ctx, `DELETE FROM ledger_entries WHERE user_id = ?`, userID)
		db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, productID)
		rdb.Close()
		db.Close()
	})

	return &testEnv{
		db:        adapter,
		service:   service.NewTransactionService(adapter, storage.NewRedisAdapter(rdb)),
		userID:    userID,
		productID: productID,
	}
}

func itDay(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := domain.ParseDay(s)
	if err != nil {
		t.Fatalf("parse day %s: %v", s, err)
	}
	return d
}

func TestLedgerFlow(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	// Purchase 10 @ 100.
	purchase, err := env.service.RecordTransaction(ctx, env.userID, service.TransactionInput{
		ProductID: env.productID,
		Type:      domain.TransactionTypePurchase,
		Quantity:  10,
		Date:      itDay(t, "2024-01-01"),
	})
	if err != nil {
		t.Fatalf("purchase failed: %v", err)
	}
	if !purchase.TotalAmount.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("expected total 1000, got %s", purchase.TotalAmount)
	}

	entry, err := env.db.GetLedgerEntry(ctx, env.userID)
	if err != nil || entry == nil {
		t.Fatalf("expected ledger entry, got %v, %v", entry, err)
	}
	if entry.TotalQuantity != 10 || !entry.TotalValue.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("expected ledger {10, 1000}, got {%d, %s}", entry.TotalQuantity, entry.TotalValue)
	}

	product, _ := env.db.GetProduct(ctx, env.productID)
	if product.Quantity != 60 {
		t.Errorf("expected stock 60, got %d", product.Quantity)
	}

	// Sell 4 at the average cost.
	if _, err := env.service.RecordTransaction(ctx, env.userID, service.TransactionInput{
		ProductID: env.productID,
		Type:      domain.TransactionTypeSale,
		Quantity:  4,
		Date:      itDay(t, "2024-01-02"),
	}); err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	entry, _ = env.db.GetLedgerEntry(ctx, env.userID)
	if entry.TotalQuantity != 6 || !entry.TotalValue.Equal(decimal.NewFromInt(600)) {
		t.Errorf("expected ledger {6, 600}, got {%d, %s}", entry.TotalQuantity, entry.TotalValue)
	}

	product, _ = env.db.GetProduct(ctx, env.productID)
	if product.Quantity != 56 {
		t.Errorf("expected stock 56, got %d", product.Quantity)
	}
}

func TestDateCascadeFlow(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	first, err := env.service.RecordTransaction(ctx, env.userID, service.TransactionInput{
		ProductID: env.productID, Type: domain.TransactionTypePurchase, Quantity: 1, Date: itDay(t, "2024-01-01"),
	})
	if err != nil {
		t.Fatalf("first purchase failed: %v", err)
	}
	second, err := env.service.RecordTransaction(ctx, env.userID, service.TransactionInput{
		ProductID: env.productID, Type: domain.TransactionTypePurchase, Quantity: 1, Date: itDay(t, "2024-01-02"),
	})
	if err != nil {
		t.Fatalf("second purchase failed: %v", err)
	}

	inserted, err := env.service.RecordTransaction(ctx, env.userID, service.TransactionInput{
		ProductID: env.productID, Type: domain.TransactionTypePurchase, Quantity: 1, Date: itDay(t, "2024-01-01"),
	})
	if err != nil {
		t.Fatalf("cascading purchase failed: %v", err)
	}

	wantDates := map[string]string{
		inserted.ID: "2024-01-01",
		first.ID:    "2024-01-02",
		second.ID:   "2024-01-03",
	}
	recs, err := env.db.ListTransactions(ctx, env.userID, "")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	for _, rec := range recs {
		if got := domain.FormatDay(rec.Date); got != wantDates[rec.ID] {
			t.Errorf("record %s: expected %s, got %s", rec.ID, wantDates[rec.ID], got)
		}
	}
}

func TestUpdateAndDeleteFlow(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	rec, err := env.service.RecordTransaction(ctx, env.userID, service.TransactionInput{
		ProductID: env.productID, Type: domain.TransactionTypePurchase, Quantity: 10, Date: itDay(t, "2024-01-01"),
	})
	if err != nil {
		t.Fatalf("purchase failed: %v", err)
	}

	updated, err := env.service.UpdateTransaction(ctx, rec.ID, env.userID, service.TransactionInput{
		ProductID: env.productID, Type: domain.TransactionTypePurchase, Quantity: 4, Date: itDay(t, "2024-01-03"),
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if domain.FormatDay(updated.Date) != "2024-01-03" || updated.Quantity != 4 {
		t.Errorf("unexpected updated record: %+v", updated)
	}

	entry, _ := env.db.GetLedgerEntry(ctx, env.userID)
	if entry.TotalQuantity != 4 || !entry.TotalValue.Equal(decimal.NewFromInt(400)) {
		t.Errorf("expected ledger {4, 400}, got {%d, %s}", entry.TotalQuantity, entry.TotalValue)
	}

	if err := env.service.DeleteTransaction(ctx, rec.ID, env.userID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	entry, _ = env.db.GetLedgerEntry(ctx, env.userID)
	if entry.TotalQuantity != 0 || !entry.TotalValue.Equal(decimal.Zero) {
		t.Errorf("expected ledger {0, 0}, got {%d, %s}", entry.TotalQuantity, entry.TotalValue)
	}

	product, _ := env.db.GetProduct(ctx, env.productID)
	if product.Quantity != 50 {
		t.Errorf("expected stock restored to 50, got %d", product.Quantity)
	}

	recs, _ := env.db.ListTransactions(ctx, env.userID, "")
	if len(recs) != 0 {
		t.Errorf("expected no records, got %d", len(recs))
	}
}
