// Seeds the product catalog with the demo fixtures.
package main

import (
	"context"
	"database/sql"
	"log"
	"os"

	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/core/domain"
)

const (
	defaultMySQLDSN = "root:root@tcp(localhost:3306)/stockledger?parseTime=true"
	initialStock    = 100
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using environment")
	}

	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = defaultMySQLDSN
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}

	adapter := storage.NewMySQLAdapter(db)
	if err := adapter.EnsureSchema(ctx); err != nil {
		log.Fatalf("failed to ensure schema: %v", err)
	}

	for _, p := range catalogFixtures() {
		if err := adapter.UpsertProduct(ctx, p); err != nil {
			log.Fatalf("failed to seed product %s: %v", p.ID, err)
		}
		log.Printf("seeded product %s (%s @ %s)", p.ID, p.Name, p.Price)
	}
}

func catalogFixtures() []domain.Product {
	prices := []struct {
		id    string
		name  string
		price string
	}{
		{"laptop", "Laptop", "1200.00"},
		{"smartphone", "Smartphone", "800.00"},
		{"tablet", "Tablet", "500.00"},
		{"headphones", "Headphones", "150.00"},
		{"smartwatch", "Smartwatch", "200.00"},
	}

	out := make([]domain.Product, 0, len(prices))
	for _, p := range prices {
		out = append(out, domain.Product{
			ID:       p.id,
			Name:     p.name,
			Price:    decimal.RequireFromString(p.price),
			Quantity: initialStock,
		})
	}
	return out
}
