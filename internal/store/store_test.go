package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/JonMunkholm/saleimport/internal/config"
	"github.com/JonMunkholm/saleimport/internal/importer"
	"github.com/JonMunkholm/saleimport/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"nil", nil, nil},
		{"no rows", pgx.ErrNoRows, ErrNotFound},
		{"wrapped no rows", fmt.Errorf("get: %w", pgx.ErrNoRows), ErrNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505", ConstraintName: "products_name_key"}, ErrDuplicate},
		{"foreign key violation", &pgconn.PgError{Code: "23503"}, ErrInUse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.in)
			if tt.want == nil {
				if got != nil {
					t.Errorf("mapError(nil) = %v, want nil", got)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Errorf("mapError(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestMapError_PassesThroughOthers(t *testing.T) {
	other := &pgconn.PgError{Code: "40001"}
	if got := mapError(other); got != other {
		t.Errorf("mapError(%v) = %v, want unchanged", other, got)
	}
}

func TestNumericRoundTrip(t *testing.T) {
	for _, s := range []string{"0", "10", "10.50", "0.01", "-3.25", "123456789.99"} {
		d := decimal.RequireFromString(s)
		if got := fromNumeric(toNumeric(d)); !got.Equal(d) {
			t.Errorf("round trip %s = %s", s, got)
		}
	}
}

func TestPageNormalize(t *testing.T) {
	tests := []struct {
		in   Page
		want Page
	}{
		{Page{}, Page{Limit: 50}},
		{Page{Limit: 10, Offset: 20}, Page{Limit: 10, Offset: 20}},
		{Page{Limit: 10000}, Page{Limit: 500}},
		{Page{Limit: 5, Offset: -1}, Page{Limit: 5}},
	}

	for _, tt := range tests {
		if got := tt.in.Normalize(); got != tt.want {
			t.Errorf("%+v.Normalize() = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

// ============================================================================
// PostgreSQL integration (set TEST_DATABASE_URL to run)
// ============================================================================

func testStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := Connect(ctx, config.DatabaseConfig{URL: url, MaxConns: 4, MinConns: 1, MaxConnLifetime: time.Hour, MaxConnIdleTime: time.Minute})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(pool.Close)

	s := New(pool)
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	_, err = pool.Exec(ctx, `TRUNCATE sale_line_items, sales, import_runs, customers, products, accounts`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return s
}

func TestStore_ImportRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	acct := model.Account{ID: uuid.New(), Email: "a@x.com", PasswordHash: "x", CreatedAt: now}
	if err := s.InsertAccount(ctx, acct); err != nil {
		t.Fatalf("InsertAccount: %v", err)
	}

	refs, err := s.FindCustomersByEmail(ctx, []string{"a@x.com", "missing@x.com"})
	if err != nil {
		t.Fatalf("FindCustomersByEmail: %v", err)
	}
	if len(refs) != 1 || refs["a@x.com"].HasProfile() {
		t.Fatalf("refs = %+v, want account without profile", refs)
	}

	customer := model.Customer{ID: uuid.New(), AccountID: acct.ID, Email: "a@x.com", DisplayName: "Ana", CreatedAt: now, UpdatedAt: now}
	product := model.Product{ID: uuid.New(), Name: "Cement", UnitPrice: decimal.RequireFromString("10.50"), CreatedAt: now, UpdatedAt: now}
	if err := s.CommitReferences(ctx, []model.Customer{customer}, []model.Product{product}); err != nil {
		t.Fatalf("CommitReferences: %v", err)
	}

	runID := uuid.New()
	if err := s.StartImportRun(ctx, runID, "sales.csv", now); err != nil {
		t.Fatalf("StartImportRun: %v", err)
	}

	saleID := uuid.New()
	ms := importer.MaterializedSale{
		Sale: model.Sale{ID: saleID, CustomerID: customer.ID, Date: now, Total: decimal.RequireFromString("21"), ImportRunID: &runID, CreatedAt: now},
		Line: model.SaleLineItem{ID: uuid.New(), SaleID: saleID, ProductID: product.ID, Quantity: 2, UnitPriceAtSale: decimal.RequireFromString("10.50")},
	}
	if err := s.CommitSales(ctx, []importer.MaterializedSale{ms}); err != nil {
		t.Fatalf("CommitSales: %v", err)
	}

	got, err := s.GetSale(ctx, saleID)
	if err != nil {
		t.Fatalf("GetSale: %v", err)
	}
	if !got.Total.Equal(decimal.NewFromInt(21)) || len(got.Items) != 1 {
		t.Errorf("sale = %+v", got)
	}

	// A duplicate product name fails the whole commit.
	dup := product
	dup.ID = uuid.New()
	err = s.CommitReferences(ctx, nil, []model.Product{dup})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate commit err = %v, want ErrDuplicate", err)
	}
}

func TestStore_CreateSaleDecrementsStock(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now()

	acct := model.Account{ID: uuid.New(), Email: "b@x.com", PasswordHash: "x", CreatedAt: now}
	customer := model.Customer{ID: uuid.New(), AccountID: acct.ID, Email: "b@x.com", CreatedAt: now, UpdatedAt: now}
	product := model.Product{ID: uuid.New(), Name: "Sand", UnitPrice: decimal.RequireFromString("4"), StockQuantity: 3, CreatedAt: now, UpdatedAt: now}
	if err := s.InsertAccount(ctx, acct); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertCustomer(ctx, customer); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertProduct(ctx, product); err != nil {
		t.Fatal(err)
	}

	sale, err := s.CreateSale(ctx, customer.ID, []SaleItem{{ProductID: product.ID, Quantity: 2}}, now)
	if err != nil {
		t.Fatalf("CreateSale: %v", err)
	}
	if !sale.Total.Equal(decimal.NewFromInt(8)) {
		t.Errorf("Total = %s, want 8", sale.Total)
	}

	p, _ := s.GetProduct(ctx, product.ID)
	if p.StockQuantity != 1 {
		t.Errorf("stock = %d, want 1", p.StockQuantity)
	}

	_, err = s.CreateSale(ctx, customer.ID, []SaleItem{{ProductID: product.ID, Quantity: 2}}, now)
	if !errors.Is(err, ErrInsufficientStock) {
		t.Errorf("err = %v, want ErrInsufficientStock", err)
	}
}
