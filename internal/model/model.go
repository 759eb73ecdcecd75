// Package model holds the persisted entities shared by the store, the import
// engine and the HTTP layer.
package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account is the identity tier: a login that a customer profile hangs off.
type Account struct {
	ID                uuid.UUID `json:"id"`
	Email             string    `json:"email"`
	DisplayName       string    `json:"displayName"`
	PasswordHash      string    `json:"-"`
	MustResetPassword bool      `json:"mustResetPassword"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Customer is the business profile joined to an Account by AccountID.
type Customer struct {
	ID          uuid.UUID `json:"id"`
	AccountID   uuid.UUID `json:"accountId"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Product is a sellable item. Name is unique.
type Product struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	UnitPrice     decimal.Decimal `json:"unitPrice"`
	StockQuantity int             `json:"stockQuantity"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Sale is a completed transaction for one customer.
type Sale struct {
	ID          uuid.UUID       `json:"id"`
	CustomerID  uuid.UUID       `json:"customerId"`
	Date        time.Time       `json:"date"`
	Total       decimal.Decimal `json:"total"`
	ImportRunID *uuid.UUID      `json:"importRunId,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	Items       []SaleLineItem  `json:"items,omitempty"`
}

// SaleLineItem is one product line of a sale. UnitPriceAtSale is a snapshot
// and does not follow later changes to Product.UnitPrice.
type SaleLineItem struct {
	ID              uuid.UUID       `json:"id"`
	SaleID          uuid.UUID       `json:"saleId"`
	ProductID       uuid.UUID       `json:"productId"`
	Quantity        int             `json:"quantity"`
	UnitPriceAtSale decimal.Decimal `json:"unitPriceAtSale"`
}

// Amount returns Quantity × UnitPriceAtSale.
func (li SaleLineItem) Amount() decimal.Decimal {
	return li.UnitPriceAtSale.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// SumLines returns the sale total for a set of line items.
func SumLines(items []SaleLineItem) decimal.Decimal {
	total := decimal.Zero
	for _, li := range items {
		total = total.Add(li.Amount())
	}
	return total
}

// ImportRun is the persisted summary of one bulk import.
type ImportRun struct {
	ID               uuid.UUID `json:"id"`
	Source           string    `json:"source"`
	StartedAt        time.Time `json:"startedAt"`
	FinishedAt       time.Time `json:"finishedAt"`
	RowsProcessed    int       `json:"rowsProcessed"`
	SalesCreated     int       `json:"salesCreated"`
	CustomersCreated int       `json:"customersCreated"`
	ProductsCreated  int       `json:"productsCreated"`
	Errors           []string  `json:"errors"`
}

// Column limits. Money columns are NUMERIC(12,2) and counts are INTEGER.
const (
	MoneyScale  = 2
	MaxQuantity = math.MaxInt32
)

// MoneyLimit is the smallest amount a money column cannot hold.
var MoneyLimit = decimal.New(1, 10)

var (
	ErrMoneyPrecision = errors.New("has more than 2 decimal places")
	ErrMoneyRange     = errors.New("must be below 10000000000")
)

// CheckMoney returns an error when d cannot be stored exactly in a money
// column. The message reads "<amount> <problem>".
func CheckMoney(d decimal.Decimal) error {
	if !d.Round(MoneyScale).Equal(d) {
		return fmt.Errorf("%s %w", d, ErrMoneyPrecision)
	}
	if d.Abs().GreaterThanOrEqual(MoneyLimit) {
		return fmt.Errorf("%s %w", d, ErrMoneyRange)
	}
	return nil
}

// NormalizeEmail returns the canonical form used as the customer key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeProductName returns the canonical form used as the product key.
// Product names are matched case-sensitively.
func NormalizeProductName(name string) string {
	return strings.TrimSpace(name)
}
