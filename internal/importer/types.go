package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/saleimport/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Column identifies one of the six canonical input fields.
type Column string

const (
	ColCustomerEmail Column = "customer_email"
	ColCustomerName  Column = "customer_name"
	ColProductName   Column = "product_name"
	ColQuantity      Column = "quantity"
	ColUnitPrice     Column = "unit_price"
	ColSaleDate      Column = "sale_date"
)

// Columns lists the canonical columns in input order.
var Columns = []Column{
	ColCustomerEmail, ColCustomerName, ColProductName,
	ColQuantity, ColUnitPrice, ColSaleDate,
}

// RawRow is one input record. RowIndex is 1-based and counts data rows
// after the header.
type RawRow struct {
	RowIndex      int
	CustomerEmail string
	CustomerName  string
	ProductName   string
	Quantity      int
	UnitPrice     decimal.Decimal
	SaleDate      time.Time

	// Malformed holds the original text of cells the reader could not
	// convert to their typed field, keyed by column.
	Malformed map[Column]string
}

// RowReader yields the rows of one batch in source order.
type RowReader interface {
	ReadRows(ctx context.Context) ([]RawRow, error)
}

// RowsReader adapts an in-memory slice to RowReader.
type RowsReader []RawRow

// ReadRows returns the slice unchanged.
func (r RowsReader) ReadRows(context.Context) ([]RawRow, error) {
	return r, nil
}

// CustomerRef is what the store knows about an email: the account and, if
// one exists, its customer profile.
type CustomerRef struct {
	Email       string
	AccountID   uuid.UUID
	DisplayName string
	CustomerID  uuid.UUID // uuid.Nil when the account has no profile
}

// HasProfile reports whether the account already has a customer profile.
func (c CustomerRef) HasProfile() bool {
	return c.CustomerID != uuid.Nil
}

// Store is the persistence the engine needs. Find* calls take key sets and
// must cost one round trip each. Commit* calls are atomic.
type Store interface {
	FindCustomersByEmail(ctx context.Context, emails []string) (map[string]CustomerRef, error)
	FindProductsByName(ctx context.Context, names []string) (map[string]uuid.UUID, error)
	CommitReferences(ctx context.Context, customers []model.Customer, products []model.Product) error
	CommitSales(ctx context.Context, sales []MaterializedSale) error
}

// AccountCreator creates the identity behind a new customer and returns its id.
type AccountCreator interface {
	CreateAccount(ctx context.Context, email, displayName, credential string) (uuid.UUID, error)
}

// MaterializedSale is a sale and its single line item, ready to persist.
type MaterializedSale struct {
	Sale model.Sale
	Line model.SaleLineItem
}

// Phase is a state of an import run.
type Phase string

const (
	PhaseReading       Phase = "reading"
	PhaseValidating    Phase = "validating"
	PhaseResolving     Phase = "resolving"
	PhaseMaterializing Phase = "materializing"
	PhasePersisting    Phase = "persisting"
	PhaseDone          Phase = "done"
)

// ErrorKind classifies an entry in Result.Errors.
type ErrorKind string

const (
	KindRowRejected             ErrorKind = "row_rejected"
	KindReferenceCreationFailed ErrorKind = "reference_creation_failed"
	KindPersistenceFailed       ErrorKind = "persistence_failed"
	KindFatalRead               ErrorKind = "fatal_read_failure"
	KindCancelled               ErrorKind = "cancelled"
)

// RowError is a single failure. Row is 0 for batch-level errors.
type RowError struct {
	Row     int       `json:"row,omitempty"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *RowError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("row %d: %s", e.Row, e.Message)
	}
	return e.Message
}

func rejectRow(row int, format string, args ...any) *RowError {
	return &RowError{Row: row, Kind: KindRowRejected, Message: fmt.Sprintf(format, args...)}
}

// Result is the outcome of one run. It is always complete, whatever failed.
type Result struct {
	RunID            uuid.UUID  `json:"runId"`
	RowsProcessed    int        `json:"rowsProcessed"`
	SalesCreated     int        `json:"salesCreated"`
	CustomersCreated int        `json:"customersCreated"`
	ProductsCreated  int        `json:"productsCreated"`
	Errors           []RowError `json:"errors"`
	StartedAt        time.Time  `json:"startedAt"`
	FinishedAt       time.Time  `json:"finishedAt"`
}

// Messages returns the errors as display strings, in order.
func (r *Result) Messages() []string {
	out := make([]string, len(r.Errors))
	for i := range r.Errors {
		out[i] = r.Errors[i].Error()
	}
	return out
}

func (r *Result) addError(e *RowError) {
	r.Errors = append(r.Errors, *e)
}
