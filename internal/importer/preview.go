package importer

import (
	"context"
	"fmt"
	"time"
)

// Sample limits for a preview.
const (
	maxPreviewNames  = 20
	maxPreviewErrors = 50
)

// Preview is a read-only forecast of what Run would do with the same rows
// against the current store.
type Preview struct {
	TotalRows    int `json:"totalRows"`
	AcceptedRows int `json:"acceptedRows"`
	RejectedRows int `json:"rejectedRows"`

	ExistingCustomers int `json:"existingCustomers"`
	// AccountsWithoutProfile counts emails that have an account but will get
	// a new customer profile.
	AccountsWithoutProfile int      `json:"accountsWithoutProfile"`
	NewCustomers           int      `json:"newCustomers"`
	NewCustomerSamples     []string `json:"newCustomerSamples"`

	ExistingProducts  int      `json:"existingProducts"`
	NewProducts       int      `json:"newProducts"`
	NewProductSamples []string `json:"newProductSamples"`

	Errors           []RowError `json:"errors"`
	ProcessingTimeMs int64      `json:"processingTimeMs"`
}

// Preview reads and validates the rows and looks up their references, without
// writing anything. Account creation failures cannot be foreseen, so the
// counts are an upper bound on what Run creates.
func (e *Engine) Preview(ctx context.Context, reader RowReader) (*Preview, error) {
	start := time.Now()

	rows, err := reader.ReadRows(ctx)
	if err == nil && len(rows) == 0 {
		err = ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("read failed: %w", err)
	}

	accepted, rejected := validateAll(rows)
	p := &Preview{
		TotalRows:          len(rows),
		AcceptedRows:       len(accepted),
		RejectedRows:       len(rejected),
		NewCustomerSamples: []string{},
		NewProductSamples:  []string{},
		Errors:             []RowError{},
	}
	for i, rowErr := range rejected {
		if i == maxPreviewErrors {
			break
		}
		p.Errors = append(p.Errors, *rowErr)
	}

	customers, products := collectKeys(accepted)
	resolver := &Resolver{Store: e.store}
	foundCustomers, foundProducts, err := resolver.fetch(ctx, customers, products)
	if err != nil {
		return nil, err
	}

	for _, c := range customers {
		ref, ok := foundCustomers[c.email]
		switch {
		case ok && ref.HasProfile():
			p.ExistingCustomers++
		case ok:
			p.AccountsWithoutProfile++
		default:
			p.NewCustomers++
			if len(p.NewCustomerSamples) < maxPreviewNames {
				p.NewCustomerSamples = append(p.NewCustomerSamples, c.email)
			}
		}
	}
	for _, prod := range products {
		if _, ok := foundProducts[prod.name]; ok {
			p.ExistingProducts++
			continue
		}
		p.NewProducts++
		if len(p.NewProductSamples) < maxPreviewNames {
			p.NewProductSamples = append(p.NewProductSamples, prod.name)
		}
	}

	p.ProcessingTimeMs = time.Since(start).Milliseconds()
	e.opts.Logger.Debug("import preview",
		"rows", p.TotalRows,
		"rejected", p.RejectedRows,
		"new_customers", p.NewCustomers,
		"new_products", p.NewProducts,
	)
	return p, nil
}
