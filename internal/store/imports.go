package store

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/saleimport/internal/importer"
	"github.com/JonMunkholm/saleimport/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var _ importer.Store = (*Store)(nil)

// FindCustomersByEmail returns the accounts, and their profiles where they
// exist, for a set of normalized emails in one query.
func (s *Store) FindCustomersByEmail(ctx context.Context, emails []string) (map[string]importer.CustomerRef, error) {
	found := make(map[string]importer.CustomerRef, len(emails))
	if len(emails) == 0 {
		return found, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT a.email, a.id, a.display_name, c.id
		FROM accounts a
		LEFT JOIN customers c ON c.account_id = a.id
		WHERE a.email = ANY($1)`, emails)
	if err != nil {
		return nil, fmt.Errorf("find customers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ref        importer.CustomerRef
			customerID *uuid.UUID
		)
		if err := rows.Scan(&ref.Email, &ref.AccountID, &ref.DisplayName, &customerID); err != nil {
			return nil, fmt.Errorf("scan customer ref: %w", err)
		}
		if customerID != nil {
			ref.CustomerID = *customerID
		}
		found[ref.Email] = ref
	}
	return found, rows.Err()
}

// FindProductsByName returns the ids of the named products in one query.
func (s *Store) FindProductsByName(ctx context.Context, names []string) (map[string]uuid.UUID, error) {
	found := make(map[string]uuid.UUID, len(names))
	if len(names) == 0 {
		return found, nil
	}

	rows, err := s.pool.Query(ctx, `SELECT name, id FROM products WHERE name = ANY($1)`, names)
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name string
			id   uuid.UUID
		)
		if err := rows.Scan(&name, &id); err != nil {
			return nil, fmt.Errorf("scan product ref: %w", err)
		}
		found[name] = id
	}
	return found, rows.Err()
}

// CommitReferences writes new customer profiles and products in one
// transaction using COPY.
func (s *Store) CommitReferences(ctx context.Context, customers []model.Customer, products []model.Product) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if len(customers) > 0 {
			_, err := tx.CopyFrom(ctx,
				pgx.Identifier{"customers"},
				[]string{"id", "account_id", "email", "display_name", "created_at", "updated_at"},
				pgx.CopyFromSlice(len(customers), func(i int) ([]any, error) {
					c := customers[i]
					return []any{c.ID, c.AccountID, c.Email, c.DisplayName, c.CreatedAt, c.UpdatedAt}, nil
				}),
			)
			if err != nil {
				return fmt.Errorf("copy customers: %w", mapError(err))
			}
		}

		if len(products) > 0 {
			_, err := tx.CopyFrom(ctx,
				pgx.Identifier{"products"},
				[]string{"id", "name", "unit_price", "stock_quantity", "created_at", "updated_at"},
				pgx.CopyFromSlice(len(products), func(i int) ([]any, error) {
					p := products[i]
					return []any{p.ID, p.Name, toNumeric(p.UnitPrice), p.StockQuantity, p.CreatedAt, p.UpdatedAt}, nil
				}),
			)
			if err != nil {
				return fmt.Errorf("copy products: %w", mapError(err))
			}
		}
		return nil
	})
}

// CommitSales writes sales and their line items in one transaction using
// COPY. Nothing is visible unless every row is written.
func (s *Store) CommitSales(ctx context.Context, sales []importer.MaterializedSale) error {
	if len(sales) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"sales"},
			[]string{"id", "customer_id", "sale_date", "total", "import_run_id", "created_at"},
			pgx.CopyFromSlice(len(sales), func(i int) ([]any, error) {
				sale := sales[i].Sale
				return []any{sale.ID, sale.CustomerID, sale.Date, toNumeric(sale.Total), sale.ImportRunID, sale.CreatedAt}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("copy sales: %w", mapError(err))
		}

		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"sale_line_items"},
			[]string{"id", "sale_id", "product_id", "quantity", "unit_price_at_sale"},
			pgx.CopyFromSlice(len(sales), func(i int) ([]any, error) {
				li := sales[i].Line
				return []any{li.ID, li.SaleID, li.ProductID, li.Quantity, toNumeric(li.UnitPriceAtSale)}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("copy line items: %w", mapError(err))
		}
		return nil
	})
}

// ============================================================================
// Import history
// ============================================================================

const importRunColumns = `id, source, started_at, finished_at, rows_processed, sales_created,
	customers_created, products_created, errors`

func scanImportRun(row pgx.Row) (model.ImportRun, error) {
	var (
		r        model.ImportRun
		finished *time.Time
	)
	err := row.Scan(&r.ID, &r.Source, &r.StartedAt, &finished, &r.RowsProcessed, &r.SalesCreated,
		&r.CustomersCreated, &r.ProductsCreated, &r.Errors)
	if err != nil {
		return model.ImportRun{}, err
	}
	if finished != nil {
		r.FinishedAt = *finished
	}
	if r.Errors == nil {
		r.Errors = []string{}
	}
	return r, nil
}

// StartImportRun records a run before its sales are written, so they can
// reference it.
func (s *Store) StartImportRun(ctx context.Context, id uuid.UUID, source string, startedAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO import_runs (id, source, started_at) VALUES ($1, $2, $3)`,
		id, source, startedAt,
	)
	if err != nil {
		return fmt.Errorf("start import run: %w", mapError(err))
	}
	return nil
}

// FinishImportRun stores the outcome of a run.
func (s *Store) FinishImportRun(ctx context.Context, run model.ImportRun) error {
	errs := run.Errors
	if errs == nil {
		errs = []string{}
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE import_runs SET
			finished_at = $2, rows_processed = $3, sales_created = $4,
			customers_created = $5, products_created = $6, error_count = $7, errors = $8
		WHERE id = $1`,
		run.ID, run.FinishedAt, run.RowsProcessed, run.SalesCreated,
		run.CustomersCreated, run.ProductsCreated, len(errs), errs,
	)
	if err != nil {
		return fmt.Errorf("finish import run: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListImportRuns returns the most recent runs first.
func (s *Store) ListImportRuns(ctx context.Context, limit int) ([]model.ImportRun, error) {
	page := Page{Limit: limit}.Normalize()
	rows, err := s.pool.Query(ctx,
		`SELECT `+importRunColumns+` FROM import_runs ORDER BY started_at DESC LIMIT $1`, page.Limit)
	if err != nil {
		return nil, fmt.Errorf("list import runs: %w", err)
	}
	defer rows.Close()

	runs := []model.ImportRun{}
	for rows.Next() {
		r, err := scanImportRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan import run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetImportRun returns one run.
func (s *Store) GetImportRun(ctx context.Context, id uuid.UUID) (model.ImportRun, error) {
	r, err := scanImportRun(s.pool.QueryRow(ctx,
		`SELECT `+importRunColumns+` FROM import_runs WHERE id = $1`, id))
	if err != nil {
		return model.ImportRun{}, mapError(err)
	}
	return r, nil
}

// PruneImportRuns deletes runs started before cutoff. Their sales stay and
// lose the run reference.
func (s *Store) PruneImportRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM import_runs WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune import runs: %w", err)
	}
	return tag.RowsAffected(), nil
}
