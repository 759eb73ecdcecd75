package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/saleimport/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// ErrInsufficientStock is returned when a sale asks for more units than a
// product has.
var ErrInsufficientStock = errors.New("insufficient stock")

// SaleItem is one requested line of an interactive sale.
type SaleItem struct {
	ProductID uuid.UUID `json:"productId"`
	Quantity  int       `json:"quantity"`
}

// SaleFilter narrows ListSales.
type SaleFilter struct {
	CustomerID  uuid.UUID // uuid.Nil for all customers
	ImportRunID uuid.UUID // uuid.Nil for all runs
	Page        Page
}

const saleColumns = `id, customer_id, sale_date, total, import_run_id, created_at`

func scanSale(row pgx.Row) (model.Sale, error) {
	var (
		s     model.Sale
		total pgtype.Numeric
	)
	if err := row.Scan(&s.ID, &s.CustomerID, &s.Date, &total, &s.ImportRunID, &s.CreatedAt); err != nil {
		return model.Sale{}, err
	}
	s.Total = fromNumeric(total)
	return s, nil
}

// ListSales returns sales newest first, without line items.
func (s *Store) ListSales(ctx context.Context, f SaleFilter) ([]model.Sale, error) {
	page := f.Page.Normalize()

	var customer, run *uuid.UUID
	if f.CustomerID != uuid.Nil {
		customer = &f.CustomerID
	}
	if f.ImportRunID != uuid.Nil {
		run = &f.ImportRunID
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+saleColumns+` FROM sales
		WHERE ($1::uuid IS NULL OR customer_id = $1)
		  AND ($2::uuid IS NULL OR import_run_id = $2)
		ORDER BY sale_date DESC, id
		LIMIT $3 OFFSET $4`,
		customer, run, page.Limit, page.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()

	sales := []model.Sale{}
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

// GetSale returns a sale with its line items.
func (s *Store) GetSale(ctx context.Context, id uuid.UUID) (model.Sale, error) {
	sale, err := scanSale(s.pool.QueryRow(ctx,
		`SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
	if err != nil {
		return model.Sale{}, mapError(err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, sale_id, product_id, quantity, unit_price_at_sale
		FROM sale_line_items WHERE sale_id = $1 ORDER BY id`, id)
	if err != nil {
		return model.Sale{}, fmt.Errorf("list line items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			li    model.SaleLineItem
			price pgtype.Numeric
		)
		if err := rows.Scan(&li.ID, &li.SaleID, &li.ProductID, &li.Quantity, &price); err != nil {
			return model.Sale{}, fmt.Errorf("scan line item: %w", err)
		}
		li.UnitPriceAtSale = fromNumeric(price)
		sale.Items = append(sale.Items, li)
	}
	return sale, rows.Err()
}

// DeleteSale removes a sale and its line items. Stock is not restored.
func (s *Store) DeleteSale(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete sale: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateSale records an interactive sale in one transaction. The products
// are locked, each line is priced at the product's current price and stock
// is decremented.
func (s *Store) CreateSale(ctx context.Context, customerID uuid.UUID, items []SaleItem, date time.Time) (model.Sale, error) {
	// Merge repeated products so stock is checked against the total asked.
	wanted := make(map[uuid.UUID]int, len(items))
	var order []uuid.UUID
	for _, it := range items {
		if _, seen := wanted[it.ProductID]; !seen {
			order = append(order, it.ProductID)
		}
		wanted[it.ProductID] += it.Quantity
	}

	sale := model.Sale{
		ID:         uuid.New(),
		CustomerID: customerID,
		Date:       date,
		CreatedAt:  time.Now(),
	}

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)`, customerID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check customer: %w", err)
		}
		if !exists {
			return fmt.Errorf("customer %s: %w", customerID, ErrNotFound)
		}

		prices, err := lockProducts(ctx, tx, order, wanted)
		if err != nil {
			return err
		}

		for _, id := range order {
			sale.Items = append(sale.Items, model.SaleLineItem{
				ID:              uuid.New(),
				SaleID:          sale.ID,
				ProductID:       id,
				Quantity:        wanted[id],
				UnitPriceAtSale: prices[id],
			})
			if _, err := tx.Exec(ctx,
				`UPDATE products SET stock_quantity = stock_quantity - $2, updated_at = now() WHERE id = $1`,
				id, wanted[id],
			); err != nil {
				return fmt.Errorf("decrement stock: %w", mapError(err))
			}
		}
		sale.Total = model.SumLines(sale.Items)

		if _, err := tx.Exec(ctx, `
			INSERT INTO sales (`+saleColumns+`)
			VALUES ($1, $2, $3, $4, NULL, $5)`,
			sale.ID, sale.CustomerID, sale.Date, toNumeric(sale.Total), sale.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert sale: %w", mapError(err))
		}
		for _, li := range sale.Items {
			if _, err := tx.Exec(ctx, `
				INSERT INTO sale_line_items (id, sale_id, product_id, quantity, unit_price_at_sale)
				VALUES ($1, $2, $3, $4, $5)`,
				li.ID, li.SaleID, li.ProductID, li.Quantity, toNumeric(li.UnitPriceAtSale),
			); err != nil {
				return fmt.Errorf("insert line item: %w", mapError(err))
			}
		}
		return nil
	})
	if err != nil {
		return model.Sale{}, err
	}
	return sale, nil
}

// lockProducts locks the rows FOR UPDATE, checks stock and returns the
// current prices.
func lockProducts(ctx context.Context, tx pgx.Tx, ids []uuid.UUID, wanted map[uuid.UUID]int) (map[uuid.UUID]decimal.Decimal, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, name, unit_price, stock_quantity FROM products
		WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	defer rows.Close()

	prices := make(map[uuid.UUID]decimal.Decimal, len(ids))
	for rows.Next() {
		var (
			id    uuid.UUID
			name  string
			price pgtype.Numeric
			stock int
		)
		if err := rows.Scan(&id, &name, &price, &stock); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		if stock < wanted[id] {
			return nil, fmt.Errorf("%w: %q has %d, %d requested", ErrInsufficientStock, name, stock, wanted[id])
		}
		prices[id] = fromNumeric(price)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}

	for _, id := range ids {
		if _, ok := prices[id]; !ok {
			return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
		}
	}
	return prices, nil
}
