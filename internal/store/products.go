package store

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/saleimport/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const productColumns = `id, name, unit_price, stock_quantity, created_at, updated_at`

func scanProduct(row pgx.Row) (model.Product, error) {
	var (
		p     model.Product
		price pgtype.Numeric
	)
	if err := row.Scan(&p.ID, &p.Name, &price, &p.StockQuantity, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return model.Product{}, err
	}
	p.UnitPrice = fromNumeric(price)
	return p, nil
}

// ListProducts returns products ordered by name.
func (s *Store) ListProducts(ctx context.Context, page Page) ([]model.Product, error) {
	page = page.Normalize()
	rows, err := s.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products ORDER BY name LIMIT $1 OFFSET $2`,
		page.Limit, page.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := []model.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// GetProduct returns one product.
func (s *Store) GetProduct(ctx context.Context, id uuid.UUID) (model.Product, error) {
	p, err := scanProduct(s.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		return model.Product{}, mapError(err)
	}
	return p, nil
}

// InsertProduct stores a new product.
func (s *Store) InsertProduct(ctx context.Context, p model.Product) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.Name, toNumeric(p.UnitPrice), p.StockQuantity, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert product: %w", mapError(err))
	}
	return nil
}

// UpdateProduct overwrites name, price and stock.
func (s *Store) UpdateProduct(ctx context.Context, p model.Product) (model.Product, error) {
	updated, err := scanProduct(s.pool.QueryRow(ctx, `
		UPDATE products SET name = $2, unit_price = $3, stock_quantity = $4, updated_at = $5
		WHERE id = $1
		RETURNING `+productColumns,
		p.ID, p.Name, toNumeric(p.UnitPrice), p.StockQuantity, time.Now(),
	))
	if err != nil {
		return model.Product{}, mapError(err)
	}
	return updated, nil
}

// DeleteProduct removes a product that no sale references.
func (s *Store) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
