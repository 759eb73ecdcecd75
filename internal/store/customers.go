package store

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/saleimport/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// InsertAccount stores a new account.
func (s *Store) InsertAccount(ctx context.Context, a model.Account) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (id, email, display_name, password_hash, must_reset_password, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.Email, a.DisplayName, a.PasswordHash, a.MustResetPassword, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert account: %w", mapError(err))
	}
	return nil
}

const customerColumns = `id, account_id, email, display_name, created_at, updated_at`

func scanCustomer(row pgx.Row) (model.Customer, error) {
	var c model.Customer
	err := row.Scan(&c.ID, &c.AccountID, &c.Email, &c.DisplayName, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// ListCustomers returns customers ordered by email.
func (s *Store) ListCustomers(ctx context.Context, page Page) ([]model.Customer, error) {
	page = page.Normalize()
	rows, err := s.pool.Query(ctx,
		`SELECT `+customerColumns+` FROM customers ORDER BY email LIMIT $1 OFFSET $2`,
		page.Limit, page.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	customers := []model.Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

// GetCustomer returns one customer.
func (s *Store) GetCustomer(ctx context.Context, id uuid.UUID) (model.Customer, error) {
	c, err := scanCustomer(s.pool.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
	if err != nil {
		return model.Customer{}, mapError(err)
	}
	return c, nil
}

// InsertCustomer stores a customer profile for an existing account.
func (s *Store) InsertCustomer(ctx context.Context, c model.Customer) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO customers (`+customerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.AccountID, c.Email, c.DisplayName, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert customer: %w", mapError(err))
	}
	return nil
}

// UpdateCustomerName changes a customer's display name.
func (s *Store) UpdateCustomerName(ctx context.Context, id uuid.UUID, displayName string) (model.Customer, error) {
	c, err := scanCustomer(s.pool.QueryRow(ctx, `
		UPDATE customers SET display_name = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+customerColumns,
		id, displayName, time.Now(),
	))
	if err != nil {
		return model.Customer{}, mapError(err)
	}
	return c, nil
}

// DeleteCustomer removes a customer profile. The account stays. Customers
// with sales cannot be deleted.
func (s *Store) DeleteCustomer(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete customer: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
