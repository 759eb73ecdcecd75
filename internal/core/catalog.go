package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/JonMunkholm/saleimport/internal/model"
	"github.com/JonMunkholm/saleimport/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ============================================================================
// Customers
// ============================================================================

// ListCustomers returns one page of customers ordered by email.
func (s *Service) ListCustomers(ctx context.Context, page store.Page) ([]model.Customer, error) {
	return s.repo.ListCustomers(ctx, page)
}

// GetCustomer returns one customer.
func (s *Service) GetCustomer(ctx context.Context, id uuid.UUID) (model.Customer, error) {
	return s.repo.GetCustomer(ctx, id)
}

// CreateCustomer creates a customer profile for email. An existing account
// for the email is reused; otherwise one is created with a generated
// credential that must be reset on first sign-in.
func (s *Service) CreateCustomer(ctx context.Context, email, displayName string) (model.Customer, error) {
	normalized, err := s.accounts.CheckEmail(email)
	if err != nil {
		return model.Customer{}, err
	}
	displayName = strings.TrimSpace(displayName)

	refs, err := s.repo.FindCustomersByEmail(ctx, []string{normalized})
	if err != nil {
		return model.Customer{}, fmt.Errorf("look up %s: %w", normalized, err)
	}

	ref, hasAccount := refs[normalized]
	if ref.HasProfile() {
		return model.Customer{}, fmt.Errorf("customer %s: %w", normalized, store.ErrDuplicate)
	}

	accountID := ref.AccountID
	if !hasAccount {
		accountID, err = s.accounts.CreateAccount(ctx, normalized, displayName, "")
		if err != nil {
			return model.Customer{}, err
		}
	} else if displayName == "" {
		displayName = ref.DisplayName
	}

	now := s.now()
	c := model.Customer{
		ID:          uuid.New(),
		AccountID:   accountID,
		Email:       normalized,
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.InsertCustomer(ctx, c); err != nil {
		return model.Customer{}, err
	}
	return c, nil
}

// UpdateCustomer changes a customer's display name.
func (s *Service) UpdateCustomer(ctx context.Context, id uuid.UUID, displayName string) (model.Customer, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return model.Customer{}, fmt.Errorf("%w: display name is required", ErrInvalidInput)
	}
	return s.repo.UpdateCustomerName(ctx, id, displayName)
}

// DeleteCustomer removes a customer profile. Customers with sales are kept
// and store.ErrInUse is returned.
func (s *Service) DeleteCustomer(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteCustomer(ctx, id)
}

// ============================================================================
// Products
// ============================================================================

// ProductInput is the editable part of a product.
type ProductInput struct {
	Name          string          `json:"name"`
	UnitPrice     decimal.Decimal `json:"unitPrice"`
	StockQuantity int             `json:"stockQuantity"`
}

func (in ProductInput) validate() (ProductInput, error) {
	in.Name = model.NormalizeProductName(in.Name)
	switch {
	case in.Name == "":
		return in, fmt.Errorf("%w: name is required", ErrInvalidInput)
	case !in.UnitPrice.IsPositive():
		return in, fmt.Errorf("%w: unit price must be greater than 0, got %s", ErrInvalidInput, in.UnitPrice)
	case in.StockQuantity < 0:
		return in, fmt.Errorf("%w: stock quantity cannot be negative, got %d", ErrInvalidInput, in.StockQuantity)
	case in.StockQuantity > model.MaxQuantity:
		return in, fmt.Errorf("%w: stock quantity %d exceeds %d", ErrInvalidInput, in.StockQuantity, model.MaxQuantity)
	}
	if err := model.CheckMoney(in.UnitPrice); err != nil {
		return in, fmt.Errorf("%w: unit price %v", ErrInvalidInput, err)
	}
	return in, nil
}

// ListProducts returns one page of products ordered by name.
func (s *Service) ListProducts(ctx context.Context, page store.Page) ([]model.Product, error) {
	return s.repo.ListProducts(ctx, page)
}

// GetProduct returns one product.
func (s *Service) GetProduct(ctx context.Context, id uuid.UUID) (model.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// CreateProduct adds a product. Names are unique.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (model.Product, error) {
	in, err := in.validate()
	if err != nil {
		return model.Product{}, err
	}

	now := s.now()
	p := model.Product{
		ID:            uuid.New(),
		Name:          in.Name,
		UnitPrice:     in.UnitPrice,
		StockQuantity: in.StockQuantity,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.InsertProduct(ctx, p); err != nil {
		return model.Product{}, err
	}
	return p, nil
}

// UpdateProduct replaces a product's name, price and stock. Prices already
// recorded on sale lines are not affected.
func (s *Service) UpdateProduct(ctx context.Context, id uuid.UUID, in ProductInput) (model.Product, error) {
	in, err := in.validate()
	if err != nil {
		return model.Product{}, err
	}
	return s.repo.UpdateProduct(ctx, model.Product{
		ID:            id,
		Name:          in.Name,
		UnitPrice:     in.UnitPrice,
		StockQuantity: in.StockQuantity,
	})
}

// DeleteProduct removes a product no sale references.
func (s *Service) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteProduct(ctx, id)
}
