package core

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/saleimport/internal/model"
	"github.com/JonMunkholm/saleimport/internal/store"
	"github.com/google/uuid"
)

// ListSales returns sales newest first, optionally for one customer or run.
func (s *Service) ListSales(ctx context.Context, f store.SaleFilter) ([]model.Sale, error) {
	return s.repo.ListSales(ctx, f)
}

// GetSale returns a sale with its line items.
func (s *Service) GetSale(ctx context.Context, id uuid.UUID) (model.Sale, error) {
	return s.repo.GetSale(ctx, id)
}

// DeleteSale removes a sale and its line items.
func (s *Service) DeleteSale(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteSale(ctx, id)
}

// CreateSale records a sale entered by hand. Each line is priced at the
// product's current price and stock is decremented, all or nothing. A zero
// date means now.
func (s *Service) CreateSale(ctx context.Context, customerID uuid.UUID, items []store.SaleItem, date time.Time) (model.Sale, error) {
	if customerID == uuid.Nil {
		return model.Sale{}, fmt.Errorf("%w: customer is required", ErrInvalidInput)
	}
	if len(items) == 0 {
		return model.Sale{}, fmt.Errorf("%w: a sale needs at least one item", ErrInvalidInput)
	}
	for i, it := range items {
		if it.ProductID == uuid.Nil {
			return model.Sale{}, fmt.Errorf("%w: item %d has no product", ErrInvalidInput, i+1)
		}
		if it.Quantity < 1 {
			return model.Sale{}, fmt.Errorf("%w: item %d quantity must be at least 1, got %d", ErrInvalidInput, i+1, it.Quantity)
		}
		if it.Quantity > model.MaxQuantity {
			return model.Sale{}, fmt.Errorf("%w: item %d quantity %d exceeds %d", ErrInvalidInput, i+1, it.Quantity, model.MaxQuantity)
		}
	}
	if date.IsZero() {
		date = s.now()
	}
	return s.repo.CreateSale(ctx, customerID, items, date)
}
