package importer

import (
	"context"
	"fmt"
)

// Persister commits materialized sales in a single transaction.
type Persister struct {
	Store Store
}

// Persist stores every sale or none and returns how many were written.
// An empty batch is a no-op.
func (p *Persister) Persist(ctx context.Context, sales []MaterializedSale) (int, error) {
	if len(sales) == 0 {
		return 0, nil
	}
	if err := p.Store.CommitSales(ctx, sales); err != nil {
		return 0, fmt.Errorf("commit %d sales: %w", len(sales), err)
	}
	return len(sales), nil
}
