package importer

import (
	"time"

	"github.com/JonMunkholm/saleimport/internal/model"
	"github.com/google/uuid"
)

// Materializer turns resolved rows into sale records. It never touches
// product stock.
type Materializer struct {
	RunID uuid.UUID

	// DefaultDate is used for rows without a sale date.
	DefaultDate time.Time
	Now         func() time.Time
}

// Materialize builds a sale with one line item for row. The line is priced
// from the row, not from the product's current price.
func (m *Materializer) Materialize(row RawRow, customerID, productID uuid.UUID) (model.Sale, model.SaleLineItem) {
	now := time.Now()
	if m.Now != nil {
		now = m.Now()
	}

	date := row.SaleDate
	if date.IsZero() {
		date = m.DefaultDate
	}

	sale := model.Sale{
		ID:         uuid.New(),
		CustomerID: customerID,
		Date:       date,
		CreatedAt:  now,
	}
	if m.RunID != uuid.Nil {
		runID := m.RunID
		sale.ImportRunID = &runID
	}

	line := model.SaleLineItem{
		ID:              uuid.New(),
		SaleID:          sale.ID,
		ProductID:       productID,
		Quantity:        row.Quantity,
		UnitPriceAtSale: row.UnitPrice,
	}
	sale.Total = model.SumLines([]model.SaleLineItem{line})
	return sale, line
}
