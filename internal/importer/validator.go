package importer

import (
	"strings"

	"github.com/JonMunkholm/saleimport/internal/model"
	"github.com/shopspring/decimal"
)

// Validate checks a single row. It returns nil when the row is accepted and
// a RowRejected error naming the first failing check otherwise.
//
// Checks run in a fixed order: email, product, quantity, unit price, line
// amount, sale date. A cell the reader could not convert fails the check for
// its column. Quantities and amounts must fit the store's INTEGER and
// NUMERIC(12,2) columns exactly, so nothing is rounded on write.
// An empty sale date is accepted; the run start time is used instead.
func Validate(row RawRow) *RowError {
	if strings.TrimSpace(row.CustomerEmail) == "" {
		return rejectRow(row.RowIndex, "customer email is required")
	}
	if strings.TrimSpace(row.ProductName) == "" {
		return rejectRow(row.RowIndex, "product name is required")
	}

	if raw, bad := row.Malformed[ColQuantity]; bad {
		return rejectRow(row.RowIndex, "quantity %q is not a whole number", raw)
	}
	if row.Quantity < 1 {
		return rejectRow(row.RowIndex, "quantity must be at least 1, got %d", row.Quantity)
	}
	if row.Quantity > model.MaxQuantity {
		return rejectRow(row.RowIndex, "quantity %d exceeds %d", row.Quantity, model.MaxQuantity)
	}

	if raw, bad := row.Malformed[ColUnitPrice]; bad {
		return rejectRow(row.RowIndex, "unit price %q is not a number", raw)
	}
	if !row.UnitPrice.IsPositive() {
		return rejectRow(row.RowIndex, "unit price must be greater than 0, got %s", row.UnitPrice.String())
	}
	if err := model.CheckMoney(row.UnitPrice); err != nil {
		return rejectRow(row.RowIndex, "unit price %v", err)
	}
	// Imported sales have one line, so the line amount is the sale total.
	if err := model.CheckMoney(row.UnitPrice.Mul(decimal.NewFromInt(int64(row.Quantity)))); err != nil {
		return rejectRow(row.RowIndex, "line amount %v", err)
	}

	if raw, bad := row.Malformed[ColSaleDate]; bad {
		return rejectRow(row.RowIndex, "sale date %q is not a recognized date", raw)
	}

	return nil
}

// validateAll splits rows into accepted rows and rejection errors, both in
// input order.
func validateAll(rows []RawRow) (accepted []RawRow, rejected []*RowError) {
	accepted = make([]RawRow, 0, len(rows))
	for _, row := range rows {
		if err := Validate(row); err != nil {
			rejected = append(rejected, err)
			continue
		}
		accepted = append(accepted, row)
	}
	return accepted, rejected
}
