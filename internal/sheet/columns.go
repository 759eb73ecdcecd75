package sheet

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/saleimport/internal/importer"
)

// aliases maps a normalized header to its canonical column.
var aliases = map[string]importer.Column{
	"customer_email": importer.ColCustomerEmail,
	"customer email": importer.ColCustomerEmail,
	"customeremail":  importer.ColCustomerEmail,
	"email":          importer.ColCustomerEmail,
	"e-mail":         importer.ColCustomerEmail,

	"customer_name": importer.ColCustomerName,
	"customer name": importer.ColCustomerName,
	"customername":  importer.ColCustomerName,
	"customer":      importer.ColCustomerName,
	"name":          importer.ColCustomerName,

	"product_name": importer.ColProductName,
	"product name": importer.ColProductName,
	"productname":  importer.ColProductName,
	"product":      importer.ColProductName,
	"item":         importer.ColProductName,

	"quantity": importer.ColQuantity,
	"qty":      importer.ColQuantity,

	"unit_price": importer.ColUnitPrice,
	"unit price": importer.ColUnitPrice,
	"unitprice":  importer.ColUnitPrice,
	"price":      importer.ColUnitPrice,

	"sale_date": importer.ColSaleDate,
	"sale date": importer.ColSaleDate,
	"saledate":  importer.ColSaleDate,
	"date":      importer.ColSaleDate,
}

// required columns must be present in the header.
var required = []importer.Column{
	importer.ColCustomerEmail,
	importer.ColProductName,
	importer.ColQuantity,
	importer.ColUnitPrice,
}

// HeaderIndex maps canonical columns to cell positions.
type HeaderIndex map[importer.Column]int

// MakeHeaderIndex locates the canonical columns in a header row. Matching
// ignores case and surrounding space. The first occurrence of a column wins.
func MakeHeaderIndex(header []string) (HeaderIndex, error) {
	idx := make(HeaderIndex, len(importer.Columns))
	for i, h := range header {
		key := strings.Join(strings.Fields(strings.ToLower(CleanCell(h))), " ")
		col, ok := aliases[key]
		if !ok {
			continue
		}
		if _, dup := idx[col]; !dup {
			idx[col] = i
		}
	}

	var missing []string
	for _, col := range required {
		if _, ok := idx[col]; !ok {
			missing = append(missing, string(col))
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return idx, nil
}

func (h HeaderIndex) cell(record []string, col importer.Column) string {
	i, ok := h[col]
	if !ok || i >= len(record) {
		return ""
	}
	return record[i]
}

// BuildRow converts one record into a RawRow. Cells that cannot be converted
// are kept in Malformed.
func (h HeaderIndex) BuildRow(rowIndex int, record []string) importer.RawRow {
	row := importer.RawRow{
		RowIndex:      rowIndex,
		CustomerEmail: CleanCell(h.cell(record, importer.ColCustomerEmail)),
		CustomerName:  CleanCell(h.cell(record, importer.ColCustomerName)),
		ProductName:   CleanCell(h.cell(record, importer.ColProductName)),
	}

	malformed := func(col importer.Column) {
		if row.Malformed == nil {
			row.Malformed = make(map[importer.Column]string)
		}
		row.Malformed[col] = strings.TrimSpace(h.cell(record, col))
	}

	var ok bool
	if row.Quantity, ok = ParseQuantity(h.cell(record, importer.ColQuantity)); !ok {
		malformed(importer.ColQuantity)
	}
	if row.UnitPrice, ok = ParsePrice(h.cell(record, importer.ColUnitPrice)); !ok {
		malformed(importer.ColUnitPrice)
	}
	if row.SaleDate, ok = ParseDate(h.cell(record, importer.ColSaleDate)); !ok {
		malformed(importer.ColSaleDate)
	}
	return row
}

func blank(record []string) bool {
	for _, c := range record {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// buildRows converts the records following the header. Row indexes count
// from 1 after the header; blank records keep their index but yield no row.
func buildRows(records [][]string) ([]importer.RawRow, error) {
	if len(records) == 0 {
		return nil, ErrNoHeader
	}
	idx, err := MakeHeaderIndex(records[0])
	if err != nil {
		return nil, err
	}

	rows := make([]importer.RawRow, 0, len(records)-1)
	for i, record := range records[1:] {
		if blank(record) {
			continue
		}
		rows = append(rows, idx.BuildRow(i+1, record))
	}
	return rows, nil
}
