package sheet

import (
	"context"
	"fmt"
	"io"

	"github.com/JonMunkholm/saleimport/internal/importer"
	"github.com/xuri/excelize/v2"
)

// XLSXReader reads rows from the first sheet of an Excel workbook.
type XLSXReader struct {
	r io.Reader
}

// NewXLSXReader creates a workbook reader over r.
func NewXLSXReader(r io.Reader) *XLSXReader {
	return &XLSXReader{r: r}
}

// ReadRows opens the workbook and converts its first sheet.
func (x *XLSXReader) ReadRows(ctx context.Context) ([]importer.RawRow, error) {
	f, err := excelize.OpenReader(x.r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	defer rows.Close()

	var records [][]string
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
		}
		records = append(records, record)
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return buildRows(records)
}
