package sheet

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/JonMunkholm/saleimport/internal/importer"
)

// CSVReader reads rows from comma-separated text.
type CSVReader struct {
	r io.Reader
}

// NewCSVReader creates a CSV reader over r.
func NewCSVReader(r io.Reader) *CSVReader {
	return &CSVReader{r: r}
}

// ReadRows parses the whole input. The context is checked between records.
func (c *CSVReader) ReadRows(ctx context.Context) ([]importer.RawRow, error) {
	reader := csv.NewReader(cleanInput(c.r))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var records [][]string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		records = append(records, record)
	}
	return buildRows(records)
}
