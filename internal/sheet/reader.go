// Package sheet reads sale rows from CSV and XLSX files.
//
// Both readers locate the columns by header name, so column order does not
// matter. The header row is always skipped and row indexes count from 1 on
// the first data row.
package sheet

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/saleimport/internal/importer"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrNoHeader          = errors.New("file has no header row")
	ErrMissingColumns    = errors.New("missing required columns")
)

// Format is a supported input format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// DetectFormat picks the format from a file name's extension.
func DetectFormat(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q (expected .csv or .xlsx)", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

// ForFile returns a reader for r based on filename's extension.
func ForFile(filename string, r io.Reader) (importer.RowReader, error) {
	format, err := DetectFormat(filename)
	if err != nil {
		return nil, err
	}
	if format == FormatXLSX {
		return NewXLSXReader(r), nil
	}
	return NewCSVReader(r), nil
}
