package sheet

// convert.go turns raw spreadsheet cells into typed row fields.
//
// Spreadsheet exports are messy:
//   - dates arrive in US, ISO and dotted forms, sometimes with 2-digit years
//   - prices carry currency symbols and thousands separators
//   - Excel may wrap a value as a formula (="value")
//
// Every parse function reports ok=false for text it cannot convert so the
// caller can keep the original text for the error message.

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// numericRegex matches a plain decimal number after cleanup.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// TwoDigitYearPivot controls 2-digit year expansion: a year that would land
// more than this many years in the future is moved back a century.
var TwoDigitYearPivot = 20

var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"2006-01-02", "2006/01/02", "2006.01.02",
		"2006-01-02T15:04:05Z07:00", "2006-01-02 15:04:05",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"Jan 2, 2006", "2 Jan 2006",
		"20060102",
	}
)

// excelSerialRegex matches a bare Excel date serial such as 45292.
var excelSerialRegex = regexp.MustCompile(`^\d{5}(\.\d+)?$`)

// ParseDate parses a sale date. Empty input yields the zero time with ok=true.
func ParseDate(s string) (time.Time, bool) {
	s = CleanCell(s)
	if s == "" {
		return time.Time{}, true
	}

	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}

	// XLSX date cells without a display format come through as serials.
	if excelSerialRegex.MatchString(s) {
		serial, err := strconv.ParseFloat(s, 64)
		if err == nil {
			if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
				return t, true
			}
		}
	}

	return time.Time{}, false
}

// ParsePrice parses a money amount. Currency symbols, thousands separators
// and accounting negatives "(12.50)" are accepted. Empty input yields zero
// with ok=true.
func ParsePrice(s string) (decimal.Decimal, bool) {
	s = CleanCell(s)
	if s == "" {
		return decimal.Zero, true
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.NewReplacer("$", "", "€", "", "£", "", ",", "").Replace(s)
	s = strings.TrimSpace(s)
	if negative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ParseQuantity parses a whole number. "5.0" is accepted since spreadsheet
// numbers often carry a fraction; "5.5" is not. Empty input yields 0 with
// ok=true.
func ParseQuantity(s string) (int, bool) {
	s = strings.ReplaceAll(CleanCell(s), ",", "")
	if s == "" {
		return 0, true
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	if !numericRegex.MatchString(s) {
		return 0, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsInteger() {
		return 0, false
	}
	return int(d.IntPart()), true
}

// CleanCell removes common export artifacts from a cell:
// surrounding whitespace, an Excel formula prefix (="...") and quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.TrimSpace(strings.Trim(s, `"'`))
}
