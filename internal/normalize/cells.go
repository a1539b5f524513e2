// Package normalize turns raw spreadsheet rows into canonical sales records.
//
// Cell parsing is tolerant: empty cells and the placeholders "null" and "N/A" read as
// zero or empty rather than failing. Malformed values fail only their own row.
package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// isPlaceholder reports whether a cell carries no value.
func isPlaceholder(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "null", "n/a":
		return true
	default:
		return false
	}
}

// Text returns the trimmed cell value, or "" for placeholders.
func Text(s string) string {
	if isPlaceholder(s) {
		return ""
	}
	return strings.TrimSpace(s)
}

var numberNoise = strings.NewReplacer(",", "", "$", "", "€", "", "£", "", "¥", "", "₹", "", " ", "", "\u00a0", "")

// Decimal parses a monetary or fractional cell. Placeholders read as zero.
func Decimal(s string) (decimal.Decimal, error) {
	if isPlaceholder(s) {
		return decimal.Zero, nil
	}
	clean := numberNoise.Replace(strings.TrimSpace(s))
	// Accounting negatives: (1.50)
	if strings.HasPrefix(clean, "(") && strings.HasSuffix(clean, ")") {
		clean = "-" + clean[1:len(clean)-1]
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid number %q", s)
	}
	return d, nil
}

// Int parses a count cell. Fractional values are truncated. Placeholders read as zero.
func Int(s string) (int64, error) {
	d, err := Decimal(s)
	if err != nil {
		return 0, err
	}
	return d.IntPart(), nil
}

var (
	isoDate   = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})`)
	usDate    = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	monthDate = regexp.MustCompile(`^(\d{4})-(\d{1,2})$`)
	serial    = regexp.MustCompile(`^\d+(\.\d+)?$`)
)

// excelEpoch is day zero of the 1900 date system, accounting for Excel's
// fictitious 1900-02-29.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// Date parses a date cell into YYYY-MM-DD. Accepted inputs: Excel serial numbers,
// YYYY-MM-DD (optionally followed by a time), MM/DD/YYYY and YYYY-MM, which reads as
// the first of the month. Placeholders read as "".
func Date(s string) (string, error) {
	if isPlaceholder(s) {
		return "", nil
	}
	v := strings.TrimSpace(s)

	if m := monthDate.FindStringSubmatch(v); m != nil {
		return build(m[1], m[2], "1", s)
	}
	if m := isoDate.FindStringSubmatch(v); m != nil {
		return build(m[1], m[2], m[3], s)
	}
	if m := usDate.FindStringSubmatch(v); m != nil {
		return build(m[3], m[1], m[2], s)
	}
	if serial.MatchString(v) {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 1 || f > 2958465 {
			return "", fmt.Errorf("invalid date %q", s)
		}
		return excelEpoch.AddDate(0, 0, int(f)).Format(time.DateOnly), nil
	}
	return "", fmt.Errorf("invalid date %q", s)
}

func build(year, month, day, raw string) (string, error) {
	y, _ := strconv.Atoi(year)
	m, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if m < 1 || m > 12 || t.Day() != d {
		return "", fmt.Errorf("invalid date %q", raw)
	}
	return t.Format(time.DateOnly), nil
}
