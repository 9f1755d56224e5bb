// Package normalizer handles regional money and date parsing.
// Converts the cell text of bank statement exports into canonical values.
package normalizer

import (
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount = errors.New("invalid amount format")
	ErrInvalidDate   = errors.New("invalid date format")
)

// Locale describes the decimal convention used by a statement format.
type Locale int

const (
	// LocaleBR uses "," as the decimal mark and "." for thousands: 1.234,56
	LocaleBR Locale = iota
	// LocaleUS uses "." as the decimal mark and "," for thousands: 1,234.56
	LocaleUS
)

var whitespacePattern = regexp.MustCompile(`\s+`)

// ParseAmount converts a cell value to a signed decimal.
// Empty input (after stripping symbols) is ErrInvalidAmount, since a missing
// amount must not be confused with zero.
func ParseAmount(raw string, locale Locale) (decimal.Decimal, error) {
	// Keep digits, separators and minus
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) || r == ',' || r == '.' || r == '-' {
			return r
		}
		return -1
	}, raw)

	isNegative := strings.HasPrefix(cleaned, "-") || strings.HasSuffix(cleaned, "-")
	cleaned = strings.Trim(cleaned, "-")
	if cleaned == "" || strings.Contains(cleaned, "-") {
		return decimal.Zero, ErrInvalidAmount
	}

	switch locale {
	case LocaleBR:
		cleaned = normalizeBR(cleaned)
	default:
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}

	val, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if isNegative {
		val = val.Neg()
	}
	return val, nil
}

// normalizeBR rewrites a pt-BR number into "1234.56" form. Without a comma,
// a single dot followed by exactly three digits is read as a thousands
// separator; any other lone dot is a decimal mark, which is how numeric
// spreadsheet cells are rendered.
func normalizeBR(s string) string {
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		return strings.ReplaceAll(s, ",", ".")
	}
	if strings.Count(s, ".") > 1 {
		return strings.ReplaceAll(s, ".", "")
	}
	if i := strings.IndexByte(s, '.'); i >= 0 && len(s)-i-1 == 3 {
		return strings.ReplaceAll(s, ".", "")
	}
	return s
}

// ParseDate parses raw with one exact Go layout in UTC.
func ParseDate(raw string, layout string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrInvalidDate
	}
	t, err := time.ParseInLocation(layout, raw, time.UTC)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// ConvertDateFormat converts user-friendly format strings to Go layouts,
// e.g. "dd/MM/yyyy HH:mm:ss" -> "02/01/2006 15:04:05"
func ConvertDateFormat(format string) string {
	replacer := strings.NewReplacer(
		"yyyy", "2006",
		"yy", "06",
		"MM", "01",
		"dd", "02",
		"HH", "15",
		"mm", "04",
		"ss", "05",
	)
	return replacer.Replace(format)
}

// NormalizeWhitespace collapses runs of whitespace into single spaces and
// trims both ends.
func NormalizeWhitespace(raw string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(raw, " "))
}
