// Package statement recognizes vendor statement layouts in a decoded grid
// and extracts normalized transaction drafts from them.
//
// Recognition is an ordered list of fingerprints evaluated by Chain.Detect;
// the first fingerprint that claims the grid selects the extractor. New
// vendor formats are added by appending a Format, a Fingerprint and an entry
// in Extract.
package statement

import (
	"strings"

	"github.com/FACorreiaa/statement-import/internal/domain/import/decoder"
	"github.com/FACorreiaa/statement-import/internal/domain/import/normalizer"
)

// Format names a recognized vendor statement layout.
type Format string

const (
	FormatUnknown                  Format = ""
	FormatItauCardBill             Format = "itau_card_bill"
	FormatBradescoCardBill         Format = "bradesco_card_bill"
	FormatBradescoAccountStatement Format = "bradesco_account_statement"
)

// Probe designates a single cell whose content identifies a format.
type Probe struct {
	Row, Col int
	// StripPrefix is removed (case-insensitively) before comparison.
	StripPrefix string
	// Expect, when set, must equal the cell case-insensitively.
	Expect string
	// Layout, when set, is a Go time layout the cell must parse with.
	Layout string
}

// Value returns the probe cell text with the prefix stripped.
func (p Probe) Value(g *decoder.Grid) string {
	value := strings.TrimSpace(g.Cell(p.Row, p.Col))
	if p.StripPrefix != "" && len(value) >= len(p.StripPrefix) &&
		strings.EqualFold(value[:len(p.StripPrefix)], p.StripPrefix) {
		value = strings.TrimSpace(value[len(p.StripPrefix):])
	}
	return value
}

// Matches reports whether the probe cell holds the expected marker.
func (p Probe) Matches(g *decoder.Grid) bool {
	value := p.Value(g)
	if value == "" {
		return false
	}
	if p.Expect != "" && !strings.EqualFold(value, p.Expect) {
		return false
	}
	if p.Layout != "" {
		if _, err := normalizer.ParseDate(value, p.Layout); err != nil {
			return false
		}
	}
	return true
}

// Fingerprint is the structural signature of one vendor format. Evaluating it
// never mutates the grid.
type Fingerprint struct {
	Format Format
	// Probe is optional; without it only the header row is checked.
	Probe     *Probe
	HeaderRow int
	// Headers must all be present among the non-empty cells of HeaderRow,
	// compared case-insensitively.
	Headers []string
}

// Matches evaluates the probe and then the header subset check.
func (f Fingerprint) Matches(g *decoder.Grid) bool {
	if f.Probe != nil && !f.Probe.Matches(g) {
		return false
	}
	return hasHeaders(g.Row(f.HeaderRow), f.Headers)
}

func hasHeaders(row []string, expected []string) bool {
	present := make(map[string]struct{}, len(row))
	for _, cell := range row {
		if key := headerKey(cell); key != "" {
			present[key] = struct{}{}
		}
	}
	if len(present) == 0 {
		return false
	}
	for _, h := range expected {
		if _, ok := present[headerKey(h)]; !ok {
			return false
		}
	}
	return true
}

func headerKey(s string) string {
	return strings.ToUpper(normalizer.NormalizeWhitespace(s))
}

// Chain is an ordered list of fingerprints. Order matters: a more specific
// fingerprint must precede a generic one that could also match its grids.
type Chain []Fingerprint

// DefaultChain returns the built-in formats. The probe-cell formats come
// first; the Bradesco account statement only checks a header row and is the
// most permissive, so it is tried last.
func DefaultChain() Chain {
	return Chain{
		itauCardBillFingerprint,
		bradescoCardBillFingerprint,
		bradescoAccountStatementFingerprint,
	}
}

// Detect returns the format of the first fingerprint that claims the grid.
// When the chain is exhausted it returns FormatUnknown and false.
func (c Chain) Detect(g *decoder.Grid) (Format, bool) {
	for _, f := range c {
		if f.Matches(g) {
			return f.Format, true
		}
	}
	return FormatUnknown, false
}
