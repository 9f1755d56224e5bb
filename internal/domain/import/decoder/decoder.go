// Package decoder turns uploaded statement bytes into a rectangular grid of
// text cells. It sniffs CSV separators, falls back to ISO-8859-1 for legacy
// exports and reads the first sheet of spreadsheet workbooks.
package decoder

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

var (
	ErrEmptyFile         = errors.New("file is empty")
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// sniffLines bounds how many lines are inspected for separator detection.
const sniffLines = 20

// Grid is decoded tabular content. Rows may be ragged; a missing cell and an
// empty cell are both read as "". Row and column indices are exactly those of
// the source file.
type Grid struct {
	rows [][]string
}

// NewGrid wraps rows without copying them.
func NewGrid(rows [][]string) *Grid {
	return &Grid{rows: rows}
}

// Len returns the number of rows.
func (g *Grid) Len() int {
	if g == nil {
		return 0
	}
	return len(g.rows)
}

// Cell returns the raw text at (row, col), or "" when out of range.
func (g *Grid) Cell(row, col int) string {
	if g == nil || row < 0 || row >= len(g.rows) || col < 0 || col >= len(g.rows[row]) {
		return ""
	}
	return g.rows[row][col]
}

// Row returns the cells of a row, or nil when out of range.
func (g *Grid) Row(row int) []string {
	if g == nil || row < 0 || row >= len(g.rows) {
		return nil
	}
	return g.rows[row]
}

// Kind identifies a decoder for a file extension.
type Kind string

const (
	KindCSV  Kind = "csv"
	KindXLS  Kind = "xls"
	KindXLSX Kind = "xlsx"
)

// KindForFile maps a file name or extension to a decoder kind.
func KindForFile(name string) (Kind, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = "." + strings.ToLower(strings.TrimPrefix(name, "."))
	}
	switch ext {
	case ".csv":
		return KindCSV, nil
	case ".xls":
		return KindXLS, nil
	case ".xlsx":
		return KindXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// Decode converts data into a Grid using the decoder selected by the declared
// extension (".csv", ".xls", ".xlsx", or a file name carrying one).
func Decode(data []byte, declaredExtension string) (*Grid, error) {
	kind, err := KindForFile(declaredExtension)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	switch kind {
	case KindCSV:
		return decodeCSV(data)
	case KindXLS:
		return decodeXLS(data)
	case KindXLSX:
		return decodeXLSX(data)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, kind)
}

func decodeCSV(data []byte) (*Grid, error) {
	text, err := normalizeCSVBytes(data)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(text)) == 0 {
		return nil, ErrEmptyFile
	}

	reader := csv.NewReader(bytes.NewReader(text))
	reader.Comma = DetectDelimiter(text)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1 // Allow variable fields

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		rows = append(rows, record)
	}
	return NewGrid(rows), nil
}

// normalizeCSVBytes strips a UTF-8 BOM and decodes non-UTF-8 input as
// ISO-8859-1, the encoding legacy banking systems export with.
func normalizeCSVBytes(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	if utf8.Valid(data) {
		return data, nil
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode legacy encoding: %w", err)
	}
	return decoded, nil
}

// DetectDelimiter picks ',' or ';' by counting unquoted occurrences in the
// first lines. Ties go to ';', the usual separator of Brazilian exports.
func DetectDelimiter(data []byte) rune {
	var commas, semicolons int
	inQuotes := false
	lines := 0
	for _, r := range string(data) {
		switch r {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				commas++
			}
		case ';':
			if !inQuotes {
				semicolons++
			}
		case '\n':
			lines++
		}
		if lines >= sniffLines {
			break
		}
	}
	if commas > semicolons {
		return ','
	}
	return ';'
}

func decodeXLSX(data []byte) (*Grid, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, ErrEmptyFile
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	return NewGrid(rows), nil
}

func decodeXLS(data []byte) (*Grid, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("failed to open xls workbook: %w", err)
	}
	if wb == nil || wb.NumSheets() == 0 {
		return nil, ErrEmptyFile
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, ErrEmptyFile
	}

	rows := make([][]string, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := xlsRow(sheet, i)
		if row == nil {
			// Keep absent rows so header offsets stay stable
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, 0, row.LastCol())
		for c := 0; c < row.LastCol(); c++ {
			cells = append(cells, row.Col(c))
		}
		rows = append(rows, cells)
	}
	return NewGrid(rows), nil
}

// xlsRow returns nil for rows the sheet does not store.
// (*xls.WorkSheet).Row dereferences the row without checking it exists.
func xlsRow(sheet *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return sheet.Row(i)
}
