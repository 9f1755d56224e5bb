package decoder_test

import (
	"context"
	"os"
	"testing"

	"github.com/FACorreiaa/statement-import/internal/domain/common"
	"github.com/FACorreiaa/statement-import/internal/domain/import/decoder"
	"github.com/FACorreiaa/statement-import/internal/domain/import/statement"
)

// testdata/itau_card_bill.xls is a BIFF8 workbook with two sheets. The first
// holds an Itaú card bill that only stores rows 0, 1, 10 and 26-30; the
// second holds a single "SEGUNDA ABA" cell.
func loadItauXLS(t *testing.T) *decoder.Grid {
	t.Helper()
	data, err := os.ReadFile("testdata/itau_card_bill.xls")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	grid, err := decoder.Decode(data, "Fatura.XLS")
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	return grid
}

func TestDecode_XLS(t *testing.T) {
	grid := loadItauXLS(t)

	if grid.Len() != 31 {
		t.Fatalf("expected 31 rows (absent rows kept), got %d", grid.Len())
	}

	cells := []struct {
		row, col int
		want     string
	}{
		{0, 0, "LOGOTIPO ITAÚ"},
		{1, 0, "Cartão final 1234"},
		{10, 0, "Resumo da fatura"},
		{26, 0, "DATA"},
		{26, 1, "LANÇAMENTO"},
		{26, 2, ""},
		{26, 3, "VALOR"},
		{27, 1, "UBER TRIP"},
		{27, 3, "23.9"},
		{29, 3, "-50"},
		{30, 0, "TOTAL"},
	}
	for _, c := range cells {
		if got := grid.Cell(c.row, c.col); got != c.want {
			t.Errorf("cell (%d,%d): expected %q, got %q", c.row, c.col, c.want, got)
		}
	}

	for _, absent := range []int{2, 9, 11, 25} {
		if row := grid.Row(absent); len(row) != 0 {
			t.Errorf("expected row %d to be empty, got %v", absent, row)
		}
	}
}

func TestDecode_XLSReadsFirstSheetOnly(t *testing.T) {
	grid := loadItauXLS(t)

	for i := 0; i < grid.Len(); i++ {
		for _, cell := range grid.Row(i) {
			if cell == "SEGUNDA ABA" {
				t.Fatalf("row %d holds a cell from the second sheet", i)
			}
		}
	}
}

func TestDecode_XLSItauCardBill(t *testing.T) {
	grid := loadItauXLS(t)

	format, ok := statement.DefaultChain().Detect(grid)
	if !ok || format != statement.FormatItauCardBill {
		t.Fatalf("expected %q, got %q (ok=%v)", statement.FormatItauCardBill, format, ok)
	}

	drafts, err := statement.Extract(context.Background(), format, grid, nil)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(drafts) != 3 {
		t.Fatalf("expected 3 drafts before TOTAL, got %d", len(drafts))
	}

	want := []struct {
		title  string
		amount string
		kind   common.TransactionKind
	}{
		{"UBER TRIP", "23.9", common.KindExpense},
		{"PADARIA CENTRAL", "123.45", common.KindExpense},
		{"ESTORNO LOJA", "50", common.KindIncome},
	}
	for i, w := range want {
		d := drafts[i]
		if d.Title != w.title || d.Amount.String() != w.amount || d.Kind != w.kind {
			t.Errorf("draft %d: expected %s %s %s, got %s %s %s", i, w.title, w.amount, w.kind, d.Title, d.Amount.String(), d.Kind)
		}
	}
	if got := drafts[0].AccrualDate.Format("2006-01-02"); got != "2024-03-05" {
		t.Errorf("expected accrual date 2024-03-05, got %s", got)
	}
}
