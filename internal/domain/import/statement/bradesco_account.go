package statement

import (
	"context"

	"github.com/FACorreiaa/statement-import/internal/domain/common"
	"github.com/FACorreiaa/statement-import/internal/domain/import/decoder"
	"github.com/FACorreiaa/statement-import/internal/domain/import/normalizer"
	"github.com/FACorreiaa/statement-import/internal/domain/import/progress"
)

const (
	bradescoAccountHeaderRow  = 1
	bradescoAccountDataStart  = 2
	bradescoAccountDateLayout = "02/01/06"
	bradescoAccountColDate    = 0
	bradescoAccountColTitle   = 1
	bradescoAccountColCredit  = 3
	bradescoAccountColDebit   = 4
	bradescoAccountTotal      = "Total"
	transferKeyword           = "TRANSF"
)

var bradescoAccountStatementFingerprint = Fingerprint{
	Format:    FormatBradescoAccountStatement,
	HeaderRow: bradescoAccountHeaderRow,
	Headers:   []string{"Data", "Histórico", "Docto.", "Crédito (R$)", "Débito (R$)", "Saldo (R$)"},
}

func extractBradescoAccountStatement(ctx context.Context, g *decoder.Grid, tracker *progress.Tracker) ([]common.TransactionDraft, error) {
	var drafts []common.TransactionDraft

	for i := bradescoAccountDataStart; i < g.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		title := cellText(g, i, bradescoAccountColTitle)
		if title == bradescoAccountTotal {
			tracker.Row(ctx, i)
			break
		}

		date, err := normalizer.ParseDate(g.Cell(i, bradescoAccountColDate), bradescoAccountDateLayout)
		if err != nil || title == "" || containsFold(title, previousBalanceMarker) {
			continue
		}

		credit, creditErr := normalizer.ParseAmount(g.Cell(i, bradescoAccountColCredit), normalizer.LocaleBR)
		debit, debitErr := normalizer.ParseAmount(g.Cell(i, bradescoAccountColDebit), normalizer.LocaleBR)
		if creditErr != nil && debitErr != nil {
			continue
		}

		var kind common.TransactionKind
		switch {
		case debitErr == nil && containsFold(title, transferKeyword):
			kind = common.KindTransfer
		case creditErr == nil:
			kind = common.KindIncome
		default:
			kind = common.KindExpense
		}

		amount := debit
		if creditErr == nil {
			amount = credit
		}

		drafts = append(drafts, common.NewDraft(kind, title, borrowedDescription(g, i+1), date, amount))
		tracker.Row(ctx, i)
	}

	return drafts, nil
}

// borrowedDescription returns the title of an undated continuation row.
func borrowedDescription(g *decoder.Grid, row int) *string {
	if row >= g.Len() {
		return nil
	}
	if _, err := normalizer.ParseDate(g.Cell(row, bradescoAccountColDate), bradescoAccountDateLayout); err == nil {
		return nil
	}
	next := cellText(g, row, bradescoAccountColTitle)
	if next == "" || next == bradescoAccountTotal {
		return nil
	}
	return &next
}
