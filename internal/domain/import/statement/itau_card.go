package statement

import (
	"context"

	"github.com/FACorreiaa/statement-import/internal/domain/common"
	"github.com/FACorreiaa/statement-import/internal/domain/import/decoder"
	"github.com/FACorreiaa/statement-import/internal/domain/import/normalizer"
	"github.com/FACorreiaa/statement-import/internal/domain/import/progress"
)

const (
	itauHeaderRow = 26
	itauDataStart = 26
	itauColDate   = 0
	itauColTitle  = 1
	itauColAmount = 3
	itauTotal     = "TOTAL"
)

var itauCardBillFingerprint = Fingerprint{
	Format:    FormatItauCardBill,
	Probe:     &Probe{Row: 0, Col: 0, Expect: "LOGOTIPO ITAÚ"},
	HeaderRow: itauHeaderRow,
	Headers:   []string{"DATA", "LANÇAMENTO", "VALOR"},
}

func extractItauCardBill(ctx context.Context, g *decoder.Grid, tracker *progress.Tracker) ([]common.TransactionDraft, error) {
	var drafts []common.TransactionDraft

	for i := itauDataStart; i < g.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		first := cellText(g, i, itauColDate)
		if containsFold(first, itauTotal) {
			tracker.Row(ctx, i)
			break
		}

		date, err := normalizer.ParseDate(first, dayMonthYearLayout)
		if err != nil {
			continue
		}
		title := cellText(g, i, itauColTitle)
		if title == "" {
			continue
		}
		amount, err := normalizer.ParseAmount(g.Cell(i, itauColAmount), normalizer.LocaleBR)
		if err != nil {
			continue
		}

		drafts = append(drafts, common.NewDraft(kindFromSign(amount.IsNegative()), title, nil, date, amount))
		tracker.Row(ctx, i)
	}

	return drafts, nil
}
