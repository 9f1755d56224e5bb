package statement

import (
	"context"
	"strconv"
	"time"

	"github.com/FACorreiaa/statement-import/internal/domain/common"
	"github.com/FACorreiaa/statement-import/internal/domain/import/decoder"
	"github.com/FACorreiaa/statement-import/internal/domain/import/normalizer"
	"github.com/FACorreiaa/statement-import/internal/domain/import/progress"
)

const (
	bradescoCardHeaderRow    = 5
	bradescoCardDataStart    = 6
	bradescoCardColDate      = 0
	bradescoCardColTitle     = 1
	bradescoCardColAmount    = 3
	bradescoCardPaymentTitle = "PAGTO"
)

var bradescoCardExportProbe = Probe{
	Row:         0,
	Col:         0,
	StripPrefix: "Data:",
	Layout:      normalizer.ConvertDateFormat("dd/MM/yyyy HH:mm:ss"),
}

var bradescoCardBillFingerprint = Fingerprint{
	Format:    FormatBradescoCardBill,
	Probe:     &bradescoCardExportProbe,
	HeaderRow: bradescoCardHeaderRow,
	Headers:   []string{"Data", "Histórico", "Valor(US$)", "Valor(R$)"},
}

// extractBradescoCardBill reads rows dated "dd/MM". The year comes from the
// export timestamp in the probe cell.
func extractBradescoCardBill(ctx context.Context, g *decoder.Grid, tracker *progress.Tracker) ([]common.TransactionDraft, error) {
	exported, err := normalizer.ParseDate(bradescoCardExportProbe.Value(g), bradescoCardExportProbe.Layout)
	if err != nil {
		return nil, err
	}

	var drafts []common.TransactionDraft
	for i := bradescoCardDataStart; i < g.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dayMonth := cellText(g, i, bradescoCardColDate)
		if dayMonth == "" {
			continue
		}
		date, ok := cardBillDate(dayMonth, exported)
		if !ok {
			continue
		}

		title := cellText(g, i, bradescoCardColTitle)
		if title == "" || containsFold(title, bradescoCardPaymentTitle) || containsFold(title, previousBalanceMarker) {
			continue
		}
		amount, err := normalizer.ParseAmount(g.Cell(i, bradescoCardColAmount), normalizer.LocaleBR)
		if err != nil {
			continue
		}

		drafts = append(drafts, common.NewDraft(kindFromSign(amount.IsNegative()), title, nil, date, amount))
		tracker.Row(ctx, i)
	}

	return drafts, nil
}

// cardBillDate places a "dd/MM" date in the export year, or in the year before
// when it would fall after the export or does not exist in the export year
// (29/02).
func cardBillDate(dayMonth string, exported time.Time) (time.Time, bool) {
	date, err := normalizer.ParseDate(dayMonth+"/"+strconv.Itoa(exported.Year()), dayMonthYearLayout)
	if err == nil && !date.After(exported) {
		return date, true
	}
	date, err = normalizer.ParseDate(dayMonth+"/"+strconv.Itoa(exported.Year()-1), dayMonthYearLayout)
	if err != nil {
		return time.Time{}, false
	}
	return date, true
}
