package statement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/FACorreiaa/statement-import/internal/domain/common"
	"github.com/FACorreiaa/statement-import/internal/domain/import/decoder"
	"github.com/FACorreiaa/statement-import/internal/domain/import/normalizer"
	"github.com/FACorreiaa/statement-import/internal/domain/import/progress"
)

// ErrUnknownFormat is returned by Extract for a format it has no extractor for.
var ErrUnknownFormat = errors.New("unknown statement format")

const (
	previousBalanceMarker = "SALDO ANTERIOR"
	dayMonthYearLayout    = "02/01/2006"
)

// Extract turns the rows of a grid claimed by format into drafts. Rows that
// fail date or amount parsing are skipped. The tracker receives one update
// per emitted draft and one for a terminating marker row. The context is
// checked between rows.
func Extract(ctx context.Context, format Format, g *decoder.Grid, tracker *progress.Tracker) ([]common.TransactionDraft, error) {
	if tracker == nil {
		tracker = progress.NewTracker(nil, "", "", g.Len())
	}

	switch format {
	case FormatItauCardBill:
		return extractItauCardBill(ctx, g, tracker)
	case FormatBradescoCardBill:
		return extractBradescoCardBill(ctx, g, tracker)
	case FormatBradescoAccountStatement:
		return extractBradescoAccountStatement(ctx, g, tracker)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func cellText(g *decoder.Grid, row, col int) string {
	return normalizer.NormalizeWhitespace(g.Cell(row, col))
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToUpper(s), strings.ToUpper(substr))
}

// kindFromSign maps card bill amounts: charges are positive, credits negative.
func kindFromSign(negative bool) common.TransactionKind {
	if negative {
		return common.KindIncome
	}
	return common.KindExpense
}
