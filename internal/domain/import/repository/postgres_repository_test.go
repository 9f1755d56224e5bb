package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-import/internal/domain/common"
	"github.com/FACorreiaa/statement-import/internal/domain/import/similarity"
)

func newTestRepo(t *testing.T) (*PostgresImportRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)
	return NewPostgresImportRepository(mock, 50, slog.New(slog.NewTextHandler(io.Discard, nil))), mock
}

func TestLikePatterns(t *testing.T) {
	got := likePatterns("  Uber  ")
	want := []string{"u%", "ub%", "%ube%", "%ber%", "%er", "%r"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	if got := likePatterns("ab"); got != nil {
		t.Fatalf("expected nil for short input, got %v", got)
	}
	if got := likePatterns("a%_b"); got[1] != `a\%%` || got[2] != `%a\%\_%` || got[3] != `%\%\_b%` || got[4] != `%\_b` {
		t.Fatalf("wildcards not escaped: %v", got)
	}
	if got := likePatterns("aaaa"); len(got) != 5 {
		t.Fatalf("expected duplicates removed, got %v", got)
	}
}

// likeToRegexp mirrors the LIKE semantics of the patterns likePatterns builds.
func likeToRegexp(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '\\':
			i++
			b.WriteString(regexp.QuoteMeta(string(pattern[i])))
		case '%':
			b.WriteString("(?s:.*)")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

func selectedBy(patterns []string, title string) bool {
	for _, p := range patterns {
		if likeToRegexp(p).MatchString(title) {
			return true
		}
	}
	return false
}

func TestLikePatterns_SelectBoundaryTrigramMatches(t *testing.T) {
	tests := []struct {
		draft, candidate string
	}{
		{"CASA", "CAXSA"},
		{"UBER", "UBXER"},
		{"PIX", "PIXX"},
	}
	for _, tt := range tests {
		t.Run(tt.draft+"/"+tt.candidate, func(t *testing.T) {
			score := similarity.TrigramSimilarity(tt.draft, tt.candidate)
			if score <= 0.4 {
				t.Fatalf("expected %q to clear 0.4 against %q, got %.3f", tt.candidate, tt.draft, score)
			}
			patterns := likePatterns(tt.draft)
			if !selectedBy(patterns, similarity.Normalize(tt.candidate)) {
				t.Fatalf("candidate %q (similarity %.3f) not selected by %v", tt.candidate, score, patterns)
			}
		})
	}

	if selectedBy(likePatterns("CASA"), "uber trip") {
		t.Fatal("unrelated title should not be selected")
	}
}

func TestPostgresImportRepository_FindCandidates(t *testing.T) {
	repo, mock := newTestRepo(t)

	owner, pote, category, subcategory := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	desc := "CONTA SALARIO"
	rows := pgxmock.NewRows([]string{
		"title", "description", "user_id", "pote_id",
		"category_id", "subcategory_id", "category_name", "subcategory_name",
	}).AddRow("UBER TRIP", &desc, owner, pote, category, subcategory, "Transporte", "Aplicativo")

	mock.ExpectQuery(regexp.QuoteMeta(findCandidatesQuery)).
		WithArgs(owner,
			[]string{"u%", "ub%", "%ube%", "%ber%", "%er", "%r"},
			[]string{"c%", "co%", "%con%", "%ont%", "%nta%", "%ta", "%a"},
			50).
		WillReturnRows(rows)

	title, description := "UBER", "conta"
	candidates, err := repo.FindCandidates(context.Background(), owner, title, &description)
	if err != nil {
		t.Fatalf("FindCandidates: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	c := candidates[0]
	if c.Title != "UBER TRIP" || c.OwnerID != owner || c.CategoryID != category || c.SubcategoryName != "Aplicativo" {
		t.Fatalf("unexpected candidate: %+v", c)
	}
	if c.Description == nil || *c.Description != desc {
		t.Fatalf("unexpected description: %v", c.Description)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresImportRepository_FindCandidates_ShortTitleSkipsPrefilter(t *testing.T) {
	repo, mock := newTestRepo(t)
	owner := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(findCandidatesQuery)).
		WithArgs(owner, []string(nil), []string(nil), 50).
		WillReturnRows(pgxmock.NewRows([]string{
			"title", "description", "user_id", "pote_id",
			"category_id", "subcategory_id", "category_name", "subcategory_name",
		}))

	description := "something long"
	candidates, err := repo.FindCandidates(context.Background(), owner, "TE", &description)
	if err != nil {
		t.Fatalf("FindCandidates: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("expected no candidates, got %d", len(candidates))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresImportRepository_FindCandidates_Error(t *testing.T) {
	repo, mock := newTestRepo(t)
	dbErr := errors.New("connection refused")

	mock.ExpectQuery(regexp.QuoteMeta(findCandidatesQuery)).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), 50).
		WillReturnError(dbErr)

	_, err := repo.FindCandidates(context.Background(), uuid.New(), "PADARIA", nil)
	if !errors.Is(err, dbErr) {
		t.Fatalf("expected wrapped %v, got %v", dbErr, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresImportRepository_CreateCategories(t *testing.T) {
	repo, mock := newTestRepo(t)
	owner, pote, parent := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectExec(regexp.QuoteMeta(createCategoryQuery)).
		WithArgs(pgxmock.AnyArg(), "Mercado", (*uuid.UUID)(nil), pote, owner).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta(createCategoryQuery)).
		WithArgs(pgxmock.AnyArg(), "Feira", &parent, pote, owner).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	ids, err := repo.CreateCategories(context.Background(), owner, []common.CategoryByName{
		{Name: "Mercado", PoteID: pote},
		{Name: "Feira", ParentID: &parent, PoteID: pote},
	})
	if err != nil {
		t.Fatalf("CreateCategories: %v", err)
	}
	if len(ids) != 2 || ids[0] == uuid.Nil || ids[0] == ids[1] {
		t.Fatalf("expected two distinct ids, got %v", ids)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func testDrafts(pote, category, subcategory uuid.UUID) []common.TransactionDraft {
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	drafts := []common.TransactionDraft{
		common.NewDraft(common.KindExpense, "PADARIA", nil, day, decimal.RequireFromString("12.50")),
		common.NewDraft(common.KindIncome, "PIX", nil, day, decimal.RequireFromString("-100")),
	}
	for i := range drafts {
		drafts[i].PoteID, drafts[i].CategoryID, drafts[i].SubcategoryID = &pote, &category, &subcategory
	}
	return drafts
}

func TestPostgresImportRepository_InsertTransactions(t *testing.T) {
	repo, mock := newTestRepo(t)
	owner := uuid.New()

	mock.ExpectCopyFrom(pgx.Identifier{"transactions"}, transactionColumns).WillReturnResult(2)

	ids, err := repo.InsertTransactions(context.Background(), owner, testDrafts(uuid.New(), uuid.New(), uuid.New()))
	if err != nil {
		t.Fatalf("InsertTransactions: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %d", len(ids))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}

	if ids, err := repo.InsertTransactions(context.Background(), owner, nil); err != nil || ids != nil {
		t.Fatalf("expected no-op for empty input, got %v, %v", ids, err)
	}
}

func TestPostgresImportRepository_InsertTransactions_ShortCopy(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectCopyFrom(pgx.Identifier{"transactions"}, transactionColumns).WillReturnResult(1)

	if _, err := repo.InsertTransactions(context.Background(), uuid.New(), testDrafts(uuid.New(), uuid.New(), uuid.New())); err == nil {
		t.Fatal("expected error for partial copy")
	}
}

func TestPostgresImportRepository_WithinTx_Commit(t *testing.T) {
	repo, mock := newTestRepo(t)
	owner, pote := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(createCategoryQuery)).
		WithArgs(pgxmock.AnyArg(), "Mercado", (*uuid.UUID)(nil), pote, owner).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"transactions"}, transactionColumns).WillReturnResult(2)
	mock.ExpectCommit()

	err := repo.WithinTx(context.Background(), func(ctx context.Context, store Store) error {
		ids, err := store.CreateCategories(ctx, owner, []common.CategoryByName{{Name: "Mercado", PoteID: pote}})
		if err != nil {
			return err
		}
		_, err = store.InsertTransactions(ctx, owner, testDrafts(pote, ids[0], ids[0]))
		return err
	})
	if err != nil {
		t.Fatalf("WithinTx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresImportRepository_WithinTx_Rollback(t *testing.T) {
	repo, mock := newTestRepo(t)
	failure := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := repo.WithinTx(context.Background(), func(context.Context, Store) error {
		return failure
	})
	if err != failure {
		t.Fatalf("expected the callback error unchanged, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
