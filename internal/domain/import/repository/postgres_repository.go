package repository

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/statement-import/internal/domain/common"
	"github.com/FACorreiaa/statement-import/internal/domain/import/similarity"
)

// DefaultHistoryLimit caps the rows returned by FindCandidates.
const DefaultHistoryLimit = 2000

const findCandidatesQuery = `
		SELECT t.title, t.description, t.user_id, t.pote_id,
		       c.category_id, s.category_id AS subcategory_id,
		       c.name AS category_name, s.name AS subcategory_name
		FROM transactions t
		JOIN categories c ON c.category_id = t.category_id
		JOIN categories s ON s.category_id = t.subcategory_id
		WHERE $2::text[] IS NULL
		   OR lower(t.title) LIKE ANY($2::text[])
		   OR lower(t.description) LIKE ANY($3::text[])
		ORDER BY (t.user_id = $1) DESC, t.created_at DESC
		LIMIT $4
	`

const createCategoryQuery = `
		INSERT INTO categories (category_id, name, parent_id, pote_id, user_id)
		VALUES ($1, $2, $3, $4, $5)
	`

var transactionColumns = []string{
	"transaction_id", "type", "title", "description", "accrual_date", "cash_date",
	"amount", "installments", "user_id", "pote_id", "category_id", "subcategory_id",
}

// PostgresImportRepository implements the import repositories using PostgreSQL
type PostgresImportRepository struct {
	logger       *slog.Logger
	pgpool       PgxPool
	historyLimit int
}

var (
	_ HistoryRepository = (*PostgresImportRepository)(nil)
	_ Store             = (*PostgresImportRepository)(nil)
	_ UnitOfWork        = (*PostgresImportRepository)(nil)
)

// NewPostgresImportRepository creates a new PostgreSQL-backed import repository.
// A non-positive historyLimit falls back to DefaultHistoryLimit.
func NewPostgresImportRepository(pgpool PgxPool, historyLimit int, logger *slog.Logger) *PostgresImportRepository {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &PostgresImportRepository{logger: logger, pgpool: pgpool, historyLimit: historyLimit}
}

// FindCandidates returns categorized transactions of every owner sharing at
// least one trigram with the title or description, the owner's rows first.
func (r *PostgresImportRepository) FindCandidates(ctx context.Context, ownerID uuid.UUID, title string, description *string) ([]common.MatchCandidate, error) {
	titlePatterns := likePatterns(title)
	var descriptionPatterns []string
	if description != nil && titlePatterns != nil {
		descriptionPatterns = likePatterns(*description)
	}

	ctx, span := otel.Tracer("ImportRepo").Start(ctx, "FindCandidates", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "transactions"),
		attribute.Int("db.patterns", len(titlePatterns)),
	))
	defer span.End()

	rows, err := r.pgpool.Query(ctx, findCandidatesQuery, ownerID, titlePatterns, descriptionPatterns, r.historyLimit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, fmt.Errorf("failed to query match candidates: %w", err)
	}
	candidates, err := pgx.CollectRows(rows, pgx.RowToStructByName[common.MatchCandidate])
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB scan failed")
		return nil, fmt.Errorf("failed to scan match candidates: %w", err)
	}
	span.SetAttributes(attribute.Int("db.rows", len(candidates)))
	return candidates, nil
}

// likePatterns turns every boundary-padded trigram of s into a LIKE
// pattern, so any title sharing a trigram with s is selected: inner
// trigrams become '%abc%', the leading ones 'a%' and 'ab%', the trailing
// ones '%yz' and '%z'. Strings shorter than three runes return nil, which
// disables the prefilter.
func likePatterns(s string) []string {
	runes := []rune(similarity.Normalize(s))
	if len(runes) < 3 {
		return nil
	}
	escaper := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	seen := make(map[string]struct{}, len(runes)+4)
	patterns := make([]string, 0, len(runes)+2)
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		patterns = append(patterns, p)
	}

	n := len(runes)
	add(escaper.Replace(string(runes[:1])) + "%")
	add(escaper.Replace(string(runes[:2])) + "%")
	for i := 0; i+3 <= n; i++ {
		add("%" + escaper.Replace(string(runes[i:i+3])) + "%")
	}
	add("%" + escaper.Replace(string(runes[n-2:])))
	add("%" + escaper.Replace(string(runes[n-1:])))
	return patterns
}

// CreateCategories inserts one category per entry, in order, and returns
// the new ids in the same order. Existing names are not looked up.
func (r *PostgresImportRepository) CreateCategories(ctx context.Context, ownerID uuid.UUID, categories []common.CategoryByName) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(categories))
	for _, c := range categories {
		id := uuid.New()
		if _, err := r.pgpool.Exec(ctx, createCategoryQuery, id, c.Name, c.ParentID, c.PoteID, ownerID); err != nil {
			return nil, fmt.Errorf("failed to create category %q: %w", c.Name, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// InsertTransactions bulk-inserts drafts with COPY and returns their ids in draft order.
func (r *PostgresImportRepository) InsertTransactions(ctx context.Context, ownerID uuid.UUID, drafts []common.TransactionDraft) ([]uuid.UUID, error) {
	if len(drafts) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, len(drafts))
	for i := range ids {
		ids[i] = uuid.New()
	}

	copied, err := r.pgpool.CopyFrom(ctx,
		pgx.Identifier{"transactions"},
		transactionColumns,
		pgx.CopyFromSlice(len(drafts), func(i int) ([]any, error) {
			d := drafts[i]
			return []any{
				ids[i],
				string(d.Kind),
				d.Title,
				d.Description,
				d.AccrualDate,
				d.CashDate,
				pgtype.Numeric{Int: d.Amount.Coefficient(), Exp: d.Amount.Exponent(), Valid: true},
				d.Installments,
				ownerID,
				d.PoteID,
				d.CategoryID,
				d.SubcategoryID,
			}, nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to bulk insert transactions: %w", err)
	}
	if int(copied) != len(drafts) {
		return nil, fmt.Errorf("failed to bulk insert transactions: copied %d of %d rows", copied, len(drafts))
	}

	return ids, nil
}

// WithinTx runs fn in a database transaction. fn's Store writes through the
// transaction; an error from fn rolls everything back and is returned unchanged.
func (r *PostgresImportRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	l := r.logger.With(slog.String("method", "WithinTx"))

	tx, err := r.pgpool.Begin(ctx)
	if err != nil {
		l.ErrorContext(ctx, "Failed to begin transaction", slog.Any("error", err))
		return fmt.Errorf("database error beginning transaction: %w", err)
	}

	if err := fn(ctx, &PostgresImportRepository{logger: r.logger, pgpool: tx, historyLimit: r.historyLimit}); err != nil {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
			l.ErrorContext(ctx, "Failed to rollback transaction", slog.Any("error", rollbackErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		l.ErrorContext(ctx, "Failed to commit transaction", slog.Any("error", err))
		return fmt.Errorf("database error committing transaction: %w", err)
	}
	return nil
}
