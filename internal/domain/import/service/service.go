// Package service provides the import orchestration logic.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/FACorreiaa/statement-import/internal/domain/common"
	"github.com/FACorreiaa/statement-import/internal/domain/import/decoder"
	"github.com/FACorreiaa/statement-import/internal/domain/import/matcher"
	"github.com/FACorreiaa/statement-import/internal/domain/import/materializer"
	"github.com/FACorreiaa/statement-import/internal/domain/import/progress"
	"github.com/FACorreiaa/statement-import/internal/domain/import/repository"
	"github.com/FACorreiaa/statement-import/internal/domain/import/statement"
	"github.com/FACorreiaa/statement-import/pkg/observability"
)

// DefaultMatchWorkers bounds concurrent history lookups within one file.
const DefaultMatchWorkers = 4

// Stage is the step a file reached in the pipeline.
type Stage string

const (
	StageDecoding   Stage = "decoding"
	StageDetecting  Stage = "detecting"
	StageExtracting Stage = "extracting"
	StageMatching   Stage = "matching"
	StageDone       Stage = "done"
)

// UploadedFile is one statement export. Name carries the extension used to
// pick a decoder.
type UploadedFile struct {
	Name string
	Data []byte
}

// FileImportResult contains the drafts extracted from one file
type FileImportResult struct {
	FileName         string                    `json:"fileName"`
	Format           statement.Format          `json:"format"`
	Transactions     []common.TransactionDraft `json:"transactions"`
	HasUncategorized bool                      `json:"hasUncategorized"`
}

// BatchOutcome is the result of processing a batch of files
type BatchOutcome struct {
	Files                map[string]*FileImportResult `json:"files"`
	PartiallyCategorized bool                         `json:"partiallyCategorized"`
}

// Drafts returns every draft of the batch, ordered by file name.
func (o *BatchOutcome) Drafts() []common.TransactionDraft {
	names := make([]string, 0, len(o.Files))
	for name := range o.Files {
		names = append(names, name)
	}
	slices.Sort(names)

	var all []common.TransactionDraft
	for _, name := range names {
		all = append(all, o.Files[name].Transactions...)
	}
	return all
}

// ImportService orchestrates statement processing and import confirmation
type ImportService struct {
	matcher      *matcher.Matcher
	materializer *materializer.Materializer
	uow          repository.UnitOfWork
	notifier     progress.Notifier
	chain        statement.Chain
	workers      int
	logger       *slog.Logger
}

// Option configures an ImportService.
type Option func(*ImportService)

// WithMatchWorkers sets how many history lookups run at once per file.
func WithMatchWorkers(n int) Option {
	return func(s *ImportService) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithChain replaces the default format detector chain.
func WithChain(chain statement.Chain) Option {
	return func(s *ImportService) {
		s.chain = chain
	}
}

// NewImportService creates a new import service
func NewImportService(
	m *matcher.Matcher,
	mat *materializer.Materializer,
	uow repository.UnitOfWork,
	notifier progress.Notifier,
	logger *slog.Logger,
	opts ...Option,
) *ImportService {
	if notifier == nil {
		notifier = progress.Nop
	}
	s := &ImportService{
		matcher:      m,
		materializer: mat,
		uow:          uow,
		notifier:     notifier,
		chain:        statement.DefaultChain(),
		workers:      DefaultMatchWorkers,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Process decodes, detects, extracts and categorizes every file. Files that
// cannot be decoded, match no format or yield no drafts are skipped. When
// every file is skipped it fails with common.ErrNoUsableTransactions.
// Progress events for connectionID are published while rows are extracted.
func (s *ImportService) Process(ctx context.Context, files []UploadedFile, connectionID string, ownerID uuid.UUID) (_ *BatchOutcome, err error) {
	ctx, span := observability.Tracer("import").Start(ctx, "ImportService.Process", trace.WithAttributes(
		attribute.String("owner.id", ownerID.String()),
		attribute.Int("files", len(files)),
	))
	defer func() { observability.EndSpan(span, err) }()
	defer observability.ObserveProcess()()

	l := s.logger.With(
		slog.String("method", "Process"),
		slog.String("ownerID", ownerID.String()),
		slog.String("connectionID", connectionID),
	)
	l.DebugContext(ctx, "Processing statement batch", slog.Int("files", len(files)))

	outcome := &BatchOutcome{Files: make(map[string]*FileImportResult)}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, stage, err := s.processFile(ctx, f, connectionID, ownerID)
		if err != nil {
			l.ErrorContext(ctx, "Failed to process file", slog.String("file", f.Name), slog.Any("error", err))
			return nil, err
		}
		if result == nil {
			observability.FilesTotal.WithLabelValues("skipped", string(stage)).Inc()
			continue
		}
		observability.FilesTotal.WithLabelValues("imported", string(stage)).Inc()

		if existing, ok := outcome.Files[f.Name]; ok {
			existing.Transactions = append(existing.Transactions, result.Transactions...)
			existing.HasUncategorized = existing.HasUncategorized || result.HasUncategorized
		} else {
			outcome.Files[f.Name] = result
		}
		outcome.PartiallyCategorized = outcome.PartiallyCategorized || result.HasUncategorized
	}

	if len(outcome.Files) == 0 {
		l.WarnContext(ctx, "No file yielded usable transactions")
		return nil, common.ErrNoUsableTransactions
	}

	l.InfoContext(ctx, "Processed statement batch",
		slog.Int("files", len(outcome.Files)),
		slog.Bool("partiallyCategorized", outcome.PartiallyCategorized))
	return outcome, nil
}

// processFile runs one file through the pipeline. A nil result with a nil
// error means the file was skipped at the returned stage.
func (s *ImportService) processFile(ctx context.Context, f UploadedFile, connectionID string, ownerID uuid.UUID) (_ *FileImportResult, _ Stage, err error) {
	ctx, span := observability.Tracer("import").Start(ctx, "ImportService.processFile", trace.WithAttributes(
		attribute.String("file.name", f.Name),
		attribute.Int("file.size", len(f.Data)),
	))
	defer func() { observability.EndSpan(span, err) }()

	l := s.logger.With(slog.String("method", "processFile"), slog.String("file", f.Name))

	grid, err := decoder.Decode(f.Data, f.Name)
	if err != nil {
		l.WarnContext(ctx, "Skipping file that could not be decoded", slog.Any("error", err))
		return nil, StageDecoding, nil
	}

	format, ok := s.chain.Detect(grid)
	if !ok {
		l.WarnContext(ctx, "Skipping file with unrecognized statement format", slog.Int("rows", grid.Len()))
		return nil, StageDetecting, nil
	}
	span.SetAttributes(attribute.String("statement.format", string(format)))
	l.DebugContext(ctx, "Detected statement format", slog.String("format", string(format)))

	tracker := progress.NewTracker(s.notifier, connectionID, f.Name, grid.Len())
	drafts, err := statement.Extract(ctx, format, grid, tracker)
	if err != nil {
		if ctx.Err() != nil {
			return nil, StageExtracting, ctx.Err()
		}
		l.WarnContext(ctx, "Skipping file that failed extraction", slog.Any("error", err))
		return nil, StageExtracting, nil
	}
	if len(drafts) == 0 {
		l.WarnContext(ctx, "Skipping file without transactions", slog.String("format", string(format)))
		return nil, StageExtracting, nil
	}
	observability.DraftsTotal.WithLabelValues(string(format)).Add(float64(len(drafts)))

	uncategorized, err := s.categorize(ctx, drafts, ownerID)
	if err != nil {
		return nil, StageMatching, err
	}
	if uncategorized > 0 {
		observability.UncategorizedTotal.Add(float64(uncategorized))
	}

	l.DebugContext(ctx, "Extracted drafts",
		slog.Int("drafts", len(drafts)),
		slog.Int("uncategorized", uncategorized))

	return &FileImportResult{
		FileName:         f.Name,
		Format:           format,
		Transactions:     drafts,
		HasUncategorized: uncategorized > 0,
	}, StageDone, nil
}

// categorize matches every draft concurrently. Each goroutine only writes
// its own slot. It returns how many drafts stayed uncategorized.
func (s *ImportService) categorize(ctx context.Context, drafts []common.TransactionDraft, ownerID uuid.UUID) (int, error) {
	matched := make([]bool, len(drafts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range drafts {
		g.Go(func() error {
			ok, err := s.matcher.Categorize(gctx, &drafts[i], ownerID)
			if err != nil {
				return err
			}
			matched[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, fmt.Errorf("failed to categorize drafts: %w", err)
	}

	uncategorized := 0
	for _, ok := range matched {
		if !ok {
			uncategorized++
		}
	}
	return uncategorized, nil
}

// Confirm persists drafts for ownerID. Every draft must reference a pote, a
// category and a subcategory, by id or by name. Name-only references are
// materialized and the transactions inserted in one unit of work. It returns
// the new transaction ids in draft order.
func (s *ImportService) Confirm(ctx context.Context, ownerID uuid.UUID, drafts []common.TransactionDraft) (ids []uuid.UUID, err error) {
	ctx, span := observability.Tracer("import").Start(ctx, "ImportService.Confirm", trace.WithAttributes(
		attribute.String("owner.id", ownerID.String()),
		attribute.Int("drafts", len(drafts)),
	))
	defer func() { observability.EndSpan(span, err) }()

	l := s.logger.With(slog.String("method", "Confirm"), slog.String("ownerID", ownerID.String()))

	if len(drafts) == 0 {
		return nil, fmt.Errorf("%w: no transactions to confirm", common.ErrBadRequest)
	}
	if err := validateDrafts(drafts); err != nil {
		l.WarnContext(ctx, "Rejecting confirmation", slog.Any("error", err))
		return nil, err
	}

	var result *materializer.Result
	err = s.uow.WithinTx(ctx, func(ctx context.Context, store repository.Store) error {
		var err error
		result, err = s.materializer.Materialize(ctx, store, ownerID, drafts)
		if err != nil {
			return err
		}
		ids, err = store.InsertTransactions(ctx, ownerID, result.Drafts)
		return err
	})
	if err != nil {
		l.ErrorContext(ctx, "Failed to confirm import", slog.Any("error", err))
		return nil, err
	}

	observability.MaterializedCategoriesTotal.WithLabelValues("category").Add(float64(result.CategoriesCreated))
	observability.MaterializedCategoriesTotal.WithLabelValues("subcategory").Add(float64(result.SubcategoriesCreated))
	l.InfoContext(ctx, "Confirmed import",
		slog.Int("transactions", len(ids)),
		slog.Int("categoriesCreated", result.CategoriesCreated),
		slog.Int("subcategoriesCreated", result.SubcategoriesCreated))
	return ids, nil
}

func validateDrafts(drafts []common.TransactionDraft) error {
	var errs []error
	for i, d := range drafts {
		switch {
		case !d.Kind.Valid():
			errs = append(errs, fmt.Errorf("draft %d (%q): invalid type %q", i, d.Title, d.Kind))
		case d.PoteID == nil:
			errs = append(errs, fmt.Errorf("draft %d (%q): missing pote", i, d.Title))
		case d.CategoryID == nil && d.CategoryName == nil:
			errs = append(errs, fmt.Errorf("draft %d (%q): missing category", i, d.Title))
		case d.SubcategoryID == nil && d.SubcategoryName == nil:
			errs = append(errs, fmt.Errorf("draft %d (%q): missing subcategory", i, d.Title))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", common.ErrUncategorizedDraft, errors.Join(errs...))
}
