// Package materializer resolves name-only category references on drafts
// into newly created category records.
package materializer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/FACorreiaa/statement-import/internal/domain/common"
	"github.com/FACorreiaa/statement-import/internal/domain/import/similarity"
)

// CategoryWriter creates categories for an owner and returns their ids in
// request order. It is expected to run inside the caller's unit of work.
type CategoryWriter interface {
	CreateCategories(ctx context.Context, ownerID uuid.UUID, categories []common.CategoryByName) ([]uuid.UUID, error)
}

// Result holds the resolved drafts and how many records were created.
type Result struct {
	Drafts               []common.TransactionDraft
	CategoriesCreated    int
	SubcategoriesCreated int
}

type Materializer struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Materializer {
	return &Materializer{logger: logger}
}

type categoryKey struct {
	name string
	pote uuid.UUID
}

type subcategoryKey struct {
	name   string
	parent uuid.UUID
	pote   uuid.UUID
}

// Materialize creates one category per distinct (name, pote) and one
// subcategory per distinct (name, parent, pote) among drafts, then returns
// copies of the drafts pointing at the new ids. Names are compared
// case-insensitively. Categories that already exist for the owner are not
// looked up, so an existing name is created again.
func (m *Materializer) Materialize(ctx context.Context, writer CategoryWriter, ownerID uuid.UUID, drafts []common.TransactionDraft) (*Result, error) {
	l := m.logger.With(slog.String("method", "Materialize"), slog.String("ownerID", ownerID.String()))

	out := make([]common.TransactionDraft, len(drafts))
	copy(out, drafts)

	for i := range out {
		if out[i].NeedsMaterialization() && out[i].PoteID == nil {
			return nil, fmt.Errorf("%w: draft %d (%q) has a category name but no pote", common.ErrUncategorizedDraft, i, out[i].Title)
		}
	}

	categoryIDs := make(map[categoryKey]uuid.UUID)
	var categoryKeys []categoryKey
	var categoryRequests []common.CategoryByName
	for i := range out {
		d := &out[i]
		if d.CategoryID != nil || d.CategoryName == nil {
			continue
		}
		key := categoryKey{name: similarity.Normalize(*d.CategoryName), pote: *d.PoteID}
		if _, ok := categoryIDs[key]; ok {
			continue
		}
		categoryIDs[key] = uuid.Nil
		categoryKeys = append(categoryKeys, key)
		categoryRequests = append(categoryRequests, common.CategoryByName{Name: *d.CategoryName, PoteID: *d.PoteID})
	}

	if len(categoryRequests) > 0 {
		ids, err := writer.CreateCategories(ctx, ownerID, categoryRequests)
		if err != nil {
			l.ErrorContext(ctx, "Failed to create categories", slog.Any("error", err))
			return nil, fmt.Errorf("failed to create categories: %w", err)
		}
		if len(ids) != len(categoryRequests) {
			return nil, fmt.Errorf("failed to create categories: got %d ids for %d names", len(ids), len(categoryRequests))
		}
		for i, key := range categoryKeys {
			categoryIDs[key] = ids[i]
		}
	}

	for i := range out {
		d := &out[i]
		if d.CategoryID != nil || d.CategoryName == nil {
			continue
		}
		id := categoryIDs[categoryKey{name: similarity.Normalize(*d.CategoryName), pote: *d.PoteID}]
		d.CategoryID = &id
		d.CategoryName = nil
	}

	subcategoryIDs := make(map[subcategoryKey]uuid.UUID)
	var subcategoryKeys []subcategoryKey
	var subcategoryRequests []common.CategoryByName
	for i := range out {
		d := &out[i]
		if d.SubcategoryID != nil || d.SubcategoryName == nil {
			continue
		}
		if d.CategoryID == nil {
			return nil, fmt.Errorf("%w: draft %d (%q) has a subcategory name but no category", common.ErrUncategorizedDraft, i, d.Title)
		}
		key := subcategoryKey{name: similarity.Normalize(*d.SubcategoryName), parent: *d.CategoryID, pote: *d.PoteID}
		if _, ok := subcategoryIDs[key]; ok {
			continue
		}
		parent := *d.CategoryID
		subcategoryIDs[key] = uuid.Nil
		subcategoryKeys = append(subcategoryKeys, key)
		subcategoryRequests = append(subcategoryRequests, common.CategoryByName{Name: *d.SubcategoryName, ParentID: &parent, PoteID: *d.PoteID})
	}

	if len(subcategoryRequests) > 0 {
		ids, err := writer.CreateCategories(ctx, ownerID, subcategoryRequests)
		if err != nil {
			l.ErrorContext(ctx, "Failed to create subcategories", slog.Any("error", err))
			return nil, fmt.Errorf("failed to create subcategories: %w", err)
		}
		if len(ids) != len(subcategoryRequests) {
			return nil, fmt.Errorf("failed to create subcategories: got %d ids for %d names", len(ids), len(subcategoryRequests))
		}
		for i, key := range subcategoryKeys {
			subcategoryIDs[key] = ids[i]
		}
	}

	for i := range out {
		d := &out[i]
		if d.SubcategoryID != nil || d.SubcategoryName == nil {
			continue
		}
		id := subcategoryIDs[subcategoryKey{name: similarity.Normalize(*d.SubcategoryName), parent: *d.CategoryID, pote: *d.PoteID}]
		d.SubcategoryID = &id
		d.SubcategoryName = nil
	}

	l.InfoContext(ctx, "Materialized categories",
		slog.Int("categories", len(categoryRequests)),
		slog.Int("subcategories", len(subcategoryRequests)))

	return &Result{
		Drafts:               out,
		CategoriesCreated:    len(categoryRequests),
		SubcategoriesCreated: len(subcategoryRequests),
	}, nil
}
