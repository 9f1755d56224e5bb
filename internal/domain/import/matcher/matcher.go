// Package matcher assigns categories to imported drafts by ranking similar
// transactions from the owner's and other users' history.
package matcher

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/FACorreiaa/statement-import/internal/domain/common"
	"github.com/FACorreiaa/statement-import/internal/domain/import/similarity"
)

// DefaultThreshold is the trigram similarity a title or description must
// exceed to enter the candidate pool.
const DefaultThreshold = 0.4

// HistorySource returns prior transactions that may resemble a draft.
// Results can be a superset of the pool; the matcher scores them itself.
type HistorySource interface {
	FindCandidates(ctx context.Context, ownerID uuid.UUID, title string, description *string) ([]common.MatchCandidate, error)
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithThreshold overrides DefaultThreshold.
func WithThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.threshold = threshold
	}
}

type Matcher struct {
	history   HistorySource
	threshold float64
}

func New(history HistorySource, opts ...Option) *Matcher {
	m := &Matcher{history: history, threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Threshold returns the configured pool threshold.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Match looks up history for the draft and returns the best candidate, or
// nil when none qualifies.
func (m *Matcher) Match(ctx context.Context, draft common.TransactionDraft, ownerID uuid.UUID) (*common.MatchCandidate, error) {
	candidates, err := m.history.FindCandidates(ctx, ownerID, draft.Title, draft.Description)
	if err != nil {
		return nil, fmt.Errorf("failed to find match candidates for %q: %w", draft.Title, err)
	}
	return m.Best(draft, ownerID, candidates), nil
}

// Best filters candidates into the pool and returns the top-ranked one.
// Ranking is title similarity descending, then title edit distance
// ascending, then same owner first. Remaining ties keep the input order.
func (m *Matcher) Best(draft common.TransactionDraft, ownerID uuid.UUID, candidates []common.MatchCandidate) *common.MatchCandidate {
	title := similarity.Normalize(draft.Title)
	var description string
	if draft.Description != nil {
		description = similarity.Normalize(*draft.Description)
	}

	pool := make([]common.MatchCandidate, 0, len(candidates))
	for _, c := range candidates {
		candidateTitle := similarity.Normalize(c.Title)
		c.TitleSimilarity = similarity.TrigramSimilarity(title, candidateTitle)
		c.TitleDistance = similarity.EditDistance(title, candidateTitle)
		if m.admits(c, title, description) {
			pool = append(pool, c)
		}
	}
	if len(pool) == 0 {
		return nil
	}

	sort.SliceStable(pool, func(i, j int) bool {
		a, b := pool[i], pool[j]
		if a.TitleSimilarity != b.TitleSimilarity {
			return a.TitleSimilarity > b.TitleSimilarity
		}
		if a.TitleDistance != b.TitleDistance {
			return a.TitleDistance < b.TitleDistance
		}
		return a.OwnerID == ownerID && b.OwnerID != ownerID
	})

	best := pool[0]
	return &best
}

func (m *Matcher) admits(c common.MatchCandidate, title, description string) bool {
	if c.TitleSimilarity > m.threshold {
		return true
	}
	if title != "" && strings.Contains(similarity.Normalize(c.Title), title) {
		return true
	}
	if description == "" || c.Description == nil {
		return false
	}
	candidateDescription := similarity.Normalize(*c.Description)
	if candidateDescription == "" {
		return false
	}
	return similarity.TrigramSimilarity(description, candidateDescription) > m.threshold ||
		strings.Contains(candidateDescription, description)
}

// Apply copies the category linkage of c onto draft. Candidates of the same
// owner contribute their ids. Other owners only contribute the pote id and
// the category names, which are materialized on confirm.
func Apply(draft *common.TransactionDraft, c *common.MatchCandidate, ownerID uuid.UUID) {
	if c == nil {
		return
	}
	pote := c.PoteID
	draft.PoteID = &pote

	if c.OwnerID == ownerID {
		category, subcategory := c.CategoryID, c.SubcategoryID
		draft.CategoryID = &category
		draft.SubcategoryID = &subcategory
		draft.CategoryName = nil
		draft.SubcategoryName = nil
		return
	}

	draft.CategoryID = nil
	draft.SubcategoryID = nil
	draft.CategoryName = nonEmpty(c.CategoryName)
	draft.SubcategoryName = nonEmpty(c.SubcategoryName)
}

// Categorize matches and applies in one step. It reports whether a
// candidate was found.
func (m *Matcher) Categorize(ctx context.Context, draft *common.TransactionDraft, ownerID uuid.UUID) (bool, error) {
	best, err := m.Match(ctx, *draft, ownerID)
	if err != nil {
		return false, err
	}
	if best == nil {
		return false, nil
	}
	Apply(draft, best, ownerID)
	return true, nil
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
