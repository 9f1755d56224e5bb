package common

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-import/internal/domain/import/normalizer"
)

// TransactionKind is the direction of a transaction.
type TransactionKind string

const (
	KindIncome   TransactionKind = "Income"
	KindExpense  TransactionKind = "Expense"
	KindTransfer TransactionKind = "Transfer"
)

// Valid reports whether k is one of the known kinds.
func (k TransactionKind) Valid() bool {
	switch k {
	case KindIncome, KindExpense, KindTransfer:
		return true
	}
	return false
}

// TransactionDraft is an unpersisted, normalized transaction candidate.
// Amount is never negative; the direction lives in Kind.
type TransactionDraft struct {
	Kind            TransactionKind `json:"type"`
	Title           string          `json:"title"`
	Description     *string         `json:"description,omitempty"`
	AccrualDate     time.Time       `json:"accrualDate"`
	CashDate        time.Time       `json:"cashDate"`
	Amount          decimal.Decimal `json:"amount"`
	Installments    int             `json:"installments"`
	PoteID          *uuid.UUID      `json:"poteId,omitempty"`
	CategoryID      *uuid.UUID      `json:"categoryId,omitempty"`
	SubcategoryID   *uuid.UUID      `json:"subcategoryId,omitempty"`
	CategoryName    *string         `json:"categoryName,omitempty"`
	SubcategoryName *string         `json:"subcategoryName,omitempty"`
}

// NewDraft builds a statement-derived draft. Title and description are
// whitespace-normalized, an empty description becomes nil, the amount is
// stored as its absolute value and installments default to 1.
func NewDraft(kind TransactionKind, title string, description *string, date time.Time, amount decimal.Decimal) TransactionDraft {
	d := TransactionDraft{
		Kind:         kind,
		Title:        normalizer.NormalizeWhitespace(title),
		AccrualDate:  date,
		CashDate:     date,
		Amount:       amount.Abs(),
		Installments: 1,
	}
	if description != nil {
		if desc := normalizer.NormalizeWhitespace(*description); desc != "" {
			d.Description = &desc
		}
	}
	return d
}

// IsCategorized reports whether the draft carries any category reference.
func (d *TransactionDraft) IsCategorized() bool {
	return d.CategoryID != nil || d.CategoryName != nil
}

// NeedsMaterialization reports whether the draft references a category or
// subcategory by name only.
func (d *TransactionDraft) NeedsMaterialization() bool {
	return (d.CategoryID == nil && d.CategoryName != nil) ||
		(d.SubcategoryID == nil && d.SubcategoryName != nil)
}

// MatchCandidate is a historical transaction considered during categorization.
type MatchCandidate struct {
	Title           string    `db:"title"`
	Description     *string   `db:"description"`
	OwnerID         uuid.UUID `db:"user_id"`
	PoteID          uuid.UUID `db:"pote_id"`
	CategoryID      uuid.UUID `db:"category_id"`
	SubcategoryID   uuid.UUID `db:"subcategory_id"`
	CategoryName    string    `db:"category_name"`
	SubcategoryName string    `db:"subcategory_name"`

	TitleSimilarity float64 `db:"-"`
	TitleDistance   int     `db:"-"`
}

// CategoryByName requests the creation of a category identified by name.
// ParentID is set for subcategories.
type CategoryByName struct {
	Name     string
	ParentID *uuid.UUID
	PoteID   uuid.UUID
}
