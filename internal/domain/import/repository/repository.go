// Package repository provides data access for statement imports.
package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FACorreiaa/statement-import/internal/domain/common"
)

// PgxPool abstracts the subset of pgxpool.Pool used by the repository to allow mocking in tests.
// pgx.Tx satisfies it as well, so the same repository code runs inside a unit of work.
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

var (
	_ PgxPool = (*pgxpool.Pool)(nil)
	_ PgxPool = (pgx.Tx)(nil)
)

// HistoryRepository looks up categorized transactions resembling a draft.
type HistoryRepository interface {
	FindCandidates(ctx context.Context, ownerID uuid.UUID, title string, description *string) ([]common.MatchCandidate, error)
}

// CategoryRepository creates categories by name. ParentID set means subcategory.
type CategoryRepository interface {
	CreateCategories(ctx context.Context, ownerID uuid.UUID, categories []common.CategoryByName) ([]uuid.UUID, error)
}

// TransactionRepository persists confirmed drafts.
type TransactionRepository interface {
	InsertTransactions(ctx context.Context, ownerID uuid.UUID, drafts []common.TransactionDraft) ([]uuid.UUID, error)
}

// Store groups the writes performed by an import confirmation.
type Store interface {
	CategoryRepository
	TransactionRepository
}

// UnitOfWork runs fn against a Store whose writes commit together or not at all.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}
