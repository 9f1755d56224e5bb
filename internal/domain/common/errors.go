package common

import "errors"

var (
	ErrNotFound   = errors.New("requested item not found")
	ErrConflict   = errors.New("item already exists or conflict")
	ErrBadRequest = errors.New("bad request")

	// ErrNoUsableTransactions is returned when no uploaded file produced a draft.
	ErrNoUsableTransactions = errors.New("no usable transactions found in uploaded files")
	// ErrUncategorizedDraft is returned by the confirm step when a draft lacks a pote or category reference.
	ErrUncategorizedDraft = errors.New("draft has no category reference")
)
