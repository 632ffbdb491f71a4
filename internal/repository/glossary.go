// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/glossary/internal/model"
)

// GlossaryRepository provides transactional access to terms and definitions.
// Implementations translate driver errors into errs sentinels.
type GlossaryRepository interface {
	// Lookup returns every definition whose term contains the given text.
	Lookup(ctx context.Context, term string) ([]model.DefinitionRow, error)

	// Insert resolves term by exact text, creating it if absent, and attaches defs
	// to it in a single transaction. defIDs follow the order of defs.
	Insert(ctx context.Context, term string, defs []string) (termID int64, defIDs []int64, err error)

	// UpdateDefinitions rewrites definition texts in one transaction.
	// A definition that no longer exists fails the whole batch with errs.ErrNotFound.
	UpdateDefinitions(ctx context.Context, edits []model.DefinitionEdit) error

	// DeleteDefinitions removes definitions by id in one transaction. Missing ids are ignored.
	DeleteDefinitions(ctx context.Context, ids []int64) error

	// PruneTerm deletes the term if no definitions reference it and reports whether it did.
	PruneTerm(ctx context.Context, termID int64) (bool, error)

	// DeleteAndPrune runs DeleteDefinitions and PruneTerm inside one transaction.
	DeleteAndPrune(ctx context.Context, termID int64, ids []int64) (bool, error)

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error

	// Close releases every connection held by the repository.
	Close()
}
