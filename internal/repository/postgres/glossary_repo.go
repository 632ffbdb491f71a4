package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/glossary/internal/config"
	"github.com/and161185/glossary/internal/errs"
	"github.com/and161185/glossary/internal/model"
)

// GlossaryRepo implements GlossaryRepository using PostgreSQL.
type GlossaryRepo struct {
	db *DB
	st config.Statements
}

// NewGlossaryRepo constructs a glossary repository executing st.
func NewGlossaryRepo(db *DB, st config.Statements) *GlossaryRepo {
	return &GlossaryRepo{db: db, st: st}
}

// Lookup returns definitions of every term containing term, in store order.
func (r *GlossaryRepo) Lookup(ctx context.Context, term string) ([]model.DefinitionRow, error) {
	rows, err := r.db.Pool.Query(ctx, r.st.LookupDefinitions, "%"+term+"%")
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []model.DefinitionRow
	for rows.Next() {
		var d model.DefinitionRow
		if err = rows.Scan(&d.ID, &d.Definition, &d.TermID); err != nil {
			return nil, translate(err)
		}
		out = append(out, d)
	}
	return out, translate(rows.Err())
}

// Insert attaches defs to term, creating the term row when it does not exist yet.
func (r *GlossaryRepo) Insert(ctx context.Context, term string, defs []string) (termID int64, defIDs []int64, err error) {
	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		scanErr := tx.QueryRow(ctx, r.st.LookupTerm, term).Scan(&termID)
		switch {
		case scanErr == nil:
		case errors.Is(scanErr, pgx.ErrNoRows):
			if err := tx.QueryRow(ctx, r.st.InsertTerm, term).Scan(&termID); err != nil {
				return fmt.Errorf("insert term: %w", err)
			}
		default:
			return fmt.Errorf("lookup term: %w", scanErr)
		}

		defIDs = make([]int64, 0, len(defs))
		for i, d := range defs {
			var id int64
			if err := tx.QueryRow(ctx, r.st.InsertDefinition, d, termID).Scan(&id); err != nil {
				return fmt.Errorf("definition[%d]: %w", i, err)
			}
			defIDs = append(defIDs, id)
		}
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return termID, defIDs, nil
}

// UpdateDefinitions rewrites every edit or none of them.
func (r *GlossaryRepo) UpdateDefinitions(ctx context.Context, edits []model.DefinitionEdit) error {
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		for _, e := range edits {
			tag, err := tx.Exec(ctx, r.st.UpdateDefinition, e.Definition, e.ID)
			if err != nil {
				return fmt.Errorf("definition %d: %w", e.ID, err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("definition %d: %w", e.ID, errs.ErrNotFound)
			}
		}
		return nil
	})
}

// DeleteDefinitions removes the given definitions in one transaction.
func (r *GlossaryRepo) DeleteDefinitions(ctx context.Context, ids []int64) error {
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		return r.deleteDefinitions(ctx, tx, ids)
	})
}

// PruneTerm removes termID once nothing references it.
func (r *GlossaryRepo) PruneTerm(ctx context.Context, termID int64) (pruned bool, err error) {
	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		pruned, err = r.pruneTerm(ctx, tx, termID)
		return err
	})
	return pruned, err
}

// DeleteAndPrune deletes ids and prunes termID as a single atomic unit.
func (r *GlossaryRepo) DeleteAndPrune(ctx context.Context, termID int64, ids []int64) (pruned bool, err error) {
	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		if err := r.deleteDefinitions(ctx, tx, ids); err != nil {
			return err
		}
		pruned, err = r.pruneTerm(ctx, tx, termID)
		return err
	})
	return pruned, err
}

// Ping checks store connectivity.
func (r *GlossaryRepo) Ping(ctx context.Context) error { return translate(r.db.Pool.Ping(ctx)) }

// Close closes the pool.
func (r *GlossaryRepo) Close() { r.db.Close() }

func (r *GlossaryRepo) deleteDefinitions(ctx context.Context, q querier, ids []int64) error {
	for _, id := range ids {
		if _, err := q.Exec(ctx, r.st.DeleteDefinition, id); err != nil {
			return fmt.Errorf("definition %d: %w", id, err)
		}
	}
	return nil
}

func (r *GlossaryRepo) pruneTerm(ctx context.Context, q querier, termID int64) (bool, error) {
	var n int64
	if err := q.QueryRow(ctx, r.st.CountDefinitions, termID).Scan(&n); err != nil {
		return false, fmt.Errorf("count definitions of term %d: %w", termID, err)
	}
	if n > 0 {
		return false, nil
	}
	tag, err := q.Exec(ctx, r.st.DeleteTerm, termID)
	if err != nil {
		return false, fmt.Errorf("term %d: %w", termID, err)
	}
	return tag.RowsAffected() > 0, nil
}
