// Package sqlite contains an embedded SQLite implementation of repository
// interfaces, used for single-host deployments and end-to-end tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/and161185/glossary/internal/config"
	"github.com/and161185/glossary/internal/errs"
	"github.com/and161185/glossary/internal/model"
)

// Open opens the database at dsn with at most maxConns connections and checks it.
func Open(ctx context.Context, dsn string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, translate(err)
	}
	return db, nil
}

// GlossaryRepo implements GlossaryRepository on database/sql.
type GlossaryRepo struct {
	db *sql.DB
	st config.Statements
}

// NewGlossaryRepo constructs a glossary repository executing st.
func NewGlossaryRepo(db *sql.DB, st config.Statements) *GlossaryRepo {
	return &GlossaryRepo{db: db, st: st}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *GlossaryRepo) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return translate(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			err = translate(err)
			return
		}
		if e := tx.Commit(); e != nil {
			err = translate(e)
		}
	}()
	return fn(tx)
}

// Lookup returns definitions of every term containing term.
func (r *GlossaryRepo) Lookup(ctx context.Context, term string) ([]model.DefinitionRow, error) {
	rows, err := r.db.QueryContext(ctx, r.st.LookupDefinitions, "%"+term+"%")
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []model.DefinitionRow
	for rows.Next() {
		var (
			d   model.DefinitionRow
			def sql.NullString
		)
		if err := rows.Scan(&d.ID, &def, &d.TermID); err != nil {
			return nil, translate(err)
		}
		if def.Valid {
			d.Definition = &def.String
		}
		out = append(out, d)
	}
	return out, translate(rows.Err())
}

// Insert attaches defs to term, creating the term row when it does not exist yet.
func (r *GlossaryRepo) Insert(ctx context.Context, term string, defs []string) (int64, []int64, error) {
	var (
		termID int64
		defIDs []int64
	)
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		scanErr := tx.QueryRowContext(ctx, r.st.LookupTerm, term).Scan(&termID)
		switch {
		case scanErr == nil:
		case errors.Is(scanErr, sql.ErrNoRows):
			if err := tx.QueryRowContext(ctx, r.st.InsertTerm, term).Scan(&termID); err != nil {
				return fmt.Errorf("insert term: %w", err)
			}
		default:
			return fmt.Errorf("lookup term: %w", scanErr)
		}

		defIDs = make([]int64, 0, len(defs))
		for i, d := range defs {
			var id int64
			if err := tx.QueryRowContext(ctx, r.st.InsertDefinition, d, termID).Scan(&id); err != nil {
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
	return r.inTx(ctx, func(tx *sql.Tx) error {
		for _, e := range edits {
			res, err := tx.ExecContext(ctx, r.st.UpdateDefinition, e.Definition, e.ID)
			if err != nil {
				return fmt.Errorf("definition %d: %w", e.ID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("definition %d: %w", e.ID, errs.ErrNotFound)
			}
		}
		return nil
	})
}

// DeleteDefinitions removes the given definitions in one transaction.
func (r *GlossaryRepo) DeleteDefinitions(ctx context.Context, ids []int64) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		return r.deleteDefinitions(ctx, tx, ids)
	})
}

// PruneTerm removes termID once nothing references it.
func (r *GlossaryRepo) PruneTerm(ctx context.Context, termID int64) (bool, error) {
	var pruned bool
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		pruned, err = r.pruneTerm(ctx, tx, termID)
		return err
	})
	return pruned, err
}

// DeleteAndPrune deletes ids and prunes termID as a single atomic unit.
func (r *GlossaryRepo) DeleteAndPrune(ctx context.Context, termID int64, ids []int64) (bool, error) {
	var pruned bool
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if err := r.deleteDefinitions(ctx, tx, ids); err != nil {
			return err
		}
		var err error
		pruned, err = r.pruneTerm(ctx, tx, termID)
		return err
	})
	return pruned, err
}

// Ping checks store connectivity.
func (r *GlossaryRepo) Ping(ctx context.Context) error { return translate(r.db.PingContext(ctx)) }

// Close closes the database handle.
func (r *GlossaryRepo) Close() { _ = r.db.Close() }

func (r *GlossaryRepo) deleteDefinitions(ctx context.Context, q querier, ids []int64) error {
	for _, id := range ids {
		if _, err := q.ExecContext(ctx, r.st.DeleteDefinition, id); err != nil {
			return fmt.Errorf("definition %d: %w", id, err)
		}
	}
	return nil
}

func (r *GlossaryRepo) pruneTerm(ctx context.Context, q querier, termID int64) (bool, error) {
	var n int64
	if err := q.QueryRowContext(ctx, r.st.CountDefinitions, termID).Scan(&n); err != nil {
		return false, fmt.Errorf("count definitions of term %d: %w", termID, err)
	}
	if n > 0 {
		return false, nil
	}
	res, err := q.ExecContext(ctx, r.st.DeleteTerm, termID)
	if err != nil {
		return false, fmt.Errorf("term %d: %w", termID, err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return deleted > 0, nil
}

// translate maps driver errors onto errs sentinels, keeping the cause.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var se *sqlitedrv.Error
	if !errors.As(err, &se) {
		return err
	}
	switch code := se.Code(); {
	case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return fmt.Errorf("%w: %w", errs.ErrConflict, err)
	case code&0xff == sqlite3.SQLITE_BUSY, code&0xff == sqlite3.SQLITE_LOCKED:
		return fmt.Errorf("%w: %w", errs.ErrTransient, err)
	default:
		return err
	}
}
