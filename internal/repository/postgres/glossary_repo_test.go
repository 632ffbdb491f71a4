package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/glossary/internal/config"
	"github.com/and161185/glossary/internal/errs"
	"github.com/and161185/glossary/internal/model"
)

var st = config.PostgresStatements

func q(sql string) string { return regexp.QuoteMeta(sql) }

func ptr(s string) *string { return &s }

func newRepo(t *testing.T) (*GlossaryRepo, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return NewGlossaryRepo(&DB{Pool: mock}, st), mock
}

func TestGlossaryRepo_Lookup_OK(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	mock.ExpectQuery(q(st.LookupDefinitions)).
		WithArgs("%cache%").
		WillReturnRows(pgxmock.NewRows([]string{"id", "definition", "term_id"}).
			AddRow(int64(7), ptr("a stored copy"), int64(3)).
			AddRow(int64(9), ptr("hidden storage"), int64(3)))

	rows, err := r.Lookup(context.Background(), "cache")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, int64(7), rows[0].ID)
	require.Equal(t, "a stored copy", *rows[0].Definition)
	require.Equal(t, int64(3), rows[1].TermID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGlossaryRepo_Lookup_NoRows(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	mock.ExpectQuery(q(st.LookupDefinitions)).
		WithArgs("%xyz%").
		WillReturnRows(pgxmock.NewRows([]string{"id", "definition", "term_id"}))

	rows, err := r.Lookup(context.Background(), "xyz")
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestGlossaryRepo_Lookup_QueryErr(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	mock.ExpectQuery(q(st.LookupDefinitions)).
		WithArgs("%x%").
		WillReturnError(errors.New("q-fail"))

	_, err := r.Lookup(context.Background(), "x")
	require.Error(t, err)
}

func TestGlossaryRepo_Lookup_RowErr(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"id", "definition", "term_id"}).
		AddRow(int64(1), ptr("a"), int64(1)).
		RowError(0, errors.New("row0"))
	mock.ExpectQuery(q(st.LookupDefinitions)).WithArgs("%a%").WillReturnRows(rows)

	_, err := r.Lookup(context.Background(), "a")
	require.Error(t, err)
}

func TestGlossaryRepo_Insert_NewTerm(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(q(st.LookupTerm)).WithArgs("cache").WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(q(st.InsertTerm)).WithArgs("cache").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectQuery(q(st.InsertDefinition)).WithArgs("a stored copy", int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectCommit()

	termID, defIDs, err := r.Insert(context.Background(), "cache", []string{"a stored copy"})
	require.NoError(t, err)
	require.Equal(t, int64(3), termID)
	require.Equal(t, []int64{7}, defIDs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGlossaryRepo_Insert_ExistingTermIsReused(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(q(st.LookupTerm)).WithArgs("cache").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectQuery(q(st.InsertDefinition)).WithArgs("one", int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(8)))
	mock.ExpectQuery(q(st.InsertDefinition)).WithArgs("two", int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(9)))
	mock.ExpectCommit()

	termID, defIDs, err := r.Insert(context.Background(), "cache", []string{"one", "two"})
	require.NoError(t, err)
	require.Equal(t, int64(3), termID)
	require.Equal(t, []int64{8, 9}, defIDs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGlossaryRepo_Insert_DefinitionErrRollsBack(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(q(st.LookupTerm)).WithArgs("cache").WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(q(st.InsertTerm)).WithArgs("cache").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectQuery(q(st.InsertDefinition)).WithArgs("a", int64(3)).
		WillReturnError(errors.New("insert-fail"))
	mock.ExpectRollback()

	termID, defIDs, err := r.Insert(context.Background(), "cache", []string{"a"})
	require.Error(t, err)
	require.Zero(t, termID)
	require.Nil(t, defIDs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGlossaryRepo_Insert_UniqueViolationIsConflict(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(q(st.LookupTerm)).WithArgs("cache").WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(q(st.InsertTerm)).WithArgs("cache").
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key"})
	mock.ExpectRollback()

	_, _, err := r.Insert(context.Background(), "cache", []string{"a"})
	require.ErrorIs(t, err, errs.ErrConflict)
}

func TestGlossaryRepo_Insert_LookupTermOtherErr(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(q(st.LookupTerm)).WithArgs("cache").
		WillReturnError(&pgconn.PgError{Code: "08006", Message: "connection failure"})
	mock.ExpectRollback()

	_, _, err := r.Insert(context.Background(), "cache", []string{"a"})
	require.ErrorIs(t, err, errs.ErrTransient)
}

func TestGlossaryRepo_Insert_TxBeginErr(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	mock.ExpectBegin().WillReturnError(errors.New("boom"))
	_, _, err := r.Insert(context.Background(), "cache", []string{"a"})
	require.Error(t, err)
}

func TestGlossaryRepo_UpdateDefinitions_OK(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(q(st.UpdateDefinition)).WithArgs("new a", int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(q(st.UpdateDefinition)).WithArgs("new b", int64(8)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := r.UpdateDefinitions(context.Background(), []model.DefinitionEdit{
		{ID: 7, Definition: "new a"},
		{ID: 8, Definition: "new b"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGlossaryRepo_UpdateDefinitions_MissingRowRollsBack(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(q(st.UpdateDefinition)).WithArgs("new a", int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(q(st.UpdateDefinition)).WithArgs("new b", int64(99)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := r.UpdateDefinitions(context.Background(), []model.DefinitionEdit{
		{ID: 7, Definition: "new a"},
		{ID: 99, Definition: "new b"},
	})
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGlossaryRepo_UpdateDefinitions_CommitErr(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(q(st.UpdateDefinition)).WithArgs("x", int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit().WillReturnError(errors.New("commit-fail"))

	err := r.UpdateDefinitions(context.Background(), []model.DefinitionEdit{{ID: 1, Definition: "x"}})
	require.Error(t, err)
}

func TestGlossaryRepo_DeleteDefinitions_IgnoresMissing(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(q(st.DeleteDefinition)).WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(q(st.DeleteDefinition)).WithArgs(int64(8)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCommit()

	require.NoError(t, r.DeleteDefinitions(context.Background(), []int64{7, 8}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGlossaryRepo_DeleteDefinitions_ExecErr(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(q(st.DeleteDefinition)).WithArgs(int64(7)).
		WillReturnError(errors.New("del-fail"))
	mock.ExpectRollback()

	require.Error(t, r.DeleteDefinitions(context.Background(), []int64{7}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGlossaryRepo_PruneTerm_LastDefinitionGone(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(q(st.CountDefinitions)).WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(0)))
	mock.ExpectExec(q(st.DeleteTerm)).WithArgs(int64(3)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	pruned, err := r.PruneTerm(context.Background(), 3)
	require.NoError(t, err)
	require.True(t, pruned)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGlossaryRepo_PruneTerm_DefinitionsRemain(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(q(st.CountDefinitions)).WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(2)))
	mock.ExpectCommit()

	pruned, err := r.PruneTerm(context.Background(), 3)
	require.NoError(t, err)
	require.False(t, pruned)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGlossaryRepo_DeleteAndPrune_SingleTransaction(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(q(st.DeleteDefinition)).WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectQuery(q(st.CountDefinitions)).WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(0)))
	mock.ExpectExec(q(st.DeleteTerm)).WithArgs(int64(3)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	pruned, err := r.DeleteAndPrune(context.Background(), 3, []int64{7})
	require.NoError(t, err)
	require.True(t, pruned)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGlossaryRepo_DeleteAndPrune_CountErrRollsBackDeletes(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(q(st.DeleteDefinition)).WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectQuery(q(st.CountDefinitions)).WithArgs(int64(3)).
		WillReturnError(errors.New("count-fail"))
	mock.ExpectRollback()

	_, err := r.DeleteAndPrune(context.Background(), 3, []int64{7})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGlossaryRepo_Ping(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	r := NewGlossaryRepo(&DB{Pool: mock}, st)

	mock.ExpectPing()
	require.NoError(t, r.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(&pgconn.PgError{Code: "08001"})
	require.ErrorIs(t, r.Ping(context.Background()), errs.ErrTransient)
}

func TestTranslate(t *testing.T) {
	require.Nil(t, translate(nil))
	require.ErrorIs(t, translate(&pgconn.PgError{Code: "23505"}), errs.ErrConflict)
	require.ErrorIs(t, translate(&pgconn.PgError{Code: "40001"}), errs.ErrTransient)
	require.ErrorIs(t, translate(&pgconn.PgError{Code: "40P01"}), errs.ErrTransient)

	other := &pgconn.PgError{Code: "42601"}
	got := translate(other)
	require.Equal(t, errs.ClassOther, errs.Classify(got))
	require.ErrorIs(t, translate(errs.ErrNotFound), errs.ErrNotFound)
}
