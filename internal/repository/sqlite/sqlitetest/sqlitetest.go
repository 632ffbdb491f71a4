// Package sqlitetest provides a migrated throwaway SQLite glossary for tests.
package sqlitetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/and161185/glossary/internal/config"
	"github.com/and161185/glossary/internal/migrate"
	"github.com/and161185/glossary/internal/repository/sqlite"
)

// DSN returns a file DSN inside dir with foreign keys enforced.
func DSN(dir string) string {
	return "file:" + filepath.Join(dir, "glossary.db") + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// New returns a repository over a fresh, fully migrated database that is
// closed when the test ends.
func New(t testing.TB) *sqlite.GlossaryRepo {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.Open(ctx, DSN(t.TempDir()), 4)
	require.NoError(t, err)
	require.NoError(t, migrate.UpDB(ctx, config.DriverSQLite, db))

	r := sqlite.NewGlossaryRepo(db, config.SQLiteStatements)
	t.Cleanup(r.Close)
	return r
}
