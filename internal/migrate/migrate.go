// Package migrate applies embedded SQL migrations on startup.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/and161185/glossary/internal/config"
	"github.com/and161185/glossary/migrations"
)

// Up opens dsn with the database/sql driver matching driver and runs all
// pending migrations for it.
func Up(ctx context.Context, driver, dsn string) error {
	sqlDriver := "pgx"
	if driver == config.DriverSQLite {
		sqlDriver = "sqlite"
	}
	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	return UpDB(ctx, driver, db)
}

// UpDB runs all pending migrations for driver on an already open db.
func UpDB(ctx context.Context, driver string, db *sql.DB) error {
	dialect := goose.DialectPostgres
	if driver == config.DriverSQLite {
		dialect = goose.DialectSQLite3
	}
	fsys, err := fs.Sub(migrations.FS, driver)
	if err != nil {
		return err
	}
	p, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	_, err = p.Up(ctx)
	return err
}
