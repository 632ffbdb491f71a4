// Package config holds backend runtime configuration and the SQL statements
// the repositories execute.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config captures backend runtime configuration.
type Config struct {
	Addr           string
	AdminAddr      string
	Driver         string
	DSN            string
	StatementsFile string
	MaxConns       int
	MaxHandlers    int           // 0 = unbounded
	IOTimeout      time.Duration // 0 = none
	AtomicDelete   bool
	Migrate        bool
	Dev            bool

	Statements Statements
}

// Statements is one parameterized SQL text per store operation. The engine
// treats them as opaque; only the positional parameters are fixed:
//
//	lookup-definitions          $1 pattern            -> id, definition, term_id
//	lookup-term                 $1 term               -> id
//	insert-term                 $1 term               -> id
//	insert-definition           $1 definition, $2 term_id -> id
//	update-definition           $1 definition, $2 id
//	delete-definition           $1 id
//	delete-term                 $1 id
//	count-definitions-for-term  $1 term_id            -> count
type Statements struct {
	LookupDefinitions string `yaml:"lookup-definitions"`
	LookupTerm        string `yaml:"lookup-term"`
	InsertTerm        string `yaml:"insert-term"`
	InsertDefinition  string `yaml:"insert-definition"`
	UpdateDefinition  string `yaml:"update-definition"`
	DeleteDefinition  string `yaml:"delete-definition"`
	DeleteTerm        string `yaml:"delete-term"`
	CountDefinitions  string `yaml:"count-definitions-for-term"`
}

// PostgresStatements are the statements used when no file overrides them.
var PostgresStatements = Statements{
	LookupDefinitions: `SELECT d.id, d.definition, d.term_id FROM definitions d JOIN terms t ON t.id = d.term_id WHERE t.term LIKE $1 ORDER BY d.id`,
	LookupTerm:        `SELECT id FROM terms WHERE term = $1`,
	InsertTerm:        `INSERT INTO terms (term) VALUES ($1) RETURNING id`,
	InsertDefinition:  `INSERT INTO definitions (definition, term_id) VALUES ($1, $2) RETURNING id`,
	UpdateDefinition:  `UPDATE definitions SET definition = $1 WHERE id = $2`,
	DeleteDefinition:  `DELETE FROM definitions WHERE id = $1`,
	DeleteTerm:        `DELETE FROM terms WHERE id = $1`,
	CountDefinitions:  `SELECT COUNT(*) FROM definitions WHERE term_id = $1`,
}

// SQLiteStatements mirror PostgresStatements using SQLite numbered parameters.
var SQLiteStatements = Statements{
	LookupDefinitions: `SELECT d.id, d.definition, d.term_id FROM definitions d JOIN terms t ON t.id = d.term_id WHERE t.term LIKE ?1 ORDER BY d.id`,
	LookupTerm:        `SELECT id FROM terms WHERE term = ?1`,
	InsertTerm:        `INSERT INTO terms (term) VALUES (?1) RETURNING id`,
	InsertDefinition:  `INSERT INTO definitions (definition, term_id) VALUES (?1, ?2) RETURNING id`,
	UpdateDefinition:  `UPDATE definitions SET definition = ?1 WHERE id = ?2`,
	DeleteDefinition:  `DELETE FROM definitions WHERE id = ?1`,
	DeleteTerm:        `DELETE FROM terms WHERE id = ?1`,
	CountDefinitions:  `SELECT COUNT(*) FROM definitions WHERE term_id = ?1`,
}

// DefaultStatements returns the built-in statements for driver.
func DefaultStatements(driver string) Statements {
	if driver == DriverSQLite {
		return SQLiteStatements
	}
	return PostgresStatements
}

// Merge returns s with every non-empty field of o applied on top.
func (s Statements) Merge(o Statements) Statements {
	pick := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	pick(&s.LookupDefinitions, o.LookupDefinitions)
	pick(&s.LookupTerm, o.LookupTerm)
	pick(&s.InsertTerm, o.InsertTerm)
	pick(&s.InsertDefinition, o.InsertDefinition)
	pick(&s.UpdateDefinition, o.UpdateDefinition)
	pick(&s.DeleteDefinition, o.DeleteDefinition)
	pick(&s.DeleteTerm, o.DeleteTerm)
	pick(&s.CountDefinitions, o.CountDefinitions)
	return s
}

// Validate reports the first empty statement.
func (s Statements) Validate() error {
	for _, st := range []struct{ name, text string }{
		{"lookup-definitions", s.LookupDefinitions},
		{"lookup-term", s.LookupTerm},
		{"insert-term", s.InsertTerm},
		{"insert-definition", s.InsertDefinition},
		{"update-definition", s.UpdateDefinition},
		{"delete-definition", s.DeleteDefinition},
		{"delete-term", s.DeleteTerm},
		{"count-definitions-for-term", s.CountDefinitions},
	} {
		if st.text == "" {
			return fmt.Errorf("statement %q is empty", st.name)
		}
	}
	return nil
}

// LoadStatements reads a YAML statements file. Keys that are missing keep
// their zero value so the caller can Merge them over defaults.
func LoadStatements(path string) (Statements, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Statements{}, err
	}
	var st Statements
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&st); err != nil && !errors.Is(err, io.EOF) {
		return Statements{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return st, nil
}

// Validate finalizes and validates the configuration.
func (c *Config) Validate() error {
	if c.Addr == "" {
		c.Addr = ":16105"
	}
	if c.Driver == "" {
		c.Driver = DriverPostgres
	}
	if c.Driver != DriverPostgres && c.Driver != DriverSQLite {
		return fmt.Errorf("unknown driver %q (want %s or %s)", c.Driver, DriverPostgres, DriverSQLite)
	}
	if c.DSN == "" {
		return errors.New("dsn must be set")
	}
	if c.MaxConns <= 0 {
		c.MaxConns = 4
	}
	if c.MaxHandlers < 0 {
		return fmt.Errorf("max-handlers must be >= 0, got %d", c.MaxHandlers)
	}
	if c.IOTimeout < 0 {
		return fmt.Errorf("io-timeout must be >= 0, got %s", c.IOTimeout)
	}

	st := DefaultStatements(c.Driver)
	if c.StatementsFile != "" {
		override, err := LoadStatements(c.StatementsFile)
		if err != nil {
			return err
		}
		st = st.Merge(override)
	}
	c.Statements = st.Merge(c.Statements)
	return c.Statements.Validate()
}
