// ABOUTME: Database connection management and the Store handle
// ABOUTME: Opens SQLite (WAL, single connection) or Postgres and rebinds queries per dialect
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect names the SQL flavour behind a Store.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

var fieldKeyPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Store is the local entity store used by the sync engine.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// NewStore wraps an already initialised database.
func NewStore(database *sql.DB, dialect Dialect) *Store {
	return &Store{db: database, dialect: dialect}
}

// Open opens a store for the given driver. For sqlite3 the dsn is a file path.
func Open(driver, dsn string) (*Store, error) {
	switch Dialect(driver) {
	case DialectSQLite, "sqlite", "":
		database, err := OpenDatabase(dsn)
		if err != nil {
			return nil, err
		}
		return NewStore(database, DialectSQLite), nil
	case DialectPostgres:
		database, err := OpenPostgres(dsn)
		if err != nil {
			return nil, err
		}
		return NewStore(database, DialectPostgres), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// OpenDatabase opens a SQLite database file and initialises the schema.
func OpenDatabase(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	// SQLite allows one writer; a single connection avoids "database is locked".
	db.SetMaxOpenConns(1)

	if err := InitSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// OpenPostgres connects to Postgres and initialises the schema.
func OpenPostgres(dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", classify(err))
	}
	if err := InitPostgresSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect reports the SQL flavour.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// rebind converts ? placeholders into $n for Postgres.
func (s *Store) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$")
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// fieldExpr returns the SQL expression selecting one key from the fields JSON.
func (s *Store) fieldExpr(key string) (string, error) {
	if key == "name" {
		return "name", nil
	}
	if !fieldKeyPattern.MatchString(key) {
		return "", fmt.Errorf("%w: bad field key %q", ErrInvalidEntity, key)
	}
	if s.dialect == DialectPostgres {
		return "(fields::jsonb ->> '" + key + "')", nil
	}
	return "json_extract(fields, '$." + key + "')", nil
}
