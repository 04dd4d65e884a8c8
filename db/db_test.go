package db

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	database, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// Every pooled connection to :memory: would get its own database.
	database.SetMaxOpenConns(1)
	require.NoError(t, InitSchema(database))
	t.Cleanup(func() { _ = database.Close() })
	return NewStore(database, DialectSQLite)
}

func TestOpenDatabase(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "crmsync.db")

	db, err := OpenDatabase(dbPath)
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(dbPath)
	require.NoError(t, err, "database file should exist")

	for _, table := range []string{"entities", "links", "sync_state", "sync_runs", "sync_jobs"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestOpenDatabaseInvalidPath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0600))

	_, err := OpenDatabase(filepath.Join(blocker, "sub", "test.db"))
	assert.Error(t, err)
}

func TestOpenDatabaseTwice(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := OpenDatabase(dbPath)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = OpenDatabase(dbPath)
	require.NoError(t, err, "schema init must tolerate existing tables")
	defer db.Close()
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("oracle", "whatever")
	assert.Error(t, err)
}

func TestOpenSQLiteStore(t *testing.T) {
	store, err := Open("sqlite3", filepath.Join(t.TempDir(), "s.db"))
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, DialectSQLite, store.Dialect())
}

func TestRebind(t *testing.T) {
	pg := NewStore(nil, DialectPostgres)
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	lite := NewStore(nil, DialectSQLite)
	assert.Equal(t, "x = ?", lite.rebind("x = ?"))
}

func TestFieldExpr(t *testing.T) {
	lite := NewStore(nil, DialectSQLite)
	expr, err := lite.fieldExpr("legacyCompanyId")
	require.NoError(t, err)
	assert.Equal(t, "json_extract(fields, '$.legacyCompanyId')", expr)

	pg := NewStore(nil, DialectPostgres)
	expr, err = pg.fieldExpr("legacyCompanyId")
	require.NoError(t, err)
	assert.Equal(t, "(fields::jsonb ->> 'legacyCompanyId')", expr)

	expr, err = pg.fieldExpr("name")
	require.NoError(t, err)
	assert.Equal(t, "name", expr)

	_, err = lite.fieldExpr("x'); DROP TABLE entities; --")
	assert.ErrorIs(t, err, ErrInvalidEntity)
}
