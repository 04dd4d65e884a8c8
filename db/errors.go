// ABOUTME: Store error sentinels and driver error classification
// ABOUTME: Separates run-fatal store faults from per-record validation failures
package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var (
	ErrEntityNotFound = errors.New("entity not found")
	ErrInvalidEntity  = errors.New("invalid entity")
	ErrInvalidLink    = errors.New("invalid link")
	ErrJobNotFound    = errors.New("job not found")

	// ErrStoreUnavailable marks a fault in the store connection itself.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// classify wraps driver errors so callers can tell a broken store from a
// rejected write. Unknown errors pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrInvalidEntity) ||
		errors.Is(err, ErrInvalidLink) || errors.Is(err, ErrEntityNotFound) {
		return err
	}
	if IsUnavailable(err) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrConstraint, sqlite3.ErrMismatch, sqlite3.ErrTooBig, sqlite3.ErrRange:
			return fmt.Errorf("%w: %v", ErrInvalidEntity, err)
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "22", "23":
			return fmt.Errorf("%w: %v", ErrInvalidEntity, err)
		}
	}

	return err
}

// IsUnavailable reports whether err means the store cannot serve requests.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrStoreUnavailable) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if strings.Contains(err.Error(), "database is closed") {
		return true
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrCantOpen, sqlite3.ErrIoErr, sqlite3.ErrNotADB, sqlite3.ErrCorrupt,
			sqlite3.ErrFull, sqlite3.ErrReadonly:
			return true
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "53", "57", "58":
			return true
		}
	}

	return false
}
