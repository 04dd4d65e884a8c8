// ABOUTME: Database operations for the sync_state table
// ABOUTME: Persists per-category watermarks and sync status for the engine
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/harperreed/crmsync/models"
)

// Sync status values.
const (
	StatusIdle    = "idle"
	StatusSyncing = "syncing"
	StatusError   = "error"
)

// GetWatermark returns the stored watermark for a category. ok is false when
// none has been written yet.
func (s *Store) GetWatermark(ctx context.Context, category string) (time.Time, bool, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT last_sync_time FROM sync_state WHERE category = ?
	`), category).Scan(&raw)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get watermark: %w", classify(err))
	}
	if !raw.Valid || raw.String == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse watermark %q: %w", raw.String, err)
	}
	return t, true, nil
}

// SetWatermark stores the watermark for a category and marks it idle.
func (s *Store) SetWatermark(ctx context.Context, category string, t time.Time) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO sync_state (category, last_sync_time, status, error_message, updated_at)
		VALUES (?, ?, 'idle', NULL, ?)
		ON CONFLICT(category) DO UPDATE SET
			last_sync_time = excluded.last_sync_time,
			status = 'idle',
			error_message = NULL,
			updated_at = excluded.updated_at
	`), category, t.UTC().Format(time.RFC3339Nano), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set watermark: %w", classify(err))
	}
	return nil
}

// SetSyncStatus records the status of a category without touching its watermark.
func (s *Store) SetSyncStatus(ctx context.Context, category, status, errMsg string) error {
	var msg sql.NullString
	if errMsg != "" {
		msg = sql.NullString{String: errMsg, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO sync_state (category, status, error_message, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(category) DO UPDATE SET
			status = excluded.status,
			error_message = excluded.error_message,
			updated_at = excluded.updated_at
	`), category, status, msg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update sync status: %w", classify(err))
	}
	return nil
}

// ListWatermarks returns the sync state of every category seen so far.
func (s *Store) ListWatermarks(ctx context.Context) ([]models.Watermark, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, last_sync_time, status, error_message, updated_at
		FROM sync_state
		ORDER BY category
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync states: %w", classify(err))
	}
	defer func() { _ = rows.Close() }()

	var marks []models.Watermark
	for rows.Next() {
		var w models.Watermark
		var last, errMsg sql.NullString
		if err := rows.Scan(&w.Category, &last, &w.Status, &errMsg, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync state: %w", classify(err))
		}
		if last.Valid && last.String != "" {
			if t, err := time.Parse(time.RFC3339Nano, last.String); err == nil {
				w.LastSyncTime = &t
			}
		}
		w.ErrorMessage = errMsg.String
		marks = append(marks, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync states: %w", classify(err))
	}
	return marks, nil
}
