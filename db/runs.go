// ABOUTME: Run history persistence for sync runs
// ABOUTME: Records start, totals and fatal errors of each run under a ULID
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/harperreed/crmsync/models"
)

// StartRun inserts a run row and returns it with a fresh ULID.
func (s *Store) StartRun(ctx context.Context, trigger string, startedAt time.Time) (*models.Run, error) {
	run := &models.Run{
		ID:        ulid.Make().String(),
		Trigger:   trigger,
		StartedAt: startedAt.UTC().Truncate(time.Microsecond),
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO sync_runs (id, trigger_name, started_at) VALUES (?, ?, ?)
	`), run.ID, run.Trigger, run.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to start run: %w", classify(err))
	}
	return run, nil
}

// FinishRun stores the totals and completion time of a run.
func (s *Store) FinishRun(ctx context.Context, run *models.Run) error {
	finished := time.Now().UTC().Truncate(time.Microsecond)
	if run.FinishedAt != nil {
		finished = run.FinishedAt.UTC().Truncate(time.Microsecond)
	}
	var errMsg sql.NullString
	if run.Error != "" {
		errMsg = sql.NullString{String: run.Error, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE sync_runs
		SET finished_at = ?, succeeded = ?, failed = ?, deferred = ?, error_message = ?
		WHERE id = ?
	`), finished, run.Succeeded, run.Failed, run.Deferred, errMsg, run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", classify(err))
	}
	run.FinishedAt = &finished
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*models.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, trigger_name, started_at, finished_at, succeeded, failed, deferred, error_message
		FROM sync_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", classify(err))
	}
	defer func() { _ = rows.Close() }()

	runs := make([]*models.Run, 0)
	for rows.Next() {
		var r models.Run
		var finished sql.NullTime
		var errMsg sql.NullString
		if err := rows.Scan(&r.ID, &r.Trigger, &r.StartedAt, &finished, &r.Succeeded, &r.Failed, &r.Deferred, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", classify(err))
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		r.Error = errMsg.String
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return runs, nil
}

// LastRun returns the most recent run, or nil when none exists.
func (s *Store) LastRun(ctx context.Context) (*models.Run, error) {
	runs, err := s.ListRuns(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return runs[0], nil
}
