// ABOUTME: Manual-sync job queue persistence
// ABOUTME: Enqueues one pending job per target and records job completion
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/harperreed/crmsync/models"
)

const jobColumns = `id, target_type, target_id, status, message, created_at, finished_at`

// EnqueueJob queues a job for a target unless one is already pending, in which
// case the pending job is returned with created=false.
func (s *Store) EnqueueJob(ctx context.Context, targetType, targetID string) (*models.Job, bool, error) {
	if targetType == "" || targetID == "" {
		return nil, false, fmt.Errorf("%w: job target is required", ErrInvalidEntity)
	}

	pending, err := s.pendingJob(ctx, targetType, targetID)
	if err != nil {
		return nil, false, err
	}
	if pending != nil {
		return pending, false, nil
	}

	job := &models.Job{
		ID:         ulid.Make().String(),
		TargetType: targetType,
		TargetID:   targetID,
		Status:     models.JobPending,
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO sync_jobs (id, target_type, target_id, status, created_at)
		VALUES (?, ?, ?, ?, ?)
	`), job.ID, job.TargetType, job.TargetID, job.Status, job.CreatedAt)
	if err != nil {
		// Lost a race with another enqueue; the unique index kept one pending row.
		if existing, lookupErr := s.pendingJob(ctx, targetType, targetID); lookupErr == nil && existing != nil {
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("failed to enqueue job: %w", classify(err))
	}
	return job, true, nil
}

// PendingJobs returns queued jobs, oldest first.
func (s *Store) PendingJobs(ctx context.Context) ([]*models.Job, error) {
	return s.queryJobs(ctx, `SELECT `+jobColumns+` FROM sync_jobs WHERE status = ? ORDER BY created_at, id`, models.JobPending)
}

// ListJobs returns the most recent jobs, newest first.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryJobs(ctx, `SELECT `+jobColumns+` FROM sync_jobs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
}

// FinishJob marks a job done or failed.
func (s *Store) FinishJob(ctx context.Context, id, status, message string) error {
	var msg sql.NullString
	if message != "" {
		msg = sql.NullString{String: message, Valid: true}
	}
	result, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE sync_jobs SET status = ?, message = ?, finished_at = ? WHERE id = ?
	`), status, msg, time.Now().UTC().Truncate(time.Microsecond), id)
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", classify(err))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if rows == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *Store) pendingJob(ctx context.Context, targetType, targetID string) (*models.Job, error) {
	jobs, err := s.queryJobs(ctx, `
		SELECT `+jobColumns+` FROM sync_jobs
		WHERE target_type = ? AND target_id = ? AND status = ?
	`, targetType, targetID, models.JobPending)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return jobs[0], nil
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...interface{}) ([]*models.Job, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", classify(err))
	}
	defer func() { _ = rows.Close() }()

	jobs := make([]*models.Job, 0)
	for rows.Next() {
		var j models.Job
		var msg sql.NullString
		var finished sql.NullTime
		if err := rows.Scan(&j.ID, &j.TargetType, &j.TargetID, &j.Status, &msg, &j.CreatedAt, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", classify(err))
		}
		j.Message = msg.String
		if finished.Valid {
			t := finished.Time
			j.FinishedAt = &t
		}
		jobs = append(jobs, &j)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return jobs, nil
}
