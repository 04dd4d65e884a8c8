// ABOUTME: Manual sync trigger: queue jobs for an actor's own user and drain them
// ABOUTME: Runs the opportunities pipeline filtered by staff id without touching watermarks
package sync

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/harperreed/crmsync/models"
)

// Manual result statuses.
const (
	ManualQueued  = "queued"
	ManualPending = "pending"
	ManualError   = "error"
)

const jobTargetUser = "User"

// ManualResult reports what happened to one manual sync target.
type ManualResult struct {
	Account string `json:"account"`
	Status  string `json:"status"`
	JobID   string `json:"job_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// QueueManualSync enqueues a job for every local user matching the actor's
// legacy staff id. A target that already has a pending job reports it instead
// of queueing a second one.
func (e *Engine) QueueManualSync(ctx context.Context, actor models.Actor) ([]ManualResult, error) {
	if e.journal == nil {
		return nil, fmt.Errorf("manual sync needs a job journal")
	}
	if actor.LegacyStaffID == "" {
		return nil, &Error{Kind: ErrPermissionDenied, Err: fmt.Errorf("actor %s has no legacy staff id", actor.ID)}
	}
	users, err := e.store.Find(ctx, models.KindUser, models.Criterion{Field: models.FieldLegacyStaffID, Value: actor.LegacyStaffID})
	if err != nil {
		return nil, err
	}

	results := make([]ManualResult, 0, len(users))
	for _, u := range users {
		job, created, err := e.journal.EnqueueJob(ctx, jobTargetUser, u.ID)
		if err != nil {
			if IsFatal(err) {
				return results, err
			}
			results = append(results, ManualResult{Account: u.Name, Status: ManualError, Error: err.Error()})
			continue
		}
		status := ManualPending
		if created {
			status = ManualQueued
		}
		results = append(results, ManualResult{Account: u.Name, Status: status, JobID: job.ID})
	}
	e.logger.WithFields(log.Fields{"actor": actor.ID, "targets": len(results)}).Info("manual sync queued")
	return results, nil
}

// ProcessJobs runs every pending manual job and returns how many it finished.
func (e *Engine) ProcessJobs(ctx context.Context) (int, error) {
	if e.journal == nil {
		return 0, nil
	}
	jobs, err := e.journal.PendingJobs(ctx)
	if err != nil {
		return 0, err
	}
	done := 0
	for _, job := range jobs {
		entry := e.logger.WithFields(log.Fields{"job_id": job.ID, "target": job.TargetID})
		status, msg, err := e.runJob(ctx, job)
		if err != nil && IsFatal(err) {
			return done, err
		}
		if err := e.journal.FinishJob(ctx, job.ID, status, msg); err != nil {
			if IsFatal(err) {
				return done, err
			}
			entry.WithError(err).Warn("could not finish job")
			continue
		}
		entry.WithField("status", status).Info("manual job finished")
		done++
	}
	return done, nil
}

func (e *Engine) runJob(ctx context.Context, job *models.Job) (string, string, error) {
	if job.TargetType != jobTargetUser {
		return models.JobError, "unsupported target type " + job.TargetType, nil
	}
	user, err := e.store.Get(ctx, job.TargetID)
	if err != nil {
		return models.JobError, err.Error(), err
	}
	staffID := user.Get(models.FieldLegacyStaffID)
	if staffID == "" {
		return models.JobError, "user has no legacy staff id", nil
	}
	tally, err := e.manualSync(ctx, staffID)
	if err != nil {
		return models.JobError, err.Error(), err
	}
	return models.JobDone, fmt.Sprintf("%d synced, %d errors, %d deferred", tally.Succeeded, tally.Failed, tally.Deferred), nil
}

// RunManualSync synchronises the actor's own opportunities immediately.
func (e *Engine) RunManualSync(ctx context.Context, actor models.Actor) (*models.Tally, error) {
	if actor.LegacyStaffID == "" {
		return nil, &Error{Kind: ErrPermissionDenied, Err: fmt.Errorf("actor %s has no legacy staff id", actor.ID)}
	}
	return e.manualSync(ctx, actor.LegacyStaffID)
}

func (e *Engine) manualSync(ctx context.Context, staffID string) (*models.Tally, error) {
	defer e.setPhase(PhaseIdle, "")
	logger := e.logger.WithField("staff_id", staffID)
	p := passesFor(CategoryOpportunities)[0]

	e.setPhase(PhaseFetching, p.category)
	batch, err := e.source.Fetch(ctx, p.category, nil)
	if err != nil {
		return nil, err
	}
	own := &Batch{Category: p.category}
	for _, rec := range batch.Records {
		if rec.Get("staffId") == staffID {
			own.Records = append(own.Records, rec)
		}
	}

	st := &categoryState{tally: models.NewTally(), batch: own}
	if err := e.runPass(ctx, logger, p, st, false); err != nil {
		return st.tally, err
	}
	return st.tally, nil
}
