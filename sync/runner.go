// ABOUTME: Single-flight guard shared by every trigger of the engine
// ABOUTME: Daemon ticks, admin pulls, manual syncs, TUI and MCP calls are rejected while one runs

package sync

import (
	"context"
	gosync "sync"

	"github.com/harperreed/crmsync/models"
)

// Runner serialises engine runs. A busy runner fails fast with ErrBusy
// instead of queueing a second run.
type Runner struct {
	engine *Engine
	mu     gosync.Mutex
}

func NewRunner(engine *Engine) *Runner {
	return &Runner{engine: engine}
}

// Engine exposes the wrapped engine for read-only calls such as Status.
func (r *Runner) Engine() *Engine {
	return r.engine
}

func (r *Runner) acquire() error {
	if !r.mu.TryLock() {
		return ErrBusy
	}
	return nil
}

// Busy reports whether a run is in progress.
func (r *Runner) Busy() bool {
	if r.mu.TryLock() {
		r.mu.Unlock()
		return false
	}
	return true
}

// RunAll runs every category.
func (r *Runner) RunAll(ctx context.Context, trigger string) (*models.Report, error) {
	if err := r.acquire(); err != nil {
		return nil, err
	}
	defer r.mu.Unlock()
	return r.engine.Run(ctx, trigger)
}

// Pull runs one category.
func (r *Runner) Pull(ctx context.Context, category string) (*models.CategoryResult, error) {
	if err := r.acquire(); err != nil {
		return nil, err
	}
	defer r.mu.Unlock()
	return r.engine.PullCategory(ctx, category)
}

// Apply ingests pushed records for a category.
func (r *Runner) Apply(ctx context.Context, category string, items []interface{}) (*models.Tally, error) {
	if err := r.acquire(); err != nil {
		return nil, err
	}
	defer r.mu.Unlock()
	return r.engine.Apply(ctx, category, items)
}

// QueueManual enqueues manual jobs. Queueing does not need the run lock.
func (r *Runner) QueueManual(ctx context.Context, actor models.Actor) ([]ManualResult, error) {
	return r.engine.QueueManualSync(ctx, actor)
}

// ProcessJobs drains the manual job queue.
func (r *Runner) ProcessJobs(ctx context.Context) (int, error) {
	if err := r.acquire(); err != nil {
		return 0, err
	}
	defer r.mu.Unlock()
	return r.engine.ProcessJobs(ctx)
}

// RunManual syncs the actor's own records right away.
func (r *Runner) RunManual(ctx context.Context, actor models.Actor) (*models.Tally, error) {
	if err := r.acquire(); err != nil {
		return nil, err
	}
	defer r.mu.Unlock()
	return r.engine.RunManualSync(ctx, actor)
}

// Export returns opportunity updates for the legacy system, advancing the
// export watermark only once deliver succeeds.
func (r *Runner) Export(ctx context.Context, deliver DeliverFunc) ([]OpportunityUpdate, error) {
	if err := r.acquire(); err != nil {
		return nil, err
	}
	defer r.mu.Unlock()
	return r.engine.ExportOpportunityUpdates(ctx, deliver)
}

// Status never waits for the lock.
func (r *Runner) Status(ctx context.Context) (*Status, error) {
	return r.engine.Status(ctx)
}
