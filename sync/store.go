// ABOUTME: Storage interfaces the sync engine depends on
// ABOUTME: Entity store, watermark store and run/job journal, satisfied by db.Store
package sync

import (
	"context"
	"time"

	"github.com/harperreed/crmsync/models"
)

// Store persists local entities and their links.
type Store interface {
	Find(ctx context.Context, kind models.Kind, criteria ...models.Criterion) ([]*models.Entity, error)
	Get(ctx context.Context, id string) (*models.Entity, error)
	Save(ctx context.Context, e *models.Entity) error
	Relate(ctx context.Context, ownerID, relation, targetID string, many bool) (bool, error)
	Related(ctx context.Context, ownerID, relation string) ([]*models.Entity, error)
	ModifiedSince(ctx context.Context, kind models.Kind, since time.Time) ([]*models.Entity, error)
	CountAll(ctx context.Context) (map[models.Kind]int, error)
}

// WatermarkStore holds one timestamp per category. Absence is reported with ok=false.
type WatermarkStore interface {
	GetWatermark(ctx context.Context, category string) (time.Time, bool, error)
	SetWatermark(ctx context.Context, category string, t time.Time) error
}

// Journal records run history, category status and manual-sync jobs.
type Journal interface {
	SetSyncStatus(ctx context.Context, category, status, errMsg string) error
	StartRun(ctx context.Context, trigger string, startedAt time.Time) (*models.Run, error)
	FinishRun(ctx context.Context, run *models.Run) error
	LastRun(ctx context.Context) (*models.Run, error)
	EnqueueJob(ctx context.Context, targetType, targetID string) (*models.Job, bool, error)
	PendingJobs(ctx context.Context) ([]*models.Job, error)
	FinishJob(ctx context.Context, id, status, message string) error
}
