// ABOUTME: Read-only sync status: current phase, watermarks, entity counts and last run
// ABOUTME: Backs the status command, endpoint, MCP tool and dashboard
package sync

import (
	"context"
	"time"

	"github.com/harperreed/crmsync/models"
)

// Status is a point-in-time view of the sync state.
type Status struct {
	Phase    Phase                 `json:"phase"`
	Category string                `json:"category,omitempty"`
	LastSync map[string]*time.Time `json:"lastSync"`
	Counts   map[models.Kind]int   `json:"counts"`
	LastRun  *models.Run           `json:"lastRun,omitempty"`
}

// Status reads watermarks and counts. It has no side effects.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	phase, category := e.Phase()
	st := &Status{
		Phase:    phase,
		Category: category,
		LastSync: make(map[string]*time.Time, len(Categories)+1),
	}

	for _, c := range append(append([]string{}, Categories...), CategoryOpportunityUpdates) {
		mark, ok, err := e.marks.GetWatermark(ctx, c)
		if err != nil {
			return nil, err
		}
		if ok {
			m := mark
			st.LastSync[c] = &m
		} else {
			st.LastSync[c] = nil
		}
	}

	counts, err := e.store.CountAll(ctx)
	if err != nil {
		return nil, err
	}
	st.Counts = counts

	if e.journal != nil {
		run, err := e.journal.LastRun(ctx)
		if err != nil {
			return nil, err
		}
		st.LastRun = run
	}
	return st, nil
}
