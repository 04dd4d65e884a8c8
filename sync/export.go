// ABOUTME: Outbound export of locally modified opportunities for the legacy system
// ABOUTME: Reads changes since the opportunity-updates watermark and advances it once they are delivered
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/harperreed/crmsync/models"
)

// OpportunityUpdate is one changed opportunity as the legacy system expects it.
type OpportunityUpdate struct {
	LegacyLeadID        string    `json:"legacyLeadId"`
	LegacyCompanyID     string    `json:"legacyCompanyId,omitempty"`
	LegacyStaffID       string    `json:"legacyStaffId,omitempty"`
	LegacyPublicationID string    `json:"legacyPublicationId,omitempty"`
	Name                string    `json:"name"`
	Stage               string    `json:"stage"`
	Amount              string    `json:"amount,omitempty"`
	CloseDate           string    `json:"closeDate,omitempty"`
	AssignedUserID      string    `json:"assignedUserId,omitempty"`
	ModifiedAt          time.Time `json:"modifiedAt"`
}

// DeliverFunc hands exported updates to their destination.
type DeliverFunc func([]OpportunityUpdate) error

// ExportOpportunityUpdates returns opportunities that carry a legacy lead id
// and changed since the last export. The watermark only advances after
// deliver succeeds, so a failed delivery is exported again next time. A nil
// deliver treats the returned slice as delivered.
func (e *Engine) ExportOpportunityUpdates(ctx context.Context, deliver DeliverFunc) ([]OpportunityUpdate, error) {
	started := e.now().UTC().Truncate(time.Microsecond)
	since, ok, err := e.marks.GetWatermark(ctx, CategoryOpportunityUpdates)
	if err != nil {
		return nil, err
	}
	if !ok {
		since = time.Time{}
	}

	opps, err := e.store.ModifiedSince(ctx, models.KindOpportunity, since)
	if err != nil {
		return nil, err
	}

	updates := make([]OpportunityUpdate, 0, len(opps))
	for _, o := range opps {
		leadID := o.Get(models.FieldLegacyLeadID)
		if leadID == "" {
			continue
		}
		u := OpportunityUpdate{
			LegacyLeadID:        leadID,
			LegacyCompanyID:     o.Get(models.FieldLegacyCompanyID),
			LegacyStaffID:       o.Get(models.FieldLegacyStaffID),
			LegacyPublicationID: o.Get(models.FieldLegacyPublicationID),
			Name:                o.Name,
			Stage:               o.Get(models.FieldStage),
			Amount:              o.Get(models.FieldAmount),
			CloseDate:           o.Get(models.FieldCloseDate),
			ModifiedAt:          o.UpdatedAt,
		}
		assigned, err := e.store.Related(ctx, o.ID, models.RelAssignedUser)
		if err != nil {
			return nil, err
		}
		if len(assigned) > 0 {
			u.AssignedUserID = assigned[0].ID
		}
		updates = append(updates, u)
	}

	if deliver != nil {
		if err := deliver(updates); err != nil {
			e.logger.WithError(err).WithField("count", len(updates)).Warn("opportunity updates not delivered, watermark kept")
			return nil, fmt.Errorf("failed to deliver opportunity updates: %w", err)
		}
	}

	next := started
	if ok && since.After(next) {
		next = since
	}
	if err := e.marks.SetWatermark(ctx, CategoryOpportunityUpdates, next); err != nil {
		return nil, err
	}
	e.logger.WithField("count", len(updates)).Info("opportunity updates exported")
	return updates, nil
}
