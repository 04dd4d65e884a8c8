// ABOUTME: Push ingestion of records the legacy system posts directly
// ABOUTME: Validates the items and runs the category passes without fetching or moving watermarks
package sync

import (
	"context"
	"fmt"

	"github.com/harperreed/crmsync/models"
)

// Apply runs every pass of category over pushed items. Invalid items are
// counted as failures; the category watermark is left alone.
func (e *Engine) Apply(ctx context.Context, category string, items []interface{}) (*models.Tally, error) {
	if !IsCategory(category) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}
	batch, err := ParseRecords(category, items)
	if err != nil {
		return nil, err
	}
	defer e.setPhase(PhaseIdle, "")

	st := &categoryState{tally: models.NewTally(), batch: batch}
	logger := e.logger.WithField("trigger", "push")
	countRejections(logger.WithField("category", category), category, batch, st.tally)

	for _, p := range passesFor(category) {
		if err := e.runPass(ctx, logger, p, st, false); err != nil {
			return st.tally, err
		}
	}
	return st.tally, nil
}
