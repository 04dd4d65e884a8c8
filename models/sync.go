// ABOUTME: Sync bookkeeping models: stage mapping, tallies, reports, watermarks and runs
// ABOUTME: Shared by the engine, the store and every surface that reports sync results
package models

import (
	"strconv"
	"strings"
	"time"
)

// Opportunity stages.
const (
	StageProspecting      = "Prospecting"
	StageQualification    = "Qualification"
	StageNeedsAnalysis    = "Needs Analysis"
	StageValueProposition = "Value Proposition"
	StageNegotiation      = "Negotiation"
	StageClosedWon        = "Closed Won"
	StageClosedLost       = "Closed Lost"

	// DefaultStage is used for any status code missing from the table.
	DefaultStage = StageProspecting
)

var stageByStatus = map[int]string{
	1: StageProspecting,
	6: StageQualification,
	7: StageNeedsAnalysis,
	8: StageValueProposition,
	9: StageNegotiation,
	2: StageClosedWon,
	4: StageClosedLost,
}

// StageForStatus translates a legacy status code into a stage name. It is
// total: unknown codes yield DefaultStage.
func StageForStatus(code int) string {
	if stage, ok := stageByStatus[code]; ok {
		return stage
	}
	return DefaultStage
}

// StageForStatusText parses a textual status code; unparseable input yields DefaultStage.
func StageForStatusText(code string) string {
	n, err := strconv.Atoi(strings.TrimSpace(code))
	if err != nil {
		return DefaultStage
	}
	return StageForStatus(n)
}

// Detail describes one record that failed or was deferred.
type Detail struct {
	Category string `json:"category"`
	Kind     string `json:"kind,omitempty"`
	LegacyID string `json:"legacyId,omitempty"`
	Name     string `json:"name,omitempty"`
	Message  string `json:"message"`
}

// Tally accumulates per-category results.
type Tally struct {
	Succeeded int      `json:"success"`
	Failed    int      `json:"errors"`
	Deferred  int      `json:"deferred"`
	Details   []Detail `json:"details"`
}

// NewTally returns an empty tally whose details encode as [] rather than null.
func NewTally() *Tally {
	return &Tally{Details: []Detail{}}
}

// Add folds another tally into t.
func (t *Tally) Add(o *Tally) {
	if o == nil {
		return
	}
	t.Succeeded += o.Succeeded
	t.Failed += o.Failed
	t.Deferred += o.Deferred
	t.Details = append(t.Details, o.Details...)
}

// CategoryResult is the outcome of one category in a run. Exactly one of
// Tally and Error is set.
type CategoryResult struct {
	Category string `json:"category"`
	Tally    *Tally `json:"results,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Report summarises a whole run.
type Report struct {
	RunID         string           `json:"runId"`
	StartedAt     time.Time        `json:"startedAt"`
	FinishedAt    time.Time        `json:"finishedAt"`
	Categories    []CategoryResult `json:"categories"`
	TotalSuccess  int              `json:"totalSuccess"`
	TotalErrors   int              `json:"totalErrors"`
	TotalDeferred int              `json:"totalDeferred"`
	Relinked      int              `json:"relinked"`
	Fatal         string           `json:"fatal,omitempty"`
}

// Result returns the result for a category, or nil when it did not run.
func (r *Report) Result(category string) *CategoryResult {
	for i := range r.Categories {
		if r.Categories[i].Category == category {
			return &r.Categories[i]
		}
	}
	return nil
}

// Watermark is the persisted state of one sync category.
type Watermark struct {
	Category     string     `json:"category"`
	LastSyncTime *time.Time `json:"lastSync,omitempty"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error,omitempty"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Run is a recorded sync run.
type Run struct {
	ID         string     `json:"id"`
	Trigger    string     `json:"trigger"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Succeeded  int        `json:"success"`
	Failed     int        `json:"errors"`
	Deferred   int        `json:"deferred"`
	Error      string     `json:"error,omitempty"`
}
