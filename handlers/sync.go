// ABOUTME: MCP tool handlers that drive the legacy sync engine
// ABOUTME: Status, single-category and full pulls, manual sync, job queue, export and run history
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/crmsync/db"
	"github.com/harperreed/crmsync/models"
	crmsync "github.com/harperreed/crmsync/sync"
)

type SyncHandlers struct {
	runner *crmsync.Runner
	store  *db.Store
}

func NewSyncHandlers(runner *crmsync.Runner, store *db.Store) *SyncHandlers {
	return &SyncHandlers{runner: runner, store: store}
}

type DetailOutput struct {
	Category string `json:"category"`
	Kind     string `json:"kind,omitempty"`
	LegacyID string `json:"legacy_id,omitempty"`
	Name     string `json:"name,omitempty"`
	Message  string `json:"message"`
}

type TallyOutput struct {
	Success  int            `json:"success"`
	Errors   int            `json:"errors"`
	Deferred int            `json:"deferred"`
	Details  []DetailOutput `json:"details"`
}

type CategoryOutput struct {
	Category string       `json:"category"`
	Results  *TallyOutput `json:"results,omitempty"`
	Error    string       `json:"error,omitempty"`
}

type RunOutput struct {
	ID         string `json:"id"`
	Trigger    string `json:"trigger"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
	Success    int    `json:"success"`
	Errors     int    `json:"errors"`
	Deferred   int    `json:"deferred"`
	Error      string `json:"error,omitempty"`
}

type SyncStatusInput struct{}

type WatermarkOutput struct {
	Category string `json:"category"`
	LastSync string `json:"last_sync,omitempty"`
}

type CountOutput struct {
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}

type SyncStatusOutput struct {
	Phase      string            `json:"phase"`
	Category   string            `json:"category,omitempty"`
	Busy       bool              `json:"busy"`
	Watermarks []WatermarkOutput `json:"watermarks"`
	Counts     []CountOutput     `json:"counts"`
	LastRun    *RunOutput        `json:"last_run,omitempty"`
}

func (h *SyncHandlers) SyncStatus(ctx context.Context, req *mcp.CallToolRequest, input SyncStatusInput) (*mcp.CallToolResult, SyncStatusOutput, error) {
	st, err := h.runner.Status(ctx)
	if err != nil {
		return nil, SyncStatusOutput{}, fmt.Errorf("failed to read sync status: %w", err)
	}

	out := SyncStatusOutput{
		Phase:    string(st.Phase),
		Category: st.Category,
		Busy:     h.runner.Busy(),
	}
	for _, category := range append(append([]string{}, crmsync.Categories...), crmsync.CategoryOpportunityUpdates) {
		wm := WatermarkOutput{Category: category}
		if at := st.LastSync[category]; at != nil {
			wm.LastSync = formatTime(*at)
		}
		out.Watermarks = append(out.Watermarks, wm)
	}
	for _, kind := range models.AllKinds {
		out.Counts = append(out.Counts, CountOutput{Kind: string(kind), Count: st.Counts[kind]})
	}
	if st.LastRun != nil {
		run := runToOutput(st.LastRun)
		out.LastRun = &run
	}
	return nil, out, nil
}

type PullCategoryInput struct {
	Category string `json:"category" jsonschema:"Sync category to pull (companies, contacts, publications, staff, team-assignments, opportunities)"`
}

func (h *SyncHandlers) PullCategory(ctx context.Context, req *mcp.CallToolRequest, input PullCategoryInput) (*mcp.CallToolResult, CategoryOutput, error) {
	if input.Category == "" {
		return nil, CategoryOutput{}, fmt.Errorf("category is required")
	}

	result, err := h.runner.Pull(ctx, input.Category)
	if err != nil {
		return nil, CategoryOutput{}, fmt.Errorf("failed to pull %s: %w", input.Category, err)
	}
	return nil, categoryToOutput(*result), nil
}

type PullAllInput struct{}

type PullAllOutput struct {
	RunID         string           `json:"run_id"`
	Categories    []CategoryOutput `json:"categories"`
	TotalSuccess  int              `json:"total_success"`
	TotalErrors   int              `json:"total_errors"`
	TotalDeferred int              `json:"total_deferred"`
	Relinked      int              `json:"relinked"`
}

func (h *SyncHandlers) PullAll(ctx context.Context, req *mcp.CallToolRequest, input PullAllInput) (*mcp.CallToolResult, PullAllOutput, error) {
	report, err := h.runner.RunAll(ctx, "mcp")
	if err != nil {
		return nil, PullAllOutput{}, fmt.Errorf("sync run failed: %w", err)
	}

	out := PullAllOutput{
		RunID:         report.RunID,
		Categories:    make([]CategoryOutput, 0, len(report.Categories)),
		TotalSuccess:  report.TotalSuccess,
		TotalErrors:   report.TotalErrors,
		TotalDeferred: report.TotalDeferred,
		Relinked:      report.Relinked,
	}
	for _, c := range report.Categories {
		out.Categories = append(out.Categories, categoryToOutput(c))
	}
	return nil, out, nil
}

type ManualSyncInput struct {
	LegacyStaffID string `json:"legacy_staff_id" jsonschema:"Legacy staff id of the salesperson whose opportunities should be synced"`
	Queue         bool   `json:"queue,omitempty" jsonschema:"Queue a job for the daemon instead of syncing now"`
}

type ManualJobOutput struct {
	Account string `json:"account"`
	Status  string `json:"status"`
	JobID   string `json:"job_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

type ManualSyncOutput struct {
	Jobs    []ManualJobOutput `json:"jobs,omitempty"`
	Results *TallyOutput      `json:"results,omitempty"`
}

func (h *SyncHandlers) ManualSync(ctx context.Context, req *mcp.CallToolRequest, input ManualSyncInput) (*mcp.CallToolResult, ManualSyncOutput, error) {
	actor := models.Actor{ID: "mcp", LegacyStaffID: input.LegacyStaffID}

	if input.Queue {
		results, err := h.runner.QueueManual(ctx, actor)
		if err != nil {
			return nil, ManualSyncOutput{}, fmt.Errorf("failed to queue manual sync: %w", err)
		}
		out := ManualSyncOutput{Jobs: make([]ManualJobOutput, 0, len(results))}
		for _, r := range results {
			out.Jobs = append(out.Jobs, ManualJobOutput{Account: r.Account, Status: r.Status, JobID: r.JobID, Error: r.Error})
		}
		return nil, out, nil
	}

	tally, err := h.runner.RunManual(ctx, actor)
	if err != nil {
		return nil, ManualSyncOutput{}, fmt.Errorf("manual sync failed: %w", err)
	}
	out := tallyToOutput(tally)
	return nil, ManualSyncOutput{Results: &out}, nil
}

type ProcessJobsInput struct{}

type ProcessJobsOutput struct {
	Processed int `json:"processed"`
}

func (h *SyncHandlers) ProcessJobs(ctx context.Context, req *mcp.CallToolRequest, input ProcessJobsInput) (*mcp.CallToolResult, ProcessJobsOutput, error) {
	n, err := h.runner.ProcessJobs(ctx)
	if err != nil {
		return nil, ProcessJobsOutput{}, fmt.Errorf("failed to process jobs: %w", err)
	}
	return nil, ProcessJobsOutput{Processed: n}, nil
}

type ExportInput struct{}

type OpportunityUpdateOutput struct {
	LegacyLeadID        string `json:"legacy_lead_id"`
	LegacyCompanyID     string `json:"legacy_company_id,omitempty"`
	LegacyStaffID       string `json:"legacy_staff_id,omitempty"`
	LegacyPublicationID string `json:"legacy_publication_id,omitempty"`
	Name                string `json:"name"`
	Stage               string `json:"stage"`
	Amount              string `json:"amount,omitempty"`
	CloseDate           string `json:"close_date,omitempty"`
	AssignedUserID      string `json:"assigned_user_id,omitempty"`
	ModifiedAt          string `json:"modified_at"`
}

type ExportOutput struct {
	Updates []OpportunityUpdateOutput `json:"updates"`
	Count   int                       `json:"count"`
}

func (h *SyncHandlers) ExportOpportunityUpdates(ctx context.Context, req *mcp.CallToolRequest, input ExportInput) (*mcp.CallToolResult, ExportOutput, error) {
	updates, err := h.runner.Export(ctx, nil)
	if err != nil {
		return nil, ExportOutput{}, fmt.Errorf("failed to export opportunity updates: %w", err)
	}

	out := ExportOutput{Updates: make([]OpportunityUpdateOutput, 0, len(updates)), Count: len(updates)}
	for _, u := range updates {
		out.Updates = append(out.Updates, OpportunityUpdateOutput{
			LegacyLeadID:        u.LegacyLeadID,
			LegacyCompanyID:     u.LegacyCompanyID,
			LegacyStaffID:       u.LegacyStaffID,
			LegacyPublicationID: u.LegacyPublicationID,
			Name:                u.Name,
			Stage:               u.Stage,
			Amount:              u.Amount,
			CloseDate:           u.CloseDate,
			AssignedUserID:      u.AssignedUserID,
			ModifiedAt:          formatTime(u.ModifiedAt),
		})
	}
	return nil, out, nil
}

type ListRunsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum runs to return (default 10)"`
}

type ListRunsOutput struct {
	Runs  []RunOutput `json:"runs"`
	Count int         `json:"count"`
}

func (h *SyncHandlers) ListRuns(ctx context.Context, req *mcp.CallToolRequest, input ListRunsInput) (*mcp.CallToolResult, ListRunsOutput, error) {
	if input.Limit <= 0 {
		input.Limit = 10
	}

	runs, err := h.store.ListRuns(ctx, input.Limit)
	if err != nil {
		return nil, ListRunsOutput{}, fmt.Errorf("failed to list runs: %w", err)
	}

	out := ListRunsOutput{Runs: make([]RunOutput, 0, len(runs)), Count: len(runs)}
	for _, r := range runs {
		out.Runs = append(out.Runs, runToOutput(r))
	}
	return nil, out, nil
}

type ListJobsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum jobs to return (default 20)"`
}

type JobOutput struct {
	ID         string `json:"id"`
	TargetType string `json:"target_type"`
	TargetID   string `json:"target_id"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	CreatedAt  string `json:"created_at"`
	FinishedAt string `json:"finished_at,omitempty"`
}

type ListJobsOutput struct {
	Jobs  []JobOutput `json:"jobs"`
	Count int         `json:"count"`
}

func (h *SyncHandlers) ListJobs(ctx context.Context, req *mcp.CallToolRequest, input ListJobsInput) (*mcp.CallToolResult, ListJobsOutput, error) {
	if input.Limit <= 0 {
		input.Limit = 20
	}

	jobs, err := h.store.ListJobs(ctx, input.Limit)
	if err != nil {
		return nil, ListJobsOutput{}, fmt.Errorf("failed to list jobs: %w", err)
	}

	out := ListJobsOutput{Jobs: make([]JobOutput, 0, len(jobs)), Count: len(jobs)}
	for _, j := range jobs {
		job := JobOutput{
			ID:         j.ID,
			TargetType: j.TargetType,
			TargetID:   j.TargetID,
			Status:     j.Status,
			Message:    j.Message,
			CreatedAt:  formatTime(j.CreatedAt),
		}
		if j.FinishedAt != nil {
			job.FinishedAt = formatTime(*j.FinishedAt)
		}
		out.Jobs = append(out.Jobs, job)
	}
	return nil, out, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func tallyToOutput(t *models.Tally) TallyOutput {
	out := TallyOutput{
		Success:  t.Succeeded,
		Errors:   t.Failed,
		Deferred: t.Deferred,
		Details:  make([]DetailOutput, 0, len(t.Details)),
	}
	for _, d := range t.Details {
		out.Details = append(out.Details, DetailOutput{
			Category: d.Category,
			Kind:     d.Kind,
			LegacyID: d.LegacyID,
			Name:     d.Name,
			Message:  d.Message,
		})
	}
	return out
}

func categoryToOutput(c models.CategoryResult) CategoryOutput {
	out := CategoryOutput{Category: c.Category, Error: c.Error}
	if c.Tally != nil {
		tally := tallyToOutput(c.Tally)
		out.Results = &tally
	}
	return out
}

func runToOutput(r *models.Run) RunOutput {
	out := RunOutput{
		ID:        r.ID,
		Trigger:   r.Trigger,
		StartedAt: formatTime(r.StartedAt),
		Success:   r.Succeeded,
		Errors:    r.Failed,
		Deferred:  r.Deferred,
		Error:     r.Error,
	}
	if r.FinishedAt != nil {
		out.FinishedAt = formatTime(*r.FinishedAt)
	}
	return out
}
