// ABOUTME: Terminal dashboard statistics and rendering for the sync engine
// ABOUTME: Summarises the opportunity pipeline, entity counts, watermarks and the last run
package viz

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/harperreed/crmsync/db"
	"github.com/harperreed/crmsync/models"
	crmsync "github.com/harperreed/crmsync/sync"
)

// StaleAfter is how old a watermark may get before the dashboard flags it.
const StaleAfter = 24 * time.Hour

type DashboardStats struct {
	PipelineByStage map[string]PipelineStageStats
	Counts          map[models.Kind]int
	Watermarks      []WatermarkRow
	LastRun         *models.Run

	// Needs attention
	StaleCategories []string
	NeverSynced     []string
}

type PipelineStageStats struct {
	Stage  string
	Count  int
	Amount float64
}

type WatermarkRow struct {
	Category string
	LastSync *time.Time
}

func GenerateDashboardStats(ctx context.Context, store *db.Store, status *crmsync.Status, now time.Time) (*DashboardStats, error) {
	stats := &DashboardStats{
		PipelineByStage: make(map[string]PipelineStageStats),
		Counts:          status.Counts,
		LastRun:         status.LastRun,
	}

	opps, err := store.List(ctx, models.KindOpportunity)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch opportunities: %w", err)
	}
	for _, opp := range opps {
		stage := opp.Get(models.FieldStage)
		if stage == "" {
			stage = models.DefaultStage
		}
		pstats := stats.PipelineByStage[stage]
		pstats.Stage = stage
		pstats.Count++
		if amount, err := strconv.ParseFloat(opp.Get(models.FieldAmount), 64); err == nil {
			pstats.Amount += amount
		}
		stats.PipelineByStage[stage] = pstats
	}

	for _, category := range append(append([]string{}, crmsync.Categories...), crmsync.CategoryOpportunityUpdates) {
		last := status.LastSync[category]
		stats.Watermarks = append(stats.Watermarks, WatermarkRow{Category: category, LastSync: last})
		switch {
		case last == nil:
			stats.NeverSynced = append(stats.NeverSynced, category)
		case now.Sub(*last) > StaleAfter:
			stats.StaleCategories = append(stats.StaleCategories, category)
		}
	}

	return stats, nil
}

func RenderDashboard(stats *DashboardStats) string {
	var out strings.Builder

	out.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	out.WriteString("  CRMSYNC DASHBOARD\n")
	out.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

	out.WriteString("PIPELINE OVERVIEW\n")
	renderPipeline(&out, stats.PipelineByStage)
	out.WriteString("\n")

	out.WriteString("LOCAL ENTITIES\n")
	for _, kind := range models.AllKinds {
		out.WriteString(fmt.Sprintf("  %-12s %6d\n", kind, stats.Counts[kind]))
	}
	out.WriteString("\n")

	out.WriteString("WATERMARKS\n")
	for _, w := range stats.Watermarks {
		last := "never"
		if w.LastSync != nil {
			last = w.LastSync.UTC().Format("2006-01-02 15:04:05")
		}
		out.WriteString(fmt.Sprintf("  %-20s %s\n", w.Category, last))
	}
	out.WriteString("\n")

	if r := stats.LastRun; r != nil {
		out.WriteString("LAST RUN\n")
		out.WriteString(fmt.Sprintf("  %s (%s) %d ok, %d errors, %d deferred\n", r.ID, r.Trigger, r.Succeeded, r.Failed, r.Deferred))
		if r.Error != "" {
			out.WriteString(fmt.Sprintf("  aborted: %s\n", r.Error))
		}
		out.WriteString("\n")
	}

	if len(stats.StaleCategories) > 0 || len(stats.NeverSynced) > 0 {
		out.WriteString("NEEDS ATTENTION\n")
		if len(stats.StaleCategories) > 0 {
			out.WriteString(fmt.Sprintf("  ⚠️  not synced in 24h: %s\n", strings.Join(stats.StaleCategories, ", ")))
		}
		if len(stats.NeverSynced) > 0 {
			out.WriteString(fmt.Sprintf("  ⚠️  never synced: %s\n", strings.Join(stats.NeverSynced, ", ")))
		}
	}

	return out.String()
}

func renderPipeline(out *strings.Builder, pipeline map[string]PipelineStageStats) {
	stages := []string{
		models.StageProspecting,
		models.StageQualification,
		models.StageNeedsAnalysis,
		models.StageValueProposition,
		models.StageNegotiation,
		models.StageClosedWon,
		models.StageClosedLost,
	}

	maxCount := 0
	for _, pstats := range pipeline {
		if pstats.Count > maxCount {
			maxCount = pstats.Count
		}
	}
	if maxCount == 0 {
		out.WriteString("  no opportunities\n")
		return
	}

	for _, stage := range stages {
		pstats, exists := pipeline[stage]
		if !exists {
			continue
		}

		barLength := (pstats.Count * 10) / maxCount
		bar := strings.Repeat("█", barLength) + strings.Repeat("░", 10-barLength)
		amountK := int64(pstats.Amount / 1000)

		out.WriteString(fmt.Sprintf("  %-17s %s  %2d ($%dK)\n", stage, bar, pstats.Count, amountK))
	}
}
