// ABOUTME: Sync CLI commands
// ABOUTME: Full runs, single-category pulls, push ingestion, manual syncs, jobs, run history, export and status
package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/harperreed/crmsync/models"
	crmsync "github.com/harperreed/crmsync/sync"
	"github.com/harperreed/crmsync/web"
)

// SyncRunCommand runs every category in dependency order.
func SyncRunCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("sync run", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "Print the report as JSON")
	_ = fs.Parse(args)

	report, err := app.Runner.RunAll(context.Background(), "cli")
	if report == nil {
		return err
	}
	if *asJSON {
		if jerr := writeJSON(app.Out, report); jerr != nil {
			return jerr
		}
	} else {
		printReport(app.Out, report)
	}
	return err
}

// SyncPullCommand runs one category.
func SyncPullCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("sync pull", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "Print the result as JSON")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("category required (one of %v)", crmsync.Categories)
	}
	category := fs.Arg(0)

	result, err := app.Runner.Pull(context.Background(), category)
	if err != nil {
		return err
	}
	if *asJSON {
		return writeJSON(app.Out, result)
	}
	printCategory(app.Out, *result)
	if result.Error != "" {
		return fmt.Errorf("%s failed: %s", category, result.Error)
	}
	return nil
}

// SyncPushCommand ingests records from a file or stdin as if the legacy
// system had pushed them. Watermarks are not touched.
func SyncPushCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("sync push", flag.ExitOnError)
	file := fs.String("file", "", "JSON file to read (default: stdin)")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("category required (one of %v)", crmsync.Categories)
	}
	category := fs.Arg(0)
	if !crmsync.IsCategory(category) {
		return fmt.Errorf("%w: %s", crmsync.ErrUnknownCategory, category)
	}

	var in io.Reader = os.Stdin
	if *file != "" {
		f, err := os.Open(*file)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", *file, err)
		}
		defer func() { _ = f.Close() }()
		in = f
	}

	items, err := web.DecodePushBody(in, category)
	if err != nil {
		return err
	}

	tally, err := app.Runner.Apply(context.Background(), category, items)
	if tally != nil {
		printCategory(app.Out, models.CategoryResult{Category: category, Tally: tally})
	}
	return err
}

// SyncManualCommand queues, or with --now runs, a sync of one staff member's accounts.
func SyncManualCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("sync manual", flag.ExitOnError)
	staff := fs.String("staff", "", "Legacy staff id whose records to sync (required)")
	now := fs.Bool("now", false, "Run immediately instead of queueing")
	_ = fs.Parse(args)

	if *staff == "" {
		return fmt.Errorf("--staff is required")
	}
	actor := models.Actor{ID: "cli", LegacyStaffID: *staff}
	ctx := context.Background()

	if *now {
		tally, err := app.Runner.RunManual(ctx, actor)
		if err != nil {
			return err
		}
		printCategory(app.Out, models.CategoryResult{Category: "manual", Tally: tally})
		return nil
	}

	results, err := app.Runner.QueueManual(ctx, actor)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		_, _ = fmt.Fprintf(app.Out, "No local user has legacy staff id %s.\n", *staff)
		return nil
	}
	for _, r := range results {
		switch r.Status {
		case crmsync.ManualError:
			_, _ = fmt.Fprintf(app.Out, "  ✗ %s: %s\n", r.Account, r.Error)
		default:
			_, _ = fmt.Fprintf(app.Out, "  ✓ %s %s (job %s)\n", r.Account, r.Status, r.JobID)
		}
	}
	return nil
}

// SyncJobsCommand lists manual sync jobs, optionally draining the queue first.
func SyncJobsCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("sync jobs", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Maximum jobs to list")
	process := fs.Bool("process", false, "Process pending jobs before listing")
	_ = fs.Parse(args)

	ctx := context.Background()
	if *process {
		n, err := app.Runner.ProcessJobs(ctx)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(app.Out, "Processed %d jobs.\n\n", n)
	}

	jobs, err := app.Store.ListJobs(ctx, *limit)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		_, _ = fmt.Fprintln(app.Out, "No jobs.")
		return nil
	}
	for _, j := range jobs {
		_, _ = fmt.Fprintf(app.Out, "%-28s %-8s %s %s  %s\n", j.ID, j.Status, j.TargetType, j.TargetID, j.CreatedAt.UTC().Format(time.RFC3339))
		if j.Message != "" {
			_, _ = fmt.Fprintf(app.Out, "    %s\n", j.Message)
		}
	}
	return nil
}

// SyncRunsCommand shows recent run history.
func SyncRunsCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("sync runs", flag.ExitOnError)
	limit := fs.Int("limit", 10, "Maximum runs to list")
	_ = fs.Parse(args)

	runs, err := app.Store.ListRuns(context.Background(), *limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(app.Out, "No runs recorded.")
		return nil
	}
	for _, r := range runs {
		finished := "running"
		if r.FinishedAt != nil {
			finished = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		_, _ = fmt.Fprintf(app.Out, "%-28s %-10s %s  %s  %d ok, %d errors, %d deferred\n",
			r.ID, r.Trigger, r.StartedAt.UTC().Format(time.RFC3339), finished, r.Succeeded, r.Failed, r.Deferred)
		if r.Error != "" {
			_, _ = fmt.Fprintf(app.Out, "    aborted: %s\n", r.Error)
		}
	}
	return nil
}

// SyncExportCommand writes opportunity updates for the legacy system as JSON.
func SyncExportCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("sync export", flag.ExitOnError)
	output := fs.String("output", "", "Output file (default: stdout)")
	_ = fs.Parse(args)

	deliver := func(updates []crmsync.OpportunityUpdate) error {
		return writeJSON(app.Out, updates)
	}
	if *output != "" {
		deliver = func(updates []crmsync.OpportunityUpdate) error {
			return writeFile(*output, updates)
		}
	}

	updates, err := app.Runner.Export(context.Background(), deliver)
	if err != nil {
		return err
	}
	if *output != "" {
		_, _ = fmt.Fprintf(app.Out, "Wrote %d opportunity updates to %s\n", len(updates), *output)
	}
	return nil
}

// writeFile writes v as JSON to path and reports close errors, so a short
// write never counts as delivered.
func writeFile(path string, v interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := writeJSON(f, v); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// SyncStatusCommand prints the phase, watermarks, entity counts and last run.
func SyncStatusCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("sync status", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "Print status as JSON")
	_ = fs.Parse(args)

	ctx := context.Background()
	status, err := app.Runner.Status(ctx)
	if err != nil {
		return err
	}
	if *asJSON {
		return writeJSON(app.Out, status)
	}

	states, err := app.Store.ListWatermarks(ctx)
	if err != nil {
		return err
	}
	byCategory := make(map[string]models.Watermark, len(states))
	for _, s := range states {
		byCategory[s.Category] = s
	}

	out := app.Out
	_, _ = fmt.Fprintln(out, "Sync Status")
	_, _ = fmt.Fprintln(out, "───────────")
	if status.Phase == crmsync.PhaseIdle {
		_, _ = fmt.Fprintln(out, "Phase:  idle")
	} else {
		_, _ = fmt.Fprintf(out, "Phase:  %s %s\n", status.Phase, status.Category)
	}
	_, _ = fmt.Fprintln(out)

	for _, category := range append(append([]string{}, crmsync.Categories...), crmsync.CategoryOpportunityUpdates) {
		last := "never"
		if t := status.LastSync[category]; t != nil {
			last = t.UTC().Format(time.RFC3339)
		}
		line := fmt.Sprintf("  %-20s %-22s", category, last)
		if s, ok := byCategory[category]; ok && s.Status != "" {
			line += " " + s.Status
			if s.ErrorMessage != "" {
				line += ": " + s.ErrorMessage
			}
		}
		_, _ = fmt.Fprintln(out, line)
	}
	_, _ = fmt.Fprintln(out)

	for _, kind := range models.AllKinds {
		_, _ = fmt.Fprintf(out, "  %-12s %6d\n", kind, status.Counts[kind])
	}

	if r := status.LastRun; r != nil {
		_, _ = fmt.Fprintf(out, "\nLast run: %s (%s) %d ok, %d errors, %d deferred\n", r.ID, r.Trigger, r.Succeeded, r.Failed, r.Deferred)
		if r.Error != "" {
			_, _ = fmt.Fprintf(out, "  aborted: %s\n", r.Error)
		}
	}
	return nil
}

func printReport(out io.Writer, report *models.Report) {
	_, _ = fmt.Fprintf(out, "Run %s\n", report.RunID)
	for _, r := range report.Categories {
		printCategory(out, r)
	}
	_, _ = fmt.Fprintf(out, "\nTotal: %d ok, %d errors, %d deferred, %d relinked\n",
		report.TotalSuccess, report.TotalErrors, report.TotalDeferred, report.Relinked)
	if report.Fatal != "" {
		_, _ = fmt.Fprintf(out, "Aborted: %s\n", report.Fatal)
	}
}

func printCategory(out io.Writer, r models.CategoryResult) {
	if r.Error != "" {
		_, _ = fmt.Fprintf(out, "  ✗ %-18s failed: %s\n", r.Category, r.Error)
		return
	}
	t := r.Tally
	_, _ = fmt.Fprintf(out, "  ✓ %-18s %d ok, %d errors, %d deferred\n", r.Category, t.Succeeded, t.Failed, t.Deferred)
	for _, d := range t.Details {
		label := d.LegacyID
		if d.Name != "" {
			label += " " + d.Name
		}
		_, _ = fmt.Fprintf(out, "      • %s %s: %s\n", d.Kind, label, d.Message)
	}
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
