// ABOUTME: Sync daemon: runs every category on an interval and drains manual jobs
// ABOUTME: Stops cleanly on SIGINT/SIGTERM; a busy runner skips the tick instead of queueing
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	crmsync "github.com/harperreed/crmsync/sync"
)

// MinDaemonInterval keeps the daemon from hammering the legacy system.
const MinDaemonInterval = time.Minute

// DaemonCommand runs the scheduler until interrupted.
func DaemonCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("daemon", flag.ExitOnError)
	interval := fs.Duration("interval", app.Config.DaemonInterval.Duration, "Time between runs")
	once := fs.Bool("once", false, "Run a single cycle and exit")
	_ = fs.Parse(args)

	if err := validateInterval(*interval); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *once {
		runCycle(ctx, app.Runner, app.Logger)
		return nil
	}
	return runDaemon(ctx, app.Runner, *interval, app.Logger)
}

func validateInterval(d time.Duration) error {
	if d < MinDaemonInterval {
		return fmt.Errorf("interval must be at least %s, got %s", MinDaemonInterval, d)
	}
	return nil
}

// runDaemon runs a cycle right away and then on every tick until ctx ends.
func runDaemon(ctx context.Context, runner *crmsync.Runner, interval time.Duration, logger *log.Logger) error {
	logger.WithField("interval", interval.String()).Info("sync daemon started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runCycle(ctx, runner, logger)
	for {
		select {
		case <-ctx.Done():
			logger.Info("sync daemon stopped")
			return nil
		case <-ticker.C:
			runCycle(ctx, runner, logger)
		}
	}
}

// runCycle is one scheduled run followed by the manual job queue.
func runCycle(ctx context.Context, runner *crmsync.Runner, logger *log.Logger) {
	report, err := runner.RunAll(ctx, "daemon")
	switch {
	case errors.Is(err, crmsync.ErrBusy):
		logger.Warn("previous sync still running, skipping this tick")
		return
	case report == nil && err != nil:
		logger.WithError(err).Error("sync run failed")
		return
	}

	entry := logger.WithFields(log.Fields{
		"run":      report.RunID,
		"success":  report.TotalSuccess,
		"errors":   report.TotalErrors,
		"deferred": report.TotalDeferred,
		"relinked": report.Relinked,
	})
	if report.Fatal != "" {
		entry.WithField("fatal", report.Fatal).Error("sync run aborted")
		return
	}
	entry.Info("sync run finished")

	n, err := runner.ProcessJobs(ctx)
	if err != nil {
		logger.WithError(err).Warn("manual job processing failed")
		return
	}
	if n > 0 {
		logger.WithField("jobs", n).Info("manual jobs processed")
	}
}
