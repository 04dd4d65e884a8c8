// ABOUTME: HTTP server subcommand
// ABOUTME: Serves the sync API and status page, optionally running the daemon in the same process
package cli

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/harperreed/crmsync/web"
)

// ServeCommand starts the HTTP API until interrupted.
func ServeCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", app.Config.ListenAddr, "Listen address")
	withDaemon := fs.Bool("daemon", false, "Also run scheduled syncs in this process")
	_ = fs.Parse(args)

	if len(app.Config.AdminTokens) == 0 {
		app.Logger.Warn("no admin tokens configured; admin endpoints will reject every request")
	}

	server, err := web.NewServer(app.Runner, app.Store, web.Tokens{
		Admin: app.Config.AdminTokens,
		Users: app.Config.UserTokens,
	}, app.Logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *withDaemon {
		interval := app.Config.DaemonInterval.Duration
		if err := validateInterval(interval); err != nil {
			return err
		}
		go func() { _ = runDaemon(ctx, app.Runner, interval, app.Logger) }()
	}

	return server.Start(ctx, *addr)
}
