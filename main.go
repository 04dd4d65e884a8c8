// ABOUTME: Entry point for the crmsync CLI, daemon, HTTP server and MCP server
// ABOUTME: Routes to commands based on arguments after loading configuration
package main

import (
	"flag"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/harperreed/crmsync/charm"
	"github.com/harperreed/crmsync/cli"
	"github.com/harperreed/crmsync/config"
)

func main() {
	// Global flags
	showVersion := flag.Bool("version", false, "Show version and exit")
	configPath := flag.String("config", "", "Config file (default: ~/.config/crmsync/config.json)")
	initOnly := flag.Bool("init", false, "Initialize database and exit")

	_ = flag.CommandLine.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("crmsync version %s\n", cli.Version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 && !*initOnly {
		printUsage()
		os.Exit(0)
	}

	// config init must work before a valid config exists
	if len(args) >= 2 && args[0] == "config" && args[1] == "init" {
		if err := cli.ConfigInitCommand(os.Stdout, *configPath, args[2:]); err != nil {
			log.Fatalf("Error: %v", err)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if len(args) == 0 {
		// --init alone
		app, err := cli.NewApp(cfg)
		if err != nil {
			log.Fatalf("Error: %v", err)
		}
		_ = app.Close()
		fmt.Printf("Database initialized: %s\n", cfg.DSN())
		return
	}

	command := args[0]
	commandArgs := args[1:]

	switch command {
	case "config":
		runConfig(cfg, commandArgs)
	case "charm":
		runCharm(cfg, commandArgs)
	case "sync", "daemon", "serve", "mcp", "tui", "viz", "dashboard":
		app, err := cli.NewApp(cfg)
		if err != nil {
			log.Fatalf("Error: %v", err)
		}
		err = runWithApp(app, command, commandArgs)
		_ = app.Close()
		if err != nil {
			log.Fatalf("Error: %v", err)
		}
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runWithApp(app *cli.App, command string, args []string) error {
	switch command {
	case "sync":
		return runSync(app, args)
	case "daemon":
		return cli.DaemonCommand(app, args)
	case "serve":
		return cli.ServeCommand(app, args)
	case "mcp":
		return cli.MCPCommand(app)
	case "tui":
		return cli.TUICommand(app)
	case "dashboard":
		return cli.VizDashboardCommand(app, args)
	case "viz":
		if len(args) == 0 {
			return fmt.Errorf("viz requires a subcommand (graph, dashboard)")
		}
		switch args[0] {
		case "graph":
			return cli.VizGraphCommand(app, args[1:])
		case "dashboard":
			return cli.VizDashboardCommand(app, args[1:])
		}
		return fmt.Errorf("unknown viz command: %s", args[0])
	}
	return fmt.Errorf("unknown command: %s", command)
}

func runSync(app *cli.App, args []string) error {
	if len(args) == 0 {
		return cli.SyncRunCommand(app, nil)
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "run":
		return cli.SyncRunCommand(app, rest)
	case "pull":
		return cli.SyncPullCommand(app, rest)
	case "push":
		return cli.SyncPushCommand(app, rest)
	case "manual":
		return cli.SyncManualCommand(app, rest)
	case "jobs":
		return cli.SyncJobsCommand(app, rest)
	case "runs":
		return cli.SyncRunsCommand(app, rest)
	case "export":
		return cli.SyncExportCommand(app, rest)
	case "status":
		return cli.SyncStatusCommand(app, rest)
	}
	return fmt.Errorf("unknown sync command: %s", sub)
}

func runConfig(cfg *config.Config, args []string) {
	if len(args) == 0 || args[0] == "show" {
		if err := cli.ConfigShowCommand(os.Stdout, cfg); err != nil {
			log.Fatalf("Error: %v", err)
		}
		return
	}
	fmt.Printf("Unknown config command: %s\n\n", args[0])
	printUsage()
	os.Exit(1)
}

func runCharm(cfg *config.Config, args []string) {
	if len(args) == 0 {
		fmt.Println("Error: charm requires a subcommand")
		printUsage()
		os.Exit(1)
	}

	var err error
	switch args[0] {
	case "link":
		err = charm.LinkCommand(cfg.Charm(), args[1:])
	case "status":
		err = charm.StatusCommand(cfg.Charm(), args[1:])
	case "push":
		err = charm.PushCommand(cfg.Charm(), args[1:])
	case "reset":
		err = charm.ResetCommand(cfg.Charm(), args[1:])
	default:
		fmt.Printf("Unknown charm command: %s\n\n", args[0])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func printUsage() {
	fmt.Printf(`crmsync v%s - legacy CRM reconciliation sync

USAGE:
  crmsync [global flags] <command> [subcommand] [flags]

GLOBAL FLAGS:
  --version              Show version and exit
  --config <path>        Config file (default: ~/.config/crmsync/config.json)
  --init                 Initialize the database and exit

COMMANDS:
  sync                   Run and inspect syncs (default: sync run)
  daemon                 Run scheduled syncs until interrupted
  serve                  Start the HTTP API and status page
  mcp                    Start the MCP server on stdio
  tui                    Interactive sync control panel
  viz                    Graphs and dashboard
  dashboard              Shortcut for viz dashboard
  charm                  Manage the charm watermark backend
  config                 Show or create the config file

SYNC COMMANDS:
  crmsync sync run [--json]              Sync every category in dependency order
  crmsync sync pull <category> [--json]  Sync one category
    categories: companies, contacts, publications, staff, team-assignments, opportunities
  crmsync sync push <category>           Ingest pushed records without moving watermarks
    --file <path>                          JSON file (default: stdin)
  crmsync sync manual --staff <id>       Queue a sync of one staff member's records
    --now                                  Run immediately instead of queueing
  crmsync sync jobs [--process]          List manual jobs, optionally draining the queue
    --limit <n>                            Max jobs (default: 20)
  crmsync sync runs [--limit <n>]        Show run history (default: 10)
  crmsync sync export [--output <file>]  Export changed opportunities as JSON
  crmsync sync status [--json]           Phase, watermarks, counts and last run

DAEMON:
  crmsync daemon [--interval 15m] [--once]

SERVER:
  crmsync serve [--addr 127.0.0.1:8080] [--daemon]

VIZ COMMANDS:
  crmsync viz graph [account]            Graph one account (local or legacy id) or everything
    --output <file>                        Output file (default: stdout)
  crmsync viz dashboard                  Pipeline, watermarks and stale categories

CHARM COMMANDS:
  crmsync charm link                     Link this device to charm
  crmsync charm status                   Show shared watermarks
  crmsync charm push                     Sync with the charm server now
  crmsync charm reset --confirm [--category NAME]

CONFIG COMMANDS:
  crmsync config init [--force]          Write the default config file
  crmsync config show                    Print the effective config with secrets masked

ENVIRONMENT:
  Every config key can be set as CRMSYNC_<KEY>, e.g. CRMSYNC_LEGACY_BASE_URL.

`, cli.Version)
}
