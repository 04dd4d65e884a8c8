// ABOUTME: Visualization and terminal UI CLI commands
// ABOUTME: Handles viz graph, viz dashboard and the interactive tui
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/harperreed/crmsync/tui"
	"github.com/harperreed/crmsync/viz"
)

// VizGraphCommand renders one account's link graph, or every entity when no
// account is given.
func VizGraphCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("viz graph", flag.ExitOnError)
	output := fs.String("output", "", "Output file (default: stdout)")
	_ = fs.Parse(args)

	ctx := context.Background()
	generator := viz.NewGraphGenerator(app.Store)

	var dot string
	if fs.NArg() > 0 {
		account, err := generator.FindAccount(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		dot, err = generator.GenerateAccountGraph(ctx, account.ID)
		if err != nil {
			return err
		}
	} else {
		var err error
		dot, err = generator.GenerateCompleteGraph(ctx)
		if err != nil {
			return err
		}
	}

	if *output != "" {
		return os.WriteFile(*output, []byte(dot), 0644)
	}
	_, _ = fmt.Fprintln(app.Out, dot)
	return nil
}

// VizDashboardCommand prints the text dashboard.
func VizDashboardCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("viz dashboard", flag.ExitOnError)
	_ = fs.Parse(args)

	ctx := context.Background()
	status, err := app.Runner.Status(ctx)
	if err != nil {
		return err
	}
	stats, err := viz.GenerateDashboardStats(ctx, app.Store, status, time.Now())
	if err != nil {
		return err
	}
	_, _ = fmt.Fprint(app.Out, viz.RenderDashboard(stats))
	return nil
}

// TUICommand starts the interactive terminal UI.
func TUICommand(app *App) error {
	program := tea.NewProgram(tui.NewModel(app.Runner, app.Store), tea.WithAltScreen())
	_, err := program.Run()
	return err
}
