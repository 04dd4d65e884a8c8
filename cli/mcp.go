// ABOUTME: MCP server subcommand
// ABOUTME: Exposes sync tools, status and entity resources, and triage prompts over stdio
package cli

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/crmsync/handlers"
)

// Version is reported to MCP clients and by --version.
var Version = "0.1.0"

// MCPCommand starts the MCP server on stdio
func MCPCommand(app *App) error {
	app.Logger.Info("starting crmsync MCP server")
	return newMCPServer(app).Run(context.Background(), &mcp.StdioTransport{})
}

func newMCPServer(app *App) *mcp.Server {
	syncHandlers := handlers.NewSyncHandlers(app.Runner, app.Store)
	vizHandlers := handlers.NewVizHandlers(app.Runner, app.Store)
	resourceHandlers := handlers.NewResourceHandlers(app.Runner, app.Store)
	promptHandlers := handlers.NewPromptHandlers(app.Store)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "crmsync",
		Version: Version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_status",
		Description: "Show the current sync phase, per-category watermarks, local entity counts and the last run",
	}, syncHandlers.SyncStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "pull_category",
		Description: "Pull one category (companies, contacts, publications, staff, team-assignments, opportunities) from the legacy system",
	}, syncHandlers.PullCategory)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "pull_all",
		Description: "Run a full sync of every category in dependency order and relink deferred records",
	}, syncHandlers.PullAll)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "manual_sync",
		Description: "Queue or immediately run a sync of the records owned by one legacy staff member",
	}, syncHandlers.ManualSync)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "process_jobs",
		Description: "Process pending manual sync jobs",
	}, syncHandlers.ProcessJobs)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "export_opportunity_updates",
		Description: "Export opportunities changed since the last export for the legacy system",
	}, syncHandlers.ExportOpportunityUpdates)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_runs",
		Description: "List recent sync runs with their tallies",
	}, syncHandlers.ListRuns)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_jobs",
		Description: "List recent manual sync jobs",
	}, syncHandlers.ListJobs)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate_graph",
		Description: "Render a GraphViz DOT graph of one account's links, or of every synced entity",
	}, vizHandlers.GenerateGraph)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "dashboard",
		Description: "Text dashboard of the opportunity pipeline, watermarks and stale categories",
	}, vizHandlers.Dashboard)

	server.AddResource(&mcp.Resource{
		URI:         "crmsync://status",
		Name:        "status",
		Description: "Current sync status",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "crmsync://entities/{kind}",
		Name:        "entities",
		Description: "Every local entity of a kind (accounts, contacts, opportunities, users, publications, teams)",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "crmsync://entities/{kind}/{id}",
		Name:        "entity",
		Description: "One local entity with its outbound links",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	server.AddPrompt(&mcp.Prompt{
		Name:        "sync-triage",
		Description: "Summarise recent runs and category state to decide what needs attention",
	}, promptHandlers.GetPrompt)

	server.AddPrompt(&mcp.Prompt{
		Name:        "account-review",
		Description: "Review one account with its contacts and opportunities",
		Arguments: []*mcp.PromptArgument{
			{Name: "legacy_company_id", Description: "Legacy company id of the account", Required: true},
		},
	}, promptHandlers.GetPrompt)

	return server
}
