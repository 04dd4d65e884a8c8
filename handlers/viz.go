// ABOUTME: GraphViz visualization MCP handlers
// ABOUTME: Provides the generate_graph tool over synced accounts and links
package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/crmsync/db"
	crmsync "github.com/harperreed/crmsync/sync"
	"github.com/harperreed/crmsync/viz"
)

type VizHandlers struct {
	runner *crmsync.Runner
	store  *db.Store
}

func NewVizHandlers(runner *crmsync.Runner, store *db.Store) *VizHandlers {
	return &VizHandlers{runner: runner, store: store}
}

type GenerateGraphInput struct {
	Account string `json:"account,omitempty" jsonschema:"Local id or legacy company id of the account to center on; omit for the whole graph"`
}

type GenerateGraphOutput struct {
	Account   string `json:"account,omitempty"`
	DOTSource string `json:"dot_source"`
	EdgeCount int    `json:"edge_count"`
}

func (h *VizHandlers) GenerateGraph(ctx context.Context, request *mcp.CallToolRequest, input GenerateGraphInput) (*mcp.CallToolResult, GenerateGraphOutput, error) {
	generator := viz.NewGraphGenerator(h.store)

	var dot string
	var err error
	var name string
	if input.Account == "" {
		dot, err = generator.GenerateCompleteGraph(ctx)
	} else {
		account, ferr := generator.FindAccount(ctx, input.Account)
		if ferr != nil {
			return nil, GenerateGraphOutput{}, ferr
		}
		name = account.Name
		dot, err = generator.GenerateAccountGraph(ctx, account.ID)
	}
	if err != nil {
		return nil, GenerateGraphOutput{}, fmt.Errorf("failed to generate graph: %w", err)
	}

	return nil, GenerateGraphOutput{
		Account:   name,
		DOTSource: dot,
		EdgeCount: strings.Count(dot, "->"),
	}, nil
}

type DashboardInput struct{}

type DashboardOutput struct {
	Text string `json:"text"`
}

func (h *VizHandlers) Dashboard(ctx context.Context, request *mcp.CallToolRequest, input DashboardInput) (*mcp.CallToolResult, DashboardOutput, error) {
	status, err := h.runner.Status(ctx)
	if err != nil {
		return nil, DashboardOutput{}, fmt.Errorf("failed to read status: %w", err)
	}
	stats, err := viz.GenerateDashboardStats(ctx, h.store, status, time.Now())
	if err != nil {
		return nil, DashboardOutput{}, err
	}
	return nil, DashboardOutput{Text: viz.RenderDashboard(stats)}, nil
}
