// ABOUTME: MCP resource handlers for exposing synced CRM data
// ABOUTME: Read-only access to sync status and local entities via crmsync:// URIs
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/crmsync/db"
	"github.com/harperreed/crmsync/models"
	crmsync "github.com/harperreed/crmsync/sync"
)

const resourceScheme = "crmsync://"

type ResourceHandlers struct {
	runner *crmsync.Runner
	store  *db.Store
}

func NewResourceHandlers(runner *crmsync.Runner, store *db.Store) *ResourceHandlers {
	return &ResourceHandlers{runner: runner, store: store}
}

// ReadResource handles resource read requests
func (h *ResourceHandlers) ReadResource(ctx context.Context, request *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := request.Params.URI
	if !strings.HasPrefix(uri, resourceScheme) {
		return nil, fmt.Errorf("invalid URI scheme: expected %s", resourceScheme)
	}

	parts := strings.Split(strings.TrimPrefix(uri, resourceScheme), "/")
	switch parts[0] {
	case "status":
		return h.readStatus(ctx, uri)

	case "entities":
		if len(parts) < 2 || parts[1] == "" {
			return nil, fmt.Errorf("entity kind is required")
		}
		kind, err := parseKind(parts[1])
		if err != nil {
			return nil, err
		}
		if len(parts) == 2 {
			return h.readEntities(ctx, uri, kind)
		}
		return h.readEntity(ctx, uri, kind, parts[2])

	default:
		return nil, mcp.ResourceNotFoundError(uri)
	}
}

func (h *ResourceHandlers) readStatus(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	st, err := h.runner.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read sync status: %w", err)
	}
	return jsonResource(uri, st)
}

func (h *ResourceHandlers) readEntities(ctx context.Context, uri string, kind models.Kind) (*mcp.ReadResourceResult, error) {
	entities, err := h.store.List(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s entities: %w", kind, err)
	}
	return jsonResource(uri, entities)
}

func (h *ResourceHandlers) readEntity(ctx context.Context, uri string, kind models.Kind, id string) (*mcp.ReadResourceResult, error) {
	entity, err := h.store.Get(ctx, id)
	if errors.Is(err, db.ErrEntityNotFound) {
		return nil, mcp.ResourceNotFoundError(uri)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch entity: %w", err)
	}
	if entity.Kind != kind {
		return nil, mcp.ResourceNotFoundError(uri)
	}

	// Include outgoing links
	links, err := h.store.LinksFrom(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch entity links: %w", err)
	}

	data := struct {
		*models.Entity
		Links []*models.Link `json:"links"`
	}{
		Entity: entity,
		Links:  links,
	}
	return jsonResource(uri, data)
}

func jsonResource(uri string, v interface{}) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}

	return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{
		{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}}, nil
}

func parseKind(s string) (models.Kind, error) {
	for _, k := range models.AllKinds {
		if strings.EqualFold(string(k), s) || strings.EqualFold(string(k)+"s", s) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown entity kind: %s", s)
}
