// ABOUTME: Graphviz rendering of synced entities and the links between them
// ABOUTME: Draws one account's neighbourhood or the whole local link graph
package viz

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/harperreed/crmsync/db"
	"github.com/harperreed/crmsync/models"
)

var kindShapes = map[models.Kind]cgraph.Shape{
	models.KindAccount:     "box",
	models.KindContact:     "ellipse",
	models.KindOpportunity: "diamond",
	models.KindUser:        "oval",
	models.KindPublication: "note",
	models.KindTeam:        "hexagon",
}

var kindColors = map[models.Kind]string{
	models.KindAccount:     "lightblue",
	models.KindContact:     "lightgreen",
	models.KindOpportunity: "lightyellow",
	models.KindUser:        "lightpink",
	models.KindPublication: "lightgrey",
	models.KindTeam:        "wheat",
}

type GraphGenerator struct {
	store *db.Store
}

func NewGraphGenerator(store *db.Store) *GraphGenerator {
	return &GraphGenerator{store: store}
}

// FindAccount resolves a local id or a legacy company id to an account.
func (g *GraphGenerator) FindAccount(ctx context.Context, ref string) (*models.Entity, error) {
	e, err := g.store.Get(ctx, ref)
	if err == nil && e.Kind == models.KindAccount {
		return e, nil
	}
	if err != nil && !errors.Is(err, db.ErrEntityNotFound) {
		return nil, err
	}

	found, err := g.store.Find(ctx, models.KindAccount, models.Criterion{Field: models.FieldLegacyCompanyID, Value: ref})
	if err != nil {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("no account with id or legacy company id %q", ref)
	}
	return found[0], nil
}

// GenerateAccountGraph draws an account, everything linked to it, and what
// those records link to in turn.
func (g *GraphGenerator) GenerateAccountGraph(ctx context.Context, accountID string) (string, error) {
	account, err := g.store.Get(ctx, accountID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch account: %w", err)
	}

	b := newBuilder(g.store)
	if err := b.open(ctx); err != nil {
		return "", err
	}
	defer b.close()
	b.graph.SetLabel(fmt.Sprintf("%s (%s)", account.Name, account.Get(models.FieldLegacyCompanyID)))

	if _, err := b.node(account); err != nil {
		return "", err
	}

	inbound, err := g.store.LinksTo(ctx, account.ID, "")
	if err != nil {
		return "", fmt.Errorf("failed to fetch account links: %w", err)
	}
	for _, l := range inbound {
		if err := b.edge(ctx, l); err != nil {
			return "", err
		}
		outbound, err := g.store.LinksFrom(ctx, l.OwnerID)
		if err != nil {
			return "", fmt.Errorf("failed to fetch links: %w", err)
		}
		for _, next := range outbound {
			if err := b.edge(ctx, next); err != nil {
				return "", err
			}
		}
	}

	return b.render(ctx)
}

// GenerateCompleteGraph draws every local entity and link.
func (g *GraphGenerator) GenerateCompleteGraph(ctx context.Context) (string, error) {
	b := newBuilder(g.store)
	if err := b.open(ctx); err != nil {
		return "", err
	}
	defer b.close()
	b.graph.SetLabel("Synced CRM Graph")

	var entities []*models.Entity
	for _, kind := range models.AllKinds {
		list, err := g.store.List(ctx, kind)
		if err != nil {
			return "", fmt.Errorf("failed to fetch %s entities: %w", kind, err)
		}
		for _, e := range list {
			if _, err := b.node(e); err != nil {
				return "", err
			}
		}
		entities = append(entities, list...)
	}

	for _, e := range entities {
		links, err := g.store.LinksFrom(ctx, e.ID)
		if err != nil {
			return "", fmt.Errorf("failed to fetch links: %w", err)
		}
		for _, l := range links {
			if err := b.edge(ctx, l); err != nil {
				return "", err
			}
		}
	}

	return b.render(ctx)
}

type builder struct {
	store *db.Store
	gv    *graphviz.Graphviz
	graph *cgraph.Graph
	nodes map[string]*cgraph.Node
	edges map[string]bool
}

func newBuilder(store *db.Store) *builder {
	return &builder{store: store, nodes: make(map[string]*cgraph.Node), edges: make(map[string]bool)}
}

func (b *builder) open(ctx context.Context) error {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return fmt.Errorf("failed to create graphviz instance: %w", err)
	}
	graph, err := gv.Graph()
	if err != nil {
		_ = gv.Close()
		return fmt.Errorf("failed to create graph: %w", err)
	}
	graph.SetRankDir(cgraph.LRRank)
	b.gv = gv
	b.graph = graph
	return nil
}

func (b *builder) close() {
	if b.graph != nil {
		_ = b.graph.Close()
	}
	if b.gv != nil {
		_ = b.gv.Close()
	}
}

func (b *builder) node(e *models.Entity) (*cgraph.Node, error) {
	if n, ok := b.nodes[e.ID]; ok {
		return n, nil
	}
	n, err := b.graph.CreateNodeByName(e.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create node: %w", err)
	}
	n.SetLabel(fmt.Sprintf("%s\n(%s)", e.Name, e.Kind))
	if shape, ok := kindShapes[e.Kind]; ok {
		n.SetShape(shape)
	}
	n.SetStyle("filled")
	n.SetFillColor(kindColors[e.Kind])
	b.nodes[e.ID] = n
	return n, nil
}

func (b *builder) nodeByID(ctx context.Context, id string) (*cgraph.Node, error) {
	if n, ok := b.nodes[id]; ok {
		return n, nil
	}
	e, err := b.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch linked entity: %w", err)
	}
	return b.node(e)
}

func (b *builder) edge(ctx context.Context, l *models.Link) error {
	if b.edges[l.ID] {
		return nil
	}
	owner, err := b.nodeByID(ctx, l.OwnerID)
	if err != nil {
		return err
	}
	target, err := b.nodeByID(ctx, l.TargetID)
	if err != nil {
		return err
	}
	e, err := b.graph.CreateEdgeByName(l.ID, owner, target)
	if err != nil {
		return fmt.Errorf("failed to create edge: %w", err)
	}
	e.SetLabel(l.Relation)
	if l.Relation == models.RelTeams || l.Relation == models.RelDefaultTeam {
		e.SetStyle("dashed")
	}
	b.edges[l.ID] = true
	return nil
}

func (b *builder) render(ctx context.Context) (string, error) {
	var buf bytes.Buffer
	if err := b.gv.Render(ctx, b.graph, graphviz.XDOT, &buf); err != nil {
		return "", fmt.Errorf("failed to render graph: %w", err)
	}
	return buf.String(), nil
}
