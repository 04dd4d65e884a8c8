package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/crmsync/models"
)

var (
	fieldLabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			Width(28)

	fieldValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))
)

func (m Model) renderDetailView() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("DETAIL VIEW"))
	s.WriteString("\n\n")
	s.WriteString(m.renderEntityDetail())
	s.WriteString("\n\n")
	s.WriteString(m.renderDetailHelp())

	return s.String()
}

func (m Model) renderEntityDetail() string {
	ctx := context.Background()
	e, err := m.store.Get(ctx, m.selectedID)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}

	var s strings.Builder

	s.WriteString(m.renderField("Kind", string(e.Kind)))
	s.WriteString(m.renderField("Name", e.Name))

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.WriteString(m.renderField(k, e.Fields[k]))
	}
	s.WriteString(m.renderField("Updated", e.UpdatedAt.UTC().Format("2006-01-02 15:04:05")))

	s.WriteString("\n")
	s.WriteString(lipgloss.NewStyle().Bold(true).Render("LINKS"))
	s.WriteString("\n")

	links, err := m.store.LinksFrom(ctx, e.ID)
	if err != nil {
		return s.String() + fmt.Sprintf("Error: %v\n", err)
	}
	for _, l := range links {
		s.WriteString(fmt.Sprintf("  • %s → %s\n", l.Relation, m.entityName(ctx, l.TargetID)))
	}

	inbound, err := m.store.LinksTo(ctx, e.ID, "")
	if err != nil {
		return s.String() + fmt.Sprintf("Error: %v\n", err)
	}
	for _, l := range inbound {
		s.WriteString(fmt.Sprintf("  • %s ← %s\n", l.Relation, m.entityName(ctx, l.OwnerID)))
	}
	if len(links) == 0 && len(inbound) == 0 {
		s.WriteString("  none\n")
	}

	return s.String()
}

func (m Model) entityName(ctx context.Context, id string) string {
	e, err := m.store.Get(ctx, id)
	if err != nil {
		return id
	}
	return fmt.Sprintf("%s (%s)", e.Name, e.Kind)
}

func (m Model) renderField(label, value string) string {
	return fieldLabelStyle.Render(label+":") + " " + fieldValueStyle.Render(value) + "\n"
}

func (m Model) renderDetailHelp() string {
	help := []string{
		"g: Graph",
		"Esc: Back",
		"q: Quit",
	}
	return helpStyle.Render(strings.Join(help, " • "))
}

func (m Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.viewMode = ViewList
	case "g":
		if m.currentKind() == models.KindAccount {
			m.openGraph(m.selectedID)
		} else {
			m.openGraph("")
		}
	}

	return m, nil
}
