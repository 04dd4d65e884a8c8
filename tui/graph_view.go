package tui

import (
	"context"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/crmsync/viz"
)

func (m Model) renderGraphView() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("GRAPH VIEW: " + m.graphTitle))
	s.WriteString("\n\n")

	switch {
	case m.err != nil:
		s.WriteString("Error: " + m.err.Error() + "\n")
	case m.graphDOT == "":
		s.WriteString("Nothing to draw.\n")
	default:
		s.WriteString(lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Render(m.graphDOT))
	}

	s.WriteString("\n\n")
	s.WriteString(m.renderGraphHelp())

	return s.String()
}

func (m Model) renderGraphHelp() string {
	help := []string{
		"Esc: Back",
		"q: Quit",
	}
	return helpStyle.Render(strings.Join(help, " • "))
}

func (m Model) handleGraphKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.viewMode = m.graphBack
		m.graphDOT = ""
		m.err = nil
	}

	return m, nil
}

// openGraph renders one account's neighbourhood, or everything when
// accountID is empty.
func (m *Model) openGraph(accountID string) {
	m.graphBack = m.viewMode
	m.viewMode = ViewGraph
	m.err = nil

	ctx := context.Background()
	generator := viz.NewGraphGenerator(m.store)

	var dot string
	var err error
	if accountID == "" {
		m.graphTitle = "all entities"
		dot, err = generator.GenerateCompleteGraph(ctx)
	} else {
		m.graphTitle = m.entityName(ctx, accountID)
		dot, err = generator.GenerateAccountGraph(ctx, accountID)
	}
	if err != nil {
		m.err = err
		return
	}
	m.graphDOT = dot
}
