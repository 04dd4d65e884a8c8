package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/crmsync/models"
)

var legacyIDField = map[models.Kind]string{
	models.KindAccount:     models.FieldLegacyCompanyID,
	models.KindContact:     models.FieldLegacyContactID,
	models.KindOpportunity: models.FieldLegacyLeadID,
	models.KindUser:        models.FieldLegacyStaffID,
	models.KindPublication: models.FieldLegacyPublicationID,
}

func (m Model) currentKind() models.Kind {
	return models.AllKinds[m.kindIndex]
}

func (m *Model) loadEntities() {
	entities, err := m.store.List(context.Background(), m.currentKind())
	if err != nil {
		m.err = err
		m.entities = nil
		return
	}
	m.entities = entities
	if m.selectedRow >= len(entities) {
		m.selectedRow = 0
	}
}

func (m Model) renderListView() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("CRMSYNC"))
	s.WriteString("\n\n")

	s.WriteString(m.renderTabs())
	s.WriteString("\n\n")

	if m.err != nil {
		s.WriteString(fmt.Sprintf("Error: %v", m.err))
	} else {
		s.WriteString(m.renderTable())
	}
	s.WriteString("\n\n")

	s.WriteString(m.renderListHelp())

	return s.String()
}

func (m Model) renderTabs() string {
	var rendered []string
	for i, kind := range models.AllKinds {
		label := fmt.Sprintf("%s (%d)", kind, m.count(kind))
		if i == m.kindIndex {
			rendered = append(rendered, tabActiveStyle.Render(label))
		} else {
			rendered = append(rendered, tabInactiveStyle.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

func (m Model) count(kind models.Kind) int {
	if m.status == nil {
		return 0
	}
	return m.status.Counts[kind]
}

func (m Model) renderTable() string {
	kind := m.currentKind()
	columns := []table.Column{
		{Title: "Name", Width: 30},
		{Title: "Legacy ID", Width: 12},
		{Title: "Detail", Width: 20},
		{Title: "Updated", Width: 19},
	}

	var rows []table.Row
	for _, e := range m.entities {
		rows = append(rows, table.Row{
			e.Name,
			e.Get(legacyIDField[kind]),
			summaryField(e),
			e.UpdatedAt.UTC().Format("2006-01-02 15:04:05"),
		})
	}

	height := m.height - 10
	if height < 3 {
		height = 3
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(height),
	)

	if m.selectedRow < len(rows) {
		t.SetCursor(m.selectedRow)
	}

	return t.View()
}

// summaryField picks the most telling field for a kind.
func summaryField(e *models.Entity) string {
	switch e.Kind {
	case models.KindAccount:
		return e.Get(models.FieldAccountType)
	case models.KindContact, models.KindUser:
		return e.Get(models.FieldEmail)
	case models.KindOpportunity:
		return e.Get(models.FieldStage)
	case models.KindTeam:
		return e.Get(models.FieldDescription)
	}
	return ""
}

func (m Model) renderListHelp() string {
	help := []string{
		"↑/↓: Navigate",
		"Tab: Switch kind",
		"Enter: View details",
		"Esc: Back to sync",
		"q: Quit",
	}
	return helpStyle.Render(strings.Join(help, " • "))
}

func (m Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.selectedRow > 0 {
			m.selectedRow--
		}
	case "down", "j":
		if m.selectedRow < len(m.entities)-1 {
			m.selectedRow++
		}
	case "tab":
		m.kindIndex = (m.kindIndex + 1) % len(models.AllKinds)
		m.selectedRow = 0
		m.loadEntities()
	case "enter":
		if m.selectedRow < len(m.entities) {
			m.selectedID = m.entities[m.selectedRow].ID
			m.viewMode = ViewDetail
		}
	case "esc":
		m.viewMode = ViewSync
		m.refresh()
	}

	return m, nil
}
