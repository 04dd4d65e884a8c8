// ABOUTME: TUI view for legacy sync status and controls
// ABOUTME: Shows each category's watermark and last tally and triggers pulls, full runs and exports
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/crmsync/models"
	crmsync "github.com/harperreed/crmsync/sync"
)

var (
	syncTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			MarginBottom(1)

	syncHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Underline(true)

	syncServiceStyle = lipgloss.NewStyle().
				Bold(true).
				Width(18)

	syncIdleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	syncSyncingStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("11")).
				Bold(true)

	syncErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	syncSelectedStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("235")).
				Foreground(lipgloss.Color("255")).
				Bold(true)

	syncMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Italic(true)
)

// allCategories marks a full run in SyncCompleteMsg.
const allCategories = "all"

const maxSyncMessages = 50

// SyncCompleteMsg is sent when a pull, full run or export completes.
type SyncCompleteMsg struct {
	Category string
	Result   *models.CategoryResult
	Report   *models.Report
	Exported int
	Error    error
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) renderSyncView() string {
	var s strings.Builder

	s.WriteString(syncTitleStyle.Render("Legacy Sync Management"))
	s.WriteString("\n\n")

	if m.err != nil {
		s.WriteString(syncErrorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		s.WriteString("\n\n")
	}

	if m.status != nil && m.status.Phase != crmsync.PhaseIdle {
		s.WriteString(syncSyncingStyle.Render(fmt.Sprintf("⟳ %s %s", m.status.Phase, m.status.Category)))
		s.WriteString("\n\n")
	}

	s.WriteString(syncHeaderStyle.Render("Category Status"))
	s.WriteString("\n\n")

	for i, category := range crmsync.Categories {
		var row strings.Builder

		if i == m.selectedCategory {
			row.WriteString("▶ ")
			row.WriteString(syncSelectedStyle.Render(syncServiceStyle.Render(category)))
		} else {
			row.WriteString("  ")
			row.WriteString(syncServiceStyle.Render(category))
		}

		state, hasState := m.states[category]
		switch {
		case m.syncInProgress[category] || m.syncInProgress[allCategories]:
			row.WriteString(syncSyncingStyle.Render("  ⟳ Syncing..."))
		case hasState && state.Status == "error":
			row.WriteString(syncErrorStyle.Render("  ✗ Error"))
			if state.ErrorMessage != "" {
				row.WriteString(syncErrorStyle.Render(": " + state.ErrorMessage))
			}
		case m.lastSync(category) == nil:
			row.WriteString(syncMessageStyle.Render("  Not synced yet"))
		default:
			row.WriteString(syncIdleStyle.Render("  ✓ Idle"))
			row.WriteString(syncMessageStyle.Render(" • Last synced " + formatTimeSince(m.now(), *m.lastSync(category))))
		}

		if t := m.lastTallies[category]; t != nil {
			row.WriteString(syncMessageStyle.Render(fmt.Sprintf(" • %d ok, %d errors, %d deferred", t.Succeeded, t.Failed, t.Deferred)))
		}

		s.WriteString(row.String())
		s.WriteString("\n")
	}

	s.WriteString("\n")

	if len(m.syncMessages) > 0 {
		s.WriteString(syncHeaderStyle.Render("Recent Activity"))
		s.WriteString("\n\n")
		start := 0
		if len(m.syncMessages) > 5 {
			start = len(m.syncMessages) - 5
		}
		for i := start; i < len(m.syncMessages); i++ {
			s.WriteString(syncMessageStyle.Render("  " + m.syncMessages[i]))
			s.WriteString("\n")
		}
		s.WriteString("\n")
	}

	s.WriteString(m.renderSyncHelp())

	return s.String()
}

func (m Model) renderSyncHelp() string {
	help := []string{
		"↑/↓: Select category",
		"Enter: Pull selected",
		"a: Sync all",
		"x: Export",
		"r: Refresh",
		"l: Browse",
		"g: Graph",
		"q: Quit",
	}
	return helpStyle.Render(strings.Join(help, " • "))
}

func (m Model) lastSync(category string) *time.Time {
	if m.status == nil {
		return nil
	}
	return m.status.LastSync[category]
}

func (m Model) anyInProgress() bool {
	for _, busy := range m.syncInProgress {
		if busy {
			return true
		}
	}
	return false
}

func (m Model) handleSyncKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.selectedCategory > 0 {
			m.selectedCategory--
		}
	case "down", "j":
		if m.selectedCategory < len(crmsync.Categories)-1 {
			m.selectedCategory++
		}
	case "enter":
		category := crmsync.Categories[m.selectedCategory]
		m.syncInProgress[category] = true
		m.addSyncMessage(fmt.Sprintf("Starting %s sync...", category))
		return m, tea.Batch(m.pullCategory(category), tick())
	case "a":
		m.syncInProgress[allCategories] = true
		m.addSyncMessage("Starting full sync...")
		return m, tea.Batch(m.syncAll(), tick())
	case "x":
		m.syncInProgress[crmsync.CategoryOpportunityUpdates] = true
		m.addSyncMessage("Exporting opportunity updates...")
		return m, m.exportUpdates()
	case "r":
		m.refresh()
	case "l":
		m.viewMode = ViewList
		m.selectedRow = 0
		m.loadEntities()
	case "g":
		m.openGraph("")
	}

	return m, nil
}

// pullCategory runs one category off the UI goroutine.
func (m Model) pullCategory(category string) tea.Cmd {
	runner := m.runner
	return func() tea.Msg {
		result, err := runner.Pull(context.Background(), category)
		return SyncCompleteMsg{Category: category, Result: result, Error: err}
	}
}

func (m Model) syncAll() tea.Cmd {
	runner := m.runner
	return func() tea.Msg {
		report, err := runner.RunAll(context.Background(), "tui")
		return SyncCompleteMsg{Category: allCategories, Report: report, Error: err}
	}
}

func (m Model) exportUpdates() tea.Cmd {
	runner := m.runner
	return func() tea.Msg {
		updates, err := runner.Export(context.Background(), nil)
		return SyncCompleteMsg{Category: crmsync.CategoryOpportunityUpdates, Exported: len(updates), Error: err}
	}
}

// addSyncMessage adds a message to the sync message log.
func (m *Model) addSyncMessage(msg string) {
	timestamp := m.now().Format("15:04:05")
	m.syncMessages = append(m.syncMessages, fmt.Sprintf("[%s] %s", timestamp, msg))
	if len(m.syncMessages) > maxSyncMessages {
		m.syncMessages = m.syncMessages[len(m.syncMessages)-maxSyncMessages:]
	}
}

// handleSyncComplete handles sync completion messages.
func (m *Model) handleSyncComplete(msg SyncCompleteMsg) tea.Cmd {
	m.syncInProgress[msg.Category] = false

	switch {
	case errors.Is(msg.Error, crmsync.ErrBusy):
		m.addSyncMessage(fmt.Sprintf("✗ %s skipped: a sync is already running", msg.Category))
	case msg.Error != nil:
		m.addSyncMessage(fmt.Sprintf("✗ %s sync failed: %v", msg.Category, msg.Error))
	case msg.Report != nil:
		for i := range msg.Report.Categories {
			m.recordResult(&msg.Report.Categories[i])
		}
		m.addSyncMessage(fmt.Sprintf("✓ run %s: %d ok, %d errors, %d deferred, %d relinked",
			msg.Report.RunID, msg.Report.TotalSuccess, msg.Report.TotalErrors, msg.Report.TotalDeferred, msg.Report.Relinked))
		if msg.Report.Fatal != "" {
			m.addSyncMessage(fmt.Sprintf("✗ run aborted: %s", msg.Report.Fatal))
		}
	case msg.Result != nil:
		m.recordResult(msg.Result)
	default:
		m.addSyncMessage(fmt.Sprintf("✓ exported %d opportunity updates", msg.Exported))
	}

	m.refresh()
	return nil
}

func (m *Model) recordResult(r *models.CategoryResult) {
	if r.Error != "" {
		m.addSyncMessage(fmt.Sprintf("✗ %s sync failed: %s", r.Category, r.Error))
		return
	}
	m.lastTallies[r.Category] = r.Tally
	m.addSyncMessage(fmt.Sprintf("✓ %s: %d ok, %d errors, %d deferred", r.Category, r.Tally.Succeeded, r.Tally.Failed, r.Tally.Deferred))
}

// formatTimeSince formats a time duration in a human-readable way.
func formatTimeSince(now, t time.Time) string {
	duration := now.Sub(t)

	if duration < time.Minute {
		return "just now"
	} else if duration < time.Hour {
		minutes := int(duration.Minutes())
		if minutes == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", minutes)
	} else if duration < 24*time.Hour {
		hours := int(duration.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	} else {
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}
