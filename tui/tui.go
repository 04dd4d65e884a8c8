// ABOUTME: Terminal User Interface using bubbletea framework
// ABOUTME: Sync control panel plus a read-only browser over the synced entities
package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/crmsync/db"
	"github.com/harperreed/crmsync/models"
	crmsync "github.com/harperreed/crmsync/sync"
)

// ViewMode represents the current TUI view
type ViewMode int

const (
	ViewSync ViewMode = iota
	ViewList
	ViewDetail
	ViewGraph
)

// Model is the main bubbletea model
type Model struct {
	runner   *crmsync.Runner
	store    *db.Store
	viewMode ViewMode

	// Sync view state
	selectedCategory int
	syncInProgress   map[string]bool
	syncMessages     []string
	lastTallies      map[string]*models.Tally
	status           *crmsync.Status
	states           map[string]models.Watermark

	// List view state
	kindIndex   int
	selectedRow int
	entities    []*models.Entity

	// Detail view state
	selectedID string

	// Graph view state
	graphDOT   string
	graphTitle string
	graphBack  ViewMode

	// UI state
	width  int
	height int
	err    error
	now    func() time.Time
}

// NewModel creates a new TUI model
func NewModel(runner *crmsync.Runner, store *db.Store) Model {
	m := Model{
		runner:         runner,
		store:          store,
		viewMode:       ViewSync,
		syncInProgress: make(map[string]bool),
		lastTallies:    make(map[string]*models.Tally),
		width:          80,
		height:         24,
		now:            time.Now,
	}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case SyncCompleteMsg:
		cmd := m.handleSyncComplete(msg)
		return m, cmd
	case tickMsg:
		m.refresh()
		if m.anyInProgress() {
			return m, tick()
		}
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	switch m.viewMode {
	case ViewSync:
		return m.renderSyncView()
	case ViewList:
		return m.renderListView()
	case ViewDetail:
		return m.renderDetailView()
	case ViewGraph:
		return m.renderGraphView()
	}
	return ""
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	}

	// Delegate to view-specific handlers
	switch m.viewMode {
	case ViewSync:
		return m.handleSyncKeys(msg)
	case ViewList:
		return m.handleListKeys(msg)
	case ViewDetail:
		return m.handleDetailKeys(msg)
	case ViewGraph:
		return m.handleGraphKeys(msg)
	}

	return m, nil
}

// refresh reloads the engine status and per-category sync states.
func (m *Model) refresh() {
	ctx := context.Background()
	status, err := m.runner.Status(ctx)
	if err != nil {
		m.err = err
		return
	}
	m.status = status

	states, err := m.store.ListWatermarks(ctx)
	if err != nil {
		m.err = err
		return
	}
	m.states = make(map[string]models.Watermark, len(states))
	for _, s := range states {
		m.states[s.Category] = s
	}
	m.err = nil
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			MarginBottom(1)

	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			Background(lipgloss.Color("235")).
			Padding(0, 2)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Padding(0, 2)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			MarginTop(1)
)
