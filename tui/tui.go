// ABOUTME: Terminal dashboard for calendar integrations using bubbletea
// ABOUTME: Lists connected users with their last sync run and triggers per-user syncs
package tui

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/harperreed/vesta/db"
	"github.com/harperreed/vesta/models"
	calsync "github.com/harperreed/vesta/sync"
)

const maxMessages = 5

// IntegrationRow is one connected user as shown on the dashboard.
type IntegrationRow struct {
	UserID         uuid.UUID
	CalendarID     string
	LastSync       *time.Time
	WatchExpiresAt *time.Time
	LastRun        *models.SyncRun
}

// Model is the main bubbletea model
type Model struct {
	db  *sql.DB
	svc *calsync.Service

	rows     []IntegrationRow
	selected int
	syncing  map[uuid.UUID]bool
	messages []string
	spinner  spinner.Model

	width  int
	height int
	err    error
}

// NewModel creates a new dashboard model
func NewModel(database *sql.DB, svc *calsync.Service) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = syncingStyle

	return Model{
		db:      database,
		svc:     svc,
		syncing: make(map[uuid.UUID]bool),
		spinner: s,
		width:   80,
		height:  24,
	}
}

// Run starts the dashboard full screen and blocks until the user quits.
func Run(database *sql.DB, svc *calsync.Service) error {
	_, err := tea.NewProgram(NewModel(database, svc), tea.WithAltScreen()).Run()
	return err
}

// integrationsLoadedMsg carries a fresh dashboard snapshot.
type integrationsLoadedMsg struct {
	rows []IntegrationRow
	err  error
}

// SyncCompleteMsg is sent when a sync operation completes.
type SyncCompleteMsg struct {
	UserID uuid.UUID
	Result calsync.SyncResult
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.loadIntegrations)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case integrationsLoadedMsg:
		m.rows, m.err = msg.rows, msg.err
		if m.selected >= len(m.rows) {
			m.selected = max(len(m.rows)-1, 0)
		}
		return m, nil
	case SyncCompleteMsg:
		return m, m.handleSyncComplete(msg)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.selected < len(m.rows)-1 {
			m.selected++
		}
	case "enter", "s":
		if m.selected < len(m.rows) {
			userID := m.rows[m.selected].UserID
			if m.syncing[userID] {
				return m, nil
			}
			m.syncing[userID] = true
			m.addMessage(fmt.Sprintf("Starting sync for %s...", shortID(userID)))
			return m, m.syncUser(userID)
		}
	case "r":
		return m, m.loadIntegrations
	}
	return m, nil
}

// loadIntegrations reads every active integration and its latest run.
func (m Model) loadIntegrations() tea.Msg {
	integrations, err := db.ListActiveIntegrations(m.db, models.ProviderGoogleCalendar)
	if err != nil {
		return integrationsLoadedMsg{err: err}
	}

	rows := make([]IntegrationRow, 0, len(integrations))
	for i := range integrations {
		integ := &integrations[i]
		run, err := db.GetLastSyncRun(m.db, integ.UserID)
		if err != nil {
			return integrationsLoadedMsg{err: err}
		}
		rows = append(rows, IntegrationRow{
			UserID:         integ.UserID,
			CalendarID:     integ.CalendarID,
			LastSync:       integ.LastSyncAt,
			WatchExpiresAt: integ.WebhookExpiresAt,
			LastRun:        run,
		})
	}
	return integrationsLoadedMsg{rows: rows}
}

func (m Model) syncUser(userID uuid.UUID) tea.Cmd {
	return func() tea.Msg {
		result := m.svc.Engine.SyncFromGoogle(context.Background(), userID, models.TriggerTUI)
		return SyncCompleteMsg{UserID: userID, Result: result}
	}
}

func (m *Model) handleSyncComplete(msg SyncCompleteMsg) tea.Cmd {
	delete(m.syncing, msg.UserID)

	if msg.Result.Success {
		m.addMessage(fmt.Sprintf("✓ %s synced: %d pulled, %d pushed",
			shortID(msg.UserID), msg.Result.Pulled, msg.Result.Pushed))
	} else {
		m.addMessage(fmt.Sprintf("✗ %s sync failed: %s", shortID(msg.UserID), msg.Result.Error))
	}

	return m.loadIntegrations
}

func (m *Model) addMessage(msg string) {
	timestamp := time.Now().Format("15:04:05")
	m.messages = append(m.messages, fmt.Sprintf("[%s] %s", timestamp, msg))
	if len(m.messages) > maxMessages {
		m.messages = m.messages[len(m.messages)-maxMessages:]
	}
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Underline(true)

	idleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	syncingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	selectedStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255")).
			Bold(true)

	messageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)
