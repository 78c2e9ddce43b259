// ABOUTME: Tests for the calendar sync dashboard
// ABOUTME: Verifies integration loading, key handling and sync completion messages
package tui

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/harperreed/vesta/config"
	"github.com/harperreed/vesta/db"
	calsync "github.com/harperreed/vesta/sync"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	database.SetMaxOpenConns(1)
	require.NoError(t, db.InitSchema(database))
	t.Cleanup(func() { _ = database.Close() })
	return database
}

// setupService builds a service whose provider client can never be created.
func setupService(t *testing.T, database *sql.DB) *calsync.Service {
	t.Helper()
	cfg := &config.Config{
		EncryptionKey:   "test encryption key",
		StateSecret:     "test state secret",
		ProviderTimeout: time.Second,
		SyncTimeout:     time.Minute,
	}
	factory := func(ctx context.Context, token *oauth2.Token) (calsync.CalendarAPI, error) {
		return nil, errors.New("provider unavailable")
	}
	svc, err := calsync.NewService(database, cfg, calsync.NewLocalLocker(), zap.NewNop(), factory)
	require.NoError(t, err)
	t.Cleanup(svc.Wait)
	return svc
}

func connect(t *testing.T, svc *calsync.Service) uuid.UUID {
	t.Helper()
	userID := uuid.New()
	_, err := svc.Tokens.StoreUserIntegration(context.Background(), userID, &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	return userID
}

func loaded(t *testing.T, m Model) Model {
	t.Helper()
	updated, _ := m.Update(m.loadIntegrations())
	return updated.(Model)
}

func TestDashboardEmpty(t *testing.T) {
	database := setupTestDB(t)
	m := loaded(t, NewModel(database, setupService(t, database)))

	assert.Empty(t, m.rows)
	assert.Contains(t, m.View(), "No connected calendars")
}

func TestDashboardListsIntegrations(t *testing.T) {
	database := setupTestDB(t)
	svc := setupService(t, database)
	first := connect(t, svc)
	second := connect(t, svc)

	m := loaded(t, NewModel(database, svc))
	require.Len(t, m.rows, 2)

	view := m.View()
	assert.Contains(t, view, "Google Calendar Sync")
	assert.Contains(t, view, shortID(first))
	assert.Contains(t, view, shortID(second))
	assert.Contains(t, view, "Not synced yet")
	assert.Contains(t, view, "no push channel")
}

func TestDashboardKeyNavigation(t *testing.T) {
	database := setupTestDB(t)
	svc := setupService(t, database)
	connect(t, svc)
	connect(t, svc)
	m := loaded(t, NewModel(database, svc))

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = updated.(Model)
	assert.Equal(t, 1, m.selected)

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = updated.(Model)
	assert.Equal(t, 1, m.selected, "selection stops at the last row")

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m = updated.(Model)
	assert.Equal(t, 0, m.selected)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestDashboardSyncFailureIsReported(t *testing.T) {
	database := setupTestDB(t)
	svc := setupService(t, database)
	userID := connect(t, svc)
	m := loaded(t, NewModel(database, svc))

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(Model)
	require.NotNil(t, cmd)
	assert.True(t, m.syncing[userID])
	assert.Contains(t, m.View(), "Syncing...")

	msg := cmd()
	complete, ok := msg.(SyncCompleteMsg)
	require.True(t, ok)
	assert.False(t, complete.Result.Success)

	updated, reload := m.Update(complete)
	m = updated.(Model)
	assert.False(t, m.syncing[userID])
	require.NotEmpty(t, m.messages)
	assert.Contains(t, m.messages[len(m.messages)-1], "sync failed")

	m = loaded(t, m)
	require.NotNil(t, reload)
	require.NotNil(t, m.rows[0].LastRun)
	assert.Contains(t, m.View(), "Error")
}

func TestDashboardMessagesAreCapped(t *testing.T) {
	m := NewModel(nil, nil)
	for i := 0; i < maxMessages+3; i++ {
		m.addMessage("message")
	}
	assert.Len(t, m.messages, maxMessages)
}

func TestFormatTimeSince(t *testing.T) {
	tests := []struct {
		name     string
		time     time.Time
		expected string
	}{
		{"just now", time.Now().Add(-30 * time.Second), "just now"},
		{"minutes ago", time.Now().Add(-5 * time.Minute), "5 minutes ago"},
		{"one hour", time.Now().Add(-61 * time.Minute), "1 hour ago"},
		{"hours ago", time.Now().Add(-2 * time.Hour), "2 hours ago"},
		{"days ago", time.Now().Add(-3 * 24 * time.Hour), "3 days ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatTimeSince(tt.time))
		})
	}
}
