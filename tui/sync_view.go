// ABOUTME: Renders the calendar integration dashboard
// ABOUTME: Shows per-user sync state, watch channel expiry and recent activity
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/vesta/models"
)

func (m Model) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("Google Calendar Sync"))
	s.WriteString("\n\n")

	if m.err != nil {
		s.WriteString(errorStyle.Render("Failed to load integrations: " + m.err.Error()))
		s.WriteString("\n\n")
		s.WriteString(helpStyle.Render("r: Retry • q: Quit"))
		return s.String()
	}

	if len(m.rows) == 0 {
		s.WriteString(messageStyle.Render("No connected calendars. Users connect from the web app."))
		s.WriteString("\n\n")
		s.WriteString(helpStyle.Render("r: Refresh • q: Quit"))
		return s.String()
	}

	s.WriteString(headerStyle.Render("Connected Users"))
	s.WriteString("\n\n")

	for i, row := range m.rows {
		var line strings.Builder

		if i == m.selected {
			line.WriteString("▶ ")
			line.WriteString(selectedStyle.Render(shortID(row.UserID)))
		} else {
			line.WriteString("  ")
			line.WriteString(shortID(row.UserID))
		}
		line.WriteString("  ")
		line.WriteString(m.renderRowStatus(row))

		s.WriteString(line.String())
		s.WriteString("\n")
	}
	s.WriteString("\n")

	if len(m.messages) > 0 {
		s.WriteString(headerStyle.Render("Recent Activity"))
		s.WriteString("\n\n")
		for _, msg := range m.messages {
			s.WriteString(messageStyle.Render("  " + msg))
			s.WriteString("\n")
		}
		s.WriteString("\n")
	}

	s.WriteString(m.renderHelp())
	return s.String()
}

func (m Model) renderRowStatus(row IntegrationRow) string {
	if m.syncing[row.UserID] {
		return syncingStyle.Render(m.spinner.View() + " Syncing...")
	}

	var status string
	switch {
	case row.LastRun == nil:
		status = messageStyle.Render("Not synced yet")
	case row.LastRun.Status == models.SyncStatusError:
		status = errorStyle.Render("✗ Error")
		if row.LastRun.Error != nil {
			status += errorStyle.Render(": " + *row.LastRun.Error)
		}
	case row.LastRun.Status == models.SyncStatusRunning:
		status = syncingStyle.Render("⟳ Running")
	default:
		status = idleStyle.Render("✓ Idle")
	}

	if row.LastSync != nil {
		status += messageStyle.Render(" • Last synced " + formatTimeSince(*row.LastSync))
	}
	if row.WatchExpiresAt == nil {
		status += messageStyle.Render(" • no push channel")
	} else {
		status += messageStyle.Render(" • channel until " + row.WatchExpiresAt.Local().Format("Jan 02 15:04"))
	}
	return status
}

func (m Model) renderHelp() string {
	help := []string{
		"↑/↓: Select user",
		"Enter: Sync selected",
		"r: Refresh",
		"q: Quit",
	}
	return helpStyle.Render(strings.Join(help, " • "))
}

// formatTimeSince formats a time duration in a human-readable way.
func formatTimeSince(t time.Time) string {
	duration := time.Since(t)

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
	}
	days := int(duration.Hours() / 24)
	if days == 1 {
		return "1 day ago"
	}
	return fmt.Sprintf("%d days ago", days)
}
