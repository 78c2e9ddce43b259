// ABOUTME: MCP prompt handlers for calendar sync workflows
// ABOUTME: Builds review prompts from a user's integration status, sync history and agenda
package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/vesta/db"
	calsync "github.com/harperreed/vesta/sync"
)

const (
	PromptSyncReview = "calendar-sync-review"
	PromptAgenda     = "weekly-agenda"
)

type PromptHandlers struct {
	db  *sql.DB
	svc *calsync.Service
}

func NewPromptHandlers(database *sql.DB, svc *calsync.Service) *PromptHandlers {
	return &PromptHandlers{db: database, svc: svc}
}

// GetPrompt generates the prompt message based on the template
func (h *PromptHandlers) GetPrompt(ctx context.Context, request *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	switch request.Params.Name {
	case PromptSyncReview:
		return h.getSyncReviewPrompt(request.Params.Arguments)
	case PromptAgenda:
		return h.getAgendaPrompt(request.Params.Arguments)
	default:
		return nil, fmt.Errorf("unknown prompt: %s", request.Params.Name)
	}
}

func userMessage(description, text string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []*mcp.PromptMessage{
			{
				Role:    "user",
				Content: &mcp.TextContent{Text: text},
			},
		},
	}
}

func (h *PromptHandlers) getSyncReviewPrompt(args map[string]string) (*mcp.GetPromptResult, error) {
	userID, err := parseUserID(args["user_id"])
	if err != nil {
		return nil, err
	}

	status, err := h.svc.Status(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get calendar status: %w", err)
	}
	runs, err := db.ListSyncRuns(h.db, userID, 10)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sync runs: %w", err)
	}

	var promptText strings.Builder
	promptText.WriteString("Review the health of this user's Google Calendar sync:\n\n")
	promptText.WriteString(fmt.Sprintf("Connected: %t\n", status.Connected))
	promptText.WriteString(fmt.Sprintf("Sync direction: %s\n", status.SyncDirection))
	if status.DisabledReason != "" {
		promptText.WriteString(fmt.Sprintf("Disabled because: %s\n", status.DisabledReason))
	}
	if status.LastSync != nil {
		promptText.WriteString(fmt.Sprintf("Last successful sync: %s\n", status.LastSync.UTC().Format(time.RFC3339)))
	}
	if status.WatchExpiresAt != nil {
		promptText.WriteString(fmt.Sprintf("Push channel expires: %s\n", status.WatchExpiresAt.UTC().Format(time.RFC3339)))
	} else if status.Connected {
		promptText.WriteString("Push channel: none registered\n")
	}

	if len(runs) > 0 {
		promptText.WriteString("\nRecent sync runs (newest first):\n")
		for _, run := range runs {
			promptText.WriteString(fmt.Sprintf("- %s via %s: %s, pulled %d, pushed %d, failed %d",
				run.StartedAt.UTC().Format(time.RFC3339), run.Trigger, run.Status, run.Pulled, run.Pushed, run.Failed))
			if run.Error != nil {
				promptText.WriteString(fmt.Sprintf(" (%s)", *run.Error))
			}
			promptText.WriteString("\n")
		}
	}

	promptText.WriteString("\nPlease provide:")
	promptText.WriteString("\n1. Whether the integration looks healthy")
	promptText.WriteString("\n2. The likely cause of any failures")
	promptText.WriteString("\n3. What the user or an operator should do next")

	return userMessage("Calendar sync review", promptText.String()), nil
}

func (h *PromptHandlers) getAgendaPrompt(args map[string]string) (*mcp.GetPromptResult, error) {
	userID, err := parseUserID(args["user_id"])
	if err != nil {
		return nil, err
	}

	from := time.Now().UTC()
	to := from.Add(7 * 24 * time.Hour)
	appointments, err := db.ListAppointments(h.db, userID, db.AppointmentFilter{From: &from, To: &to, Limit: 200})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch appointments: %w", err)
	}

	var promptText strings.Builder
	promptText.WriteString(fmt.Sprintf("Here is the agenda for the next 7 days (%d appointments):\n\n", len(appointments)))
	for i := range appointments {
		a := &appointments[i]
		promptText.WriteString(fmt.Sprintf("- %s to %s: %s [%s, %s]",
			a.StartsAt.UTC().Format("Mon 02 Jan 15:04"), a.EndsAt.UTC().Format("15:04"), a.Title(), a.Type, a.Status))
		if a.Location != "" {
			promptText.WriteString(" at " + a.Location)
		}
		promptText.WriteString("\n")
	}

	promptText.WriteString("\nPlease summarize the week, flag overlapping or back-to-back appointments")
	promptText.WriteString(" and suggest which ones still need confirming.")

	return userMessage("Weekly agenda", promptText.String()), nil
}
