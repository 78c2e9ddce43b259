// ABOUTME: Calendar sync MCP tool handlers
// ABOUTME: Lets an agent inspect integration status, run syncs, change direction and list appointments
package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/vesta/db"
	"github.com/harperreed/vesta/models"
	calsync "github.com/harperreed/vesta/sync"
)

type CalendarHandlers struct {
	db  *sql.DB
	svc *calsync.Service
}

func NewCalendarHandlers(database *sql.DB, svc *calsync.Service) *CalendarHandlers {
	return &CalendarHandlers{db: database, svc: svc}
}

func parseUserID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, fmt.Errorf("user_id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user_id: %w", err)
	}
	return id, nil
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

type UserInput struct {
	UserID string `json:"user_id" jsonschema:"ID of the CRM user"`
}

type SyncRunOutput struct {
	ID         string  `json:"id"`
	Trigger    string  `json:"trigger"`
	Status     string  `json:"status"`
	Pulled     int     `json:"pulled"`
	Pushed     int     `json:"pushed"`
	Failed     int     `json:"failed"`
	Error      string  `json:"error,omitempty"`
	StartedAt  string  `json:"started_at"`
	FinishedAt *string `json:"finished_at,omitempty"`
}

type CalendarStatusOutput struct {
	Connected      bool           `json:"connected"`
	CalendarID     string         `json:"calendar_id,omitempty"`
	SyncDirection  string         `json:"sync_direction"`
	LastSync       *string        `json:"last_sync,omitempty"`
	WatchExpiresAt *string        `json:"watch_expires_at,omitempty"`
	DisabledReason string         `json:"disabled_reason,omitempty"`
	LastRun        *SyncRunOutput `json:"last_run,omitempty"`
}

func syncRunToOutput(run *models.SyncRun) *SyncRunOutput {
	if run == nil {
		return nil
	}
	out := &SyncRunOutput{
		ID:         run.ID,
		Trigger:    run.Trigger,
		Status:     run.Status,
		Pulled:     run.Pulled,
		Pushed:     run.Pushed,
		Failed:     run.Failed,
		StartedAt:  run.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt: formatTime(run.FinishedAt),
	}
	if run.Error != nil {
		out.Error = *run.Error
	}
	return out
}

func statusToOutput(status *calsync.CalendarStatus) CalendarStatusOutput {
	return CalendarStatusOutput{
		Connected:      status.Connected,
		CalendarID:     status.CalendarID,
		SyncDirection:  string(status.SyncDirection),
		LastSync:       formatTime(status.LastSync),
		WatchExpiresAt: formatTime(status.WatchExpiresAt),
		DisabledReason: status.DisabledReason,
		LastRun:        syncRunToOutput(status.LastRun),
	}
}

func (h *CalendarHandlers) CalendarStatus(_ context.Context, request *mcp.CallToolRequest, input UserInput) (*mcp.CallToolResult, CalendarStatusOutput, error) {
	userID, err := parseUserID(input.UserID)
	if err != nil {
		return nil, CalendarStatusOutput{}, err
	}

	status, err := h.svc.Status(userID)
	if err != nil {
		return nil, CalendarStatusOutput{}, fmt.Errorf("failed to get calendar status: %w", err)
	}

	return nil, statusToOutput(status), nil
}

type SyncCalendarOutput struct {
	Success      bool   `json:"success"`
	SyncedEvents int    `json:"synced_events"`
	Pulled       int    `json:"pulled"`
	Pushed       int    `json:"pushed"`
	Failed       int    `json:"failed"`
	FullResync   bool   `json:"full_resync"`
	Error        string `json:"error,omitempty"`
}

// SyncCalendar runs a sync and waits for it. A failed sync is reported in
// the output rather than as a tool error.
func (h *CalendarHandlers) SyncCalendar(ctx context.Context, request *mcp.CallToolRequest, input UserInput) (*mcp.CallToolResult, SyncCalendarOutput, error) {
	userID, err := parseUserID(input.UserID)
	if err != nil {
		return nil, SyncCalendarOutput{}, err
	}

	result := h.svc.Engine.SyncFromGoogle(ctx, userID, models.TriggerAgent)
	return nil, SyncCalendarOutput{
		Success:      result.Success,
		SyncedEvents: result.SyncedEvents,
		Pulled:       result.Pulled,
		Pushed:       result.Pushed,
		Failed:       result.Failed,
		FullResync:   result.FullResync,
		Error:        result.Error,
	}, nil
}

type SetSyncDirectionInput struct {
	UserID    string `json:"user_id" jsonschema:"ID of the CRM user"`
	Direction string `json:"direction" jsonschema:"One of bidirectional, local_to_remote, remote_to_local, none"`
}

type SetSyncDirectionOutput struct {
	Success       bool   `json:"success"`
	SyncDirection string `json:"sync_direction"`
}

func (h *CalendarHandlers) SetSyncDirection(_ context.Context, request *mcp.CallToolRequest, input SetSyncDirectionInput) (*mcp.CallToolResult, SetSyncDirectionOutput, error) {
	userID, err := parseUserID(input.UserID)
	if err != nil {
		return nil, SetSyncDirectionOutput{}, err
	}

	direction, err := models.ParseSyncDirection(input.Direction)
	if err != nil {
		return nil, SetSyncDirectionOutput{}, err
	}

	if err := h.svc.SetSyncDirection(userID, direction); err != nil {
		return nil, SetSyncDirectionOutput{}, fmt.Errorf("failed to set sync direction: %w", err)
	}

	return nil, SetSyncDirectionOutput{Success: true, SyncDirection: string(direction)}, nil
}

type ListAppointmentsInput struct {
	UserID           string `json:"user_id" jsonschema:"ID of the CRM user"`
	From             string `json:"from,omitempty" jsonschema:"Only appointments ending after this RFC3339 time"`
	To               string `json:"to,omitempty" jsonschema:"Only appointments starting before this RFC3339 time"`
	IncludeCancelled bool   `json:"include_cancelled,omitempty" jsonschema:"Include cancelled appointments"`
	Limit            int    `json:"limit,omitempty" jsonschema:"Maximum results to return (default 20)"`
}

type AppointmentOutput struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Type       string  `json:"type"`
	Status     string  `json:"status"`
	StartsAt   string  `json:"starts_at"`
	EndsAt     string  `json:"ends_at"`
	Location   string  `json:"location,omitempty"`
	ContactID  *string `json:"contact_id,omitempty"`
	ListingID  string  `json:"listing_id,omitempty"`
	ExternalID *string `json:"external_id,omitempty"`
	Synced     bool    `json:"synced"`
}

type ListAppointmentsOutput struct {
	Appointments []AppointmentOutput `json:"appointments"`
	Count        int                 `json:"count"`
}

func appointmentToOutput(a *models.Appointment) AppointmentOutput {
	out := AppointmentOutput{
		ID:         a.ID.String(),
		Title:      a.Title(),
		Type:       string(a.Type),
		Status:     string(a.Status),
		StartsAt:   a.StartsAt.UTC().Format(time.RFC3339),
		EndsAt:     a.EndsAt.UTC().Format(time.RFC3339),
		Location:   a.Location,
		ListingID:  a.ListingID,
		ExternalID: a.ExternalID,
		Synced:     !a.HasUnsyncedChanges(),
	}
	if a.ContactID != nil {
		cid := a.ContactID.String()
		out.ContactID = &cid
	}
	return out
}

func parseOptionalTime(name, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return &t, nil
}

func (h *CalendarHandlers) ListAppointments(_ context.Context, request *mcp.CallToolRequest, input ListAppointmentsInput) (*mcp.CallToolResult, ListAppointmentsOutput, error) {
	userID, err := parseUserID(input.UserID)
	if err != nil {
		return nil, ListAppointmentsOutput{}, err
	}

	filter := db.AppointmentFilter{IncludeCancelled: input.IncludeCancelled, Limit: input.Limit}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.From, err = parseOptionalTime("from", input.From); err != nil {
		return nil, ListAppointmentsOutput{}, err
	}
	if filter.To, err = parseOptionalTime("to", input.To); err != nil {
		return nil, ListAppointmentsOutput{}, err
	}

	appointments, err := db.ListAppointments(h.db, userID, filter)
	if err != nil {
		return nil, ListAppointmentsOutput{}, fmt.Errorf("failed to list appointments: %w", err)
	}

	out := ListAppointmentsOutput{Appointments: make([]AppointmentOutput, len(appointments))}
	for i := range appointments {
		out.Appointments[i] = appointmentToOutput(&appointments[i])
	}
	out.Count = len(out.Appointments)

	return nil, out, nil
}
