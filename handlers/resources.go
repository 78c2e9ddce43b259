// ABOUTME: MCP resource handlers for exposing calendar sync data
// ABOUTME: Serves per-user integration status, appointments and sync history via vesta:// URIs
package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/vesta/db"
	calsync "github.com/harperreed/vesta/sync"
)

const resourceScheme = "vesta://"

// Resource URI templates registered with the MCP server.
const (
	CalendarResourceTemplate     = "vesta://users/{user_id}/calendar"
	AppointmentsResourceTemplate = "vesta://users/{user_id}/appointments"
	SyncRunsResourceTemplate     = "vesta://users/{user_id}/sync-runs"
)

type ResourceHandlers struct {
	db  *sql.DB
	svc *calsync.Service
}

func NewResourceHandlers(database *sql.DB, svc *calsync.Service) *ResourceHandlers {
	return &ResourceHandlers{db: database, svc: svc}
}

// ReadResource handles resource read requests
func (h *ResourceHandlers) ReadResource(ctx context.Context, request *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := request.Params.URI
	if !strings.HasPrefix(uri, resourceScheme) {
		return nil, fmt.Errorf("invalid URI scheme: expected %s", resourceScheme)
	}

	parts := strings.Split(strings.TrimPrefix(uri, resourceScheme), "/")
	if len(parts) != 3 || parts[0] != "users" {
		return nil, mcp.ResourceNotFoundError(uri)
	}

	userID, err := parseUserID(parts[1])
	if err != nil {
		return nil, err
	}

	var payload any
	switch parts[2] {
	case "calendar":
		status, err := h.svc.Status(userID)
		if err != nil {
			return nil, fmt.Errorf("failed to get calendar status: %w", err)
		}
		payload = statusToOutput(status)

	case "appointments":
		appointments, err := db.ListAppointments(h.db, userID, db.AppointmentFilter{Limit: 1000})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch appointments: %w", err)
		}
		out := make([]AppointmentOutput, len(appointments))
		for i := range appointments {
			out[i] = appointmentToOutput(&appointments[i])
		}
		payload = out

	case "sync-runs":
		runs, err := db.ListSyncRuns(h.db, userID, 50)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch sync runs: %w", err)
		}
		out := make([]*SyncRunOutput, len(runs))
		for i := range runs {
			out[i] = syncRunToOutput(&runs[i])
		}
		payload = out

	default:
		return nil, mcp.ResourceNotFoundError(uri)
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", parts[2], err)
	}

	return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{
		{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}}, nil
}
