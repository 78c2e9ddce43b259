// ABOUTME: MCP server subcommand
// ABOUTME: Exposes calendar sync tools, resources and prompts to agents over stdio
package cli

import (
	"context"
	"database/sql"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/harperreed/vesta/handlers"
	calsync "github.com/harperreed/vesta/sync"
)

// NewMCPServer registers every calendar tool, resource template and prompt.
func NewMCPServer(database *sql.DB, svc *calsync.Service, version string) *mcp.Server {
	calendarHandlers := handlers.NewCalendarHandlers(database, svc)
	contactHandlers := handlers.NewContactHandlers(database)
	resourceHandlers := handlers.NewResourceHandlers(database, svc)
	promptHandlers := handlers.NewPromptHandlers(database, svc)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "vesta",
		Version: version,
	}, nil)

	// Register tools
	mcp.AddTool(server, &mcp.Tool{
		Name:        "calendar_status",
		Description: "Show whether a user's Google Calendar is connected, the sync direction and the last sync run",
	}, calendarHandlers.CalendarStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_calendar",
		Description: "Run a Google Calendar sync for a user and report what was pulled and pushed",
	}, calendarHandlers.SyncCalendar)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_sync_direction",
		Description: "Change which way calendar changes flow for a user",
	}, calendarHandlers.SetSyncDirection)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_appointments",
		Description: "List a user's appointments, optionally within a time range",
	}, calendarHandlers.ListAppointments)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_contact",
		Description: "Add a contact; attendees with a matching email are linked to synced appointments",
	}, contactHandlers.AddContact)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "find_contacts",
		Description: "Search a user's contacts by name or email",
	}, contactHandlers.FindContacts)

	// Register resources
	server.AddResourceTemplate(&mcp.ResourceTemplate{
		Name:        "calendar-status",
		URITemplate: handlers.CalendarResourceTemplate,
		Description: "Integration status for a user",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		Name:        "appointments",
		URITemplate: handlers.AppointmentsResourceTemplate,
		Description: "Every non-cancelled appointment for a user",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		Name:        "sync-runs",
		URITemplate: handlers.SyncRunsResourceTemplate,
		Description: "Recent sync runs for a user, newest first",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	// Register prompts
	userArg := []*mcp.PromptArgument{{Name: "user_id", Description: "ID of the CRM user", Required: true}}

	server.AddPrompt(&mcp.Prompt{
		Name:        handlers.PromptSyncReview,
		Description: "Review the health of a user's calendar sync",
		Arguments:   userArg,
	}, promptHandlers.GetPrompt)

	server.AddPrompt(&mcp.Prompt{
		Name:        handlers.PromptAgenda,
		Description: "Summarize a user's appointments for the coming week",
		Arguments:   userArg,
	}, promptHandlers.GetPrompt)

	return server
}

// MCPCommand starts the MCP server on stdio
func MCPCommand(database *sql.DB, svc *calsync.Service, logger *zap.Logger, version string) error {
	logger.Info("starting vesta MCP server")

	server := NewMCPServer(database, svc, version)
	return server.Run(context.Background(), &mcp.StdioTransport{})
}
