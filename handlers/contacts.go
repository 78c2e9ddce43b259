// ABOUTME: Contact MCP tool handlers
// ABOUTME: Implements add_contact and find_contacts; contact emails link synced events to people
package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/vesta/db"
	"github.com/harperreed/vesta/models"
)

type ContactHandlers struct {
	db *sql.DB
}

func NewContactHandlers(database *sql.DB) *ContactHandlers {
	return &ContactHandlers{db: database}
}

type AddContactInput struct {
	UserID string `json:"user_id" jsonschema:"ID of the CRM user who owns the contact"`
	Name   string `json:"name" jsonschema:"Contact name (required)"`
	Email  string `json:"email,omitempty" jsonschema:"Contact email address, used to match calendar attendees"`
	Phone  string `json:"phone,omitempty" jsonschema:"Contact phone number"`
	Notes  string `json:"notes,omitempty" jsonschema:"Additional notes about the contact"`
}

type ContactOutput struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Notes     string `json:"notes,omitempty"`
	CreatedAt string `json:"created_at"`
}

func (h *ContactHandlers) AddContact(_ context.Context, request *mcp.CallToolRequest, input AddContactInput) (*mcp.CallToolResult, ContactOutput, error) {
	userID, err := parseUserID(input.UserID)
	if err != nil {
		return nil, ContactOutput{}, err
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, ContactOutput{}, fmt.Errorf("name is required")
	}

	if err := db.EnsureUser(h.db, userID); err != nil {
		return nil, ContactOutput{}, fmt.Errorf("failed to ensure user: %w", err)
	}

	contact := &models.Contact{
		UserID: userID,
		Name:   strings.TrimSpace(input.Name),
		Email:  strings.TrimSpace(input.Email),
		Phone:  input.Phone,
		Notes:  input.Notes,
	}
	if err := db.CreateContact(h.db, contact); err != nil {
		return nil, ContactOutput{}, fmt.Errorf("failed to create contact: %w", err)
	}

	return nil, contactToOutput(contact), nil
}

type FindContactsInput struct {
	UserID string `json:"user_id" jsonschema:"ID of the CRM user"`
	Query  string `json:"query,omitempty" jsonschema:"Search query (matches name and email)"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum number of results (default 10)"`
}

type FindContactsOutput struct {
	Contacts []ContactOutput `json:"contacts"`
}

func (h *ContactHandlers) FindContacts(_ context.Context, request *mcp.CallToolRequest, input FindContactsInput) (*mcp.CallToolResult, FindContactsOutput, error) {
	userID, err := parseUserID(input.UserID)
	if err != nil {
		return nil, FindContactsOutput{}, err
	}
	limit := input.Limit
	if limit == 0 {
		limit = 10
	}

	contacts, err := db.ListContacts(h.db, userID, 1000)
	if err != nil {
		return nil, FindContactsOutput{}, fmt.Errorf("failed to find contacts: %w", err)
	}

	query := strings.ToLower(strings.TrimSpace(input.Query))
	result := []ContactOutput{}
	for i := range contacts {
		c := &contacts[i]
		if query != "" &&
			!strings.Contains(strings.ToLower(c.Name), query) &&
			!strings.Contains(strings.ToLower(c.Email), query) {
			continue
		}
		result = append(result, contactToOutput(c))
		if len(result) >= limit {
			break
		}
	}

	return nil, FindContactsOutput{Contacts: result}, nil
}

func contactToOutput(contact *models.Contact) ContactOutput {
	return ContactOutput{
		ID:        contact.ID.String(),
		Name:      contact.Name,
		Email:     contact.Email,
		Phone:     contact.Phone,
		Notes:     contact.Notes,
		CreatedAt: contact.CreatedAt.Format(time.RFC3339),
	}
}
