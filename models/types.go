// ABOUTME: Data models for CRM calendar synchronization
// ABOUTME: Defines User, Contact, Appointment, UserIntegration, SyncRun and enum constants
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID            uuid.UUID     `json:"id"`
	Email         string        `json:"email,omitempty"`
	Name          string        `json:"name,omitempty"`
	SyncDirection SyncDirection `json:"sync_direction"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

type Contact struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Appointment is a CRM calendar entry. ExternalID links it to exactly one
// remote event; SyncedAt marks the last time local and remote agreed.
type Appointment struct {
	ID                uuid.UUID         `json:"id"`
	UserID            uuid.UUID         `json:"user_id"`
	ContactID         *uuid.UUID        `json:"contact_id,omitempty"`
	ListingID         string            `json:"listing_id,omitempty"`
	Type              AppointmentType   `json:"type"`
	Status            AppointmentStatus `json:"status"`
	StartsAt          time.Time         `json:"starts_at"`
	EndsAt            time.Time         `json:"ends_at"`
	Notes             string            `json:"notes,omitempty"`
	Location          string            `json:"location,omitempty"`
	ExternalID        *string           `json:"external_id,omitempty"`
	ExternalUpdatedAt *time.Time        `json:"external_updated_at,omitempty"`
	SyncedAt          *time.Time        `json:"synced_at,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// HasUnsyncedChanges reports whether the appointment changed locally since
// it last matched its remote counterpart.
func (a *Appointment) HasUnsyncedChanges() bool {
	if a.ExternalID == nil || a.SyncedAt == nil {
		return true
	}
	return a.UpdatedAt.After(*a.SyncedAt)
}

// Title is the calendar summary: the notes when present, else a label for the type.
func (a *Appointment) Title() string {
	if notes := strings.TrimSpace(a.Notes); notes != "" {
		return notes
	}
	switch a.Type {
	case AppointmentVisit:
		return "Property visit"
	case AppointmentMeeting:
		return "Meeting"
	case AppointmentCall:
		return "Call"
	case AppointmentSigning:
		return "Contract signing"
	default:
		return "Appointment"
	}
}

type AppointmentType string

const (
	AppointmentVisit   AppointmentType = "visit"
	AppointmentMeeting AppointmentType = "meeting"
	AppointmentCall    AppointmentType = "call"
	AppointmentSigning AppointmentType = "signing"
	AppointmentOther   AppointmentType = "other"
)

type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "scheduled"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

// SyncDirection is the per-user policy deciding which way calendar changes flow.
type SyncDirection string

const (
	DirectionBidirectional SyncDirection = "bidirectional"
	DirectionLocalToRemote SyncDirection = "local_to_remote"
	DirectionRemoteToLocal SyncDirection = "remote_to_local"
	DirectionNone          SyncDirection = "none"
)

// ParseSyncDirection accepts the canonical names and the CRM's product aliases.
func ParseSyncDirection(s string) (SyncDirection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bidirectional", "both":
		return DirectionBidirectional, nil
	case "local_to_remote", "vesta_to_google":
		return DirectionLocalToRemote, nil
	case "remote_to_local", "google_to_vesta":
		return DirectionRemoteToLocal, nil
	case "none", "off":
		return DirectionNone, nil
	default:
		return "", fmt.Errorf("unknown sync direction %q", s)
	}
}

// ChangeOrigin identifies where a calendar change was made.
type ChangeOrigin string

const (
	OriginLocal  ChangeOrigin = "local"
	OriginRemote ChangeOrigin = "remote"
)

const ProviderGoogleCalendar = "google_calendar"

// UserIntegration is the persisted OAuth grant and sync cursor for one
// (user, provider) pair. Tokens are stored encrypted; the plaintext fields
// are only populated in memory.
type UserIntegration struct {
	ID                  uuid.UUID  `json:"id"`
	UserID              uuid.UUID  `json:"user_id"`
	Provider            string     `json:"provider"`
	AccessToken         string     `json:"-"`
	RefreshToken        string     `json:"-"`
	TokenExpiresAt      *time.Time `json:"token_expires_at,omitempty"`
	CalendarID          string     `json:"calendar_id"`
	SyncToken           *string    `json:"-"`
	SyncVersion         int64      `json:"sync_version"`
	WebhookChannelID    *string    `json:"webhook_channel_id,omitempty"`
	WebhookResourceID   *string    `json:"webhook_resource_id,omitempty"`
	WebhookChannelToken *string    `json:"-"`
	WebhookExpiresAt    *time.Time `json:"webhook_expires_at,omitempty"`
	IsActive            bool       `json:"is_active"`
	DisabledReason      *string    `json:"disabled_reason,omitempty"`
	LastSyncAt          *time.Time `json:"last_sync_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Sync run statuses.
const (
	SyncStatusRunning = "running"
	SyncStatusSuccess = "success"
	SyncStatusError   = "error"
)

// Sync run triggers.
const (
	TriggerManual  = "manual"
	TriggerWebhook = "webhook"
	TriggerConnect = "connect"
	TriggerCLI     = "cli"
	TriggerAgent   = "mcp"
	TriggerTUI     = "tui"

	// TriggerLocalChange is a push scheduled after an API edit.
	TriggerLocalChange = "local_change"
)

type SyncRun struct {
	ID         string     `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	Trigger    string     `json:"trigger"`
	Status     string     `json:"status"`
	Pulled     int        `json:"pulled"`
	Pushed     int        `json:"pushed"`
	Failed     int        `json:"failed"`
	Error      *string    `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
