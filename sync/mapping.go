// ABOUTME: Translation between CRM appointments and Google Calendar events
// ABOUTME: Maps times, notes, location and status in both directions
package sync

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/api/calendar/v3"

	"github.com/harperreed/vesta/models"
)

const (
	eventStatusConfirmed = "confirmed"
	eventStatusTentative = "tentative"
	eventStatusCancelled = "cancelled"

	propAppointmentID   = "vesta_appointment_id"
	propAppointmentType = "vesta_appointment_type"
	propListingID       = "vesta_listing_id"
)

// parseEventTime reads a timed or all-day event boundary. All-day dates
// resolve to midnight UTC.
func parseEventTime(edt *calendar.EventDateTime) (time.Time, error) {
	if edt == nil {
		return time.Time{}, fmt.Errorf("missing event time")
	}
	if edt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, edt.DateTime)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid event time %q: %w", edt.DateTime, err)
		}
		return t.UTC(), nil
	}
	if edt.Date != "" {
		t, err := time.Parse("2006-01-02", edt.Date)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid event date %q: %w", edt.Date, err)
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("event time has neither date nor dateTime")
}

// eventUpdatedAt returns the provider's last-modified time, or zero.
func eventUpdatedAt(event *calendar.Event) time.Time {
	if event == nil || event.Updated == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, event.Updated)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func privateProp(event *calendar.Event, key string) string {
	if event.ExtendedProperties == nil || event.ExtendedProperties.Private == nil {
		return ""
	}
	return event.ExtendedProperties.Private[key]
}

func statusFromEvent(status string) models.AppointmentStatus {
	switch status {
	case eventStatusCancelled:
		return models.AppointmentCancelled
	case eventStatusTentative:
		return models.AppointmentScheduled
	default:
		return models.AppointmentConfirmed
	}
}

func statusToEvent(status models.AppointmentStatus) string {
	if status == models.AppointmentScheduled {
		return eventStatusTentative
	}
	return eventStatusConfirmed
}

// appointmentFromEvent applies a remote event onto existing, or builds a new
// appointment for userID when existing is nil. Local-only fields survive.
func appointmentFromEvent(existing *models.Appointment, userID uuid.UUID, event *calendar.Event) (*models.Appointment, error) {
	start, err := parseEventTime(event.Start)
	if err != nil {
		return nil, err
	}
	end, err := parseEventTime(event.End)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("event %s ends before it starts", event.Id)
	}

	var a models.Appointment
	if existing != nil {
		a = *existing
	} else {
		a = models.Appointment{UserID: userID, Type: models.AppointmentOther}
		if t := privateProp(event, propAppointmentType); t != "" {
			a.Type = models.AppointmentType(t)
		}
		a.ListingID = privateProp(event, propListingID)
	}

	externalID := event.Id
	a.ExternalID = &externalID
	a.StartsAt = start
	a.EndsAt = end
	a.Notes = event.Summary
	a.Location = event.Location
	// A completed appointment stays completed while the event is still live.
	if !(a.Status == models.AppointmentCompleted && event.Status != eventStatusCancelled) {
		a.Status = statusFromEvent(event.Status)
	}
	if updated := eventUpdatedAt(event); !updated.IsZero() {
		a.ExternalUpdatedAt = &updated
	}

	return &a, nil
}

// eventFromAppointment renders the fields the CRM owns onto a calendar event.
func eventFromAppointment(a *models.Appointment) *calendar.Event {
	private := map[string]string{
		propAppointmentID:   a.ID.String(),
		propAppointmentType: string(a.Type),
	}
	if a.ListingID != "" {
		private[propListingID] = a.ListingID
	}

	return &calendar.Event{
		Summary:  a.Title(),
		Location: a.Location,
		Status:   statusToEvent(a.Status),
		Start:    &calendar.EventDateTime{DateTime: a.StartsAt.UTC().Format(time.RFC3339)},
		End:      &calendar.EventDateTime{DateTime: a.EndsAt.UTC().Format(time.RFC3339)},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: private,
		},
	}
}
