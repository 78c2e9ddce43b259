// ABOUTME: Links calendar event attendees to CRM contacts
// ABOUTME: Matches attendee emails against the user's contacts so pulled appointments keep their client
package sync

import (
	"strings"

	"github.com/google/uuid"
	"google.golang.org/api/calendar/v3"

	"github.com/harperreed/vesta/models"
)

// maxMatchContacts caps how many contacts a single pull loads for matching.
const maxMatchContacts = 10000

type ContactMatcher struct {
	byEmail map[string]*models.Contact
}

// NewContactMatcher creates a matcher from the user's contacts.
func NewContactMatcher(contacts []models.Contact) *ContactMatcher {
	m := &ContactMatcher{
		byEmail: make(map[string]*models.Contact),
	}

	for i := range contacts {
		email := normalizeEmail(contacts[i].Email)
		if email != "" {
			m.byEmail[email] = &contacts[i]
		}
	}

	return m
}

// FindMatch looks up a contact by email.
func (m *ContactMatcher) FindMatch(email string) (*models.Contact, bool) {
	normalized := normalizeEmail(email)
	if normalized == "" {
		return nil, false
	}

	contact, found := m.byEmail[normalized]
	return contact, found
}

// MatchEvent returns the first non-self attendee that is a known contact.
func (m *ContactMatcher) MatchEvent(event *calendar.Event) (uuid.UUID, bool) {
	if m == nil || event == nil {
		return uuid.Nil, false
	}
	for _, attendee := range event.Attendees {
		if attendee == nil || attendee.Self || attendee.Resource {
			continue
		}
		if contact, ok := m.FindMatch(attendee.Email); ok {
			return contact.ID, true
		}
	}
	return uuid.Nil, false
}

// normalizeEmail converts email to lowercase for comparison.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
