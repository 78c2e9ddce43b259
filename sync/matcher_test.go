package sync

import (
	"testing"

	"github.com/google/uuid"
	"google.golang.org/api/calendar/v3"

	"github.com/harperreed/vesta/models"
)

func TestMatchContactByEmail(t *testing.T) {
	existing := []models.Contact{
		{ID: uuid.New(), Name: "Alice", Email: "alice@example.com"},
		{ID: uuid.New(), Name: "Bob", Email: "bob@example.com"},
	}

	matcher := NewContactMatcher(existing)

	match, found := matcher.FindMatch("Alice@Example.com ")
	if !found {
		t.Fatal("expected to find match for alice@example.com")
	}
	if match.ID != existing[0].ID {
		t.Errorf("expected Alice, got %s", match.Name)
	}

	_, found = matcher.FindMatch("charlie@example.com")
	if found {
		t.Error("expected no match for charlie@example.com")
	}
}

func TestMatchEventSkipsSelfAndResources(t *testing.T) {
	buyer := models.Contact{ID: uuid.New(), Name: "Buyer", Email: "buyer@example.com"}
	agent := models.Contact{ID: uuid.New(), Name: "Agent", Email: "agent@example.com"}
	matcher := NewContactMatcher([]models.Contact{buyer, agent})

	event := &calendar.Event{
		Attendees: []*calendar.EventAttendee{
			{Email: "agent@example.com", Self: true},
			{Email: "room@example.com", Resource: true},
			{Email: "stranger@example.com"},
			{Email: "BUYER@example.com"},
		},
	}

	id, ok := matcher.MatchEvent(event)
	if !ok {
		t.Fatal("expected a matching attendee")
	}
	if id != buyer.ID {
		t.Errorf("expected buyer %s, got %s", buyer.ID, id)
	}

	if _, ok := matcher.MatchEvent(&calendar.Event{}); ok {
		t.Error("expected no match for event without attendees")
	}

	var nilMatcher *ContactMatcher
	if _, ok := nilMatcher.MatchEvent(event); ok {
		t.Error("nil matcher must not match")
	}
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Alice@Example.com", "alice@example.com"},
		{"alice.smith@example.com", "alice.smith@example.com"},
		{"  ALICE@EXAMPLE.COM ", "alice@example.com"},
		{"", ""},
	}

	for _, tt := range tests {
		result := normalizeEmail(tt.input)
		if result != tt.expected {
			t.Errorf("normalizeEmail(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
