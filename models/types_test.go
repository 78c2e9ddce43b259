// ABOUTME: Tests for calendar sync data models
// ABOUTME: Validates direction parsing and unsynced-change detection on appointments
package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSyncDirection(t *testing.T) {
	tests := []struct {
		input string
		want  SyncDirection
	}{
		{"bidirectional", DirectionBidirectional},
		{"vesta_to_google", DirectionLocalToRemote},
		{"local_to_remote", DirectionLocalToRemote},
		{"google_to_vesta", DirectionRemoteToLocal},
		{"REMOTE_TO_LOCAL", DirectionRemoteToLocal},
		{" none ", DirectionNone},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSyncDirection(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseSyncDirection("sideways")
	assert.Error(t, err)
}

func TestAppointmentHasUnsyncedChanges(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Minute)
	ext := "evt_1"

	neverPushed := &Appointment{UpdatedAt: now}
	if !neverPushed.HasUnsyncedChanges() {
		t.Error("appointment without external id should be pending")
	}

	inSync := &Appointment{ExternalID: &ext, UpdatedAt: earlier, SyncedAt: &now}
	if inSync.HasUnsyncedChanges() {
		t.Error("appointment synced after its last update should not be pending")
	}

	edited := &Appointment{ExternalID: &ext, UpdatedAt: now, SyncedAt: &earlier}
	if !edited.HasUnsyncedChanges() {
		t.Error("appointment updated after last sync should be pending")
	}
}

func TestAppointmentTitle(t *testing.T) {
	tests := []struct {
		name string
		a    Appointment
		want string
	}{
		{"notes win", Appointment{Type: AppointmentVisit, Notes: "  Visita ático  "}, "Visita ático"},
		{"visit", Appointment{Type: AppointmentVisit}, "Property visit"},
		{"meeting", Appointment{Type: AppointmentMeeting}, "Meeting"},
		{"call", Appointment{Type: AppointmentCall}, "Call"},
		{"signing", Appointment{Type: AppointmentSigning}, "Contract signing"},
		{"other", Appointment{Type: AppointmentOther, Notes: "   "}, "Appointment"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Title())
		})
	}
}
