// ABOUTME: Tests for sync direction policy and conflict resolution
// ABOUTME: Covers the full direction/origin table and last-writer-wins tie breaking
package sync

import (
	"fmt"
	"testing"
	"time"

	"github.com/harperreed/vesta/models"
	"github.com/stretchr/testify/assert"
)

func TestShouldApplyTable(t *testing.T) {
	tests := []struct {
		direction models.SyncDirection
		origin    models.ChangeOrigin
		want      bool
	}{
		{models.DirectionBidirectional, models.OriginRemote, true},
		{models.DirectionBidirectional, models.OriginLocal, true},
		{models.DirectionLocalToRemote, models.OriginRemote, true},
		{models.DirectionLocalToRemote, models.OriginLocal, true},
		{models.DirectionRemoteToLocal, models.OriginRemote, true},
		{models.DirectionRemoteToLocal, models.OriginLocal, false},
		{models.DirectionNone, models.OriginRemote, false},
		{models.DirectionNone, models.OriginLocal, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.direction, tt.origin), func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldApply(tt.direction, tt.origin))
		})
	}
}

func TestResolveConflict(t *testing.T) {
	ext := "evt_1"
	synced := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	localEdit := synced.Add(30 * time.Minute)

	edited := &models.Appointment{ExternalID: &ext, SyncedAt: &synced, UpdatedAt: localEdit}
	clean := &models.Appointment{ExternalID: &ext, SyncedAt: &localEdit, UpdatedAt: localEdit}

	tests := []struct {
		name      string
		direction models.SyncDirection
		local     *models.Appointment
		remote    time.Time
		want      Resolution
	}{
		{"no local changes", models.DirectionBidirectional, clean, synced, TakeRemote},
		{"remote newer", models.DirectionBidirectional, edited, localEdit.Add(time.Minute), TakeRemote},
		{"local newer", models.DirectionBidirectional, edited, localEdit.Add(-time.Minute), KeepLocal},
		{"tie goes to remote", models.DirectionBidirectional, edited, localEdit, TakeRemote},
		{"local authoritative", models.DirectionLocalToRemote, edited, localEdit.Add(time.Hour), KeepLocal},
		{"remote authoritative", models.DirectionRemoteToLocal, edited, localEdit.Add(-time.Hour), TakeRemote},
		{"new appointment", models.DirectionBidirectional, nil, synced, TakeRemote},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveConflict(tt.direction, tt.local, tt.remote))
		})
	}
}
