// ABOUTME: Tests for calendar MCP tool handlers
// ABOUTME: Covers status, sync, direction and appointment listing through the tool signatures
package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/vesta/db"
	"github.com/harperreed/vesta/models"
)

func TestCalendarStatusTool(t *testing.T) {
	database := setupTestDB(t)
	h := NewCalendarHandlers(database, setupService(t, database))

	_, out, err := h.CalendarStatus(context.Background(), nil, UserInput{UserID: uuid.NewString()})
	require.NoError(t, err)
	assert.False(t, out.Connected)
	assert.Equal(t, "bidirectional", out.SyncDirection)
	assert.Nil(t, out.LastRun)

	_, _, err = h.CalendarStatus(context.Background(), nil, UserInput{})
	assert.Error(t, err)

	_, _, err = h.CalendarStatus(context.Background(), nil, UserInput{UserID: "bob"})
	assert.Error(t, err)
}

func TestSyncCalendarTool(t *testing.T) {
	database := setupTestDB(t)
	svc := setupService(t, database)
	h := NewCalendarHandlers(database, svc)
	userID := connectUser(t, svc)

	_, out, err := h.SyncCalendar(context.Background(), nil, UserInput{UserID: userID.String()})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, 1, out.SyncedEvents)
	assert.Equal(t, 1, out.Pulled)

	_, status, err := h.CalendarStatus(context.Background(), nil, UserInput{UserID: userID.String()})
	require.NoError(t, err)
	assert.True(t, status.Connected)
	require.NotNil(t, status.LastRun)
	assert.Equal(t, models.TriggerAgent, status.LastRun.Trigger)
	assert.Equal(t, models.SyncStatusSuccess, status.LastRun.Status)
	assert.NotNil(t, status.LastSync)
}

func TestSyncCalendarToolNotConnected(t *testing.T) {
	database := setupTestDB(t)
	h := NewCalendarHandlers(database, setupService(t, database))

	_, out, err := h.SyncCalendar(context.Background(), nil, UserInput{UserID: uuid.NewString()})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.NotEmpty(t, out.Error)
}

func TestSetSyncDirectionTool(t *testing.T) {
	database := setupTestDB(t)
	h := NewCalendarHandlers(database, setupService(t, database))
	userID := uuid.New()

	_, out, err := h.SetSyncDirection(context.Background(), nil, SetSyncDirectionInput{UserID: userID.String(), Direction: "vesta_to_google"})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "local_to_remote", out.SyncDirection)

	direction, err := db.GetSyncDirection(database, userID)
	require.NoError(t, err)
	assert.Equal(t, models.DirectionLocalToRemote, direction)

	_, _, err = h.SetSyncDirection(context.Background(), nil, SetSyncDirectionInput{UserID: userID.String(), Direction: "upwards"})
	assert.Error(t, err)
}

func TestListAppointmentsTool(t *testing.T) {
	database := setupTestDB(t)
	h := NewCalendarHandlers(database, setupService(t, database))
	userID := uuid.New()
	require.NoError(t, db.EnsureUser(database, userID))

	base := time.Date(2030, 5, 1, 9, 0, 0, 0, time.UTC)
	for i, status := range []models.AppointmentStatus{models.AppointmentScheduled, models.AppointmentConfirmed, models.AppointmentCancelled} {
		start := base.Add(time.Duration(i) * 24 * time.Hour)
		require.NoError(t, db.CreateAppointment(database, &models.Appointment{
			UserID:   userID,
			Type:     models.AppointmentVisit,
			Status:   status,
			StartsAt: start,
			EndsAt:   start.Add(time.Hour),
		}))
	}

	_, out, err := h.ListAppointments(context.Background(), nil, ListAppointmentsInput{UserID: userID.String()})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Count)
	assert.Equal(t, "Property visit", out.Appointments[0].Title)
	assert.False(t, out.Appointments[0].Synced)

	_, out, err = h.ListAppointments(context.Background(), nil, ListAppointmentsInput{UserID: userID.String(), IncludeCancelled: true})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Count)

	_, out, err = h.ListAppointments(context.Background(), nil, ListAppointmentsInput{
		UserID: userID.String(),
		From:   base.Add(12 * time.Hour).Format(time.RFC3339),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Count)

	_, _, err = h.ListAppointments(context.Background(), nil, ListAppointmentsInput{UserID: userID.String(), To: "soon"})
	assert.Error(t, err)
}
