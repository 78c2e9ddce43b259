package db

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/vesta/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	database.SetMaxOpenConns(1)
	require.NoError(t, InitSchema(database))
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func createTestUser(t *testing.T, database *sql.DB) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, EnsureUser(database, id))
	return id
}

func TestOpenDatabase(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := OpenDatabase(dbPath)
	if err != nil {
		t.Fatalf("OpenDatabase failed: %v", err)
	}
	defer db.Close()

	// Verify database file exists
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}

	// Verify schema was initialized
	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name != 'schema_migrations'").Scan(&count)
	if err != nil {
		t.Fatalf("Failed to query tables: %v", err)
	}
	if count < 5 {
		t.Errorf("Expected at least 5 tables, got %d", count)
	}

	// Verify WAL mode
	var mode string
	err = db.QueryRow("PRAGMA journal_mode").Scan(&mode)
	if err != nil {
		t.Fatalf("Failed to query journal mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("Expected WAL mode, got %s", mode)
	}
}

func TestOpenDatabaseInvalidPath(t *testing.T) {
	dbPath := "/invalid/nonexistent/path/that/cannot/be/created/test.db"

	_, err := OpenDatabase(dbPath)
	if err == nil {
		t.Errorf("Expected error for invalid path, but OpenDatabase succeeded")
	}
}

func TestOpenDatabaseReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := OpenDatabase(dbPath)
	require.NoError(t, err)
	db.Close()

	// A second open finds nothing left to migrate.
	db, err = OpenDatabase(dbPath)
	require.NoError(t, err)
	defer db.Close()

	version, dirty, err := MigrationVersion(db)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}

func TestMigrateDownAndUp(t *testing.T) {
	database := setupTestDB(t)

	require.NoError(t, MigrateDown(database, 1))
	version, _, err := MigrationVersion(database)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)

	require.NoError(t, InitSchema(database))
	version, _, err = MigrationVersion(database)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
}

func TestSyncDirectionDefaultsAndUpdates(t *testing.T) {
	database := setupTestDB(t)
	userID := uuid.New()

	direction, err := GetSyncDirection(database, userID)
	require.NoError(t, err)
	assert.Equal(t, models.DirectionBidirectional, direction)

	require.NoError(t, SetSyncDirection(database, userID, models.DirectionNone))
	direction, err = GetSyncDirection(database, userID)
	require.NoError(t, err)
	assert.Equal(t, models.DirectionNone, direction)

	// EnsureUser must not reset an existing setting.
	require.NoError(t, EnsureUser(database, userID))
	direction, err = GetSyncDirection(database, userID)
	require.NoError(t, err)
	assert.Equal(t, models.DirectionNone, direction)
}

func TestUpsertIntegrationKeepsRefreshToken(t *testing.T) {
	database := setupTestDB(t)
	userID := createTestUser(t, database)
	expiry := time.Now().Add(time.Hour).UTC()

	integ := &models.UserIntegration{
		UserID:         userID,
		Provider:       models.ProviderGoogleCalendar,
		AccessToken:    "access-1",
		RefreshToken:   "refresh-1",
		TokenExpiresAt: &expiry,
	}
	require.NoError(t, UpsertIntegration(database, integ))
	firstID := integ.ID
	assert.True(t, integ.IsActive)
	assert.Equal(t, "primary", integ.CalendarID)

	require.NoError(t, DeactivateIntegration(database, firstID, "user_disconnected"))
	active, err := GetActiveIntegration(database, userID, models.ProviderGoogleCalendar)
	require.NoError(t, err)
	assert.Nil(t, active)

	// Reconnect without a refresh token: row is reused and re-activated.
	again := &models.UserIntegration{
		UserID:         userID,
		Provider:       models.ProviderGoogleCalendar,
		AccessToken:    "access-2",
		TokenExpiresAt: &expiry,
	}
	require.NoError(t, UpsertIntegration(database, again))
	assert.Equal(t, firstID, again.ID)
	assert.True(t, again.IsActive)
	assert.Nil(t, again.DisabledReason)
	assert.Equal(t, "access-2", again.AccessToken)

	require.NoError(t, UpsertIntegration(database, &models.UserIntegration{
		UserID:       userID,
		Provider:     models.ProviderGoogleCalendar,
		AccessToken:  "access-3",
		RefreshToken: "refresh-3",
	}))
	require.NoError(t, UpsertIntegration(database, &models.UserIntegration{
		UserID:      userID,
		Provider:    models.ProviderGoogleCalendar,
		AccessToken: "access-4",
	}))
	stored, err := GetActiveIntegration(database, userID, models.ProviderGoogleCalendar)
	require.NoError(t, err)
	assert.Equal(t, "refresh-3", stored.RefreshToken)
	assert.Equal(t, "access-4", stored.AccessToken)
}

func TestUpdateSyncTokenCompareAndSwap(t *testing.T) {
	database := setupTestDB(t)
	userID := createTestUser(t, database)
	integ := &models.UserIntegration{UserID: userID, Provider: models.ProviderGoogleCalendar, AccessToken: "a"}
	require.NoError(t, UpsertIntegration(database, integ))

	token := "abc"
	version, err := UpdateSyncToken(database, integ.ID, integ.SyncVersion, &token, time.Now())
	require.NoError(t, err)
	assert.Equal(t, integ.SyncVersion+1, version)

	// A writer holding the stale version loses.
	stale := "stale"
	_, err = UpdateSyncToken(database, integ.ID, integ.SyncVersion, &stale, time.Now())
	assert.ErrorIs(t, err, ErrVersionConflict)

	stored, err := GetActiveIntegration(database, userID, models.ProviderGoogleCalendar)
	require.NoError(t, err)
	require.NotNil(t, stored.SyncToken)
	assert.Equal(t, "abc", *stored.SyncToken)
	assert.NotNil(t, stored.LastSyncAt)

	_, err = UpdateSyncToken(database, integ.ID, version, nil, time.Now())
	require.NoError(t, err)
	stored, err = GetActiveIntegration(database, userID, models.ProviderGoogleCalendar)
	require.NoError(t, err)
	assert.Nil(t, stored.SyncToken)
}

func TestFindIntegrationByChannel(t *testing.T) {
	database := setupTestDB(t)
	userID := createTestUser(t, database)
	integ := &models.UserIntegration{UserID: userID, Provider: models.ProviderGoogleCalendar, AccessToken: "a"}
	require.NoError(t, UpsertIntegration(database, integ))

	expires := time.Now().Add(7 * 24 * time.Hour).UTC()
	require.NoError(t, UpdateWatchChannel(database, integ.ID, "chan-1", "res-1", "secret", &expires))

	found, err := FindIntegrationByChannel(database, "chan-1", "res-1", models.ProviderGoogleCalendar)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, integ.ID, found.ID)
	require.NotNil(t, found.WebhookChannelToken)
	assert.Equal(t, "secret", *found.WebhookChannelToken)

	missing, err := FindIntegrationByChannel(database, "chan-1", "other", models.ProviderGoogleCalendar)
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, DeactivateIntegration(database, integ.ID, "token_revoked"))
	inactive, err := FindIntegrationByChannel(database, "chan-1", "res-1", models.ProviderGoogleCalendar)
	require.NoError(t, err)
	assert.Nil(t, inactive)
}

func TestAppointmentSyncBookkeeping(t *testing.T) {
	database := setupTestDB(t)
	userID := createTestUser(t, database)
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	local := &models.Appointment{
		UserID:   userID,
		Type:     models.AppointmentVisit,
		StartsAt: start,
		EndsAt:   start.Add(time.Hour),
		Notes:    "Apartment viewing",
	}
	require.NoError(t, CreateAppointment(database, local))

	pending, err := ListPendingPush(database, userID)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	ext := "evt_local"
	require.NoError(t, MarkAppointmentPushed(database, local.ID, &ext, nil, local.UpdatedAt))
	pending, err = ListPendingPush(database, userID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	stored, err := GetAppointment(database, local.ID)
	require.NoError(t, err)
	stored.Notes = "Apartment viewing, bring keys"
	require.NoError(t, UpdateAppointment(database, stored))
	pending, err = ListPendingPush(database, userID)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	remoteExt := "evt_1"
	remote := &models.Appointment{
		UserID:     userID,
		Type:       models.AppointmentOther,
		Status:     models.AppointmentConfirmed,
		StartsAt:   start,
		EndsAt:     start.Add(time.Hour),
		ExternalID: &remoteExt,
	}
	require.NoError(t, SaveSyncedAppointment(database, remote, time.Now()))

	byExt, err := GetAppointmentByExternalID(database, userID, "evt_1")
	require.NoError(t, err)
	require.NotNil(t, byExt)
	assert.False(t, byExt.HasUnsyncedChanges())

	found, err := CancelAppointmentByExternalID(database, userID, "evt_1", time.Now())
	require.NoError(t, err)
	assert.True(t, found)
	found, err = CancelAppointmentByExternalID(database, userID, "evt_unknown", time.Now())
	require.NoError(t, err)
	assert.False(t, found)

	visible, err := ListAppointments(database, userID, AppointmentFilter{})
	require.NoError(t, err)
	assert.Len(t, visible, 1)
	all, err := ListAppointments(database, userID, AppointmentFilter{IncludeCancelled: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSyncRuns(t *testing.T) {
	database := setupTestDB(t)
	userID := createTestUser(t, database)

	last, err := GetLastSyncRun(database, userID)
	require.NoError(t, err)
	assert.Nil(t, last)

	first, err := StartSyncRun(database, userID, models.TriggerManual)
	require.NoError(t, err)
	first.Status = models.SyncStatusSuccess
	first.Pulled = 3
	require.NoError(t, FinishSyncRun(database, first))

	second, err := StartSyncRun(database, userID, models.TriggerWebhook)
	require.NoError(t, err)
	msg := "boom"
	second.Status = models.SyncStatusError
	second.Error = &msg
	require.NoError(t, FinishSyncRun(database, second))

	last, err = GetLastSyncRun(database, userID)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, second.ID, last.ID)
	assert.Equal(t, models.TriggerWebhook, last.Trigger)
	require.NotNil(t, last.Error)
	assert.Equal(t, "boom", *last.Error)

	runs, err := ListSyncRuns(database, userID, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 3, runs[1].Pulled)
}

func TestContacts(t *testing.T) {
	database := setupTestDB(t)
	userID := createTestUser(t, database)

	contact := &models.Contact{UserID: userID, Name: "Ana Torres", Email: "ana@example.com"}
	require.NoError(t, CreateContact(database, contact))

	got, err := GetContact(database, contact.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Ana Torres", got.Name)

	contacts, err := ListContacts(database, userID, 0)
	require.NoError(t, err)
	assert.Len(t, contacts, 1)

	missing, err := GetContact(database, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}
