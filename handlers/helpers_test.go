package handlers

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"

	"github.com/harperreed/vesta/config"
	"github.com/harperreed/vesta/db"
	calsync "github.com/harperreed/vesta/sync"
)

// fixedCalendar has one remote event and accepts every write.
type fixedCalendar struct{}

func (fixedCalendar) ListEvents(ctx context.Context, req calsync.ListEventsRequest) (*calsync.EventPage, error) {
	if req.SyncToken != "" {
		return &calsync.EventPage{NextSyncToken: req.SyncToken}, nil
	}
	return &calsync.EventPage{
		Events: []*calendar.Event{{
			Id:      "evt_1",
			Status:  "confirmed",
			Summary: "Visita piso centro",
			Start:   &calendar.EventDateTime{DateTime: "2024-01-01T10:00:00Z"},
			End:     &calendar.EventDateTime{DateTime: "2024-01-01T11:00:00Z"},
			Updated: "2024-01-01T09:00:00Z",
		}},
		NextSyncToken: "t1",
	}, nil
}

func (fixedCalendar) InsertEvent(ctx context.Context, calendarID string, event *calendar.Event) (*calendar.Event, error) {
	created := *event
	created.Id = uuid.NewString()
	created.Updated = time.Now().UTC().Format(time.RFC3339Nano)
	return &created, nil
}

func (fixedCalendar) UpdateEvent(ctx context.Context, calendarID, eventID string, event *calendar.Event) (*calendar.Event, error) {
	updated := *event
	updated.Id = eventID
	updated.Updated = time.Now().UTC().Format(time.RFC3339Nano)
	return &updated, nil
}

func (fixedCalendar) DeleteEvent(ctx context.Context, calendarID, eventID string) error { return nil }

func (fixedCalendar) Watch(ctx context.Context, req calsync.WatchRequest) (*calsync.WatchResult, error) {
	expires := time.Now().Add(req.TTL)
	return &calsync.WatchResult{ResourceID: "res", Expiration: &expires}, nil
}

func (fixedCalendar) StopChannel(ctx context.Context, channelID, resourceID string) error { return nil }

func (fixedCalendar) Ping(ctx context.Context, calendarID string) error { return nil }

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	database.SetMaxOpenConns(1)
	require.NoError(t, db.InitSchema(database))
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func setupService(t *testing.T, database *sql.DB) *calsync.Service {
	t.Helper()
	cfg := &config.Config{
		EncryptionKey:    "test encryption key",
		StateSecret:      "test state secret",
		WebhookURL:       "https://crm.example.com/api/google/calendar/webhook",
		ProviderTimeout:  time.Second,
		SyncTimeout:      time.Minute,
		SyncLookbackDays: 30,
	}
	factory := func(ctx context.Context, token *oauth2.Token) (calsync.CalendarAPI, error) {
		return fixedCalendar{}, nil
	}
	svc, err := calsync.NewService(database, cfg, calsync.NewLocalLocker(), zap.NewNop(), factory)
	require.NoError(t, err)
	t.Cleanup(svc.Wait)
	return svc
}

func connectUser(t *testing.T, svc *calsync.Service) uuid.UUID {
	t.Helper()
	userID := uuid.New()
	_, err := svc.Tokens.StoreUserIntegration(context.Background(), userID, &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	return userID
}
