package web

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	gosync "sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"

	"github.com/harperreed/vesta/cache"
	"github.com/harperreed/vesta/config"
	"github.com/harperreed/vesta/db"
	"github.com/harperreed/vesta/models"
	calsync "github.com/harperreed/vesta/sync"
)

// stubCalendar serves a fixed event list on full syncs and records pushes.
type stubCalendar struct {
	mu       gosync.Mutex
	events   []*calendar.Event
	inserted []*calendar.Event
	watches  int
	nextID   int
}

func (s *stubCalendar) factory() calsync.ClientFactory {
	return func(ctx context.Context, token *oauth2.Token) (calsync.CalendarAPI, error) {
		return s, nil
	}
}

func (s *stubCalendar) ListEvents(ctx context.Context, req calsync.ListEventsRequest) (*calsync.EventPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.SyncToken != "" {
		return &calsync.EventPage{NextSyncToken: req.SyncToken}, nil
	}
	return &calsync.EventPage{Events: s.events, NextSyncToken: "t1"}, nil
}

func (s *stubCalendar) InsertEvent(ctx context.Context, calendarID string, event *calendar.Event) (*calendar.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	created := *event
	created.Id = fmt.Sprintf("remote-%d", s.nextID)
	created.Updated = time.Now().UTC().Format(time.RFC3339Nano)
	s.inserted = append(s.inserted, &created)
	return &created, nil
}

func (s *stubCalendar) UpdateEvent(ctx context.Context, calendarID, eventID string, event *calendar.Event) (*calendar.Event, error) {
	updated := *event
	updated.Id = eventID
	updated.Updated = time.Now().UTC().Format(time.RFC3339Nano)
	return &updated, nil
}

func (s *stubCalendar) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	return nil
}

func (s *stubCalendar) Watch(ctx context.Context, req calsync.WatchRequest) (*calsync.WatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watches++
	expires := time.Now().Add(req.TTL).UTC()
	return &calsync.WatchResult{ResourceID: "res-" + req.ChannelID, Expiration: &expires}, nil
}

func (s *stubCalendar) StopChannel(ctx context.Context, channelID, resourceID string) error {
	return nil
}

func (s *stubCalendar) Ping(ctx context.Context, calendarID string) error {
	return nil
}

func (s *stubCalendar) insertedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inserted)
}

// newOAuthStub answers code exchanges for "good-code" and revocations.
func newOAuthStub(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/revoke" {
			return
		}
		if r.PostForm.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-1",
			"refresh_token": "refresh-1",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testServer struct {
	srv    *Server
	svc    *calsync.Service
	db     *sql.DB
	cal    *stubCalendar
	locker *calsync.LocalLocker
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	database, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	database.SetMaxOpenConns(1)
	require.NoError(t, db.InitSchema(database))

	store, err := cache.Open()
	require.NoError(t, err)

	cfg := &config.Config{
		BaseURL:            "https://crm.example.com",
		GoogleClientID:     "client-id",
		GoogleClientSecret: "client-secret",
		GoogleRedirectURL:  "https://crm.example.com/api/google/calendar/callback",
		WebhookURL:         "https://crm.example.com/api/google/calendar/webhook",
		EncryptionKey:      "test encryption key",
		StateSecret:        "test state secret",
		ProviderTimeout:    time.Second,
		SyncTimeout:        time.Minute,
		SyncLookbackDays:   30,
		StatusCacheTTL:     time.Minute,
	}

	cal := &stubCalendar{}
	locker := calsync.NewLocalLocker()
	svc, err := calsync.NewService(database, cfg, locker, zap.NewNop(), cal.factory())
	require.NoError(t, err)

	stub := newOAuthStub(t)
	svc.Tokens.UseEndpoint(oauth2.Endpoint{
		AuthURL:   stub.URL + "/auth",
		TokenURL:  stub.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}, stub.URL+"/revoke")

	ts := &testServer{
		srv:    NewServer(database, svc, store, cfg, zap.NewNop()),
		svc:    svc,
		db:     database,
		cal:    cal,
		locker: locker,
	}
	t.Cleanup(func() {
		svc.Wait()
		_ = store.Close()
		_ = database.Close()
	})
	return ts
}

// do sends a request as userID; uuid.Nil sends no identity.
func (ts *testServer) do(method, path string, body any, userID uuid.UUID) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = strings.NewReader(string(raw))
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != uuid.Nil {
		req.Header.Set(headerUserID, userID.String())
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

// connect stores an active integration for a fresh user.
func (ts *testServer) connect(t *testing.T) uuid.UUID {
	t.Helper()
	userID := uuid.New()
	_, err := ts.svc.Tokens.StoreUserIntegration(context.Background(), userID, testToken())
	require.NoError(t, err)
	return userID
}

func testToken() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour),
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func remoteEvent(id string) *calendar.Event {
	return &calendar.Event{
		Id:      id,
		Status:  "confirmed",
		Summary: "Visita " + id,
		Start:   &calendar.EventDateTime{DateTime: "2024-01-01T10:00:00Z"},
		End:     &calendar.EventDateTime{DateTime: "2024-01-01T11:00:00Z"},
		Updated: "2024-01-01T09:00:00Z",
	}
}

func lastRun(t *testing.T, database *sql.DB, userID uuid.UUID) *models.SyncRun {
	t.Helper()
	run, err := db.GetLastSyncRun(database, userID)
	require.NoError(t, err)
	return run
}
