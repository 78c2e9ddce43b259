package sync

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"

	"github.com/harperreed/vesta/db"
	"github.com/harperreed/vesta/models"
	"github.com/harperreed/vesta/secret"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	database.SetMaxOpenConns(1)
	require.NoError(t, db.InitSchema(database))
	t.Cleanup(func() { _ = database.Close() })
	return database
}

// tokenServer stubs Google's token endpoint. Code "good-code" exchanges,
// refresh token "revoked" fails with invalid_grant.
type tokenServer struct {
	*httptest.Server
	exchanges atomic.Int32
	refreshes atomic.Int32
	revokes   atomic.Int32
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")

		if r.URL.Path == "/revoke" {
			ts.revokes.Add(1)
			w.WriteHeader(http.StatusOK)
			return
		}

		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			ts.exchanges.Add(1)
			if r.PostForm.Get("code") != "good-code" {
				writeOAuthError(w, "invalid_grant", "Malformed auth code.")
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "access-1",
				"refresh_token": "refresh-1",
				"token_type":    "Bearer",
				"expires_in":    3600,
			})
		case "refresh_token":
			ts.refreshes.Add(1)
			if r.PostForm.Get("refresh_token") == "revoked" {
				writeOAuthError(w, "invalid_grant", "Token has been expired or revoked.")
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token": "refreshed-access",
				"token_type":   "Bearer",
				"expires_in":   3600,
			})
		default:
			writeOAuthError(w, "unsupported_grant_type", "")
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func writeOAuthError(w http.ResponseWriter, code, description string) {
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "error_description": description})
}

func newTestTokenManager(t *testing.T, database *sql.DB, ts *tokenServer) *TokenManager {
	t.Helper()
	cipher, err := secret.NewCipher("test encryption key")
	require.NoError(t, err)

	oauthConfig := NewOAuthConfig("client-id", "client-secret", "https://crm.example.com/api/google/calendar/callback")
	oauthConfig.Endpoint = oauth2.Endpoint{
		AuthURL:   ts.URL + "/auth",
		TokenURL:  ts.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}

	tm := NewTokenManager(database, oauthConfig, cipher, zap.NewNop(), time.Second)
	tm.revokeURL = ts.URL + "/revoke"
	return tm
}

// connectUser stores an integration whose access token is valid for an hour.
func connectUser(t *testing.T, tm *TokenManager, refreshToken string) *models.UserIntegration {
	t.Helper()
	integ, err := tm.StoreUserIntegration(context.Background(), uuid.New(), &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	return integ
}

func setSyncToken(t *testing.T, database *sql.DB, integ *models.UserIntegration, token string) {
	t.Helper()
	version, err := db.UpdateSyncToken(database, integ.ID, integ.SyncVersion, &token, time.Now())
	require.NoError(t, err)
	integ.SyncVersion = version
	integ.SyncToken = &token
}

type fakeFeed struct {
	pages         [][]*calendar.Event
	nextSyncToken string
}

// fakeCalendar is an in-memory CalendarAPI.
type fakeCalendar struct {
	mu gosync.Mutex

	feeds        map[string]*fakeFeed
	listErrs     map[string]error
	missing      map[string]bool
	unauthorized int
	pingErr      error

	// beforeList runs ahead of every ListEvents without holding mu.
	beforeList func(req ListEventsRequest)

	listCalls []ListEventsRequest
	tokens    []string
	inserted  []*calendar.Event
	updated   map[string]*calendar.Event
	deleted   []string
	watches   []WatchRequest
	stopped   []string
	pings     int
	nextID    int
}

func newFakeCalendar() *fakeCalendar {
	return &fakeCalendar{
		feeds:    make(map[string]*fakeFeed),
		listErrs: make(map[string]error),
		missing:  make(map[string]bool),
		updated:  make(map[string]*calendar.Event),
	}
}

func (f *fakeCalendar) factory() ClientFactory {
	return func(ctx context.Context, token *oauth2.Token) (CalendarAPI, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.tokens = append(f.tokens, token.AccessToken)
		return f, nil
	}
}

// rejectCredentials reports whether this call should fail with a 401.
func (f *fakeCalendar) rejectCredentials() bool {
	if f.unauthorized > 0 {
		f.unauthorized--
		return true
	}
	return false
}

func unauthorizedErr(op string) error {
	return &ProviderAPIError{Op: op, StatusCode: http.StatusUnauthorized, Err: fmt.Errorf("invalid credentials")}
}

func (f *fakeCalendar) ListEvents(ctx context.Context, req ListEventsRequest) (*EventPage, error) {
	if f.beforeList != nil {
		f.beforeList(req)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls = append(f.listCalls, req)

	if f.rejectCredentials() {
		return nil, unauthorizedErr("events.list")
	}
	if err := f.listErrs[req.SyncToken]; err != nil {
		return nil, err
	}

	feed, ok := f.feeds[req.SyncToken]
	if !ok {
		return &EventPage{NextSyncToken: req.SyncToken}, nil
	}

	idx := 0
	if req.PageToken != "" {
		if _, err := fmt.Sscanf(req.PageToken, "page-%d", &idx); err != nil {
			return nil, err
		}
	}
	page := &EventPage{}
	if idx < len(feed.pages) {
		page.Events = feed.pages[idx]
	}
	if idx+1 < len(feed.pages) {
		page.NextPageToken = fmt.Sprintf("page-%d", idx+1)
	} else {
		page.NextSyncToken = feed.nextSyncToken
	}
	return page, nil
}

func (f *fakeCalendar) InsertEvent(ctx context.Context, calendarID string, event *calendar.Event) (*calendar.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rejectCredentials() {
		return nil, unauthorizedErr("events.insert")
	}
	f.nextID++
	created := *event
	created.Id = fmt.Sprintf("remote-%d", f.nextID)
	created.Updated = time.Now().UTC().Format(time.RFC3339Nano)
	f.inserted = append(f.inserted, &created)
	return &created, nil
}

func (f *fakeCalendar) UpdateEvent(ctx context.Context, calendarID, eventID string, event *calendar.Event) (*calendar.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rejectCredentials() {
		return nil, unauthorizedErr("events.update")
	}
	if f.missing[eventID] {
		return nil, &ProviderAPIError{Op: "events.update", StatusCode: http.StatusNotFound, Err: fmt.Errorf("not found")}
	}
	updated := *event
	updated.Id = eventID
	updated.Updated = time.Now().UTC().Format(time.RFC3339Nano)
	f.updated[eventID] = &updated
	return &updated, nil
}

func (f *fakeCalendar) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rejectCredentials() {
		return unauthorizedErr("events.delete")
	}
	f.deleted = append(f.deleted, eventID)
	return nil
}

func (f *fakeCalendar) Watch(ctx context.Context, req WatchRequest) (*WatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rejectCredentials() {
		return nil, unauthorizedErr("events.watch")
	}
	f.watches = append(f.watches, req)
	expires := time.Now().Add(req.TTL).UTC()
	return &WatchResult{ResourceID: "res-" + req.ChannelID, Expiration: &expires}, nil
}

func (f *fakeCalendar) StopChannel(ctx context.Context, channelID, resourceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, channelID)
	return nil
}

func (f *fakeCalendar) Ping(ctx context.Context, calendarID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	if f.rejectCredentials() {
		return unauthorizedErr("calendars.get")
	}
	return f.pingErr
}

func timedEvent(id, status, start, end string) *calendar.Event {
	return &calendar.Event{
		Id:      id,
		Status:  status,
		Summary: "Visita " + id,
		Start:   &calendar.EventDateTime{DateTime: start},
		End:     &calendar.EventDateTime{DateTime: end},
		Updated: "2024-01-01T09:00:00Z",
	}
}
