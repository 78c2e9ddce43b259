// ABOUTME: Calendar API client for Google Calendar integration
// ABOUTME: Wraps calendar/v3 behind a small interface with per-call deadlines and error classification
package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	maxResults = 250 // Google Calendar API max per page

	// DefaultProviderTimeout bounds every individual provider call.
	DefaultProviderTimeout = 30 * time.Second
)

// ListEventsRequest selects one page of events. SyncToken and TimeMin are
// mutually exclusive; TimeMin only applies to a full sync.
type ListEventsRequest struct {
	CalendarID string
	SyncToken  string
	PageToken  string
	TimeMin    time.Time
}

type EventPage struct {
	Events        []*calendar.Event
	NextPageToken string
	NextSyncToken string
}

type WatchRequest struct {
	CalendarID string
	ChannelID  string
	Address    string
	Token      string
	TTL        time.Duration
}

type WatchResult struct {
	ResourceID string
	Expiration *time.Time
}

// CalendarAPI is the subset of the provider the sync subsystem needs.
type CalendarAPI interface {
	ListEvents(ctx context.Context, req ListEventsRequest) (*EventPage, error)
	InsertEvent(ctx context.Context, calendarID string, event *calendar.Event) (*calendar.Event, error)
	UpdateEvent(ctx context.Context, calendarID, eventID string, event *calendar.Event) (*calendar.Event, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
	Watch(ctx context.Context, req WatchRequest) (*WatchResult, error)
	StopChannel(ctx context.Context, channelID, resourceID string) error
	Ping(ctx context.Context, calendarID string) error
}

// ClientFactory builds a CalendarAPI authorized with token.
type ClientFactory func(ctx context.Context, token *oauth2.Token) (CalendarAPI, error)

// GoogleClientFactory returns a factory producing Google clients with the given per-call timeout.
func GoogleClientFactory(timeout time.Duration, opts ...option.ClientOption) ClientFactory {
	return func(ctx context.Context, token *oauth2.Token) (CalendarAPI, error) {
		return NewCalendarClient(ctx, token, timeout, opts...)
	}
}

// GoogleCalendar implements CalendarAPI on calendar/v3.
type GoogleCalendar struct {
	service *calendar.Service
	timeout time.Duration
}

// NewCalendarClient creates a Google Calendar API client from an OAuth token.
// Extra options override the defaults, which tests use to point at a stub server.
func NewCalendarClient(ctx context.Context, token *oauth2.Token, timeout time.Duration, opts ...option.ClientOption) (*GoogleCalendar, error) {
	if token == nil {
		return nil, fmt.Errorf("token cannot be nil")
	}
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}

	clientOpts := append([]option.ClientOption{option.WithTokenSource(oauth2.StaticTokenSource(token))}, opts...)
	service, err := calendar.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return &GoogleCalendar{service: service, timeout: timeout}, nil
}

func (g *GoogleCalendar) ListEvents(ctx context.Context, req ListEventsRequest) (*EventPage, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	call := g.service.Events.List(req.CalendarID).
		MaxResults(maxResults).
		SingleEvents(true).
		Context(ctx)

	if req.SyncToken != "" {
		call = call.SyncToken(req.SyncToken)
	} else if !req.TimeMin.IsZero() {
		call = call.TimeMin(req.TimeMin.UTC().Format(time.RFC3339))
	}
	if req.PageToken != "" {
		call = call.PageToken(req.PageToken)
	}

	events, err := call.Do()
	if err != nil {
		var apiErr *googleapi.Error
		if req.SyncToken != "" && errors.As(err, &apiErr) && apiErr.Code == http.StatusGone {
			return nil, fmt.Errorf("%w: %v", ErrSyncTokenExpired, err)
		}
		return nil, classifyError("events.list", err)
	}

	return &EventPage{
		Events:        events.Items,
		NextPageToken: events.NextPageToken,
		NextSyncToken: events.NextSyncToken,
	}, nil
}

func (g *GoogleCalendar) InsertEvent(ctx context.Context, calendarID string, event *calendar.Event) (*calendar.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	created, err := g.service.Events.Insert(calendarID, event).SendUpdates("none").Context(ctx).Do()
	if err != nil {
		return nil, classifyError("events.insert", err)
	}
	return created, nil
}

func (g *GoogleCalendar) UpdateEvent(ctx context.Context, calendarID, eventID string, event *calendar.Event) (*calendar.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	updated, err := g.service.Events.Update(calendarID, eventID, event).SendUpdates("none").Context(ctx).Do()
	if err != nil {
		return nil, classifyError("events.update", err)
	}
	return updated, nil
}

// DeleteEvent treats an already deleted event as success.
func (g *GoogleCalendar) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	err := g.service.Events.Delete(calendarID, eventID).SendUpdates("none").Context(ctx).Do()
	if err != nil {
		classified := classifyError("events.delete", err)
		if errors.Is(classified, ErrEventNotFound) {
			return nil
		}
		return classified
	}
	return nil
}

func (g *GoogleCalendar) Watch(ctx context.Context, req WatchRequest) (*WatchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	channel := &calendar.Channel{
		Id:      req.ChannelID,
		Type:    "web_hook",
		Address: req.Address,
		Token:   req.Token,
	}
	if req.TTL > 0 {
		channel.Expiration = time.Now().Add(req.TTL).UnixMilli()
	}

	created, err := g.service.Events.Watch(req.CalendarID, channel).Context(ctx).Do()
	if err != nil {
		return nil, classifyError("events.watch", err)
	}

	result := &WatchResult{ResourceID: created.ResourceId}
	if created.Expiration > 0 {
		exp := time.UnixMilli(created.Expiration).UTC()
		result.Expiration = &exp
	}
	return result, nil
}

func (g *GoogleCalendar) StopChannel(ctx context.Context, channelID, resourceID string) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	err := g.service.Channels.Stop(&calendar.Channel{Id: channelID, ResourceId: resourceID}).Context(ctx).Do()
	if err != nil {
		return classifyError("channels.stop", err)
	}
	return nil
}

// Ping confirms the grant can still read the calendar.
func (g *GoogleCalendar) Ping(ctx context.Context, calendarID string) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if _, err := g.service.Calendars.Get(calendarID).Context(ctx).Do(); err != nil {
		return classifyError("calendars.get", err)
	}
	return nil
}

func classifyError(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &ProviderAPIError{Op: op, StatusCode: apiErr.Code, Err: err}
	}

	return &ProviderAPIError{Op: op, Err: err}
}
