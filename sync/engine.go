// ABOUTME: Incremental two-way sync between CRM appointments and Google Calendar
// ABOUTME: Pulls with sync tokens, recovers from expired cursors, pushes pending local changes
package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"

	"github.com/harperreed/vesta/db"
	"github.com/harperreed/vesta/models"
)

const (
	// DefaultSyncTimeout bounds a whole sync run.
	DefaultSyncTimeout = 5 * time.Minute

	actionCreated   = "created"
	actionUpdated   = "updated"
	actionCancelled = "cancelled"
	actionUnchanged = "unchanged"
	actionKeptLocal = "kept_local"
	actionSkipped   = "skipped"
	actionInserted  = "inserted"
	actionDeleted   = "deleted"
	actionFailed    = "failed"
)

// SyncResult is the outcome of one sync run. It never carries a panic.
type SyncResult struct {
	Success      bool   `json:"success"`
	SyncedEvents int    `json:"syncedEvents"`
	Pulled       int    `json:"pulled"`
	Pushed       int    `json:"pushed"`
	Failed       int    `json:"failed"`
	FullResync   bool   `json:"fullResync,omitempty"`
	Error        string `json:"error,omitempty"`
	Err          error  `json:"-"`
}

type syncStats struct {
	pulled     int
	pushed     int
	failed     int
	fullResync bool
}

// queuedRun is one requested sync. Callers that ask while the run has not
// started yet share it.
type queuedRun struct {
	trigger string
	done    chan struct{}
	result  SyncResult
}

// Engine runs calendar syncs. Runs for the same user execute one at a time
// within the process, and a request arriving mid-run gets a follow-up run.
// Across processes they are serialized through the Locker.
type Engine struct {
	db       *sql.DB
	tokens   *TokenManager
	clients  ClientFactory
	locker   Locker
	log      *zap.Logger
	lookback time.Duration
	timeout  time.Duration

	mu        gosync.Mutex
	waiting   map[uuid.UUID]*queuedRun // key present while a run is in flight
	wg        gosync.WaitGroup
	afterSync func(userID uuid.UUID, result SyncResult)
}

// NewEngine creates a sync engine. A zero lookback makes full syncs unbounded.
func NewEngine(database *sql.DB, tokens *TokenManager, clients ClientFactory, locker Locker, logger *zap.Logger, lookback, timeout time.Duration) *Engine {
	if locker == nil {
		locker = NewLocalLocker()
	}
	if timeout <= 0 {
		timeout = DefaultSyncTimeout
	}
	return &Engine{
		db:       database,
		tokens:   tokens,
		clients:  clients,
		locker:   locker,
		log:      logger,
		lookback: lookback,
		timeout:  timeout,
		waiting:  make(map[uuid.UUID]*queuedRun),
	}
}

// SetAfterSync registers a hook called after every finished run. Call it
// before the engine starts serving.
func (e *Engine) SetAfterSync(fn func(userID uuid.UUID, result SyncResult)) {
	e.afterSync = fn
}

func lockKey(userID uuid.UUID) string {
	return "calendar-sync:" + userID.String()
}

// SyncFromGoogle runs a sync for the user and waits for it. A call made while
// another run is in flight waits for a follow-up run, so changes notified
// mid-run are not lost. The run itself is detached from ctx; cancelling ctx
// only stops the wait.
func (e *Engine) SyncFromGoogle(ctx context.Context, userID uuid.UUID, trigger string) SyncResult {
	r := e.enqueue(userID, trigger)
	select {
	case <-r.done:
		return r.result
	case <-ctx.Done():
		return failedResult(ctx.Err())
	}
}

// SyncAsync queues a sync without waiting for it.
func (e *Engine) SyncAsync(userID uuid.UUID, trigger string) {
	r := e.enqueue(userID, trigger)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		<-r.done
		if !r.result.Success {
			e.log.Warn("background calendar sync failed",
				zap.String("user_id", userID.String()),
				zap.String("trigger", trigger),
				zap.String("error", r.result.Error))
		}
	}()
}

func (e *Engine) enqueue(userID uuid.UUID, trigger string) *queuedRun {
	e.mu.Lock()
	defer e.mu.Unlock()

	next, running := e.waiting[userID]
	if !running {
		r := &queuedRun{trigger: trigger, done: make(chan struct{})}
		e.waiting[userID] = nil
		e.wg.Add(1)
		go e.drain(userID, r)
		return r
	}

	if next == nil {
		next = &queuedRun{trigger: trigger, done: make(chan struct{})}
		e.waiting[userID] = next
		e.log.Debug("queued calendar sync behind running one",
			zap.String("user_id", userID.String()),
			zap.String("trigger", trigger))
	}
	return next
}

// drain runs r and then whatever got queued behind it until the user's
// queue is empty.
func (e *Engine) drain(userID uuid.UUID, r *queuedRun) {
	defer e.wg.Done()
	for r != nil {
		r.result = e.run(context.Background(), userID, r.trigger)
		close(r.done)

		e.mu.Lock()
		r = e.waiting[userID]
		if r == nil {
			delete(e.waiting, userID)
		} else {
			e.waiting[userID] = nil
		}
		e.mu.Unlock()
	}
}

// Wait blocks until every background sync has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) run(ctx context.Context, userID uuid.UUID, trigger string) (result SyncResult) {
	start := time.Now()
	logger := e.log.With(zap.String("user_id", userID.String()), zap.String("trigger", trigger))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("calendar sync panicked", zap.Any("panic", r), zap.Stack("stack"))
			result = failedResult(fmt.Errorf("sync panicked: %v", r))
		}
		outcome := "success"
		switch {
		case errors.Is(result.Err, ErrIntegrationNotFound):
			outcome = "not_connected"
		case errors.Is(result.Err, ErrSyncInProgress):
			outcome = "in_progress"
		case !result.Success:
			outcome = "error"
		}
		SyncRunsTotal.WithLabelValues(trigger, outcome).Inc()
		SyncDuration.WithLabelValues(trigger).Observe(time.Since(start).Seconds())
		if e.afterSync != nil {
			e.afterSync(userID, result)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	lease, err := e.locker.Acquire(ctx, lockKey(userID), e.timeout+time.Minute)
	if errors.Is(err, ErrLockNotAcquired) {
		logger.Info("calendar sync already running elsewhere")
		return failedResult(ErrSyncInProgress)
	}
	if err != nil {
		return failedResult(fmt.Errorf("failed to acquire sync lease: %w", err))
	}
	defer func() {
		if err := lease.Release(context.Background()); err != nil && !errors.Is(err, ErrLockNotHeld) {
			logger.Warn("failed to release sync lease", zap.Error(err))
		}
	}()

	// Loaded under the lease so the cursor and version are current.
	integ, err := e.tokens.ActiveIntegration(userID)
	if err != nil {
		return failedResult(err)
	}

	run, err := db.StartSyncRun(e.db, userID, trigger)
	if err != nil {
		logger.Warn("failed to record sync run", zap.Error(err))
	}

	stats, err := e.runSync(ctx, integ)

	result = SyncResult{
		Success:      err == nil,
		SyncedEvents: stats.pulled + stats.pushed,
		Pulled:       stats.pulled,
		Pushed:       stats.pushed,
		Failed:       stats.failed,
		FullResync:   stats.fullResync,
	}
	if err != nil {
		result.Err = err
		result.Error = err.Error()
		logger.Error("calendar sync failed", zap.Error(err))
	} else {
		logger.Info("calendar sync finished",
			zap.Int("pulled", stats.pulled),
			zap.Int("pushed", stats.pushed),
			zap.Int("failed", stats.failed),
			zap.Bool("full_resync", stats.fullResync),
			zap.Duration("elapsed", time.Since(start)))
	}

	if run != nil {
		run.Pulled = stats.pulled
		run.Pushed = stats.pushed
		run.Failed = stats.failed
		run.Status = models.SyncStatusSuccess
		if err != nil {
			run.Status = models.SyncStatusError
			msg := err.Error()
			run.Error = &msg
		}
		if ferr := db.FinishSyncRun(e.db, run); ferr != nil {
			logger.Warn("failed to finish sync run", zap.Error(ferr))
		}
	}

	return result
}

func failedResult(err error) SyncResult {
	return SyncResult{Success: false, Err: err, Error: err.Error()}
}

func (e *Engine) runSync(ctx context.Context, integ *models.UserIntegration) (syncStats, error) {
	var stats syncStats

	direction, err := db.GetSyncDirection(e.db, integ.UserID)
	if err != nil {
		return stats, err
	}

	err = e.tokens.WithFreshToken(ctx, integ, func(ctx context.Context, token *oauth2.Token) error {
		stats = syncStats{}

		client, err := e.clients(ctx, token)
		if err != nil {
			return err
		}

		// Nothing moves in either direction; only prove the grant still works.
		if direction == models.DirectionNone {
			return client.Ping(ctx, integ.CalendarID)
		}

		if ShouldApply(direction, models.OriginRemote) {
			if err := e.pull(ctx, client, integ, direction, &stats); err != nil {
				return err
			}
		}
		if ShouldApply(direction, models.OriginLocal) {
			if err := e.push(ctx, client, integ, &stats); err != nil {
				return err
			}
		}
		return nil
	})

	return stats, err
}

func (e *Engine) pull(ctx context.Context, client CalendarAPI, integ *models.UserIntegration, direction models.SyncDirection, stats *syncStats) error {
	syncToken := ""
	if integ.SyncToken != nil {
		syncToken = *integ.SyncToken
	}

	contacts, err := db.ListContacts(e.db, integ.UserID, maxMatchContacts)
	if err != nil {
		return err
	}
	matcher := NewContactMatcher(contacts)

	next, err := e.listAndApply(ctx, client, integ, direction, matcher, syncToken, stats)
	if errors.Is(err, ErrSyncTokenExpired) {
		FullResyncsTotal.Inc()
		e.log.Warn("sync token expired, running full resync",
			zap.String("user_id", integ.UserID.String()),
			zap.String("integration_id", integ.ID.String()))

		version, cerr := db.UpdateSyncToken(e.db, integ.ID, integ.SyncVersion, nil, time.Now())
		if cerr != nil {
			return fmt.Errorf("failed to clear expired sync token: %w", cerr)
		}
		integ.SyncVersion = version
		integ.SyncToken = nil
		stats.fullResync = true

		next, err = e.listAndApply(ctx, client, integ, direction, matcher, "", stats)
	}
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if next == "" {
		return db.TouchLastSync(e.db, integ.ID, now)
	}

	version, err := db.UpdateSyncToken(e.db, integ.ID, integ.SyncVersion, &next, now)
	if errors.Is(err, db.ErrVersionConflict) {
		e.log.Warn("sync cursor changed during sync, keeping the stored one",
			zap.String("integration_id", integ.ID.String()))
		return nil
	}
	if err != nil {
		return err
	}
	integ.SyncVersion = version
	integ.SyncToken = &next
	integ.LastSyncAt = &now
	return nil
}

// listAndApply walks every page and returns the final sync token.
func (e *Engine) listAndApply(ctx context.Context, client CalendarAPI, integ *models.UserIntegration, direction models.SyncDirection, matcher *ContactMatcher, syncToken string, stats *syncStats) (string, error) {
	req := ListEventsRequest{CalendarID: integ.CalendarID, SyncToken: syncToken}
	if syncToken == "" && e.lookback > 0 {
		req.TimeMin = time.Now().Add(-e.lookback)
	}

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		page, err := client.ListEvents(ctx, req)
		if err != nil {
			return "", err
		}

		for _, event := range page.Events {
			action, err := e.applyRemoteEvent(integ.UserID, direction, matcher, event)
			if err != nil {
				stats.failed++
				SyncEventsTotal.WithLabelValues(string(models.OriginRemote), actionFailed).Inc()
				e.log.Warn("failed to apply calendar event",
					zap.String("user_id", integ.UserID.String()),
					zap.String("event_id", event.Id),
					zap.Error(err))
				continue
			}
			SyncEventsTotal.WithLabelValues(string(models.OriginRemote), action).Inc()
			switch action {
			case actionCreated, actionUpdated, actionCancelled:
				stats.pulled++
			}
		}

		if page.NextPageToken == "" {
			return page.NextSyncToken, nil
		}
		req.PageToken = page.NextPageToken
	}
}

// findLocal locates the appointment mirroring event, first by external id
// and then by the appointment id stamped on events this service created.
func (e *Engine) findLocal(userID uuid.UUID, event *calendar.Event) (*models.Appointment, error) {
	existing, err := db.GetAppointmentByExternalID(e.db, userID, event.Id)
	if err != nil || existing != nil {
		return existing, err
	}

	id, err := uuid.Parse(privateProp(event, propAppointmentID))
	if err != nil {
		return nil, nil
	}
	a, err := db.GetAppointment(e.db, id)
	if err != nil || a == nil {
		return nil, err
	}
	if a.UserID != userID || (a.ExternalID != nil && *a.ExternalID != event.Id) {
		return nil, nil
	}
	return a, nil
}

func (e *Engine) applyRemoteEvent(userID uuid.UUID, direction models.SyncDirection, matcher *ContactMatcher, event *calendar.Event) (string, error) {
	if event == nil || event.Id == "" {
		return "", errors.New("event has no id")
	}

	existing, err := e.findLocal(userID, event)
	if err != nil {
		return "", err
	}
	now := time.Now()

	// A remote cancellation always wins; the event no longer exists to push to.
	if event.Status == eventStatusCancelled {
		if existing == nil {
			return actionSkipped, nil
		}
		if existing.Status == models.AppointmentCancelled && !existing.HasUnsyncedChanges() {
			return actionUnchanged, nil
		}
		if existing.ExternalID != nil && *existing.ExternalID == event.Id {
			if _, err := db.CancelAppointmentByExternalID(e.db, userID, event.Id, now); err != nil {
				return "", err
			}
			return actionCancelled, nil
		}
		a := *existing
		externalID := event.Id
		a.ExternalID = &externalID
		a.Status = models.AppointmentCancelled
		if err := db.SaveSyncedAppointment(e.db, &a, now); err != nil {
			return "", err
		}
		return actionCancelled, nil
	}

	remoteUpdated := eventUpdatedAt(event)
	if existing != nil {
		if ResolveConflict(direction, existing, remoteUpdated) == KeepLocal {
			return actionKeptLocal, nil
		}
		if !existing.HasUnsyncedChanges() && existing.ExternalUpdatedAt != nil &&
			!remoteUpdated.IsZero() && existing.ExternalUpdatedAt.Equal(remoteUpdated) {
			return actionUnchanged, nil
		}
	}

	a, err := appointmentFromEvent(existing, userID, event)
	if err != nil {
		return "", err
	}
	if existing == nil {
		if contactID, ok := matcher.MatchEvent(event); ok {
			a.ContactID = &contactID
		}
	}
	if err := db.SaveSyncedAppointment(e.db, a, now); err != nil {
		return "", err
	}

	if existing == nil {
		return actionCreated, nil
	}
	return actionUpdated, nil
}

func (e *Engine) push(ctx context.Context, client CalendarAPI, integ *models.UserIntegration, stats *syncStats) error {
	pending, err := db.ListPendingPush(e.db, integ.UserID)
	if err != nil {
		return err
	}

	for i := range pending {
		a := &pending[i]
		// Cancelled before it ever reached the calendar.
		if a.Status == models.AppointmentCancelled && a.ExternalID == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		action, err := e.pushAppointment(ctx, client, integ.CalendarID, a)
		if err != nil {
			if errors.Is(err, ErrProviderUnauthorized) {
				return err
			}
			stats.failed++
			SyncEventsTotal.WithLabelValues(string(models.OriginLocal), actionFailed).Inc()
			e.log.Warn("failed to push appointment",
				zap.String("user_id", integ.UserID.String()),
				zap.String("appointment_id", a.ID.String()),
				zap.Error(err))
			continue
		}
		SyncEventsTotal.WithLabelValues(string(models.OriginLocal), action).Inc()
		stats.pushed++
	}

	return nil
}

func (e *Engine) pushAppointment(ctx context.Context, client CalendarAPI, calendarID string, a *models.Appointment) (string, error) {
	if a.Status == models.AppointmentCancelled {
		if err := client.DeleteEvent(ctx, calendarID, *a.ExternalID); err != nil {
			return "", err
		}
		return actionDeleted, db.MarkAppointmentPushed(e.db, a.ID, a.ExternalID, a.ExternalUpdatedAt, a.UpdatedAt)
	}

	event := eventFromAppointment(a)
	if a.ExternalID != nil {
		updated, err := client.UpdateEvent(ctx, calendarID, *a.ExternalID, event)
		if err == nil {
			return actionUpdated, e.markPushed(a, updated)
		}
		if !errors.Is(err, ErrEventNotFound) {
			return "", err
		}
		// The remote copy is gone; recreate it.
	}

	created, err := client.InsertEvent(ctx, calendarID, event)
	if err != nil {
		return "", err
	}
	return actionInserted, e.markPushed(a, created)
}

func (e *Engine) markPushed(a *models.Appointment, remote *calendar.Event) error {
	externalID := remote.Id
	var externalUpdatedAt *time.Time
	if updated := eventUpdatedAt(remote); !updated.IsZero() {
		externalUpdatedAt = &updated
	}
	return db.MarkAppointmentPushed(e.db, a.ID, &externalID, externalUpdatedAt, a.UpdatedAt)
}
