// ABOUTME: Calendar integration service tying OAuth, watch channels and the sync engine together
// ABOUTME: Implements connect, callback, disconnect, status and direction operations for the API and CLI
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

	"github.com/harperreed/vesta/config"
	"github.com/harperreed/vesta/db"
	"github.com/harperreed/vesta/models"
	"github.com/harperreed/vesta/secret"
)

type Service struct {
	Tokens  *TokenManager
	Watches *WatchRegistrar
	Engine  *Engine
	State   *StateSigner

	db  *sql.DB
	log *zap.Logger
	wg  gosync.WaitGroup
}

// NewService wires the calendar subsystem from configuration. A nil clients
// factory talks to Google.
func NewService(database *sql.DB, cfg *config.Config, locker Locker, logger *zap.Logger, clients ClientFactory) (*Service, error) {
	cipher, err := secret.NewCipher(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create token cipher: %w", err)
	}
	state, err := NewStateSigner(cfg.StateSecret, DefaultStateTTL)
	if err != nil {
		return nil, err
	}
	if clients == nil {
		clients = GoogleClientFactory(cfg.ProviderTimeout)
	}

	oauthConfig := NewOAuthConfig(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
	tokens := NewTokenManager(database, oauthConfig, cipher, logger, cfg.ProviderTimeout)
	lookback := time.Duration(cfg.SyncLookbackDays) * 24 * time.Hour

	return &Service{
		Tokens:  tokens,
		Watches: NewWatchRegistrar(database, tokens, clients, cfg.WebhookURL, logger),
		Engine:  NewEngine(database, tokens, clients, locker, logger, lookback, cfg.SyncTimeout),
		State:   state,
		db:      database,
		log:     logger,
	}, nil
}

// CalendarStatus is what the status endpoint and operator tools report.
type CalendarStatus struct {
	Connected      bool                 `json:"connected"`
	LastSync       *time.Time           `json:"lastSync"`
	CalendarID     string               `json:"calendarId,omitempty"`
	SyncDirection  models.SyncDirection `json:"syncDirection"`
	WatchExpiresAt *time.Time           `json:"watchExpiresAt,omitempty"`
	DisabledReason string               `json:"disabledReason,omitempty"`
	LastRun        *models.SyncRun      `json:"lastRun,omitempty"`
}

// ConnectURL returns the consent URL for userID.
func (s *Service) ConnectURL(userID uuid.UUID) (string, error) {
	state, err := s.State.Sign(userID)
	if err != nil {
		return "", err
	}
	return s.Tokens.AuthCodeURL(state), nil
}

// HandleCallback completes the consent flow. The watch channel and the
// initial sync start in the background and never fail the connection.
func (s *Service) HandleCallback(ctx context.Context, code, state string) (uuid.UUID, error) {
	userID, err := s.State.Verify(state)
	if err != nil {
		return uuid.Nil, err
	}

	token, err := s.Tokens.ExchangeCodeForTokens(ctx, code)
	if err != nil {
		return userID, err
	}

	if _, err := s.Tokens.StoreUserIntegration(ctx, userID, token); err != nil {
		return userID, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.Engine.timeout)
		defer cancel()

		s.Watches.StartWatchChannel(ctx, userID)
		s.Engine.SyncAsync(userID, models.TriggerConnect)
	}()

	return userID, nil
}

// Disconnect stops the channel, revokes the grant and deactivates the
// integration. Provider failures are logged; only local failures return.
func (s *Service) Disconnect(ctx context.Context, userID uuid.UUID) error {
	integ, err := s.Tokens.ActiveIntegration(userID)
	if errors.Is(err, ErrIntegrationNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	s.Watches.StopWatchChannel(ctx, integ)
	if err := s.Tokens.Revoke(ctx, integ); err != nil {
		s.log.Warn("failed to revoke calendar grant", zap.String("user_id", userID.String()), zap.Error(err))
	}

	if err := db.DeactivateIntegration(s.db, integ.ID, reasonUserDisconnected); err != nil {
		return err
	}

	s.log.Info("disconnected google calendar", zap.String("user_id", userID.String()))
	return nil
}

func (s *Service) Status(userID uuid.UUID) (*CalendarStatus, error) {
	direction, err := db.GetSyncDirection(s.db, userID)
	if err != nil {
		return nil, err
	}
	status := &CalendarStatus{SyncDirection: direction}

	integ, err := db.GetIntegration(s.db, userID, models.ProviderGoogleCalendar)
	if err != nil {
		return nil, err
	}
	if integ != nil {
		status.Connected = integ.IsActive
		status.LastSync = integ.LastSyncAt
		if integ.IsActive {
			status.CalendarID = integ.CalendarID
			status.WatchExpiresAt = integ.WebhookExpiresAt
		} else if integ.DisabledReason != nil {
			status.DisabledReason = *integ.DisabledReason
		}
	}

	run, err := db.GetLastSyncRun(s.db, userID)
	if err != nil {
		return nil, err
	}
	status.LastRun = run

	return status, nil
}

// SetSyncDirection changes which way future syncs move changes.
func (s *Service) SetSyncDirection(userID uuid.UUID, direction models.SyncDirection) error {
	return db.SetSyncDirection(s.db, userID, direction)
}

// ScheduleLocalPush starts a background sync after a local edit when the
// user is connected and local changes flow to the calendar.
func (s *Service) ScheduleLocalPush(userID uuid.UUID) bool {
	integ, err := db.GetActiveIntegration(s.db, userID, models.ProviderGoogleCalendar)
	if err != nil || integ == nil {
		return false
	}
	direction, err := db.GetSyncDirection(s.db, userID)
	if err != nil || !ShouldApply(direction, models.OriginLocal) {
		return false
	}
	s.Engine.SyncAsync(userID, models.TriggerLocalChange)
	return true
}

// Wait blocks until background connect work and syncs have finished.
func (s *Service) Wait() {
	s.wg.Wait()
	s.Engine.Wait()
}
