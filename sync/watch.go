// ABOUTME: Push notification channel registration for Google Calendar
// ABOUTME: Starts, stops and renews web_hook watch channels; every operation is best-effort
package sync

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/harperreed/vesta/db"
	"github.com/harperreed/vesta/models"
)

// DefaultChannelTTL is the lifetime requested for new channels. The provider
// may shorten it.
const DefaultChannelTTL = 7 * 24 * time.Hour

type WatchRegistrar struct {
	db      *sql.DB
	tokens  *TokenManager
	clients ClientFactory
	address string
	ttl     time.Duration
	log     *zap.Logger
}

func NewWatchRegistrar(database *sql.DB, tokens *TokenManager, clients ClientFactory, address string, logger *zap.Logger) *WatchRegistrar {
	return &WatchRegistrar{
		db:      database,
		tokens:  tokens,
		clients: clients,
		address: address,
		ttl:     DefaultChannelTTL,
		log:     logger,
	}
}

// Enabled reports whether the provider can reach the webhook address.
// Google only delivers to https endpoints.
func (w *WatchRegistrar) Enabled() bool {
	return strings.HasPrefix(w.address, "https://")
}

// StartWatchChannel registers a fresh channel for the user's calendar and
// reports whether it succeeded. Failures are logged and leave the user on
// manual sync.
func (w *WatchRegistrar) StartWatchChannel(ctx context.Context, userID uuid.UUID) bool {
	logger := w.log.With(zap.String("user_id", userID.String()))

	if !w.Enabled() {
		WatchRegistrationsTotal.WithLabelValues("skipped").Inc()
		logger.Warn("webhook address is not https, push notifications disabled", zap.String("address", w.address))
		return false
	}

	integ, err := w.tokens.ActiveIntegration(userID)
	if err != nil {
		WatchRegistrationsTotal.WithLabelValues("error").Inc()
		logger.Warn("cannot start watch channel", zap.Error(err))
		return false
	}

	return w.register(ctx, integ)
}

func (w *WatchRegistrar) register(ctx context.Context, integ *models.UserIntegration) bool {
	logger := w.log.With(zap.String("user_id", integ.UserID.String()), zap.String("integration_id", integ.ID.String()))

	channelID := uuid.NewString()
	channelToken, err := randomToken()
	if err != nil {
		WatchRegistrationsTotal.WithLabelValues("error").Inc()
		logger.Error("failed to generate channel token", zap.Error(err))
		return false
	}

	var result *WatchResult
	err = w.tokens.WithFreshToken(ctx, integ, func(ctx context.Context, token *oauth2.Token) error {
		client, err := w.clients(ctx, token)
		if err != nil {
			return err
		}

		if integ.WebhookChannelID != nil && integ.WebhookResourceID != nil {
			if err := client.StopChannel(ctx, *integ.WebhookChannelID, *integ.WebhookResourceID); err != nil {
				logger.Debug("failed to stop previous channel", zap.String("channel_id", *integ.WebhookChannelID), zap.Error(err))
			}
		}

		result, err = client.Watch(ctx, WatchRequest{
			CalendarID: integ.CalendarID,
			ChannelID:  channelID,
			Address:    w.address,
			Token:      channelToken,
			TTL:        w.ttl,
		})
		return err
	})
	if err != nil {
		WatchRegistrationsTotal.WithLabelValues("error").Inc()
		logger.Warn("failed to register watch channel", zap.Error(err))
		return false
	}

	if err := db.UpdateWatchChannel(w.db, integ.ID, channelID, result.ResourceID, channelToken, result.Expiration); err != nil {
		WatchRegistrationsTotal.WithLabelValues("error").Inc()
		logger.Error("failed to store watch channel", zap.Error(err))
		return false
	}

	integ.WebhookChannelID = &channelID
	integ.WebhookResourceID = &result.ResourceID
	integ.WebhookChannelToken = &channelToken
	integ.WebhookExpiresAt = result.Expiration

	WatchRegistrationsTotal.WithLabelValues("success").Inc()
	logger.Info("registered watch channel", zap.String("channel_id", channelID))
	return true
}

// StopWatchChannel stops the integration's channel at the provider and
// forgets it locally.
func (w *WatchRegistrar) StopWatchChannel(ctx context.Context, integ *models.UserIntegration) {
	if integ.WebhookChannelID == nil || integ.WebhookResourceID == nil {
		return
	}
	logger := w.log.With(zap.String("user_id", integ.UserID.String()), zap.String("channel_id", *integ.WebhookChannelID))

	err := w.tokens.WithFreshToken(ctx, integ, func(ctx context.Context, token *oauth2.Token) error {
		client, err := w.clients(ctx, token)
		if err != nil {
			return err
		}
		return client.StopChannel(ctx, *integ.WebhookChannelID, *integ.WebhookResourceID)
	})
	if err != nil {
		logger.Warn("failed to stop watch channel", zap.Error(err))
	}

	if err := db.ClearWatchChannel(w.db, integ.ID); err != nil {
		logger.Warn("failed to clear watch channel", zap.Error(err))
	}
}

// RenewExpiringChannels re-registers channels of active integrations that are
// missing or expire within window, returning how many were renewed.
func (w *WatchRegistrar) RenewExpiringChannels(ctx context.Context, window time.Duration) (int, error) {
	if !w.Enabled() {
		return 0, nil
	}

	integrations, err := db.ListActiveIntegrations(w.db, models.ProviderGoogleCalendar)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(window)
	renewed := 0
	for i := range integrations {
		if err := ctx.Err(); err != nil {
			return renewed, err
		}
		stored := &integrations[i]
		if stored.WebhookExpiresAt != nil && stored.WebhookExpiresAt.After(cutoff) {
			continue
		}

		integ, err := w.tokens.decrypt(stored)
		if err != nil {
			w.log.Warn("skipping integration with unreadable tokens",
				zap.String("integration_id", stored.ID.String()), zap.Error(err))
			continue
		}
		if w.register(ctx, integ) {
			renewed++
		}
	}

	if renewed > 0 {
		w.log.Info("renewed watch channels", zap.Int("count", renewed))
	}
	return renewed, nil
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
