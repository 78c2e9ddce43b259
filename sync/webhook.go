// ABOUTME: Google Calendar push notification handling
// ABOUTME: Validates channel headers, resolves the owning integration and triggers async syncs
package sync

import (
	"crypto/subtle"

	"go.uber.org/zap"

	"github.com/harperreed/vesta/db"
	"github.com/harperreed/vesta/models"
)

// Resource states sent in X-Goog-Resource-State.
const (
	ResourceStateSync      = "sync"
	ResourceStateExists    = "exists"
	ResourceStateNotExists = "not_exists"
)

// Notification carries the X-Goog-* headers of one push notification.
type Notification struct {
	ChannelID     string
	ChannelToken  string
	ResourceState string
	ResourceID    string
	MessageNumber string
}

// HandleNotification processes a push notification. It returns
// ErrWebhookValidation or ErrChannelNotFound for requests the provider should
// see rejected; every other failure is logged and swallowed.
func (s *Service) HandleNotification(n Notification) error {
	if n.ChannelID == "" || n.ResourceID == "" {
		WebhookNotificationsTotal.WithLabelValues(n.ResourceState, "invalid").Inc()
		return ErrWebhookValidation
	}

	logger := s.log.With(
		zap.String("channel_id", n.ChannelID),
		zap.String("resource_state", n.ResourceState),
		zap.String("message_number", n.MessageNumber))

	integ, err := db.FindIntegrationByChannel(s.db, n.ChannelID, n.ResourceID, models.ProviderGoogleCalendar)
	if err != nil {
		WebhookNotificationsTotal.WithLabelValues(n.ResourceState, "error").Inc()
		logger.Error("failed to look up webhook channel", zap.Error(err))
		return nil
	}
	if integ == nil || !channelTokenMatches(integ, n.ChannelToken) {
		WebhookNotificationsTotal.WithLabelValues(n.ResourceState, "unknown_channel").Inc()
		logger.Info("notification for unknown channel")
		return ErrChannelNotFound
	}

	switch n.ResourceState {
	case ResourceStateSync:
		WebhookNotificationsTotal.WithLabelValues(n.ResourceState, "acknowledged").Inc()
		logger.Debug("watch channel handshake", zap.String("user_id", integ.UserID.String()))
	case ResourceStateExists:
		WebhookNotificationsTotal.WithLabelValues(n.ResourceState, "sync_started").Inc()
		s.Engine.SyncAsync(integ.UserID, models.TriggerWebhook)
	default:
		WebhookNotificationsTotal.WithLabelValues(n.ResourceState, "ignored").Inc()
		logger.Debug("ignoring resource state", zap.String("user_id", integ.UserID.String()))
	}

	return nil
}

func channelTokenMatches(integ *models.UserIntegration, token string) bool {
	if integ.WebhookChannelToken == nil || *integ.WebhookChannelToken == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(*integ.WebhookChannelToken), []byte(token)) == 1
}
