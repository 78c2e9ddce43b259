// ABOUTME: Error taxonomy for the calendar sync subsystem
// ABOUTME: Sentinel errors plus typed token and provider errors usable with errors.Is and errors.As
package sync

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthenticated means the caller has no identity.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrIntegrationNotFound means the user has no active calendar integration.
	ErrIntegrationNotFound = errors.New("google calendar integration not found")

	// ErrSyncTokenExpired is the provider's 410 Gone on an incremental list.
	// The engine recovers with a full resync; it never reaches callers.
	ErrSyncTokenExpired = errors.New("sync token expired")

	// ErrProviderUnauthorized matches a ProviderAPIError carrying HTTP 401.
	ErrProviderUnauthorized = errors.New("provider rejected credentials")

	// ErrEventNotFound matches a ProviderAPIError for a missing or deleted event.
	ErrEventNotFound = errors.New("calendar event not found")

	// ErrSyncInProgress means another process holds the user's sync lease.
	ErrSyncInProgress = errors.New("calendar sync already in progress")

	// ErrInvalidState means the OAuth state parameter failed verification.
	ErrInvalidState = errors.New("invalid oauth state")

	// ErrWebhookValidation means a push notification lacked required headers.
	ErrWebhookValidation = errors.New("invalid webhook notification")

	// ErrChannelNotFound means no active integration owns the notified channel.
	ErrChannelNotFound = errors.New("channel not found")
)

// TokenExchangeError is returned when the provider rejects an authorization code.
type TokenExchangeError struct {
	Err error
}

func (e *TokenExchangeError) Error() string {
	return fmt.Sprintf("token exchange failed: %v", e.Err)
}

func (e *TokenExchangeError) Unwrap() error { return e.Err }

// TokenRefreshError is returned when a refresh fails. Revoked is set when the
// grant is gone for good and the user has to reconnect.
type TokenRefreshError struct {
	Revoked bool
	Err     error
}

func (e *TokenRefreshError) Error() string {
	if e.Revoked {
		return fmt.Sprintf("token refresh failed, grant revoked: %v", e.Err)
	}
	return fmt.Sprintf("token refresh failed: %v", e.Err)
}

func (e *TokenRefreshError) Unwrap() error { return e.Err }

// ProviderAPIError wraps a failed calendar API call.
type ProviderAPIError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *ProviderAPIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("calendar %s failed with status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("calendar %s failed: %v", e.Op, e.Err)
}

func (e *ProviderAPIError) Unwrap() error { return e.Err }

func (e *ProviderAPIError) Is(target error) bool {
	switch target {
	case ErrProviderUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrEventNotFound:
		return e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone
	}
	return false
}

// Retryable reports whether the same call may succeed later.
func (e *ProviderAPIError) Retryable() bool {
	return e.StatusCode == 0 ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}
