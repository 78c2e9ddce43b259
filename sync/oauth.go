// ABOUTME: OAuth configuration and token management for Google Calendar
// ABOUTME: Exchanges codes, stores encrypted grants, refreshes ahead of expiry and retries once on 401
package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/singleflight"
	"google.golang.org/api/calendar/v3"

	"github.com/harperreed/vesta/db"
	"github.com/harperreed/vesta/models"
	"github.com/harperreed/vesta/secret"
)

const (
	// refreshMargin refreshes tokens this long before they expire.
	refreshMargin = 5 * time.Minute

	defaultRevokeURL = "https://oauth2.googleapis.com/revoke"

	reasonTokenRevoked     = "token_revoked"
	reasonNoRefreshToken   = "missing_refresh_token"
	reasonUserDisconnected = "user_disconnected"
)

// NewOAuthConfig creates the OAuth2 config for the calendar integration.
func NewOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes: []string{
			calendar.CalendarEventsScope,
			calendar.CalendarReadonlyScope,
		},
		Endpoint: google.Endpoint,
	}
}

// TokenManager owns the OAuth grant lifecycle for user integrations.
type TokenManager struct {
	db         *sql.DB
	oauth      *oauth2.Config
	cipher     *secret.Cipher
	log        *zap.Logger
	timeout    time.Duration
	httpClient *http.Client
	revokeURL  string
	refreshes  singleflight.Group
}

func NewTokenManager(database *sql.DB, oauthConfig *oauth2.Config, cipher *secret.Cipher, logger *zap.Logger, timeout time.Duration) *TokenManager {
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	return &TokenManager{
		db:         database,
		oauth:      oauthConfig,
		cipher:     cipher,
		log:        logger,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
		revokeURL:  defaultRevokeURL,
	}
}

// UseEndpoint points the manager at another authorization server.
func (m *TokenManager) UseEndpoint(endpoint oauth2.Endpoint, revokeURL string) {
	m.oauth.Endpoint = endpoint
	if revokeURL != "" {
		m.revokeURL = revokeURL
	}
}

// AuthCodeURL returns the consent URL. Offline access with forced consent
// makes the provider issue a refresh token on every connect.
func (m *TokenManager) AuthCodeURL(state string) string {
	return m.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeCodeForTokens trades an authorization code for a token.
func (m *TokenManager) ExchangeCodeForTokens(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	token, err := m.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, &TokenExchangeError{Err: err}
	}
	return token, nil
}

// StoreUserIntegration upserts the user's grant and returns the decrypted,
// active integration.
func (m *TokenManager) StoreUserIntegration(ctx context.Context, userID uuid.UUID, token *oauth2.Token) (*models.UserIntegration, error) {
	if token == nil || token.AccessToken == "" {
		return nil, errors.New("token has no access token")
	}
	if err := db.EnsureUser(m.db, userID); err != nil {
		return nil, err
	}

	access, err := m.cipher.Encrypt(token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}
	refresh, err := m.cipher.Encrypt(token.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	integ := &models.UserIntegration{
		UserID:       userID,
		Provider:     models.ProviderGoogleCalendar,
		AccessToken:  access,
		RefreshToken: refresh,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry.UTC()
		integ.TokenExpiresAt = &expiry
	}

	if err := db.UpsertIntegration(m.db, integ); err != nil {
		return nil, err
	}

	m.log.Info("stored calendar integration",
		zap.String("user_id", userID.String()),
		zap.String("integration_id", integ.ID.String()),
		zap.Bool("refresh_token_received", token.RefreshToken != ""))

	return m.decrypt(integ)
}

// ActiveIntegration loads and decrypts the user's active integration.
func (m *TokenManager) ActiveIntegration(userID uuid.UUID) (*models.UserIntegration, error) {
	integ, err := db.GetActiveIntegration(m.db, userID, models.ProviderGoogleCalendar)
	if err != nil {
		return nil, err
	}
	if integ == nil {
		return nil, ErrIntegrationNotFound
	}
	return m.decrypt(integ)
}

func (m *TokenManager) decrypt(integ *models.UserIntegration) (*models.UserIntegration, error) {
	out := *integ
	var err error
	if out.AccessToken, err = m.cipher.Decrypt(integ.AccessToken); err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	if out.RefreshToken, err = m.cipher.Decrypt(integ.RefreshToken); err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}
	return &out, nil
}

func tokenFor(integ *models.UserIntegration) *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  integ.AccessToken,
		RefreshToken: integ.RefreshToken,
		TokenType:    "Bearer",
	}
	if integ.TokenExpiresAt != nil {
		token.Expiry = *integ.TokenExpiresAt
	}
	return token
}

// FreshToken returns a token valid for at least the refresh margin,
// refreshing and persisting when needed. force skips the expiry check.
func (m *TokenManager) FreshToken(ctx context.Context, integ *models.UserIntegration, force bool) (*oauth2.Token, error) {
	current := tokenFor(integ)
	if !force && current.AccessToken != "" && !current.Expiry.IsZero() && time.Until(current.Expiry) > refreshMargin {
		return current, nil
	}

	v, err, _ := m.refreshes.Do(integ.ID.String(), func() (any, error) {
		return m.refresh(ctx, integ)
	})
	if err != nil {
		return nil, err
	}

	token := v.(*oauth2.Token)
	integ.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		integ.RefreshToken = token.RefreshToken
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry.UTC()
		integ.TokenExpiresAt = &expiry
	}
	return token, nil
}

func (m *TokenManager) refresh(ctx context.Context, integ *models.UserIntegration) (*oauth2.Token, error) {
	logger := m.log.With(zap.String("user_id", integ.UserID.String()), zap.String("integration_id", integ.ID.String()))

	if integ.RefreshToken == "" {
		TokenRefreshesTotal.WithLabelValues("revoked").Inc()
		if err := db.DeactivateIntegration(m.db, integ.ID, reasonNoRefreshToken); err != nil {
			logger.Error("failed to deactivate integration", zap.Error(err))
		}
		return nil, &TokenRefreshError{Revoked: true, Err: errors.New("no refresh token stored")}
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	// An expired token with only the refresh token set forces a refresh.
	source := m.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: integ.RefreshToken})
	token, err := source.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode == "invalid_grant" {
			TokenRefreshesTotal.WithLabelValues("revoked").Inc()
			logger.Warn("calendar grant revoked, deactivating integration")
			if derr := db.DeactivateIntegration(m.db, integ.ID, reasonTokenRevoked); derr != nil {
				logger.Error("failed to deactivate integration", zap.Error(derr))
			}
			return nil, &TokenRefreshError{Revoked: true, Err: err}
		}
		TokenRefreshesTotal.WithLabelValues("error").Inc()
		return nil, &TokenRefreshError{Err: err}
	}

	access, err := m.cipher.Encrypt(token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}
	refresh, err := m.cipher.Encrypt(token.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	var expiry *time.Time
	if !token.Expiry.IsZero() {
		e := token.Expiry.UTC()
		expiry = &e
	}
	if err := db.UpdateIntegrationTokens(m.db, integ.ID, access, refresh, expiry); err != nil {
		return nil, err
	}

	TokenRefreshesTotal.WithLabelValues("success").Inc()
	logger.Debug("refreshed calendar access token")
	return token, nil
}

// WithFreshToken runs fn with a valid token. When fn fails because the
// provider rejected the token, the token is force-refreshed and fn runs
// exactly once more.
func (m *TokenManager) WithFreshToken(ctx context.Context, integ *models.UserIntegration, fn func(ctx context.Context, token *oauth2.Token) error) error {
	token, err := m.FreshToken(ctx, integ, false)
	if err != nil {
		return err
	}

	err = fn(ctx, token)
	if err == nil || !errors.Is(err, ErrProviderUnauthorized) {
		return err
	}

	m.log.Info("provider rejected access token, refreshing and retrying",
		zap.String("user_id", integ.UserID.String()))

	token, err = m.FreshToken(ctx, integ, true)
	if err != nil {
		return err
	}
	return fn(ctx, token)
}

// Revoke asks the provider to invalidate the grant. Best-effort.
func (m *TokenManager) Revoke(ctx context.Context, integ *models.UserIntegration) error {
	token := integ.RefreshToken
	if token == "" {
		token = integ.AccessToken
	}
	if token == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke returned status %d", resp.StatusCode)
	}
	return nil
}
