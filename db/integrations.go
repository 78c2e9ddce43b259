// ABOUTME: Database operations for user_integrations
// ABOUTME: Stores OAuth grants, sync cursors with optimistic versioning, and watch channels
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/vesta/models"
)

const integrationColumns = `
	id, user_id, provider, access_token, refresh_token, token_expires_at, calendar_id,
	sync_token, sync_version, webhook_channel_id, webhook_resource_id, webhook_channel_token,
	webhook_expires_at, is_active, disabled_reason, last_sync_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIntegration(row rowScanner) (*models.UserIntegration, error) {
	var integ models.UserIntegration
	var accessToken, refreshToken, syncToken sql.NullString
	var channelID, resourceID, channelToken, disabledReason sql.NullString
	var tokenExpiresAt, webhookExpiresAt, lastSyncAt sql.NullTime

	err := row.Scan(
		&integ.ID,
		&integ.UserID,
		&integ.Provider,
		&accessToken,
		&refreshToken,
		&tokenExpiresAt,
		&integ.CalendarID,
		&syncToken,
		&integ.SyncVersion,
		&channelID,
		&resourceID,
		&channelToken,
		&webhookExpiresAt,
		&integ.IsActive,
		&disabledReason,
		&lastSyncAt,
		&integ.CreatedAt,
		&integ.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	integ.AccessToken = accessToken.String
	integ.RefreshToken = refreshToken.String
	integ.SyncToken = nullString(syncToken)
	integ.WebhookChannelID = nullString(channelID)
	integ.WebhookResourceID = nullString(resourceID)
	integ.WebhookChannelToken = nullString(channelToken)
	integ.DisabledReason = nullString(disabledReason)
	integ.TokenExpiresAt = nullTime(tokenExpiresAt)
	integ.WebhookExpiresAt = nullTime(webhookExpiresAt)
	integ.LastSyncAt = nullTime(lastSyncAt)

	return &integ, nil
}

// UpsertIntegration stores the grant for (user, provider). The access token
// and expiry are always overwritten; the refresh token only when non-empty.
// A soft-disabled row is re-activated. integ is refreshed from the stored row.
func UpsertIntegration(db *sql.DB, integ *models.UserIntegration) error {
	now := time.Now().UTC()
	if integ.CalendarID == "" {
		integ.CalendarID = "primary"
	}

	_, err := db.Exec(`
		INSERT INTO user_integrations (
			id, user_id, provider, access_token, refresh_token, token_expires_at,
			calendar_id, is_active, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(user_id, provider) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = COALESCE(NULLIF(excluded.refresh_token, ''), user_integrations.refresh_token),
			token_expires_at = excluded.token_expires_at,
			is_active = 1,
			disabled_reason = NULL,
			updated_at = excluded.updated_at
	`, uuid.New().String(), integ.UserID.String(), integ.Provider, integ.AccessToken, integ.RefreshToken,
		integ.TokenExpiresAt, integ.CalendarID, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert integration: %w", err)
	}

	stored, err := GetIntegration(db, integ.UserID, integ.Provider)
	if err != nil {
		return err
	}
	*integ = *stored
	return nil
}

// GetIntegration returns the (user, provider) row whether or not it is active.
func GetIntegration(db *sql.DB, userID uuid.UUID, provider string) (*models.UserIntegration, error) {
	integ, err := scanIntegration(db.QueryRow(`
		SELECT `+integrationColumns+`
		FROM user_integrations
		WHERE user_id = ? AND provider = ?
	`, userID.String(), provider))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get integration: %w", err)
	}
	return integ, nil
}

// GetActiveIntegration returns nil when the user has no active grant.
func GetActiveIntegration(db *sql.DB, userID uuid.UUID, provider string) (*models.UserIntegration, error) {
	integ, err := GetIntegration(db, userID, provider)
	if err != nil || integ == nil || !integ.IsActive {
		return nil, err
	}
	return integ, nil
}

// FindIntegrationByChannel resolves a push notification to its active integration.
func FindIntegrationByChannel(db *sql.DB, channelID, resourceID, provider string) (*models.UserIntegration, error) {
	integ, err := scanIntegration(db.QueryRow(`
		SELECT `+integrationColumns+`
		FROM user_integrations
		WHERE webhook_channel_id = ? AND webhook_resource_id = ? AND provider = ? AND is_active = 1
	`, channelID, resourceID, provider))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find integration by channel: %w", err)
	}
	return integ, nil
}

func ListActiveIntegrations(db *sql.DB, provider string) ([]models.UserIntegration, error) {
	rows, err := db.Query(`
		SELECT `+integrationColumns+`
		FROM user_integrations
		WHERE provider = ? AND is_active = 1
		ORDER BY created_at
	`, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to query integrations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var integrations []models.UserIntegration
	for rows.Next() {
		integ, err := scanIntegration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan integration: %w", err)
		}
		integrations = append(integrations, *integ)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating integrations: %w", err)
	}

	return integrations, nil
}

// UpdateIntegrationTokens persists a refreshed grant. An empty refresh token
// keeps the stored one. The sync version is not bumped.
func UpdateIntegrationTokens(db *sql.DB, id uuid.UUID, accessToken, refreshToken string, expiresAt *time.Time) error {
	_, err := db.Exec(`
		UPDATE user_integrations SET
			access_token = ?,
			refresh_token = COALESCE(NULLIF(?, ''), refresh_token),
			token_expires_at = ?,
			updated_at = ?
		WHERE id = ?
	`, accessToken, refreshToken, expiresAt, time.Now().UTC(), id.String())
	if err != nil {
		return fmt.Errorf("failed to update integration tokens: %w", err)
	}
	return nil
}

// UpdateSyncToken stores a new sync cursor if the row is still at
// expectedVersion and returns the new version. A nil token clears the cursor.
func UpdateSyncToken(db *sql.DB, id uuid.UUID, expectedVersion int64, token *string, syncedAt time.Time) (int64, error) {
	res, err := db.Exec(`
		UPDATE user_integrations SET
			sync_token = ?,
			sync_version = sync_version + 1,
			last_sync_at = ?,
			updated_at = ?
		WHERE id = ? AND sync_version = ?
	`, token, syncedAt.UTC(), time.Now().UTC(), id.String(), expectedVersion)
	if err != nil {
		return 0, fmt.Errorf("failed to update sync token: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to update sync token: %w", err)
	}
	if n == 0 {
		return 0, ErrVersionConflict
	}
	return expectedVersion + 1, nil
}

// TouchLastSync records a completed sync without moving the cursor.
func TouchLastSync(db *sql.DB, id uuid.UUID, syncedAt time.Time) error {
	_, err := db.Exec(`UPDATE user_integrations SET last_sync_at = ?, updated_at = ? WHERE id = ?`,
		syncedAt.UTC(), time.Now().UTC(), id.String())
	if err != nil {
		return fmt.Errorf("failed to update last sync: %w", err)
	}
	return nil
}

func UpdateWatchChannel(db *sql.DB, id uuid.UUID, channelID, resourceID, channelToken string, expiresAt *time.Time) error {
	_, err := db.Exec(`
		UPDATE user_integrations SET
			webhook_channel_id = ?,
			webhook_resource_id = ?,
			webhook_channel_token = ?,
			webhook_expires_at = ?,
			updated_at = ?
		WHERE id = ?
	`, channelID, resourceID, channelToken, expiresAt, time.Now().UTC(), id.String())
	if err != nil {
		return fmt.Errorf("failed to update watch channel: %w", err)
	}
	return nil
}

func ClearWatchChannel(db *sql.DB, id uuid.UUID) error {
	_, err := db.Exec(`
		UPDATE user_integrations SET
			webhook_channel_id = NULL,
			webhook_resource_id = NULL,
			webhook_channel_token = NULL,
			webhook_expires_at = NULL,
			updated_at = ?
		WHERE id = ?
	`, time.Now().UTC(), id.String())
	if err != nil {
		return fmt.Errorf("failed to clear watch channel: %w", err)
	}
	return nil
}

// DeactivateIntegration soft-disables the grant and drops credentials, cursor
// and channel so a later reconnect starts from a full sync.
func DeactivateIntegration(db *sql.DB, id uuid.UUID, reason string) error {
	_, err := db.Exec(`
		UPDATE user_integrations SET
			is_active = 0,
			disabled_reason = ?,
			access_token = NULL,
			refresh_token = NULL,
			token_expires_at = NULL,
			sync_token = NULL,
			sync_version = sync_version + 1,
			webhook_channel_id = NULL,
			webhook_resource_id = NULL,
			webhook_channel_token = NULL,
			webhook_expires_at = NULL,
			updated_at = ?
		WHERE id = ?
	`, reason, time.Now().UTC(), id.String())
	if err != nil {
		return fmt.Errorf("failed to deactivate integration: %w", err)
	}
	return nil
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
