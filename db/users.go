// ABOUTME: User database operations
// ABOUTME: Ensures user rows exist and manages the per-user calendar sync direction
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/vesta/models"
)

// EnsureUser creates the user row if it does not exist yet.
func EnsureUser(db *sql.DB, id uuid.UUID) error {
	now := time.Now().UTC()
	_, err := db.Exec(`
		INSERT INTO users (id, calendar_sync_direction, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id.String(), string(models.DirectionBidirectional), now, now)
	if err != nil {
		return fmt.Errorf("failed to ensure user: %w", err)
	}
	return nil
}

func GetUser(db *sql.DB, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	var email, name sql.NullString
	var direction string

	err := db.QueryRow(`
		SELECT id, email, name, calendar_sync_direction, created_at, updated_at
		FROM users WHERE id = ?
	`, id.String()).Scan(&user.ID, &email, &name, &direction, &user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.Email = email.String
	user.Name = name.String
	user.SyncDirection = models.SyncDirection(direction)
	return user, nil
}

// GetSyncDirection returns the user's direction, defaulting to bidirectional.
func GetSyncDirection(db *sql.DB, userID uuid.UUID) (models.SyncDirection, error) {
	user, err := GetUser(db, userID)
	if err != nil {
		return "", err
	}
	if user == nil || user.SyncDirection == "" {
		return models.DirectionBidirectional, nil
	}
	return user.SyncDirection, nil
}

func SetSyncDirection(db *sql.DB, userID uuid.UUID, direction models.SyncDirection) error {
	now := time.Now().UTC()
	_, err := db.Exec(`
		INSERT INTO users (id, calendar_sync_direction, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			calendar_sync_direction = excluded.calendar_sync_direction,
			updated_at = excluded.updated_at
	`, userID.String(), string(direction), now, now)
	if err != nil {
		return fmt.Errorf("failed to set sync direction: %w", err)
	}
	return nil
}
