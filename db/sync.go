// ABOUTME: Database operations for the sync_runs table
// ABOUTME: Records each calendar sync attempt with its trigger, counts and outcome
package db

import (
	"crypto/rand"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/vesta/models"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

func newRunID(at time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), entropy).String()
}

const syncRunColumns = `id, user_id, trigger_source, status, pulled, pushed, failed, error_message, started_at, finished_at`

func scanSyncRun(row rowScanner) (*models.SyncRun, error) {
	var run models.SyncRun
	var errorMessage sql.NullString
	var finishedAt sql.NullTime

	err := row.Scan(
		&run.ID,
		&run.UserID,
		&run.Trigger,
		&run.Status,
		&run.Pulled,
		&run.Pushed,
		&run.Failed,
		&errorMessage,
		&run.StartedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Error = nullString(errorMessage)
	run.FinishedAt = nullTime(finishedAt)
	return &run, nil
}

// StartSyncRun records a new running sync. IDs are monotonic ULIDs so they sort by start time.
func StartSyncRun(db *sql.DB, userID uuid.UUID, trigger string) (*models.SyncRun, error) {
	now := time.Now().UTC()
	run := &models.SyncRun{
		ID:        newRunID(now),
		UserID:    userID,
		Trigger:   trigger,
		Status:    models.SyncStatusRunning,
		StartedAt: now,
	}

	_, err := db.Exec(`
		INSERT INTO sync_runs (id, user_id, trigger_source, status, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, run.ID, userID.String(), trigger, run.Status, run.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to start sync run: %w", err)
	}

	return run, nil
}

// FinishSyncRun stores the final status and counts of run.
func FinishSyncRun(db *sql.DB, run *models.SyncRun) error {
	now := time.Now().UTC()
	run.FinishedAt = &now

	_, err := db.Exec(`
		UPDATE sync_runs SET
			status = ?, pulled = ?, pushed = ?, failed = ?, error_message = ?, finished_at = ?
		WHERE id = ?
	`, run.Status, run.Pulled, run.Pushed, run.Failed, run.Error, now, run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish sync run: %w", err)
	}

	return nil
}

// GetLastSyncRun returns the most recent run for the user, or nil.
func GetLastSyncRun(db *sql.DB, userID uuid.UUID) (*models.SyncRun, error) {
	run, err := scanSyncRun(db.QueryRow(`
		SELECT `+syncRunColumns+` FROM sync_runs
		WHERE user_id = ?
		ORDER BY id DESC LIMIT 1
	`, userID.String()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last sync run: %w", err)
	}
	return run, nil
}

func ListSyncRuns(db *sql.DB, userID uuid.UUID, limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.Query(`
		SELECT `+syncRunColumns+` FROM sync_runs
		WHERE user_id = ?
		ORDER BY id DESC LIMIT ?
	`, userID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []models.SyncRun
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync runs: %w", err)
	}

	return runs, nil
}
