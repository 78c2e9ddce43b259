// ABOUTME: Appointment database operations
// ABOUTME: Local CRUD plus the external-id upserts and push bookkeeping used by calendar sync
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/vesta/models"
)

const appointmentColumns = `
	id, user_id, contact_id, listing_id, type, status, starts_at, ends_at, notes, location,
	external_id, external_updated_at, synced_at, created_at, updated_at`

// AppointmentFilter narrows ListAppointments. Zero values mean no bound.
type AppointmentFilter struct {
	From             *time.Time
	To               *time.Time
	IncludeCancelled bool
	Limit            int
}

func scanAppointment(row rowScanner) (*models.Appointment, error) {
	var a models.Appointment
	var contactID, listingID, notes, location, externalID sql.NullString
	var externalUpdatedAt, syncedAt sql.NullTime
	var apptType, status string

	err := row.Scan(
		&a.ID,
		&a.UserID,
		&contactID,
		&listingID,
		&apptType,
		&status,
		&a.StartsAt,
		&a.EndsAt,
		&notes,
		&location,
		&externalID,
		&externalUpdatedAt,
		&syncedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if contactID.Valid {
		if cid, err := uuid.Parse(contactID.String); err == nil {
			a.ContactID = &cid
		}
	}
	a.Type = models.AppointmentType(apptType)
	a.Status = models.AppointmentStatus(status)
	a.ListingID = listingID.String
	a.Notes = notes.String
	a.Location = location.String
	a.ExternalID = nullString(externalID)
	a.ExternalUpdatedAt = nullTime(externalUpdatedAt)
	a.SyncedAt = nullTime(syncedAt)

	return &a, nil
}

func contactIDArg(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

// CreateAppointment inserts a locally authored appointment.
func CreateAppointment(db *sql.DB, a *models.Appointment) error {
	a.ID = uuid.New()
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = models.AppointmentScheduled
	}
	if a.Type == "" {
		a.Type = models.AppointmentOther
	}

	_, err := db.Exec(`
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID.String(), a.UserID.String(), contactIDArg(a.ContactID), a.ListingID, string(a.Type), string(a.Status),
		a.StartsAt.UTC(), a.EndsAt.UTC(), a.Notes, a.Location, a.ExternalID, a.ExternalUpdatedAt, a.SyncedAt,
		a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

func GetAppointment(db *sql.DB, id uuid.UUID) (*models.Appointment, error) {
	a, err := scanAppointment(db.QueryRow(`SELECT `+appointmentColumns+` FROM appointments WHERE id = ?`, id.String()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return a, nil
}

func GetAppointmentByExternalID(db *sql.DB, userID uuid.UUID, externalID string) (*models.Appointment, error) {
	a, err := scanAppointment(db.QueryRow(`
		SELECT `+appointmentColumns+` FROM appointments
		WHERE user_id = ? AND external_id = ?
	`, userID.String(), externalID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment by external id: %w", err)
	}
	return a, nil
}

// UpdateAppointment saves a local edit; bumping updated_at queues it for push.
func UpdateAppointment(db *sql.DB, a *models.Appointment) error {
	a.UpdatedAt = time.Now().UTC()

	_, err := db.Exec(`
		UPDATE appointments SET
			contact_id = ?, listing_id = ?, type = ?, status = ?, starts_at = ?, ends_at = ?,
			notes = ?, location = ?, updated_at = ?
		WHERE id = ?
	`, contactIDArg(a.ContactID), a.ListingID, string(a.Type), string(a.Status), a.StartsAt.UTC(), a.EndsAt.UTC(),
		a.Notes, a.Location, a.UpdatedAt, a.ID.String())
	if err != nil {
		return fmt.Errorf("failed to update appointment: %w", err)
	}
	return nil
}

// SaveSyncedAppointment writes a remote change. The row ends up in sync:
// updated_at and synced_at are both set to syncedAt. A zero ID inserts.
func SaveSyncedAppointment(db *sql.DB, a *models.Appointment, syncedAt time.Time) error {
	syncedAt = syncedAt.UTC()
	a.UpdatedAt = syncedAt
	a.SyncedAt = &syncedAt

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
		a.CreatedAt = syncedAt
		_, err := db.Exec(`
			INSERT INTO appointments (`+appointmentColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, a.ID.String(), a.UserID.String(), contactIDArg(a.ContactID), a.ListingID, string(a.Type), string(a.Status),
			a.StartsAt.UTC(), a.EndsAt.UTC(), a.Notes, a.Location, a.ExternalID, a.ExternalUpdatedAt, syncedAt,
			a.CreatedAt, syncedAt)
		if err != nil {
			return fmt.Errorf("failed to insert synced appointment: %w", err)
		}
		return nil
	}

	_, err := db.Exec(`
		UPDATE appointments SET
			status = ?, starts_at = ?, ends_at = ?, notes = ?, location = ?,
			external_id = ?, external_updated_at = ?, synced_at = ?, updated_at = ?
		WHERE id = ?
	`, string(a.Status), a.StartsAt.UTC(), a.EndsAt.UTC(), a.Notes, a.Location,
		a.ExternalID, a.ExternalUpdatedAt, syncedAt, syncedAt, a.ID.String())
	if err != nil {
		return fmt.Errorf("failed to update synced appointment: %w", err)
	}
	return nil
}

// CancelAppointmentByExternalID soft-cancels the appointment mirroring a
// deleted remote event. It reports whether a row matched.
func CancelAppointmentByExternalID(db *sql.DB, userID uuid.UUID, externalID string, syncedAt time.Time) (bool, error) {
	syncedAt = syncedAt.UTC()
	res, err := db.Exec(`
		UPDATE appointments SET status = ?, synced_at = ?, updated_at = ?
		WHERE user_id = ? AND external_id = ?
	`, string(models.AppointmentCancelled), syncedAt, syncedAt, userID.String(), externalID)
	if err != nil {
		return false, fmt.Errorf("failed to cancel appointment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to cancel appointment: %w", err)
	}
	return n > 0, nil
}

// MarkAppointmentPushed records that the remote copy now reflects the local
// row as of localUpdatedAt. Edits made after that stay pending.
func MarkAppointmentPushed(db *sql.DB, id uuid.UUID, externalID *string, externalUpdatedAt *time.Time, localUpdatedAt time.Time) error {
	_, err := db.Exec(`
		UPDATE appointments SET external_id = ?, external_updated_at = ?, synced_at = ?
		WHERE id = ?
	`, externalID, externalUpdatedAt, localUpdatedAt.UTC(), id.String())
	if err != nil {
		return fmt.Errorf("failed to mark appointment pushed: %w", err)
	}
	return nil
}

// ListPendingPush returns the user's appointments whose local state has not
// reached the remote calendar yet.
func ListPendingPush(db *sql.DB, userID uuid.UUID) ([]models.Appointment, error) {
	rows, err := db.Query(`
		SELECT `+appointmentColumns+` FROM appointments
		WHERE user_id = ?
		  AND (external_id IS NULL OR synced_at IS NULL OR updated_at <> synced_at)
		ORDER BY updated_at
	`, userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query pending appointments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var pending []models.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		if a.HasUnsyncedChanges() {
			pending = append(pending, *a)
		}
	}

	return pending, rows.Err()
}

func ListAppointments(db *sql.DB, userID uuid.UUID, filter AppointmentFilter) ([]models.Appointment, error) {
	rows, err := db.Query(`
		SELECT `+appointmentColumns+` FROM appointments
		WHERE user_id = ?
		ORDER BY starts_at
	`, userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var appointments []models.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		if !filter.IncludeCancelled && a.Status == models.AppointmentCancelled {
			continue
		}
		// Range filtering happens here because SQLite compares DATETIME text.
		if filter.From != nil && a.EndsAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !a.StartsAt.Before(*filter.To) {
			continue
		}
		appointments = append(appointments, *a)
		if filter.Limit > 0 && len(appointments) >= filter.Limit {
			break
		}
	}

	return appointments, rows.Err()
}
