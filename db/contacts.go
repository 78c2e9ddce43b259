// ABOUTME: Contact database operations
// ABOUTME: Creates and looks up the contacts appointments can reference
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/vesta/models"
)

func CreateContact(db *sql.DB, contact *models.Contact) error {
	contact.ID = uuid.New()
	now := time.Now().UTC()
	contact.CreatedAt = now
	contact.UpdatedAt = now

	_, err := db.Exec(`
		INSERT INTO contacts (id, user_id, name, email, phone, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, contact.ID.String(), contact.UserID.String(), contact.Name, contact.Email, contact.Phone, contact.Notes, contact.CreatedAt, contact.UpdatedAt)

	return err
}

func GetContact(db *sql.DB, id uuid.UUID) (*models.Contact, error) {
	contact := &models.Contact{}
	var email, phone, notes sql.NullString

	err := db.QueryRow(`
		SELECT id, user_id, name, email, phone, notes, created_at, updated_at
		FROM contacts WHERE id = ?
	`, id.String()).Scan(
		&contact.ID,
		&contact.UserID,
		&contact.Name,
		&email,
		&phone,
		&notes,
		&contact.CreatedAt,
		&contact.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	contact.Email = email.String
	contact.Phone = phone.String
	contact.Notes = notes.String
	return contact, nil
}

func ListContacts(db *sql.DB, userID uuid.UUID, limit int) ([]models.Contact, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.Query(`
		SELECT id, user_id, name, email, phone, notes, created_at, updated_at
		FROM contacts WHERE user_id = ?
		ORDER BY name LIMIT ?
	`, userID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query contacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var contacts []models.Contact
	for rows.Next() {
		var contact models.Contact
		var email, phone, notes sql.NullString
		if err := rows.Scan(&contact.ID, &contact.UserID, &contact.Name, &email, &phone, &notes, &contact.CreatedAt, &contact.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		contact.Email = email.String
		contact.Phone = phone.String
		contact.Notes = notes.String
		contacts = append(contacts, contact)
	}

	return contacts, rows.Err()
}
