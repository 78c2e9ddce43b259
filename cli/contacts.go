// ABOUTME: Contact CLI commands
// ABOUTME: Human-friendly commands for managing the contacts synced events are linked to
package cli

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/harperreed/vesta/db"
	"github.com/harperreed/vesta/models"
)

// AddContactCommand adds a new contact.
func AddContactCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	user := userFlag(fs)
	name := fs.String("name", "", "Contact name (required)")
	email := fs.String("email", "", "Email address")
	phone := fs.String("phone", "", "Phone number")
	notes := fs.String("notes", "", "Notes about the contact")
	_ = fs.Parse(args)

	userID, err := parseUser(*user)
	if err != nil {
		return err
	}
	if strings.TrimSpace(*name) == "" {
		return fmt.Errorf("--name is required")
	}

	if err := db.EnsureUser(database, userID); err != nil {
		return fmt.Errorf("failed to ensure user: %w", err)
	}

	contact := &models.Contact{
		UserID: userID,
		Name:   strings.TrimSpace(*name),
		Email:  strings.TrimSpace(*email),
		Phone:  *phone,
		Notes:  *notes,
	}

	if err := db.CreateContact(database, contact); err != nil {
		return fmt.Errorf("failed to create contact: %w", err)
	}

	fmt.Printf("✓ Contact created: %s (ID: %s)\n", contact.Name, contact.ID)
	if contact.Email != "" {
		fmt.Printf("  Email: %s\n", contact.Email)
	}
	if contact.Phone != "" {
		fmt.Printf("  Phone: %s\n", contact.Phone)
	}

	return nil
}

// ListContactsCommand lists a user's contacts.
func ListContactsCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	user := userFlag(fs)
	limit := fs.Int("limit", 50, "Maximum results")
	_ = fs.Parse(args)

	userID, err := parseUser(*user)
	if err != nil {
		return err
	}

	contacts, err := db.ListContacts(database, userID, *limit)
	if err != nil {
		return fmt.Errorf("failed to list contacts: %w", err)
	}

	if len(contacts) == 0 {
		fmt.Println("No contacts found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tEMAIL\tPHONE\tID")
	_, _ = fmt.Fprintln(w, "----\t-----\t-----\t--")

	for _, contact := range contacts {
		email := contact.Email
		if email == "" {
			email = "-"
		}
		phone := contact.Phone
		if phone == "" {
			phone = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", contact.Name, email, phone, contact.ID.String()[:8])
	}
	_ = w.Flush()

	fmt.Printf("\nTotal: %d contact(s)\n", len(contacts))
	return nil
}
