// ABOUTME: Appointment CLI commands
// ABOUTME: Creates and lists a user's appointments; new ones are pushed when the user syncs outward
package cli

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/harperreed/vesta/db"
	"github.com/harperreed/vesta/models"
	calsync "github.com/harperreed/vesta/sync"
)

var appointmentTypes = map[string]models.AppointmentType{
	"visit":   models.AppointmentVisit,
	"meeting": models.AppointmentMeeting,
	"call":    models.AppointmentCall,
	"signing": models.AppointmentSigning,
	"other":   models.AppointmentOther,
}

// AddAppointmentCommand creates an appointment and, when the user's
// calendar takes local changes, waits for it to be pushed.
func AddAppointmentCommand(database *sql.DB, svc *calsync.Service, args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	user := userFlag(fs)
	kind := fs.String("type", "visit", "Appointment type (visit, meeting, call, signing, other)")
	starts := fs.String("starts", "", "Start time in RFC3339 (required)")
	duration := fs.Duration("duration", time.Hour, "Length of the appointment")
	location := fs.String("location", "", "Where the appointment takes place")
	notes := fs.String("notes", "", "Notes, used as the calendar title")
	contact := fs.String("contact", "", "Contact ID to attach")
	listing := fs.String("listing", "", "Listing reference")
	confirmed := fs.Bool("confirmed", false, "Create the appointment as confirmed")
	_ = fs.Parse(args)

	userID, err := parseUser(*user)
	if err != nil {
		return err
	}

	appointmentType, ok := appointmentTypes[strings.ToLower(*kind)]
	if !ok {
		return fmt.Errorf("unknown appointment type %q", *kind)
	}
	if *starts == "" {
		return fmt.Errorf("--starts is required")
	}
	startsAt, err := time.Parse(time.RFC3339, *starts)
	if err != nil {
		return fmt.Errorf("invalid --starts: %w", err)
	}
	if *duration <= 0 {
		return fmt.Errorf("--duration must be positive")
	}

	if err := db.EnsureUser(database, userID); err != nil {
		return fmt.Errorf("failed to ensure user: %w", err)
	}

	a := &models.Appointment{
		UserID:    userID,
		Type:      appointmentType,
		Status:    models.AppointmentScheduled,
		StartsAt:  startsAt.UTC(),
		EndsAt:    startsAt.Add(*duration).UTC(),
		Location:  *location,
		Notes:     *notes,
		ListingID: *listing,
	}
	if *confirmed {
		a.Status = models.AppointmentConfirmed
	}

	if *contact != "" {
		contactID, err := uuid.Parse(*contact)
		if err != nil {
			return fmt.Errorf("invalid contact ID: %w", err)
		}
		c, err := db.GetContact(database, contactID)
		if err != nil {
			return fmt.Errorf("failed to lookup contact: %w", err)
		}
		if c == nil || c.UserID != userID {
			return fmt.Errorf("contact not found: %s", contactID)
		}
		a.ContactID = &contactID
	}

	if err := db.CreateAppointment(database, a); err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}

	fmt.Printf("✓ Appointment created: %s (ID: %s)\n", a.Title(), a.ID)
	fmt.Printf("  When: %s to %s\n", a.StartsAt.Local().Format("Mon 02 Jan 15:04"), a.EndsAt.Local().Format("15:04"))
	if a.Location != "" {
		fmt.Printf("  Where: %s\n", a.Location)
	}

	if svc != nil && svc.ScheduleLocalPush(userID) {
		svc.Wait()
		if run, err := db.GetLastSyncRun(database, userID); err == nil && run != nil && run.Status == models.SyncStatusSuccess {
			fmt.Println("  ✓ Pushed to Google Calendar")
		} else {
			fmt.Println("  ✗ Push to Google Calendar failed, it will be retried on the next sync")
		}
	}

	return nil
}

// ListAppointmentsCommand lists a user's appointments.
func ListAppointmentsCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	user := userFlag(fs)
	from := fs.String("from", "", "Only appointments ending after this RFC3339 time")
	to := fs.String("to", "", "Only appointments starting before this RFC3339 time")
	all := fs.Bool("all", false, "Include cancelled appointments")
	limit := fs.Int("limit", 50, "Maximum results")
	_ = fs.Parse(args)

	userID, err := parseUser(*user)
	if err != nil {
		return err
	}

	filter := db.AppointmentFilter{IncludeCancelled: *all, Limit: *limit}
	if *from != "" {
		t, err := time.Parse(time.RFC3339, *from)
		if err != nil {
			return fmt.Errorf("invalid --from: %w", err)
		}
		filter.From = &t
	}
	if *to != "" {
		t, err := time.Parse(time.RFC3339, *to)
		if err != nil {
			return fmt.Errorf("invalid --to: %w", err)
		}
		filter.To = &t
	}

	appointments, err := db.ListAppointments(database, userID, filter)
	if err != nil {
		return fmt.Errorf("failed to list appointments: %w", err)
	}

	if len(appointments) == 0 {
		fmt.Println("No appointments found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STARTS\tENDS\tTITLE\tTYPE\tSTATUS\tSYNCED\tID")
	_, _ = fmt.Fprintln(w, "------\t----\t-----\t----\t------\t------\t--")

	for i := range appointments {
		a := &appointments[i]
		synced := "yes"
		if a.HasUnsyncedChanges() {
			synced = "no"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			a.StartsAt.Local().Format("2006-01-02 15:04"), a.EndsAt.Local().Format("15:04"),
			a.Title(), a.Type, a.Status, synced, a.ID.String()[:8])
	}
	_ = w.Flush()

	fmt.Printf("\nTotal: %d appointment(s)\n", len(appointments))
	return nil
}
