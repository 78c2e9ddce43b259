// ABOUTME: Google Calendar CLI commands
// ABOUTME: Operator commands for integration status, manual syncs, direction and watch renewal
package cli

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/harperreed/vesta/db"
	"github.com/harperreed/vesta/models"
	calsync "github.com/harperreed/vesta/sync"
)

// CalendarStatusCommand prints a user's integration status.
func CalendarStatusCommand(svc *calsync.Service, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	user := userFlag(fs)
	_ = fs.Parse(args)

	userID, err := parseUser(*user)
	if err != nil {
		return err
	}

	status, err := svc.Status(userID)
	if err != nil {
		return fmt.Errorf("failed to get calendar status: %w", err)
	}

	if status.Connected {
		fmt.Printf("✓ Connected to calendar %q\n", status.CalendarID)
	} else {
		fmt.Println("✗ Not connected")
		if status.DisabledReason != "" {
			fmt.Printf("  Disabled: %s\n", status.DisabledReason)
		}
	}
	fmt.Printf("  Direction:     %s\n", status.SyncDirection)
	fmt.Printf("  Last sync:     %s\n", formatOptionalTime(status.LastSync))
	if status.Connected {
		fmt.Printf("  Push channel:  %s\n", formatOptionalTime(status.WatchExpiresAt))
	}

	if run := status.LastRun; run != nil {
		fmt.Printf("  Last run:      %s via %s (%d pulled, %d pushed, %d failed)\n",
			run.Status, run.Trigger, run.Pulled, run.Pushed, run.Failed)
		if run.Error != nil {
			fmt.Printf("  Last error:    %s\n", *run.Error)
		}
	}

	return nil
}

// CalendarSyncCommand runs a sync for one user, or for every connected user.
func CalendarSyncCommand(database *sql.DB, svc *calsync.Service, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	user := userFlag(fs)
	all := fs.Bool("all", false, "Sync every connected user")
	_ = fs.Parse(args)

	ctx := context.Background()

	if !*all {
		userID, err := parseUser(*user)
		if err != nil {
			return err
		}
		result := svc.Engine.SyncFromGoogle(ctx, userID, models.TriggerCLI)
		if !result.Success {
			return fmt.Errorf("calendar sync failed: %w", result.Err)
		}
		printSyncResult(userID.String(), result)
		return nil
	}

	integrations, err := db.ListActiveIntegrations(database, models.ProviderGoogleCalendar)
	if err != nil {
		return fmt.Errorf("failed to list integrations: %w", err)
	}
	if len(integrations) == 0 {
		fmt.Println("No connected calendars")
		return nil
	}

	var failed int
	for _, integ := range integrations {
		result := svc.Engine.SyncFromGoogle(ctx, integ.UserID, models.TriggerCLI)
		if !result.Success {
			failed++
			fmt.Printf("✗ %s: %s\n", integ.UserID, result.Error)
			continue
		}
		printSyncResult(integ.UserID.String(), result)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d syncs failed", failed, len(integrations))
	}
	return nil
}

func printSyncResult(label string, result calsync.SyncResult) {
	fmt.Printf("✓ %s: %d pulled, %d pushed", label, result.Pulled, result.Pushed)
	if result.Failed > 0 {
		fmt.Printf(", %d failed", result.Failed)
	}
	if result.FullResync {
		fmt.Print(" (full resync)")
	}
	fmt.Println()
}

// CalendarDisconnectCommand revokes and deactivates a user's integration.
func CalendarDisconnectCommand(svc *calsync.Service, args []string) error {
	fs := flag.NewFlagSet("disconnect", flag.ExitOnError)
	user := userFlag(fs)
	_ = fs.Parse(args)

	userID, err := parseUser(*user)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := svc.Disconnect(ctx, userID); err != nil {
		return fmt.Errorf("failed to disconnect: %w", err)
	}

	fmt.Println("✓ Google Calendar disconnected")
	return nil
}

// CalendarDirectionCommand shows or changes a user's sync direction.
func CalendarDirectionCommand(database *sql.DB, svc *calsync.Service, args []string) error {
	fs := flag.NewFlagSet("direction", flag.ExitOnError)
	user := userFlag(fs)
	_ = fs.Parse(args)

	userID, err := parseUser(*user)
	if err != nil {
		return err
	}

	if fs.NArg() == 0 {
		direction, err := db.GetSyncDirection(database, userID)
		if err != nil {
			return fmt.Errorf("failed to get sync direction: %w", err)
		}
		fmt.Println(direction)
		return nil
	}

	direction, err := models.ParseSyncDirection(fs.Arg(0))
	if err != nil {
		return err
	}
	if err := svc.SetSyncDirection(userID, direction); err != nil {
		return fmt.Errorf("failed to set sync direction: %w", err)
	}

	fmt.Printf("✓ Sync direction set to %s\n", direction)
	return nil
}

// CalendarWatchCommand registers a push channel for a user.
func CalendarWatchCommand(svc *calsync.Service, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	user := userFlag(fs)
	_ = fs.Parse(args)

	userID, err := parseUser(*user)
	if err != nil {
		return err
	}
	if !svc.Watches.Enabled() {
		return errors.New("push notifications need an https GOOGLE_WEBHOOK_URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if !svc.Watches.StartWatchChannel(ctx, userID) {
		return errors.New("failed to register watch channel, see logs")
	}

	fmt.Println("✓ Push channel registered")
	return nil
}

// CalendarRenewWatchesCommand re-registers channels close to expiry.
func CalendarRenewWatchesCommand(svc *calsync.Service, defaultWindow time.Duration, args []string) error {
	fs := flag.NewFlagSet("renew-watches", flag.ExitOnError)
	window := fs.Duration("window", defaultWindow, "Renew channels expiring within this window")
	_ = fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	renewed, err := svc.Watches.RenewExpiringChannels(ctx, *window)
	if err != nil {
		return fmt.Errorf("failed to renew watch channels: %w", err)
	}

	fmt.Printf("✓ Renewed %d watch channel(s)\n", renewed)
	return nil
}

// CalendarRunsCommand lists a user's recent sync runs.
func CalendarRunsCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	user := userFlag(fs)
	limit := fs.Int("limit", 20, "Maximum results")
	_ = fs.Parse(args)

	userID, err := parseUser(*user)
	if err != nil {
		return err
	}

	runs, err := db.ListSyncRuns(database, userID, *limit)
	if err != nil {
		return fmt.Errorf("failed to list sync runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No sync runs")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STARTED\tTRIGGER\tSTATUS\tPULLED\tPUSHED\tFAILED\tERROR")
	_, _ = fmt.Fprintln(w, "-------\t-------\t------\t------\t------\t------\t-----")
	for _, run := range runs {
		errText := "-"
		if run.Error != nil {
			errText = *run.Error
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			formatOptionalTime(&run.StartedAt), run.Trigger, run.Status, run.Pulled, run.Pushed, run.Failed, errText)
	}
	_ = w.Flush()

	return nil
}
