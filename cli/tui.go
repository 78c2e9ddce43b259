// ABOUTME: TUI subcommand
// ABOUTME: Opens the calendar integration dashboard
package cli

import (
	"database/sql"

	calsync "github.com/harperreed/vesta/sync"
	"github.com/harperreed/vesta/tui"
)

// TUICommand runs the dashboard until the user quits.
func TUICommand(database *sql.DB, svc *calsync.Service) error {
	return tui.Run(database, svc)
}
