// ABOUTME: Entry point for the vesta calendar sync service and operator CLI
// ABOUTME: Routes to the HTTP server, MCP server, dashboard or CLI commands based on arguments
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/adrg/xdg"
	"go.uber.org/zap"

	"github.com/harperreed/vesta/cli"
	"github.com/harperreed/vesta/config"
	"github.com/harperreed/vesta/db"
	"github.com/harperreed/vesta/logging"
	calsync "github.com/harperreed/vesta/sync"
)

const version = "0.1.0"

func main() {
	// Global flags
	showVersion := flag.Bool("version", false, "Show version and exit")
	dbPath := flag.String("db-path", "", "Database path (default: ~/.local/share/vesta/vesta.db)")
	envFile := flag.String("env", "", "Path to a .env file (default: ./.env when present)")
	initOnly := flag.Bool("init", false, "Initialize database and exit")

	// Parse global flags but don't fail on unknown (for subcommands)
	_ = flag.CommandLine.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("vesta version %s\n", version)
		os.Exit(0)
	}

	args := flag.Args()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}

	if *initOnly {
		database, err := db.OpenDatabase(cfg.DatabasePath)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		_ = database.Close()
		log.Printf("Database initialized: %s", cfg.DatabasePath)
		os.Exit(0)
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	command := args[0]
	commandArgs := args[1:]

	switch command {
	case "serve":
		logger := mustLogger(cfg)
		defer func() { _ = logger.Sync() }()
		database := mustOpen(cfg)
		defer database.Close()

		if err := cli.ServeCommand(database, cfg, logger, commandArgs); err != nil {
			logger.Fatal("server failed", zap.Error(err))
		}

	case "mcp":
		// stdout belongs to the MCP transport
		logger := logging.Stdio(cfg.LogLevel)
		database := mustOpen(cfg)
		defer database.Close()
		svc, cleanup := mustService(database, cfg, logger)
		defer cleanup()

		if err := cli.MCPCommand(database, svc, logger, version); err != nil {
			log.Fatalf("MCP server failed: %v", err)
		}

	case "tui":
		logger := tuiLogger(cfg)
		defer func() { _ = logger.Sync() }()
		database := mustOpen(cfg)
		defer database.Close()
		svc, cleanup := mustService(database, cfg, logger)
		defer cleanup()

		if err := cli.TUICommand(database, svc); err != nil {
			log.Fatalf("Dashboard failed: %v", err)
		}

	case "calendar":
		if len(commandArgs) == 0 {
			fmt.Println("Error: calendar requires a subcommand")
			printUsage()
			os.Exit(1)
		}

		logger := mustLogger(cfg)
		defer func() { _ = logger.Sync() }()
		database := mustOpen(cfg)
		defer database.Close()
		svc, cleanup := mustService(database, cfg, logger)
		defer cleanup()

		sub, subArgs := commandArgs[0], commandArgs[1:]
		switch sub {
		case "status":
			err = cli.CalendarStatusCommand(svc, subArgs)
		case "sync":
			err = cli.CalendarSyncCommand(database, svc, subArgs)
		case "disconnect":
			err = cli.CalendarDisconnectCommand(svc, subArgs)
		case "direction":
			err = cli.CalendarDirectionCommand(database, svc, subArgs)
		case "watch":
			err = cli.CalendarWatchCommand(svc, subArgs)
		case "renew-watches":
			err = cli.CalendarRenewWatchesCommand(svc, cfg.WatchRenewWindow, subArgs)
		case "runs":
			err = cli.CalendarRunsCommand(database, subArgs)
		default:
			fmt.Printf("Unknown calendar command: %s\n\n", sub)
			printUsage()
			os.Exit(1)
		}
		if err != nil {
			log.Fatalf("Error: %v", err)
		}

	case "appointments":
		if len(commandArgs) == 0 {
			fmt.Println("Error: appointments requires a subcommand")
			printUsage()
			os.Exit(1)
		}

		database := mustOpen(cfg)
		defer database.Close()

		sub, subArgs := commandArgs[0], commandArgs[1:]
		switch sub {
		case "add":
			logger := mustLogger(cfg)
			svc, cleanup := mustService(database, cfg, logger)
			defer cleanup()
			err = cli.AddAppointmentCommand(database, svc, subArgs)
		case "list":
			err = cli.ListAppointmentsCommand(database, subArgs)
		default:
			fmt.Printf("Unknown appointments command: %s\n\n", sub)
			printUsage()
			os.Exit(1)
		}
		if err != nil {
			log.Fatalf("Error: %v", err)
		}

	case "contacts":
		if len(commandArgs) == 0 {
			fmt.Println("Error: contacts requires a subcommand")
			printUsage()
			os.Exit(1)
		}

		database := mustOpen(cfg)
		defer database.Close()

		sub, subArgs := commandArgs[0], commandArgs[1:]
		switch sub {
		case "add":
			err = cli.AddContactCommand(database, subArgs)
		case "list":
			err = cli.ListContactsCommand(database, subArgs)
		default:
			fmt.Printf("Unknown contacts command: %s\n\n", sub)
			printUsage()
			os.Exit(1)
		}
		if err != nil {
			log.Fatalf("Error: %v", err)
		}

	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func mustLogger(cfg *config.Config) *zap.Logger {
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	return logger
}

// tuiLogger writes to a state file so log lines never land on the dashboard.
func tuiLogger(cfg *config.Config) *zap.Logger {
	path, err := xdg.StateFile("vesta/tui.log")
	if err != nil {
		return zap.NewNop()
	}
	logger, err := logging.File(path, cfg.LogLevel)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func mustOpen(cfg *config.Config) *sql.DB {
	database, err := db.OpenDatabase(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	return database
}

func mustService(database *sql.DB, cfg *config.Config, logger *zap.Logger) (*calsync.Service, func()) {
	svc, cleanup, err := cli.NewService(context.Background(), database, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to start calendar service: %v", err)
	}
	return svc, cleanup
}

func printUsage() {
	fmt.Printf(`vesta v%s - Google Calendar sync for the CRM

USAGE:
  vesta [global flags] <command> [subcommand] [flags]

GLOBAL FLAGS:
  --version              Show version and exit
  --db-path <path>       Database path (default: ~/.local/share/vesta/vesta.db)
  --env <file>           Load settings from a .env file
  --init                 Initialize database and exit

COMMANDS:
  serve                  Run the HTTP API and webhook receiver
  mcp                    Start MCP server for agents
  tui                    Open the integration dashboard
  calendar               Calendar integration commands
  appointments           Appointment commands
  contacts               Contact commands

SERVER:
  vesta serve
    --addr <addr>             Listen address (default: VESTA_HTTP_ADDR or :8080)
    --renew-watches           Renew expiring push channels hourly (default: true)

CALENDAR COMMANDS:
  vesta calendar status --user <id>        Show integration status
  vesta calendar sync --user <id>          Sync one user now
    --all                                    Sync every connected user instead
  vesta calendar disconnect --user <id>    Revoke and deactivate the integration
  vesta calendar direction --user <id> [direction]
                                           Show or set bidirectional, local_to_remote,
                                           remote_to_local or none
  vesta calendar watch --user <id>         Register a push channel
  vesta calendar renew-watches             Renew channels close to expiry
    --window <duration>                      Renewal window (default: WATCH_RENEW_WINDOW)
  vesta calendar runs --user <id>          List recent sync runs

APPOINTMENT COMMANDS:
  vesta appointments add --user <id> --starts <rfc3339>
    --type <type>             visit, meeting, call, signing or other (default: visit)
    --duration <duration>     Length (default: 1h)
    --location <text>         Where it takes place
    --notes <text>            Notes, used as the calendar title
    --contact <id>            Contact to attach
    --confirmed               Create as confirmed
  vesta appointments list --user <id>
    --from/--to <rfc3339>     Time range
    --all                     Include cancelled
    --limit <n>               Max results (default: 50)

CONTACT COMMANDS:
  vesta contacts add --user <id> --name <name> [--email <email>] [--phone <phone>]
  vesta contacts list --user <id> [--limit <n>]

EXAMPLES:
  # Run the service
  vesta serve

  # Check and sync a user's calendar
  vesta calendar status --user 6f1c...
  vesta calendar sync --user 6f1c...

  # Stop pushing CRM changes to Google for a user
  vesta calendar direction --user 6f1c... remote_to_local

`, version)
}
