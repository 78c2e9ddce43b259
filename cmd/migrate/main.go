// ABOUTME: Schema migration utility for the vesta database
// ABOUTME: Applies, rolls back, inspects or forces the embedded SQL migrations

package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/harperreed/vesta/config"
	"github.com/harperreed/vesta/db"
)

func main() {
	dbPath := flag.String("db", "", "Path to database file (default: VESTA_DB_PATH or the XDG data dir)")
	envFile := flag.String("env", "", "Path to a .env file")
	steps := flag.Int("steps", 1, "Number of migrations to roll back with 'down'")
	backup := flag.Bool("backup", true, "Copy the database file before 'down' or 'force'")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(1)
	}

	path := *dbPath
	if path == "" {
		cfg, err := config.Load(*envFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		path = cfg.DatabasePath
	}

	if err := run(path, flag.Arg(0), flag.Args()[1:], *steps, *backup); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
}

func run(path, command string, args []string, steps int, createBackup bool) error {
	database, err := db.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = database.Close() }()

	switch command {
	case "up":
		if err := db.InitSchema(database); err != nil {
			return err
		}

	case "down":
		if steps < 1 {
			return fmt.Errorf("-steps must be at least 1")
		}
		if createBackup {
			if err := backupFile(path); err != nil {
				return err
			}
		}
		if err := db.MigrateDown(database, steps); err != nil {
			return err
		}

	case "force":
		if len(args) != 1 {
			return fmt.Errorf("force requires a version")
		}
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[0], err)
		}
		if createBackup {
			if err := backupFile(path); err != nil {
				return err
			}
		}
		if err := db.ForceMigrationVersion(database, version); err != nil {
			return err
		}

	case "version":

	default:
		return fmt.Errorf("unknown command %q", command)
	}

	version, dirty, err := db.MigrationVersion(database)
	if err != nil {
		return err
	}
	log.Printf("Database %s is at version %d (dirty: %t)", path, version, dirty)
	return nil
}

// backupFile copies the database next to itself with a timestamp suffix.
func backupFile(path string) error {
	input, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read database: %w", err)
	}

	backupPath := fmt.Sprintf("%s.backup.%s", path, time.Now().Format("20060102-150405"))
	if err := os.WriteFile(backupPath, input, 0644); err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}
	log.Printf("Backup created: %s", filepath.Base(backupPath))
	return nil
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: migrate [flags] <command>

COMMANDS:
  up               Apply every pending migration
  down             Roll back -steps migrations (default 1)
  version          Print the applied version
  force <version>  Mark the database clean at <version> after a failed migration

FLAGS:
`)
	flag.PrintDefaults()
}
