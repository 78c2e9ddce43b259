// ABOUTME: Shared wiring for CLI commands
// ABOUTME: Builds the calendar service with the configured lease backend and parses user flags
package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harperreed/vesta/config"
	calsync "github.com/harperreed/vesta/sync"
)

// NewService builds the calendar service talking to Google. Sync leases go
// through Redis when REDIS_URL is set, otherwise they are process-local.
// The returned cleanup waits for background syncs and releases the backend.
func NewService(ctx context.Context, database *sql.DB, cfg *config.Config, logger *zap.Logger) (*calsync.Service, func(), error) {
	var locker calsync.Locker = calsync.NewLocalLocker()
	closeLocker := func() error { return nil }

	if cfg.RedisURL != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		redisLocker, closeFn, err := calsync.NewRedisLockerFromURL(pingCtx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		locker, closeLocker = redisLocker, closeFn
		logger.Info("using redis sync leases")
	}

	svc, err := calsync.NewService(database, cfg, locker, logger, nil)
	if err != nil {
		_ = closeLocker()
		return nil, nil, err
	}

	cleanup := func() {
		svc.Wait()
		if err := closeLocker(); err != nil {
			logger.Warn("failed to close redis client", zap.Error(err))
		}
	}
	return svc, cleanup, nil
}

// userFlag registers the --user flag every per-user command takes.
func userFlag(fs *flag.FlagSet) *string {
	return fs.String("user", "", "CRM user ID (required)")
}

func parseUser(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, fmt.Errorf("--user is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user ID: %w", err)
	}
	return id, nil
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
