// ABOUTME: HTTP server subcommand
// ABOUTME: Runs the calendar API, webhook receiver and the periodic watch channel renewal
package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/harperreed/vesta/cache"
	"github.com/harperreed/vesta/config"
	calsync "github.com/harperreed/vesta/sync"
	"github.com/harperreed/vesta/web"
)

const shutdownTimeout = 15 * time.Second

// newServer wires the service, the status cache and the HTTP API. The
// returned close drains background syncs before closing the cache their
// completion hooks write to.
func newServer(ctx context.Context, database *sql.DB, cfg *config.Config, logger *zap.Logger) (*web.Server, *calsync.Service, func(), error) {
	svc, cleanup, err := NewService(ctx, database, cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	store, err := cache.Open()
	if err != nil {
		cleanup()
		return nil, nil, nil, fmt.Errorf("failed to open status cache: %w", err)
	}

	closeAll := func() {
		cleanup()
		if err := store.Close(); err != nil {
			logger.Warn("failed to close status cache", zap.Error(err))
		}
	}
	return web.NewServer(database, svc, store, cfg, logger), svc, closeAll, nil
}

// ServeCommand runs the HTTP service until SIGINT or SIGTERM.
func ServeCommand(database *sql.DB, cfg *config.Config, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", cfg.HTTPAddr, "Listen address")
	renew := fs.Bool("renew-watches", true, "Periodically renew expiring push channels")
	_ = fs.Parse(args)

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, svc, closeServer, err := newServer(ctx, database, cfg, logger)
	if err != nil {
		return err
	}
	defer closeServer()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(*addr); err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if *renew && svc.Watches.Enabled() {
		g.Go(func() error {
			runWatchRenewal(ctx, svc, cfg.WatchRenewInterval, cfg.WatchRenewWindow, logger)
			return nil
		})
	} else {
		logger.Warn("watch channel renewal disabled", zap.String("webhook_url", cfg.WebhookURL))
	}

	return g.Wait()
}

// runWatchRenewal renews channels nearing expiry once at startup and then
// every interval until ctx is done.
func runWatchRenewal(ctx context.Context, svc *calsync.Service, interval, window time.Duration, logger *zap.Logger) {
	renew := func() {
		renewCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()
		renewed, err := svc.Watches.RenewExpiringChannels(renewCtx, window)
		if err != nil {
			logger.Error("watch channel renewal failed", zap.Error(err))
			return
		}
		if renewed > 0 {
			logger.Info("renewed watch channels", zap.Int("count", renewed))
		}
	}

	renew()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			renew()
		}
	}
}
