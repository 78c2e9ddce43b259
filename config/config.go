// ABOUTME: Service configuration loaded from defaults, an optional .env file and the environment
// ABOUTME: Covers database, HTTP, Google OAuth, encryption, Redis and sync tuning settings
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabasePath string
	HTTPAddr     string
	BaseURL      string
	LogLevel     string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	WebhookURL         string

	EncryptionKey string
	StateSecret   string
	RedisURL      string

	ProviderTimeout    time.Duration
	SyncTimeout        time.Duration
	SyncLookbackDays   int
	WatchRenewInterval time.Duration
	WatchRenewWindow   time.Duration
	StatusCacheTTL     time.Duration
}

// DefaultDatabasePath returns the XDG-compliant database location.
func DefaultDatabasePath() string {
	return filepath.Join(xdg.DataHome, "vesta", "vesta.db")
}

func defaults() *Config {
	return &Config{
		DatabasePath:       DefaultDatabasePath(),
		HTTPAddr:           ":8080",
		BaseURL:            "http://localhost:8080",
		LogLevel:           "info",
		ProviderTimeout:    30 * time.Second,
		SyncTimeout:        5 * time.Minute,
		SyncLookbackDays:   180,
		WatchRenewInterval: time.Hour,
		WatchRenewWindow:   24 * time.Hour,
		StatusCacheTTL:     30 * time.Second,
	}
}

// Load reads envFile (or ./.env when empty and present) and then the
// process environment. Variables already set in the environment win.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	} else if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	cfg := defaults()
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	if cfg.GoogleRedirectURL == "" {
		cfg.GoogleRedirectURL = base + "/api/google/calendar/callback"
	}
	if cfg.WebhookURL == "" {
		cfg.WebhookURL = base + "/api/google/calendar/webhook"
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to cfg.
func applyEnvOverrides(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString("VESTA_DB_PATH", &cfg.DatabasePath)
	setString("VESTA_HTTP_ADDR", &cfg.HTTPAddr)
	setString("VESTA_BASE_URL", &cfg.BaseURL)
	setString("LOG_LEVEL", &cfg.LogLevel)
	setString("GOOGLE_CLIENT_ID", &cfg.GoogleClientID)
	setString("GOOGLE_CLIENT_SECRET", &cfg.GoogleClientSecret)
	setString("GOOGLE_REDIRECT_URL", &cfg.GoogleRedirectURL)
	setString("GOOGLE_WEBHOOK_URL", &cfg.WebhookURL)
	setString("VESTA_ENCRYPTION_KEY", &cfg.EncryptionKey)
	setString("VESTA_STATE_SECRET", &cfg.StateSecret)
	setString("REDIS_URL", &cfg.RedisURL)

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"PROVIDER_TIMEOUT", &cfg.ProviderTimeout},
		{"SYNC_TIMEOUT", &cfg.SyncTimeout},
		{"WATCH_RENEW_INTERVAL", &cfg.WatchRenewInterval},
		{"WATCH_RENEW_WINDOW", &cfg.WatchRenewWindow},
		{"STATUS_CACHE_TTL", &cfg.StatusCacheTTL},
	}
	for _, d := range durations {
		v := os.Getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	if v := os.Getenv("SYNC_LOOKBACK_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days < 0 {
			return fmt.Errorf("invalid SYNC_LOOKBACK_DAYS %q", v)
		}
		cfg.SyncLookbackDays = days
	}

	return nil
}

// Validate reports every setting the HTTP service cannot run without.
func (c *Config) Validate() error {
	var missing []string
	if c.GoogleClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}
	if c.GoogleClientSecret == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}
	if c.EncryptionKey == "" {
		missing = append(missing, "VESTA_ENCRYPTION_KEY")
	}
	if c.StateSecret == "" {
		missing = append(missing, "VESTA_STATE_SECRET")
	}
	if len(missing) > 0 {
		return errors.New("missing required configuration: " + strings.Join(missing, ", "))
	}
	if c.ProviderTimeout <= 0 {
		return errors.New("PROVIDER_TIMEOUT must be positive")
	}
	return nil
}

// AppRedirect builds the in-app calendar page URL carrying a result query.
func (c *Config) AppRedirect(key, value string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/calendario?" + key + "=" + value
}
