package config

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Concurrency != 1 {
		t.Errorf("Expected concurrency 1, got %d", cfg.Concurrency)
	}

	if cfg.RequestDelay != 1500*time.Millisecond {
		t.Errorf("Expected request delay 1.5s, got %v", cfg.RequestDelay)
	}

	if cfg.Steam.RequestTimeout != 30*time.Second {
		t.Errorf("Expected request timeout 30s, got %v", cfg.Steam.RequestTimeout)
	}

	if cfg.Steam.APIKeyEnv != "STEAM_API_KEY" {
		t.Errorf("Expected api key env STEAM_API_KEY, got %s", cfg.Steam.APIKeyEnv)
	}

	if cfg.Storage.Driver != DriverSQLite || cfg.Storage.DatabasePath != "./steam.db" {
		t.Errorf("Expected sqlite at ./steam.db, got %s at %s", cfg.Storage.Driver, cfg.Storage.DatabasePath)
	}

	if cfg.Limit != 0 {
		t.Errorf("Expected limit 0, got %d", cfg.Limit)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *CrawlConfig)
		wantErr error
	}{
		{
			name:   "valid config",
			mutate: func(c *CrawlConfig) {},
		},
		{
			name:    "invalid concurrency",
			mutate:  func(c *CrawlConfig) { c.Concurrency = 0 },
			wantErr: ErrInvalidConcurrency,
		},
		{
			name:    "invalid timeout",
			mutate:  func(c *CrawlConfig) { c.Steam.RequestTimeout = 0 },
			wantErr: ErrInvalidTimeout,
		},
		{
			name:    "negative delay",
			mutate:  func(c *CrawlConfig) { c.RequestDelay = -time.Second },
			wantErr: ErrInvalidDelay,
		},
		{
			name:    "negative limit",
			mutate:  func(c *CrawlConfig) { c.Limit = -1 },
			wantErr: ErrInvalidLimit,
		},
		{
			name:    "relative endpoint",
			mutate:  func(c *CrawlConfig) { c.Steam.Endpoints.AppDetails = "/api/appdetails" },
			wantErr: ErrInvalidEndpoint,
		},
		{
			name:    "empty database path",
			mutate:  func(c *CrawlConfig) { c.Storage.DatabasePath = "" },
			wantErr: ErrEmptyDatabasePath,
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *CrawlConfig) { c.Storage.Driver = "postgres" },
			wantErr: ErrEmptyDSN,
		},
		{
			name: "postgres with dsn",
			mutate: func(c *CrawlConfig) {
				c.Storage.Driver = "Postgres"
				c.Storage.DSN = "postgres://localhost/steam"
			},
		},
		{
			name:    "unknown driver",
			mutate:  func(c *CrawlConfig) { c.Storage.Driver = "mysql" },
			wantErr: ErrUnknownDriver,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateNormalizes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Steam.Endpoints.ReviewsPerApp = 0
	cfg.Storage.Driver = "SQLite"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.Steam.Endpoints.ReviewsPerApp != 20 {
		t.Errorf("Expected reviews per app to default to 20, got %d", cfg.Steam.Endpoints.ReviewsPerApp)
	}
	if cfg.Storage.Driver != DriverSQLite {
		t.Errorf("Expected driver to be lowercased, got %s", cfg.Storage.Driver)
	}
}

func TestGetAPIKey(t *testing.T) {
	t.Setenv("SH_TEST_STEAM_KEY", "from-env")

	cfg := DefaultConfig().Steam
	cfg.APIKeyEnv = "SH_TEST_STEAM_KEY"
	if got := cfg.GetAPIKey(); got != "from-env" {
		t.Errorf("Expected key from env, got %q", got)
	}

	cfg.APIKey = "direct"
	if got := cfg.GetAPIKey(); got != "direct" {
		t.Errorf("Expected direct key to win, got %q", got)
	}

	cfg.APIKey = ""
	cfg.APIKeyEnv = ""
	if got := cfg.GetAPIKey(); got != "" {
		t.Errorf("Expected empty key, got %q", got)
	}
}

func TestHostDelay(t *testing.T) {
	cfg := DefaultConfig().Steam

	if got := cfg.HostDelay("SteamSpy.com"); got != time.Second {
		t.Errorf("Expected 1s for steamspy.com, got %v", got)
	}
	if got := cfg.HostDelay("store.steampowered.com"); got != 0 {
		t.Errorf("Expected no delay for store, got %v", got)
	}
}
