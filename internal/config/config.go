// Package config provides configuration management for the harvester.
// It defines configuration structures and default values for crawl, source
// and storage parameters.
package config

import (
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Endpoints are the remote URLs the source client talks to
type Endpoints struct {
	AppList       string `mapstructure:"app_list" yaml:"app_list"`               // ISteamApps/GetAppList
	AppDetails    string `mapstructure:"app_details" yaml:"app_details"`         // Store appdetails
	SteamSpy      string `mapstructure:"steamspy" yaml:"steamspy"`               // SteamSpy api.php
	Schema        string `mapstructure:"schema" yaml:"schema"`                   // ISteamUserStats/GetSchemaForGame
	GlobalRates   string `mapstructure:"global_rates" yaml:"global_rates"`       // GetGlobalAchievementPercentagesForApp
	Reviews       string `mapstructure:"reviews" yaml:"reviews"`                 // Store appreviews, app id is appended
	ReviewsPerApp int    `mapstructure:"reviews_per_app" yaml:"reviews_per_app"` // num_per_page for one reviews request
}

// HostDelay is the minimum spacing between two requests to one host
type HostDelay struct {
	Host  string        `mapstructure:"host" yaml:"host"`
	Delay time.Duration `mapstructure:"delay" yaml:"delay"`
}

// SteamConfig configures the remote sources
type SteamConfig struct {
	APIKey            string        `mapstructure:"api_key" yaml:"api_key"`                         // Web API key
	APIKeyEnv         string        `mapstructure:"api_key_env" yaml:"api_key_env"`                 // Environment variable holding the Web API key
	Country           string        `mapstructure:"country" yaml:"country"`                         // cc parameter for prices
	Language          string        `mapstructure:"language" yaml:"language"`                       // l parameter for texts
	UseSteamSpy       bool          `mapstructure:"use_steamspy" yaml:"use_steamspy"`               // Request SteamSpy enrichment for games
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`                   // HTTP User-Agent header
	RequestTimeout    time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`         // HTTP request timeout
	HostDelays        []HostDelay   `mapstructure:"host_delays" yaml:"host_delays"`                 // Minimum spacing per host
	UniverseCachePath string        `mapstructure:"universe_cache_path" yaml:"universe_cache_path"` // JSON cache of the app id list
	Endpoints         Endpoints     `mapstructure:"endpoints" yaml:"endpoints"`
}

// StorageConfig selects and configures the catalog backend
type StorageConfig struct {
	Driver       string `mapstructure:"driver" yaml:"driver"`               // sqlite or postgres
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"` // Path to SQLite database file
	DSN          string `mapstructure:"dsn" yaml:"dsn"`                     // PostgreSQL connection string
	MaxConns     int32  `mapstructure:"max_conns" yaml:"max_conns"`         // PostgreSQL pool size
}

// LogConfig configures log output
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`               // debug, info, warn, error
	FilePath   string `mapstructure:"file_path" yaml:"file_path"`       // Log file, empty for console only
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`   // Rotate after this size
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`   // Rotated files to keep
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Console    bool   `mapstructure:"console" yaml:"console"`           // Also log to stderr when a file is set
}

// CrawlConfig holds harvester configuration
type CrawlConfig struct {
	// Crawl loop parameters
	Concurrency      int           `mapstructure:"concurrency" yaml:"concurrency"`             // Number of concurrent workers
	RequestDelay     time.Duration `mapstructure:"request_delay" yaml:"request_delay"`         // Pause after each item
	Limit            int           `mapstructure:"limit" yaml:"limit"`                         // Stop after N items
	RetryUnavailable bool          `mapstructure:"retry_unavailable" yaml:"retry_unavailable"` // Revisit items marked unavailable
	Seed             int64         `mapstructure:"seed" yaml:"seed"`                           // Shuffle seed, 0 picks one
	StatsInterval    time.Duration `mapstructure:"stats_interval" yaml:"stats_interval"`       // Periodic stats log
	ShowProgress     bool          `mapstructure:"show_progress" yaml:"show_progress"`         // Progress line on stderr
	MetricsAddr      string        `mapstructure:"metrics_addr" yaml:"metrics_addr"`           // Status server, empty disables

	Steam   SteamConfig   `mapstructure:"steam" yaml:"steam"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *CrawlConfig {
	return &CrawlConfig{
		Concurrency:   1,
		RequestDelay:  1500 * time.Millisecond,
		Limit:         0, // unlimited
		StatsInterval: 10 * time.Second,
		ShowProgress:  true,
		Steam: SteamConfig{
			APIKeyEnv:         "STEAM_API_KEY",
			Country:           "us",
			Language:          "english",
			UseSteamSpy:       true,
			UserAgent:         "steamharvest/1.0",
			RequestTimeout:    30 * time.Second,
			HostDelays:        []HostDelay{{Host: "steamspy.com", Delay: time.Second}},
			UniverseCachePath: "./applist.json",
			Endpoints: Endpoints{
				AppList:       "https://api.steampowered.com/ISteamApps/GetAppList/v2/",
				AppDetails:    "https://store.steampowered.com/api/appdetails",
				SteamSpy:      "https://steamspy.com/api.php",
				Schema:        "https://api.steampowered.com/ISteamUserStats/GetSchemaForGame/v2/",
				GlobalRates:   "https://api.steampowered.com/ISteamUserStats/GetGlobalAchievementPercentagesForApp/v2/",
				Reviews:       "https://store.steampowered.com/appreviews/",
				ReviewsPerApp: 20,
			},
		},
		Storage: StorageConfig{
			Driver:       DriverSQLite,
			DatabasePath: "./steam.db",
			MaxConns:     4,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Console:    true,
		},
	}
}

// Validate checks if the configuration is valid
func (c *CrawlConfig) Validate() error {
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}

	if c.Steam.RequestTimeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.RequestDelay < 0 {
		return ErrInvalidDelay
	}

	if c.Limit < 0 {
		return ErrInvalidLimit
	}

	for _, raw := range []string{c.Steam.Endpoints.AppList, c.Steam.Endpoints.AppDetails} {
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			return ErrInvalidEndpoint
		}
	}

	if c.Steam.Endpoints.ReviewsPerApp <= 0 {
		c.Steam.Endpoints.ReviewsPerApp = 20
	}

	switch strings.ToLower(c.Storage.Driver) {
	case DriverSQLite:
		if c.Storage.DatabasePath == "" {
			return ErrEmptyDatabasePath
		}
	case DriverPostgres:
		if c.Storage.DSN == "" {
			return ErrEmptyDSN
		}
	default:
		return ErrUnknownDriver
	}
	c.Storage.Driver = strings.ToLower(c.Storage.Driver)

	return nil
}

// GetAPIKey returns the Web API key, resolving the environment variable
// when the key is not set directly
func (c *SteamConfig) GetAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	if c.APIKeyEnv != "" {
		return os.Getenv(c.APIKeyEnv)
	}
	return ""
}

// HostDelay returns the configured spacing for a host, 0 when unset
func (c *SteamConfig) HostDelay(host string) time.Duration {
	for _, hd := range c.HostDelays {
		if strings.EqualFold(hd.Host, host) {
			return hd.Delay
		}
	}
	return 0
}
