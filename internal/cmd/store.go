package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/masahif/steamharvest/internal/config"
	"github.com/masahif/steamharvest/internal/crawler"
	"github.com/masahif/steamharvest/internal/storage"
)

// openStore opens the configured backend
func openStore(ctx context.Context, cfg *config.CrawlConfig) (crawler.Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		return storage.NewPostgresStore(ctx, cfg.Storage)
	default:
		// Create database directory if it doesn't exist
		dbDir := filepath.Dir(cfg.Storage.DatabasePath)
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		return storage.NewSQLiteStore(cfg.Storage.DatabasePath)
	}
}

// describeStore names the backend without exposing credentials
func describeStore(cfg *config.CrawlConfig) string {
	if cfg.Storage.Driver == config.DriverPostgres {
		return "postgres"
	}
	return "sqlite:" + cfg.Storage.DatabasePath
}

// maintenanceConfig loads and validates the configuration for the
// maintenance subcommands
func maintenanceConfig() (*config.CrawlConfig, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
