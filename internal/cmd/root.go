// Package cmd provides the command-line interface for steamharvest.
// It handles command parsing, configuration loading, and crawl execution.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/masahif/steamharvest/internal/config"
	"github.com/masahif/steamharvest/internal/crawler"
	"github.com/masahif/steamharvest/internal/logging"
	"github.com/masahif/steamharvest/internal/metrics"
	"github.com/masahif/steamharvest/internal/source"
)

const (
	configName = "steamharvest"
	envPrefix  = "SH"
)

var (
	cfgFile   string
	version   string
	buildTime string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "steamharvest",
	Short: "A resumable Steam catalog harvester",
	Long: `steamharvest crawls the Steam app catalog into a relational database.

It walks every app id known to Steam, normalizes store, SteamSpy,
achievement and review payloads, and records a processing status per app
so an interrupted crawl resumes where it stopped.`,
	Args:          cobra.NoArgs,
	RunE:          runCrawl,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets version information for the CLI
func SetVersionInfo(v, bt string) {
	version = v
	buildTime = bt
	rootCmd.Version = fmt.Sprintf("%s (built %s)", version, buildTime)
}

func init() {
	cobra.OnInitialize(initConfig)

	defaults := config.DefaultConfig()

	// Configuration file flag
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./steamharvest.yml)")

	// Storage flags are shared by every subcommand
	rootCmd.PersistentFlags().String("driver", defaults.Storage.Driver, "Storage backend: 'sqlite' or 'postgres'")
	rootCmd.PersistentFlags().StringP("database", "d", defaults.Storage.DatabasePath, "Path to SQLite database file")
	rootCmd.PersistentFlags().String("dsn", "", "PostgreSQL connection string")
	rootCmd.PersistentFlags().String("log-level", defaults.Log.Level, "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-file", "", "Log file path (rotated)")

	// Configuration management flags
	rootCmd.Flags().Bool("show-config", false, "Display current configuration in YAML format and exit")

	// Crawl flags
	rootCmd.Flags().IntP("concurrency", "c", defaults.Concurrency, "Number of concurrent workers")
	rootCmd.Flags().DurationP("delay", "r", defaults.RequestDelay, "Pause after each app")
	rootCmd.Flags().DurationP("timeout", "t", defaults.Steam.RequestTimeout, "HTTP request timeout")
	rootCmd.Flags().StringP("user-agent", "u", defaults.Steam.UserAgent, "HTTP User-Agent header")
	rootCmd.Flags().IntP("limit", "l", 0, "Stop after N apps (0=unlimited)")
	rootCmd.Flags().Bool("retry-unavailable", false, "Revisit apps previously marked unavailable")
	rootCmd.Flags().Int64("seed", 0, "Shuffle seed (0=random)")
	rootCmd.Flags().Bool("steamspy", defaults.Steam.UseSteamSpy, "Request SteamSpy enrichment for games")
	rootCmd.Flags().Bool("progress", defaults.ShowProgress, "Render a progress line on stderr")
	rootCmd.Flags().String("metrics-addr", "", "Serve /metrics, /healthz and /progress on this address")

	// Bind flags to viper
	bindFlags := []struct {
		viperKey string
		flag     string
	}{
		{"storage.driver", "driver"},
		{"storage.database_path", "database"},
		{"storage.dsn", "dsn"},
		{"log.level", "log-level"},
		{"log.file_path", "log-file"},
		{"concurrency", "concurrency"},
		{"request_delay", "delay"},
		{"steam.request_timeout", "timeout"},
		{"steam.user_agent", "user-agent"},
		{"limit", "limit"},
		{"retry_unavailable", "retry-unavailable"},
		{"seed", "seed"},
		{"steam.use_steamspy", "steamspy"},
		{"show_progress", "progress"},
		{"metrics_addr", "metrics-addr"},
	}

	for _, bind := range bindFlags {
		flag := rootCmd.Flags().Lookup(bind.flag)
		if flag == nil {
			flag = rootCmd.PersistentFlags().Lookup(bind.flag)
		}
		if err := viper.BindPFlag(bind.viperKey, flag); err != nil {
			// Log the error but continue - non-critical for operation
			fmt.Fprintf(os.Stderr, "Warning: failed to bind flag %s: %v\n", bind.flag, err)
		}
	}

	rootCmd.AddCommand(dropTablesCmd, statusCmd)
}

// envKeys are nested keys that may come from the environment alone
var envKeys = []string{
	"storage.driver",
	"storage.database_path",
	"storage.dsn",
	"steam.api_key",
	"steam.universe_cache_path",
	"log.level",
	"log.file_path",
	"metrics_addr",
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// A missing .env file is fine
	_ = godotenv.Load()

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in current directory
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(configName)
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv() // read in environment variables that match
	for _, key := range envKeys {
		_ = viper.BindEnv(key)
	}

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

func generateUserAgent() string {
	if version != "" && version != "dev" {
		return fmt.Sprintf("steamharvest/%s", version)
	}
	return "steamharvest/dev"
}

// loadConfig merges viper values over the defaults
func loadConfig() (*config.CrawlConfig, error) {
	cfg := config.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

func showCurrentConfig(w io.Writer, cfg *config.CrawlConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	// Validate configuration before showing it
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Configuration validation failed: %v\n", err)
		fmt.Fprintf(os.Stderr, "Displaying configuration anyway...\n\n")
	}

	shown := *cfg
	if shown.Steam.APIKey != "" {
		shown.Steam.APIKey = "********"
	}
	if shown.Storage.DSN != "" {
		shown.Storage.DSN = "********"
	}

	yamlData, err := yaml.Marshal(&shown)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration to YAML: %w", err)
	}

	// Add header comment to the output
	fmt.Fprintf(w, "# Current steamharvest Configuration\n")
	fmt.Fprintf(w, "# Generated at: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(w, "# Configuration file search paths: ./%s.yml\n", configName)
	fmt.Fprintf(w, "# Environment variables prefix: %s_\n\n", envPrefix)

	fmt.Fprint(w, string(yamlData))

	// Add footer with additional information
	fmt.Fprintf(w, "\n# Configuration source priority:\n")
	fmt.Fprintf(w, "# 1. Command-line arguments (highest priority)\n")
	fmt.Fprintf(w, "# 2. Environment variables (%s_ prefix, .env supported)\n", envPrefix)
	fmt.Fprintf(w, "# 3. Configuration file (%s.yml)\n", configName)
	fmt.Fprintf(w, "# 4. Default values (lowest priority)\n")

	return nil
}

func runCrawl(cmd *cobra.Command, _ []string) error {
	// Handle --show-config flag first
	showConfig, _ := cmd.Flags().GetBool("show-config")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Update User-Agent with dynamic version if not explicitly set
	if !cmd.Flags().Changed("user-agent") && cfg.Steam.UserAgent == config.DefaultConfig().Steam.UserAgent {
		cfg.Steam.UserAgent = generateUserAgent()
	}

	if showConfig {
		return showCurrentConfig(cmd.OutOrStdout(), cfg)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, closer, err := logging.SetDefault(logging.FromConfig(cfg.Log))
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = closer.Close() }()

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	logger.Info("Starting harvester",
		"version", version,
		"storage", describeStore(cfg),
		"concurrency", cfg.Concurrency,
		"request_delay", cfg.RequestDelay,
		"limit", cfg.Limit,
		"api_key_set", cfg.Steam.GetAPIKey() != "",
	)

	var opts []crawler.Option
	if cfg.ShowProgress {
		opts = append(opts, crawler.WithProgress(cmd.ErrOrStderr()))
	}
	c := crawler.New(cfg, source.NewClient(cfg.Steam, logger), store, logger, opts...)
	defer func() { _ = c.Stop() }()

	if cfg.MetricsAddr != "" {
		serverCtx, stopServer := context.WithCancel(ctx)
		defer stopServer()
		server := metrics.NewServer(cfg.MetricsAddr, func() any { return c.GetStats() }, logger)
		go func() {
			if err := server.Run(serverCtx); err != nil {
				logger.Error("Status server failed", "error", err)
			}
		}()
	}

	return c.Run(ctx)
}

// commandContext returns the command context, or a background one when the
// command runs outside Execute
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
