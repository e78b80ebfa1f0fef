// Package logging builds the structured JSON logger used by every command.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/masahif/steamharvest/internal/config"
)

// Config represents the logging configuration
type Config struct {
	Level         slog.Level
	FilePath      string
	MaxSize       int // MB
	MaxBackups    int
	MaxAgeDays    int
	Console       bool
	ConsoleWriter io.Writer // Defaults to os.Stderr
}

// DefaultConfig returns the default logging configuration
func DefaultConfig() *Config {
	return &Config{
		Level:      slog.LevelInfo,
		FilePath:   "",
		MaxSize:    10, // 10MB
		MaxBackups: 5,
		MaxAgeDays: 30,
		Console:    true,
	}
}

// FromConfig converts the file configuration section
func FromConfig(c config.LogConfig) Config {
	return Config{
		Level:      ParseLevel(c.Level),
		FilePath:   c.FilePath,
		MaxSize:    c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Console:    c.Console,
	}
}

// ParseLevel converts a string log level to slog.Level
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a new logger with the given configuration. The returned
// closer releases the log file and is never nil.
func NewLogger(config Config) (*slog.Logger, io.Closer, error) {
	var writers []io.Writer
	var closer io.Closer = nopCloser{}

	console := config.ConsoleWriter
	if console == nil {
		console = os.Stderr
	}

	if config.Console {
		writers = append(writers, console)
	}

	// File output with rotation
	if config.FilePath != "" {
		fileWriter, err := newFileWriter(config)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, fileWriter)
		closer = fileWriter
	}

	// If no writers configured, fall back to the console
	if len(writers) == 0 {
		writers = append(writers, console)
	}

	var writer io.Writer
	if len(writers) == 1 {
		writer = writers[0]
	} else {
		writer = io.MultiWriter(writers...)
	}

	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level: config.Level,
	})

	return slog.New(handler), closer, nil
}

// SetDefault creates and sets a default logger with the given configuration
func SetDefault(config Config) (*slog.Logger, io.Closer, error) {
	logger, closer, err := NewLogger(config)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
