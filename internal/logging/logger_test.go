package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/masahif/steamharvest/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected slog.Level
	}{
		{"debug level", "debug", slog.LevelDebug},
		{"info level", "info", slog.LevelInfo},
		{"warn level", "warn", slog.LevelWarn},
		{"warning level", "warning", slog.LevelWarn},
		{"error level", "error", slog.LevelError},
		{"uppercase DEBUG", "DEBUG", slog.LevelDebug},
		{"mixed case Info", "Info", slog.LevelInfo},
		{"invalid level", "invalid", slog.LevelInfo}, // defaults to info
		{"empty string", "", slog.LevelInfo},          // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseLevel(tt.input)
			if result != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != slog.LevelInfo {
		t.Errorf("Default level = %v, want %v", cfg.Level, slog.LevelInfo)
	}
	if cfg.FilePath != "" {
		t.Errorf("Default FilePath = %q, want empty", cfg.FilePath)
	}
	if cfg.MaxSize != 10 {
		t.Errorf("Default MaxSize = %d, want 10", cfg.MaxSize)
	}
	if !cfg.Console {
		t.Error("Default Console = false, want true")
	}
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.LogConfig{
		Level:      "debug",
		FilePath:   "logs/steam.log",
		MaxSizeMB:  20,
		MaxBackups: 2,
		MaxAgeDays: 7,
		Console:    true,
	})

	if cfg.Level != slog.LevelDebug {
		t.Errorf("Level = %v, want debug", cfg.Level)
	}
	if cfg.MaxSize != 20 || cfg.MaxBackups != 2 || cfg.MaxAgeDays != 7 {
		t.Errorf("Unexpected rotation settings: %+v", cfg)
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("console only", func(t *testing.T) {
		var buf bytes.Buffer
		logger, closer, err := NewLogger(Config{
			Level:         slog.LevelInfo,
			Console:       true,
			ConsoleWriter: &buf,
		})
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		defer closer.Close()

		logger.Debug("hidden")
		logger.Info("visible", "app_id", 10)

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if len(lines) != 1 {
			t.Fatalf("Expected 1 log line, got %d: %q", len(lines), buf.String())
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
			t.Fatalf("Log line is not JSON: %v", err)
		}
		if entry["msg"] != "visible" {
			t.Errorf("msg = %v, want visible", entry["msg"])
		}
		if entry["app_id"] != float64(10) {
			t.Errorf("app_id = %v, want 10", entry["app_id"])
		}
	})

	t.Run("file output", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "nested", "test.log")

		logger, closer, err := NewLogger(Config{
			Level:      slog.LevelDebug,
			FilePath:   logFile,
			MaxSize:    10,
			MaxBackups: 3,
			Console:    false,
		})
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}

		logger.Info("test message")
		if err := closer.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}

		data, err := os.ReadFile(logFile)
		if err != nil {
			t.Fatalf("Log file was not created at %s: %v", logFile, err)
		}
		if !strings.Contains(string(data), "test message") {
			t.Errorf("Log file does not contain message: %q", data)
		}
	})

	t.Run("both console and file", func(t *testing.T) {
		var buf bytes.Buffer
		logFile := filepath.Join(t.TempDir(), "test.log")

		logger, closer, err := NewLogger(Config{
			Level:         slog.LevelInfo,
			FilePath:      logFile,
			Console:       true,
			ConsoleWriter: &buf,
		})
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		logger.Info("twice")
		_ = closer.Close()

		if !strings.Contains(buf.String(), "twice") {
			t.Error("Console did not receive the message")
		}
		data, _ := os.ReadFile(logFile)
		if !strings.Contains(string(data), "twice") {
			t.Error("File did not receive the message")
		}
	})

	t.Run("no outputs configured defaults to console", func(t *testing.T) {
		var buf bytes.Buffer
		logger, _, err := NewLogger(Config{
			Level:         slog.LevelInfo,
			ConsoleWriter: &buf,
		})
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		logger.Info("fallback")
		if !strings.Contains(buf.String(), "fallback") {
			t.Error("Expected console fallback")
		}
	})
}

func TestSetDefault(t *testing.T) {
	previous := slog.Default()
	defer slog.SetDefault(previous)

	logFile := filepath.Join(t.TempDir(), "test.log")
	_, closer, err := SetDefault(Config{
		Level:    slog.LevelDebug,
		FilePath: logFile,
	})
	if err != nil {
		t.Fatalf("SetDefault failed: %v", err)
	}

	slog.Info("test message from default logger")
	_ = closer.Close()

	if _, err := os.Stat(logFile); os.IsNotExist(err) {
		t.Errorf("Log file was not created at %s", logFile)
	}
}
