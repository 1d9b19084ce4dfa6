// Package core holds the configuration fields shared by the whole
// process, independent of any single component.
package core

import (
	"log/slog"
	"os"
)

// Config holds process-wide settings: log level and strict mode.
type Config struct {
	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `koanf:"loglevel"`
	// StrictMode, when false, makes cmd.Start log a warning at startup; no
	// other behavior depends on it.
	StrictMode bool `koanf:"strictmode"`
}

// DefaultConfig returns the configuration used when nothing else is set.
func DefaultConfig() Config {
	return Config{
		LogLevel:   "info",
		StrictMode: true,
	}
}

// ConfigureLogging parses LogLevel and installs a slog handler at that
// level as the process default.
func (c Config) ConfigureLogging() {
	var level slog.Level
	switch c.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
