package adapter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// SetupLogger initializes a zerolog logger writing JSON to the configured
// file.
func SetupLogger(cfg *LoggingConfig) (zerolog.Logger, error) {
	logPath := cfg.File
	if strings.HasPrefix(logPath, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return NullLogger(), fmt.Errorf("failed to get home directory: %w", err)
		}
		logPath = filepath.Join(home, logPath[1:])
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return NullLogger(), fmt.Errorf("failed to create log directory: %w", err)
	}

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return NullLogger(), fmt.Errorf("failed to open log file: %w", err)
	}

	logger := zerolog.New(logFile).
		Level(parseLogLevel(cfg.Level)).
		With().Timestamp().Logger()
	return logger, nil
}

// parseLogLevel converts a string log level to a zerolog level.
func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ConsoleLogger returns a human-readable logger for interactive commands.
func ConsoleLogger(level string) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(parseLogLevel(level)).
		With().Timestamp().Logger()
}

// NullLogger returns a logger that discards all output.
func NullLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}
