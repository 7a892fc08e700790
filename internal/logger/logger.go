// Package logger sets up structured logging using log/slog. The JSON
// handler also captures the standard log package, so hot-path
// log.Printf lines come out structured too.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// Init creates the process logger for the given component and installs
// it as the slog default.
func Init(component string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With(
		slog.String("component", component),
	)
	slog.SetDefault(logger)
	return logger
}

// LevelFromEnv reads LOG_LEVEL (debug, info, warn, error); unset or
// unknown values fall back to info.
func LevelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
