// Package applog initializes this tool's structured logger.
package applog

import (
	"log/slog"
	"os"
)

// globalLevel is the dynamic level variable backing the JSON handler, so
// SetLevel can change verbosity without rebuilding the logger.
var globalLevel = new(slog.LevelVar)

// Setup installs a JSON slog logger at the given level as the process
// default and returns it.
func Setup(level string) *slog.Logger {
	SetLevel(level)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: globalLevel}))
	slog.SetDefault(logger)
	return logger
}

// SetLevel changes the global log level at runtime. Valid values are
// "debug", "warn", "error"; anything else (including "") is "info".
func SetLevel(level string) {
	switch level {
	case "debug":
		globalLevel.Set(slog.LevelDebug)
	case "warn":
		globalLevel.Set(slog.LevelWarn)
	case "error":
		globalLevel.Set(slog.LevelError)
	default:
		globalLevel.Set(slog.LevelInfo)
	}
}
