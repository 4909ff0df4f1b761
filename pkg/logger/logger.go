// Package logger bootstraps the process-wide slog logger.
package logger

import (
	"log/slog"
	"os"
)

var root *slog.Logger

// Init configures the global logger once at startup. Production emits JSON
// at info level; every other environment gets readable text at debug.
func Init(env string) {
	var handler slog.Handler
	switch env {
	case "production":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}

	root = slog.New(handler)
	slog.SetDefault(root)
}

// LoggerWrapper returns the configured logger, initializing a development
// one if Init was never called.
func LoggerWrapper() *slog.Logger {
	if root == nil {
		Init("development")
	}
	return root
}
