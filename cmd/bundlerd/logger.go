package main

import (
	"io"
	"log/slog"
	"time"
)

// newLogger creates a new slog.Logger for the daemon, following this
// corpus's isolated-instance (no global mutation beyond the minimal
// bootstrap logger in main) logging idiom.
func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if formatStr == "json" {
		handler = slog.NewJSONHandler(outW, handlerOpts)
	} else {
		handler = slog.NewTextHandler(outW, handlerOpts)
	}
	return slog.New(handler)
}

func msToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
