package main

import (
	"log/slog"
	"os"

	"github.com/wpanio/go-rcp-bridge/internal/logging"
)

// Rotation policy for -log-file.
const (
	logMaxSizeMB  = 50
	logMaxBackups = 3
	logMaxAgeDays = 14
)

func setupLogger(format, level, file string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	var l *slog.Logger
	if file != "" {
		l = logging.NewRotating(format, lvl, file, logMaxSizeMB, logMaxBackups, logMaxAgeDays)
	} else {
		l = logging.New(format, lvl, os.Stderr)
	}
	l = l.With("app", "rcp-bridge")
	logging.Set(l)
	return l
}
