package main

import (
	"io"
	"log/slog"
	"strings"

	"nostr-feed/internal/config"
)

// parseLevel maps debug/info/warn/error to a slog level, defaulting to info
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// InitLogger installs the default structured logger. Level comes from the
// logging section (LOG_LEVEL already applied by config), format is json or text.
func InitLogger(cfg config.Logging, w io.Writer) {
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", "level", level.String(), "format", cfg.Format)
}
