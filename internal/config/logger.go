package config

import (
	"io"
	"log/slog"
	"strings"
)

// NewLogger returns a text logger writing to w at the named level. Unknown
// levels fall back to info.
func NewLogger(w io.Writer, level string, verbose bool) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
