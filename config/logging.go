package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// LogConfig selects the handler the CLI and engine log through.
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error". Empty means info.
	Level string `json:"level,omitempty"`
	// Format is "text" or "json". Empty means text.
	Format string `json:"format,omitempty"`
}

// Logger builds a slog.Logger writing to w with the configured level and
// format. Source locations are attached at debug level.
func (lc LogConfig) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     lc.slogLevel(),
		AddSource: strings.EqualFold(lc.Level, "debug"),
	}

	var handler slog.Handler
	switch strings.ToLower(lc.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func (lc LogConfig) slogLevel() slog.Level {
	switch strings.ToLower(lc.Level) {
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

func (lc LogConfig) validate() error {
	switch strings.ToLower(lc.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", lc.Level)
	}
	switch strings.ToLower(lc.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", lc.Format)
	}
	return nil
}
