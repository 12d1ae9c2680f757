// Package logging sets up the structured logger used by every package.
package logging

import (
	"io"
	"log/slog"
	"strings"

	"github.com/pkg/errors"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// ParseLevel maps a config value to a slog level. An empty value means info.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, errors.Errorf("unknown log level %q", level)
}

// New creates a logger writing text or JSON to w and makes it the default.
func New(w io.Writer, level string, format string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl, ReplaceAttr: plainErrors}
	var handler slog.Handler
	switch strings.ToLower(format) {
	case "", FormatText:
		handler = slog.NewTextHandler(w, opts)
	case FormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, errors.Errorf("unknown log format %q", format)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}

// plainErrors logs an error as its message. Errors from pkg/errors carry a
// stack trace that the text handler would print with %+v.
func plainErrors(groups []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindAny {
		return a
	}
	if err, ok := a.Value.Any().(error); ok {
		a.Value = slog.StringValue(err.Error())
	}
	return a
}

// Component returns a child logger tagged with the component name.
func Component(logger *slog.Logger, name string) *slog.Logger {
	return logger.With("component", name)
}
