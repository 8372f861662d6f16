// Package logging configures the shared slog logger. Inspection results go
// to stdout, so all logging is kept on stderr.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New creates a logger at the given level writing text records to stderr.
func New(level slog.Level) *slog.Logger {
	return NewWithWriter(level, "text", os.Stderr)
}

// NewWithWriter creates a logger with an explicit format ("text" or
// "json") and destination.
func NewWithWriter(level slog.Level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// FromFlags maps the CLI verbosity flags to a level: quiet wins over
// verbose, the default is info.
func FromFlags(verbose, quiet bool) slog.Level {
	switch {
	case quiet:
		return slog.LevelError
	case verbose:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
