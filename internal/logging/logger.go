// internal/logging/logger.go
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMaxSize is the rotation threshold used by Open.
const DefaultMaxSize = 10 * 1024 * 1024

// NewLogger creates a new structured logger
func NewLogger(format string, level string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// ParseLevel maps a config level name to a slog level. Unknown names are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// Open builds a logger writing to path through a RotatingWriter, or to
// stderr when path is empty. The returned closer is never nil.
func Open(format, level, path string) (*slog.Logger, io.Closer, error) {
	if path == "" {
		return NewLogger(format, level, os.Stderr), nopCloser{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	w, err := NewRotatingWriter(path, DefaultMaxSize)
	if err != nil {
		return nil, nil, err
	}
	return NewLogger(format, level, w), w, nil
}

// WithTrigger returns a logger with the trigger name attached
func WithTrigger(logger *slog.Logger, name string) *slog.Logger {
	return logger.With("trigger", name)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
