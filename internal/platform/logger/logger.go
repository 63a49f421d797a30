package logger

import (
	"log/slog"
	"os"
)

// New returns the process-wide structured logger. Logs go to stderr so the
// JSON result map on stdout stays machine-readable.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, nil))
}

// NewAt returns a logger filtered to the given level.
func NewAt(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
