// Package log configures the process-wide structured logger.
package log

import (
	"log/slog"
	"os"
	"strings"
)

// Setup installs a text handler on the default logger. Unknown level names
// fall back to info so a typo in LOG_LEVEL never silences the process.
func Setup(logLevel string) {
	level := slog.LevelInfo

	err := level.UnmarshalText([]byte(strings.ToUpper(logLevel)))
	if err != nil {
		level = slog.LevelInfo
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

// WithModule returns the default logger tagged with a module name. Every
// pipeline attaches its own module tag so log lines are filterable.
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
