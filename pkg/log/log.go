// Package log configures the process-wide slog default shared by the
// stepline binaries. Components tag their records with a module attribute
// via WithModule so a single text stream stays filterable.
package log

import (
	"log/slog"
	"os"
	"strings"
)

// Setup installs a text handler on stderr at the named level. Unknown
// level names fall back to info.
func Setup(logLevel string) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(logLevel))); err != nil {
		level = slog.LevelInfo
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

// WithModule returns the default logger tagged with the given module name.
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
