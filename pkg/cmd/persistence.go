// Package cmd provides the URL-scheme-based wiring factories shared by the
// binaries.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/stepline/stepline/pkg/persistence"
	"github.com/stepline/stepline/pkg/persistence/file"
	"github.com/stepline/stepline/pkg/persistence/postgresql"
)

// NewPersistence picks a store from the database URL scheme: postgres:// and
// postgresql:// open a postgres store, anything else is treated as a file
// path.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parseProvider(databaseURL) {
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		return file.NewPersistence(databaseURL)
	}
}

func parseProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return provider
}
