package cmd_test

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepline/stepline/pkg/cmd"
	"github.com/stepline/stepline/pkg/persistence/file"
)

// The postgres driver must be registered by the production import chain,
// not by a test-only import, or every binary fails at startup with a
// postgres:// DATABASE_URL.
func TestNewPersistencePostgresDriverRegistered(t *testing.T) {
	assert.Contains(t, sql.Drivers(), "postgres")
}

func TestNewPersistenceFilePath(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	p, err := cmd.NewPersistence(context.Background(), logger, t.TempDir())
	require.NoError(t, err)

	_, ok := p.(*file.Persistence)
	assert.True(t, ok)
}
