package main

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepline/stepline/pkg/eventbus"
	"github.com/stepline/stepline/pkg/execution"
	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/persistence/file"
	"github.com/stepline/stepline/pkg/resources"
	"github.com/stepline/stepline/pkg/resources/memory"
	"github.com/stepline/stepline/pkg/testutil"
)

type dropPublisher struct{}

func (dropPublisher) Publish(context.Context, string, eventbus.Event) error { return nil }

func TestWatchdogSweep(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	store, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	coordinator := resources.NewCoordinator(memory.NewInventory(), logger)
	controller := execution.NewController(logger, store, coordinator, dropPublisher{})

	def := testutil.CreateTestDefinition()
	require.NoError(t, store.SaveDefinition(ctx, def))

	fresh, err := controller.Start(ctx, def, "user-1", "")
	require.NoError(t, err)

	stale, err := controller.Start(ctx, def, "user-1", "")
	require.NoError(t, err)

	done, err := controller.Start(ctx, def, "user-1", "")
	require.NoError(t, err)

	_, err = controller.Cancel(ctx, done.ID, "cleanup")
	require.NoError(t, err)

	// Age the stale execution past the cutoff.
	aged, err := store.ExecutionByID(ctx, stale.ID)
	require.NoError(t, err)

	aged.StartedAt = time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, store.SaveExecution(ctx, aged))

	watchdog := NewWatchdog(logger, store, controller, time.Hour)

	cancelled, err := watchdog.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cancelled)

	timedOut, err := store.ExecutionByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusTimeout, timedOut.Status)
	assert.Equal(t, models.CancelReasonTimeout, timedOut.CancelReason)

	untouched, err := store.ExecutionByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusActive, untouched.Status)

	// Already-terminal executions are never revisited.
	previously, err := store.ExecutionByID(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, previously.Status)

	// A second sweep finds nothing left to do.
	cancelled, err = watchdog.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, cancelled)
}
