// Package main provides the Stepline timeout watchdog.
package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/stepline/stepline/pkg/execution"
	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/persistence"
)

// Watchdog cancels executions that have been running longer than the
// configured age. The engine itself never times anything out; this sweep is
// the only place the timeout reason originates.
type Watchdog struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	controller  *execution.Controller
	maxAge      time.Duration
}

func NewWatchdog(
	logger *slog.Logger,
	persistence persistence.Persistence,
	controller *execution.Controller,
	maxAge time.Duration,
) *Watchdog {
	return &Watchdog{
		logger:      logger,
		persistence: persistence,
		controller:  controller,
		maxAge:      maxAge,
	}
}

// Sweep cancels every non-terminal execution older than maxAge and returns
// how many were cancelled. Individual failures are logged and do not stop
// the sweep.
func (w *Watchdog) Sweep(ctx context.Context) (int, error) {
	execs, err := w.persistence.Executions(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().Add(-w.maxAge)
	cancelled := 0

	for _, exec := range execs {
		if exec.Status.Terminal() || exec.StartedAt.After(cutoff) {
			continue
		}

		if _, err := w.controller.Cancel(ctx, exec.ID, models.CancelReasonTimeout); err != nil {
			w.logger.ErrorContext(ctx, "Failed to time out execution",
				"execution_id", exec.ID, "error", err)

			continue
		}

		w.logger.InfoContext(ctx, "Execution timed out",
			"execution_id", exec.ID, "started_at", exec.StartedAt)

		cancelled++
	}

	return cancelled, nil
}
