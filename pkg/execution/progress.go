package execution

import (
	"context"
	"time"

	"github.com/stepline/stepline/pkg/guidance"
	"github.com/stepline/stepline/pkg/models"
)

// progressCap keeps the reported percentage below 100 while the execution is
// not completed, even when every step execution happens to be done. An
// execution with all steps completed but no outcome step fired stays active.
const progressCap = 99.9

// Progress is the computed progress view of an execution. It is never
// stored.
type Progress struct {
	ExecutionID       string                 `json:"execution_id"`
	Status            models.ExecutionStatus `json:"status"`
	CompletedSteps    int                    `json:"completed_steps"`
	TotalSteps        int                    `json:"total_steps"`
	Percent           float64                `json:"percent"`
	RemainingEstimate time.Duration          `json:"remaining_estimate"`
}

// Progress computes step completion and the remaining-time estimate along
// the optimal path to the default outcome.
func (c *Controller) Progress(ctx context.Context, executionID string) (*Progress, error) {
	exec, err := c.Execution(ctx, executionID)
	if err != nil {
		return nil, err
	}

	total := len(exec.Definition.Steps)
	completed := exec.CompletedSteps()

	percent := 0.0
	if total > 0 {
		percent = float64(completed) / float64(total) * 100
	}

	if percent < 0 {
		percent = 0
	}

	switch {
	case exec.Status == models.ExecutionStatusCompleted:
		percent = 100
	case percent > progressCap:
		percent = progressCap
	}

	remaining := time.Duration(0)
	if !exec.Status.Terminal() {
		remaining = guidance.RemainingEstimate(exec)
	}

	return &Progress{
		ExecutionID:       exec.ID,
		Status:            exec.Status,
		CompletedSteps:    completed,
		TotalSteps:        total,
		Percent:           percent,
		RemainingEstimate: remaining,
	}, nil
}
