// Package execution owns the execution state machine. Every mutation of an
// execution goes through the Controller, which serializes operations per
// execution and publishes events only after the state has been committed and
// the lock released.
package execution

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stepline/stepline/pkg/eventbus"
	"github.com/stepline/stepline/pkg/events"
	"github.com/stepline/stepline/pkg/guidance"
	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/persistence"
	"github.com/stepline/stepline/pkg/resources"
	"github.com/stepline/stepline/pkg/validation"
)

// Controller runs executions of validated workflow definitions.
type Controller struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	coordinator *resources.Coordinator
	publisher   eventbus.EventPublisher
	locks       *executionLocks
}

// NewController creates an execution controller.
func NewController(
	logger *slog.Logger,
	p persistence.Persistence,
	coordinator *resources.Coordinator,
	publisher eventbus.EventPublisher,
) *Controller {
	return &Controller{
		logger:      logger.With("module", "execution"),
		persistence: p,
		coordinator: coordinator,
		publisher:   publisher,
		locks:       newExecutionLocks(),
	}
}

// Start validates the definition, checks resource readiness, reserves
// resources and creates the execution in the active state. Mandatory
// resource shortfalls abort the start; optional shortfalls become warnings
// on the created execution.
func (c *Controller) Start(ctx context.Context, def *models.WorkflowDefinition, initiatorID, selectedOutcomeID string) (*models.Execution, error) {
	if issues := validation.Validate(def); len(issues) > 0 {
		return nil, &DefinitionInvalidError{Issues: issues}
	}

	if selectedOutcomeID != "" && def.OutcomeByID(selectedOutcomeID) == nil {
		return nil, ErrOutcomeNotFound
	}

	warnings, err := c.coordinator.CheckStart(ctx, def)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entry := def.EntrySteps()[0]

	exec := &models.Execution{
		ID:                id.String(),
		WorkflowID:        def.ID,
		Definition:        def.Clone(),
		InitiatorID:       initiatorID,
		Status:            models.ExecutionStatusActive,
		StartedAt:         now,
		SelectedOutcomeID: selectedOutcomeID,
		CurrentStepID:     entry.ID,
		Variables:         make(map[string]any),
		Steps:             make(map[string]*models.StepExecution, len(def.Steps)),
		History: []*models.NavigationEntry{
			{StepID: entry.ID, Action: models.NavigationActionStarted, Timestamp: now},
		},
		Warnings: warnings,
	}

	for _, step := range def.Steps {
		exec.Steps[step.ID] = &models.StepExecution{
			StepID: step.ID,
			Status: models.StepExecutionStatusReady,
		}
	}

	reservation, err := c.coordinator.Reserve(ctx, exec.ID, def)
	if err != nil {
		return nil, err
	}

	exec.Warnings = mergeWarnings(exec.Warnings, reservation.Warnings)

	if err := c.persistence.SaveExecution(ctx, exec); err != nil {
		c.releaseResources(ctx, exec.ID)

		return nil, err
	}

	c.publish(ctx, exec.ID, events.ExecutionStarted{
		BaseEvent:         events.NewBaseEvent(events.ExecutionStartedEvent, exec.ID, exec.WorkflowID, initiatorID),
		WorkflowName:      def.Name,
		EntryStepID:       entry.ID,
		SelectedOutcomeID: selectedOutcomeID,
		ResourceWarnings:  exec.Warnings,
	})

	return exec.Clone(), nil
}

// NavigateToStep moves the execution to a step reachable from the current
// step. Navigating to the current entry step while it is still ready
// activates it.
func (c *Controller) NavigateToStep(ctx context.Context, executionID, targetStepID string) (*models.Execution, error) {
	return c.update(ctx, executionID, func(exec *models.Execution, m *mutation) error {
		if exec.Status != models.ExecutionStatusActive {
			return NewTransitionError("navigate", executionID, targetStepID, "execution is not active")
		}

		target := exec.Definition.StepByID(targetStepID)
		if target == nil {
			return &StepError{ExecutionID: executionID, StepID: targetStepID, Err: ErrStepNotFound}
		}

		state := exec.StepExecutionFor(targetStepID)
		if state.Status != models.StepExecutionStatusReady {
			return NewTransitionError("navigate", executionID, targetStepID,
				"target step is "+string(state.Status)+", expected ready")
		}

		if targetStepID != exec.CurrentStepID && !reachable(exec, targetStepID) {
			return NewTransitionError("navigate", executionID, targetStepID,
				"step is not reachable from the current step")
		}

		now := time.Now().UTC()
		from := exec.CurrentStepID

		state.Status = models.StepExecutionStatusActive
		state.StartedAt = &now
		exec.CurrentStepID = targetStepID
		exec.History = append(exec.History, &models.NavigationEntry{
			StepID:    targetStepID,
			Action:    models.NavigationActionNavigated,
			Timestamp: now,
		})

		m.events = append(m.events, events.StepNavigated{
			BaseEvent:  events.NewBaseEvent(events.StepNavigatedEvent, exec.ID, exec.WorkflowID, exec.InitiatorID),
			FromStepID: from,
			ToStepID:   targetStepID,
		})

		return nil
	})
}

// CompleteStep records completion of an active step. Completing an outcome
// step completes the whole execution and releases reserved resources.
func (c *Controller) CompleteStep(ctx context.Context, executionID, stepID string, completionData map[string]any) (*models.Execution, error) {
	return c.update(ctx, executionID, func(exec *models.Execution, m *mutation) error {
		if exec.Status != models.ExecutionStatusActive {
			return NewTransitionError("complete", executionID, stepID, "execution is not active")
		}

		step := exec.Definition.StepByID(stepID)
		if step == nil {
			return &StepError{ExecutionID: executionID, StepID: stepID, Err: ErrStepNotFound}
		}

		state := exec.StepExecutionFor(stepID)
		if state.Status != models.StepExecutionStatusActive {
			return NewTransitionError("complete", executionID, stepID,
				"step is "+string(state.Status)+", expected active")
		}

		c.completeStep(exec, step, state, completionData, m)

		return nil
	})
}

// MakeDecision completes a decision step with the chosen option, applies its
// result action to the variable store and navigates along the now-matching
// connection or the option's explicit target.
func (c *Controller) MakeDecision(ctx context.Context, executionID, stepID, optionID string) (*models.Execution, error) {
	return c.update(ctx, executionID, func(exec *models.Execution, m *mutation) error {
		if exec.Status != models.ExecutionStatusActive {
			return NewTransitionError("decide", executionID, stepID, "execution is not active")
		}

		step := exec.Definition.StepByID(stepID)
		if step == nil {
			return &StepError{ExecutionID: executionID, StepID: stepID, Err: ErrStepNotFound}
		}

		if !step.IsDecisionPoint {
			return NewTransitionError("decide", executionID, stepID, "step is not a decision point")
		}

		state := exec.StepExecutionFor(stepID)
		if state.Status != models.StepExecutionStatusActive {
			return NewTransitionError("decide", executionID, stepID,
				"step is "+string(state.Status)+", expected active")
		}

		option := step.OptionByID(optionID)
		if option == nil {
			return &StepError{ExecutionID: executionID, StepID: stepID, Err: ErrOptionNotFound}
		}

		if option.ResultAction != nil {
			for k, v := range option.ResultAction.Set {
				exec.Variables[k] = v
			}
		}

		now := time.Now().UTC()
		exec.History = append(exec.History, &models.NavigationEntry{
			StepID:    stepID,
			Action:    models.NavigationActionDecided,
			Data:      map[string]any{"option_id": optionID},
			Timestamp: now,
		})

		c.completeStep(exec, step, state, map[string]any{"option_id": optionID}, m)

		next := c.decisionTarget(exec, step, option)
		if next != "" {
			nextState := exec.StepExecutionFor(next)
			if nextState != nil && nextState.Status == models.StepExecutionStatusReady {
				nextState.Status = models.StepExecutionStatusActive
				nextState.StartedAt = &now
				exec.CurrentStepID = next
				exec.History = append(exec.History, &models.NavigationEntry{
					StepID:    next,
					Action:    models.NavigationActionNavigated,
					Timestamp: now,
				})

				m.events = append(m.events, events.StepNavigated{
					BaseEvent:  events.NewBaseEvent(events.StepNavigatedEvent, exec.ID, exec.WorkflowID, exec.InitiatorID),
					FromStepID: stepID,
					ToStepID:   next,
				})
			}
		}

		m.events = append(m.events, events.DecisionMade{
			BaseEvent:  events.NewBaseEvent(events.DecisionMadeEvent, exec.ID, exec.WorkflowID, exec.InitiatorID),
			StepID:     stepID,
			OptionID:   optionID,
			OptionText: option.Text,
			NextStepID: next,
		})

		return nil
	})
}

// Pause suspends an active execution.
func (c *Controller) Pause(ctx context.Context, executionID, reason string) (*models.Execution, error) {
	return c.update(ctx, executionID, func(exec *models.Execution, m *mutation) error {
		if exec.Status != models.ExecutionStatusActive {
			return NewTransitionError("pause", executionID, "", "execution is "+string(exec.Status)+", expected active")
		}

		exec.Status = models.ExecutionStatusPaused
		exec.History = append(exec.History, &models.NavigationEntry{
			StepID:    exec.CurrentStepID,
			Action:    models.NavigationActionPaused,
			Data:      map[string]any{"reason": reason},
			Timestamp: time.Now().UTC(),
		})

		m.events = append(m.events, events.ExecutionPaused{
			BaseEvent:      events.NewBaseEvent(events.ExecutionPausedEvent, exec.ID, exec.WorkflowID, exec.InitiatorID),
			Reason:         reason,
			PausedAtStepID: exec.CurrentStepID,
		})

		return nil
	})
}

// Resume returns a paused execution to active.
func (c *Controller) Resume(ctx context.Context, executionID string) (*models.Execution, error) {
	return c.update(ctx, executionID, func(exec *models.Execution, m *mutation) error {
		if exec.Status != models.ExecutionStatusPaused {
			return NewTransitionError("resume", executionID, "", "execution is "+string(exec.Status)+", expected paused")
		}

		now := time.Now().UTC()
		pauseDuration := time.Duration(0)

		for i := len(exec.History) - 1; i >= 0; i-- {
			if exec.History[i].Action == models.NavigationActionPaused {
				pauseDuration = now.Sub(exec.History[i].Timestamp)

				break
			}
		}

		exec.Status = models.ExecutionStatusActive
		exec.History = append(exec.History, &models.NavigationEntry{
			StepID:    exec.CurrentStepID,
			Action:    models.NavigationActionResumed,
			Timestamp: now,
		})

		m.events = append(m.events, events.ExecutionResumed{
			BaseEvent:     events.NewBaseEvent(events.ExecutionResumedEvent, exec.ID, exec.WorkflowID, exec.InitiatorID),
			PauseDuration: pauseDuration,
		})

		return nil
	})
}

// Cancel terminates a non-terminal execution and releases its resources. A
// "timeout" reason lands in the timeout status. Cancelling an already
// cancelled or timed-out execution is a no-op success.
func (c *Controller) Cancel(ctx context.Context, executionID, reason string) (*models.Execution, error) {
	return c.update(ctx, executionID, func(exec *models.Execution, m *mutation) error {
		if exec.Status == models.ExecutionStatusCancelled || exec.Status == models.ExecutionStatusTimeout {
			m.noop = true

			return nil
		}

		if exec.Status.Terminal() {
			return NewTransitionError("cancel", executionID, "", "execution is already "+string(exec.Status))
		}

		now := time.Now().UTC()

		exec.Status = models.ExecutionStatusCancelled
		if reason == models.CancelReasonTimeout {
			exec.Status = models.ExecutionStatusTimeout
		}

		exec.CancelReason = reason
		exec.CompletedAt = &now
		exec.History = append(exec.History, &models.NavigationEntry{
			StepID:    exec.CurrentStepID,
			Action:    models.NavigationActionCancelled,
			Data:      map[string]any{"reason": reason},
			Timestamp: now,
		})

		m.release = true
		m.events = append(m.events, events.ExecutionCancelled{
			BaseEvent: events.NewBaseEvent(events.ExecutionCancelledEvent, exec.ID, exec.WorkflowID, exec.InitiatorID),
			Reason:    reason,
			Timeout:   exec.Status == models.ExecutionStatusTimeout,
			Duration:  now.Sub(exec.StartedAt),
		})

		return nil
	})
}

// Execution returns a consistent snapshot of the execution.
func (c *Controller) Execution(ctx context.Context, executionID string) (*models.Execution, error) {
	unlock := c.locks.acquire(executionID)
	defer unlock()

	exec, err := c.persistence.ExecutionByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	return exec.Clone(), nil
}

func (c *Controller) completeStep(exec *models.Execution, step *models.Step, state *models.StepExecution, completionData map[string]any, m *mutation) {
	now := time.Now().UTC()

	state.Status = models.StepExecutionStatusCompleted
	state.CompletedAt = &now
	state.CompletionData = completionData

	if state.StartedAt != nil {
		state.ActualDuration = now.Sub(*state.StartedAt)
	}

	exec.History = append(exec.History, &models.NavigationEntry{
		StepID:    step.ID,
		Action:    models.NavigationActionCompleted,
		Timestamp: now,
	})

	m.events = append(m.events, events.StepCompleted{
		BaseEvent:      events.NewBaseEvent(events.StepCompletedEvent, exec.ID, exec.WorkflowID, exec.InitiatorID),
		StepID:         step.ID,
		StepName:       step.Name,
		ActualDuration: state.ActualDuration,
		CompletionData: completionData,
	})

	if step.IsMilestone {
		m.events = append(m.events, events.MilestoneReached{
			BaseEvent: events.NewBaseEvent(events.MilestoneReachedEvent, exec.ID, exec.WorkflowID, exec.InitiatorID),
			StepID:    step.ID,
			StepName:  step.Name,
		})
	}

	if step.IsOutcome {
		exec.Status = models.ExecutionStatusCompleted
		exec.CompletedAt = &now

		if exec.SelectedOutcomeID == "" {
			if outcome := exec.Definition.DefaultOutcome(); outcome != nil {
				exec.SelectedOutcomeID = outcome.ID
			}
		}

		outcomeName := ""
		if outcome := exec.Definition.OutcomeByID(exec.SelectedOutcomeID); outcome != nil {
			outcomeName = outcome.Name
		}

		m.release = true
		m.events = append(m.events, events.ExecutionCompleted{
			BaseEvent:      events.NewBaseEvent(events.ExecutionCompletedEvent, exec.ID, exec.WorkflowID, exec.InitiatorID),
			OutcomeID:      exec.SelectedOutcomeID,
			OutcomeName:    outcomeName,
			Duration:       now.Sub(exec.StartedAt),
			StepsCompleted: exec.CompletedSteps(),
		})
	}
}

// decisionTarget picks where the execution moves after a decision: the
// option's explicit target when set, otherwise the first traversable
// connection whose target has not finished yet.
func (c *Controller) decisionTarget(exec *models.Execution, step *models.Step, option *models.DecisionOption) string {
	if option.ResultAction != nil && option.ResultAction.TargetStepID != "" {
		if exec.Definition.StepByID(option.ResultAction.TargetStepID) != nil {
			return option.ResultAction.TargetStepID
		}
	}

	for _, conn := range guidance.TraversableConnections(exec, step.ID) {
		state := exec.StepExecutionFor(conn.TargetStepID)
		if state != nil && !state.Status.Done() {
			return conn.TargetStepID
		}
	}

	return ""
}

// reachable reports whether targetStepID can be reached from the current
// step over a connection whose condition holds, or the choice default.
func reachable(exec *models.Execution, targetStepID string) bool {
	for _, conn := range guidance.TraversableConnections(exec, exec.CurrentStepID) {
		if conn.TargetStepID == targetStepID {
			return true
		}
	}

	return false
}

type mutation struct {
	events  []eventbus.Event
	release bool
	noop    bool
}

// update runs a mutating operation under the per-execution lock. The state
// is committed before the lock is released; resource release and event
// publishing happen after, so no lock is held across boundary calls.
func (c *Controller) update(ctx context.Context, executionID string, fn func(exec *models.Execution, m *mutation) error) (*models.Execution, error) {
	unlock := c.locks.acquire(executionID)

	exec, err := c.persistence.ExecutionByID(ctx, executionID)
	if err != nil {
		unlock()

		return nil, err
	}

	var m mutation

	if err := fn(exec, &m); err != nil {
		unlock()

		return nil, err
	}

	if m.noop {
		snapshot := exec.Clone()
		unlock()

		return snapshot, nil
	}

	if err := c.persistence.SaveExecution(ctx, exec); err != nil {
		unlock()

		return nil, err
	}

	snapshot := exec.Clone()
	unlock()

	if m.release {
		c.releaseResources(ctx, executionID)
	}

	c.publish(ctx, executionID, m.events...)

	return snapshot, nil
}

func (c *Controller) releaseResources(ctx context.Context, executionID string) {
	if err := c.coordinator.Release(ctx, executionID); err != nil {
		c.logger.ErrorContext(ctx, "failed to release reserved resources",
			"execution_id", executionID, "error", err)
	}
}

func (c *Controller) publish(ctx context.Context, key string, evts ...eventbus.Event) {
	for _, event := range evts {
		if err := c.publisher.Publish(ctx, key, event); err != nil {
			c.logger.ErrorContext(ctx, "failed to publish execution event",
				"execution_id", key, "event_type", event.GetType(), "error", err)
		}
	}
}

func mergeWarnings(existing, extra []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, w := range existing {
		seen[w] = true
	}

	for _, w := range extra {
		if !seen[w] {
			existing = append(existing, w)
			seen[w] = true
		}
	}

	return existing
}
