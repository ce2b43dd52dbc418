package models

import "time"

// ExecutionStatus is the lifecycle state of an execution.
type ExecutionStatus string

const (
	ExecutionStatusActive    ExecutionStatus = "active"
	ExecutionStatusPaused    ExecutionStatus = "paused"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
	ExecutionStatusTimeout   ExecutionStatus = "timeout"
)

// Terminal reports whether the status admits no further transitions.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled, ExecutionStatusTimeout:
		return true
	default:
		return false
	}
}

// StepExecutionStatus is the per-step state within an execution. Steps only
// move forward: ready, active, then completed or skipped.
type StepExecutionStatus string

const (
	StepExecutionStatusReady     StepExecutionStatus = "ready"
	StepExecutionStatusActive    StepExecutionStatus = "active"
	StepExecutionStatusCompleted StepExecutionStatus = "completed"
	StepExecutionStatusSkipped   StepExecutionStatus = "skipped"
)

// Done reports whether the step has reached a final state.
func (s StepExecutionStatus) Done() bool {
	return s == StepExecutionStatusCompleted || s == StepExecutionStatusSkipped
}

// StepExecution tracks one step of one execution.
type StepExecution struct {
	StepID         string              `json:"step_id"`
	Status         StepExecutionStatus `json:"status"`
	StartedAt      *time.Time          `json:"started_at,omitempty"`
	CompletedAt    *time.Time          `json:"completed_at,omitempty"`
	ActualDuration time.Duration       `json:"actual_duration"`
	CompletionData map[string]any      `json:"completion_data,omitempty"`
}

// NavigationAction is the kind of operator action recorded in history.
type NavigationAction string

const (
	NavigationActionStarted   NavigationAction = "started"
	NavigationActionNavigated NavigationAction = "navigated"
	NavigationActionCompleted NavigationAction = "completed"
	NavigationActionDecided   NavigationAction = "decided"
	NavigationActionPaused    NavigationAction = "paused"
	NavigationActionResumed   NavigationAction = "resumed"
	NavigationActionCancelled NavigationAction = "cancelled"
)

// CancelReasonTimeout is the cancel reason that lands an execution in the
// timeout status instead of cancelled.
const CancelReasonTimeout = "timeout"

// NavigationEntry is one record of the append-only navigation audit log. It
// is never mutated or deleted.
type NavigationEntry struct {
	StepID    string           `json:"step_id"`
	Action    NavigationAction `json:"action"`
	Data      map[string]any   `json:"data,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Execution is one live run of a workflow definition. It binds a frozen deep
// copy of the definition at start time; edits to the authored definition do
// not reach it. All mutation goes through the execution controller.
type Execution struct {
	ID                string                    `json:"id"`
	WorkflowID        string                    `json:"workflow_id"`
	Definition        *WorkflowDefinition       `json:"definition"`
	InitiatorID       string                    `json:"initiator_id"`
	Status            ExecutionStatus           `json:"status"`
	StartedAt         time.Time                 `json:"started_at"`
	CompletedAt       *time.Time                `json:"completed_at,omitempty"`
	SelectedOutcomeID string                    `json:"selected_outcome_id,omitempty"`
	CurrentStepID     string                    `json:"current_step_id"`
	Variables         map[string]any            `json:"variables"`
	Steps             map[string]*StepExecution `json:"steps"`
	History           []*NavigationEntry        `json:"history"`
	CancelReason      string                    `json:"cancel_reason,omitempty"`
	Warnings          []string                  `json:"warnings,omitempty"`
}

// StepExecutionFor returns the step execution record for the given step, or
// nil when the step does not belong to the bound definition.
func (e *Execution) StepExecutionFor(stepID string) *StepExecution {
	return e.Steps[stepID]
}

// CompletedSteps counts step executions in completed state.
func (e *Execution) CompletedSteps() int {
	count := 0

	for _, se := range e.Steps {
		if se.Status == StepExecutionStatusCompleted {
			count++
		}
	}

	return count
}

// Clone returns a deep copy suitable for handing to readers while mutating
// operations proceed on the original.
func (e *Execution) Clone() *Execution {
	clone := *e

	clone.Definition = e.Definition.Clone()
	clone.Variables = cloneMap(e.Variables)

	clone.Steps = make(map[string]*StepExecution, len(e.Steps))
	for id, se := range e.Steps {
		sc := *se
		sc.CompletionData = cloneMap(se.CompletionData)
		clone.Steps[id] = &sc
	}

	clone.History = make([]*NavigationEntry, len(e.History))
	for i, h := range e.History {
		hc := *h
		hc.Data = cloneMap(h.Data)
		clone.History[i] = &hc
	}

	clone.Warnings = append([]string(nil), e.Warnings...)

	return &clone
}
