package execution

import (
	"errors"
	"fmt"

	"github.com/stepline/stepline/pkg/validation"
)

var (
	// ErrInvalidTransition indicates an operation that is illegal in the
	// execution's or step's current state.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrStepNotFound indicates a step ID absent from the execution's
	// frozen definition.
	ErrStepNotFound = errors.New("step not found in execution definition")

	// ErrOptionNotFound indicates a decision option that does not belong
	// to the step.
	ErrOptionNotFound = errors.New("decision option not found")

	// ErrOutcomeNotFound indicates an outcome ID absent from the definition.
	ErrOutcomeNotFound = errors.New("outcome not found in definition")
)

// StepError identifies the step or option an operation failed on. It
// unwraps to the underlying sentinel.
type StepError struct {
	ExecutionID string
	StepID      string
	Err         error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%v (execution %s, step %s)", e.Err, e.ExecutionID, e.StepID)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// TransitionError describes why an operation was illegal in the current
// state. It unwraps to ErrInvalidTransition.
type TransitionError struct {
	ExecutionID string
	StepID      string
	Op          string
	Reason      string
}

func (e *TransitionError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("%s: %s (execution %s, step %s)", e.Op, e.Reason, e.ExecutionID, e.StepID)
	}

	return fmt.Sprintf("%s: %s (execution %s)", e.Op, e.Reason, e.ExecutionID)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// NewTransitionError creates a transition error for an operation.
func NewTransitionError(op, executionID, stepID, reason string) *TransitionError {
	return &TransitionError{Op: op, ExecutionID: executionID, StepID: stepID, Reason: reason}
}

// DefinitionInvalidError carries the accumulated structural issues of a
// definition that failed graph validation.
type DefinitionInvalidError struct {
	Issues []validation.Issue
}

func (e *DefinitionInvalidError) Error() string {
	return fmt.Sprintf("workflow definition failed validation with %d issue(s)", len(e.Issues))
}

// IsInvalidTransition reports whether err is a transition violation.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// IsDefinitionInvalid reports whether err carries graph validation issues.
func IsDefinitionInvalid(err error) bool {
	var invalid *DefinitionInvalidError

	return errors.As(err, &invalid)
}
