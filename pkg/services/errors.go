// Package services exposes the definition and engine facades consumed by
// transports, plus the standardized error types they return.
package services

import (
	"errors"
	"fmt"

	"github.com/stepline/stepline/pkg/execution"
	"github.com/stepline/stepline/pkg/persistence"
	"github.com/stepline/stepline/pkg/portable"
	"github.com/stepline/stepline/pkg/resources"
)

// Business logic errors. These indicate client errors (4xx responses).
var (
	// Validation errors (400 Bad Request).
	ErrInvalidRequest = errors.New("invalid request")
	ErrDefinitionNil  = errors.New("definition cannot be nil")

	// Not-found errors (404 Not Found), re-exported from persistence so
	// callers only need this package.
	ErrDefinitionNotFound = persistence.ErrDefinitionNotFound
	ErrExecutionNotFound  = persistence.ErrExecutionNotFound

	// Business logic conflicts (409 Conflict).
	ErrDefinitionRetired = errors.New("definition is retired")
	ErrDefinitionInUse   = errors.New("definition has executions in flight")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should
// return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrDefinitionNil) ||
		execution.IsDefinitionInvalid(err) ||
		portable.IsDocumentError(err)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return persistence.IsNotFound(err) ||
		errors.Is(err, execution.ErrStepNotFound) ||
		errors.Is(err, execution.ErrOptionNotFound) ||
		errors.Is(err, execution.ErrOutcomeNotFound)
}

// IsInvalidTransitionError checks if an error is a state machine rejection
// that should return HTTP 409.
func IsInvalidTransitionError(err error) bool {
	return execution.IsInvalidTransition(err)
}

// IsResourceUnavailableError checks if an error means a mandatory resource
// could not be reserved, HTTP 409.
func IsResourceUnavailableError(err error) bool {
	return errors.Is(err, resources.ErrMandatoryUnavailable)
}

// IsConflictError checks if an error is a business logic conflict that
// should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrDefinitionRetired) ||
		errors.Is(err, ErrDefinitionInUse) ||
		IsInvalidTransitionError(err) ||
		IsResourceUnavailableError(err)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
