// Package persistence provides standardized error types for storage
// operations.
package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrDefinitionNotFound indicates no definition exists for the given id.
	ErrDefinitionNotFound = errors.New("definition not found")

	// ErrExecutionNotFound indicates no execution exists for the given id.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrDefinitionRetired indicates the definition is soft-retired and no
	// longer accepts new executions.
	ErrDefinitionRetired = errors.New("definition retired")
)

// StoreError wraps storage errors with operation context.
type StoreError struct {
	Op  string // Operation being performed (e.g. "DefinitionByID", "SaveExecution")
	ID  string // Entity id if applicable
	Err error
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s failed for %s: %v", e.Op, e.ID, e.Err)
	}

	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a storage error with context.
func NewStoreError(op, id string, err error) *StoreError {
	return &StoreError{Op: op, ID: id, Err: err}
}

// IsDefinitionNotFound checks if an error indicates a missing definition.
func IsDefinitionNotFound(err error) bool {
	return errors.Is(err, ErrDefinitionNotFound)
}

// IsExecutionNotFound checks if an error indicates a missing execution.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsNotFound checks for either missing entity kind.
func IsNotFound(err error) bool {
	return IsDefinitionNotFound(err) || IsExecutionNotFound(err)
}
