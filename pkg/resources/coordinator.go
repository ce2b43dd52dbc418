// Package resources defines the reservation protocol between the execution
// engine and an external inventory collaborator. The engine only calls
// reserve and release at lifecycle boundaries; double-reservation safety
// across competing executions is the inventory's own responsibility.
package resources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stepline/stepline/pkg/models"
)

// ErrMandatoryUnavailable is returned when a non-optional requirement cannot
// be satisfied. Starting an execution against it must fail.
var ErrMandatoryUnavailable = errors.New("mandatory resource unavailable")

// Availability is the per-requirement answer to an availability check.
type Availability struct {
	Requirement *models.ResourceRequirement `json:"requirement"`
	Available   bool                        `json:"available"`
	Shortfall   float64                     `json:"shortfall"`
}

// ReservationResult reports what a reserve call committed. Mandatory
// requirements are all-or-nothing; optional requirements may be missing and
// show up as warnings instead.
type ReservationResult struct {
	ExecutionID string                        `json:"execution_id"`
	Reserved    []*models.ResourceRequirement `json:"reserved"`
	Warnings    []string                      `json:"warnings,omitempty"`
}

// Inventory is the external collaborator holding actual stock.
type Inventory interface {
	CheckAvailability(ctx context.Context, requirements []*models.ResourceRequirement) ([]Availability, error)
	Reserve(ctx context.Context, executionID string, requirements []*models.ResourceRequirement) (*ReservationResult, error)
	Release(ctx context.Context, executionID string) error
}

// Coordinator mediates between the execution controller and the inventory.
type Coordinator struct {
	inventory Inventory
	logger    *slog.Logger
}

func NewCoordinator(inventory Inventory, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		inventory: inventory,
		logger:    logger.With("module", "resource_coordinator"),
	}
}

// CheckStart verifies that every mandatory requirement of the definition is
// currently satisfiable. Optional shortfalls come back as warnings; a
// mandatory shortfall returns ErrMandatoryUnavailable.
func (c *Coordinator) CheckStart(ctx context.Context, def *models.WorkflowDefinition) ([]string, error) {
	requirements := def.AllRequirements()
	if len(requirements) == 0 {
		return nil, nil
	}

	availability, err := c.inventory.CheckAvailability(ctx, requirements)
	if err != nil {
		return nil, fmt.Errorf("availability check failed: %w", err)
	}

	warnings := make([]string, 0)

	for _, a := range availability {
		if a.Available {
			continue
		}

		if a.Requirement.IsOptional {
			warnings = append(warnings, fmt.Sprintf("optional resource %s short by %g %s", a.Requirement.Key(), a.Shortfall, a.Requirement.Unit))

			continue
		}

		return warnings, fmt.Errorf("%w: %s short by %g %s", ErrMandatoryUnavailable, a.Requirement.Key(), a.Shortfall, a.Requirement.Unit)
	}

	return warnings, nil
}

// Reserve commits the definition's requirements to the execution.
func (c *Coordinator) Reserve(ctx context.Context, executionID string, def *models.WorkflowDefinition) (*ReservationResult, error) {
	requirements := def.AllRequirements()
	if len(requirements) == 0 {
		return &ReservationResult{ExecutionID: executionID}, nil
	}

	return c.inventory.Reserve(ctx, executionID, requirements)
}

// Release returns everything reserved for the execution. Idempotent; errors
// are reported to the caller, which logs them without blocking the terminal
// transition.
func (c *Coordinator) Release(ctx context.Context, executionID string) error {
	return c.inventory.Release(ctx, executionID)
}

// ReadinessScore is the weighted percentage of a definition's requirements
// that are currently satisfiable: mandatory requirements count fully,
// optional ones at half weight.
func (c *Coordinator) ReadinessScore(ctx context.Context, def *models.WorkflowDefinition) (float64, error) {
	requirements := def.AllRequirements()
	if len(requirements) == 0 {
		return 100, nil
	}

	availability, err := c.inventory.CheckAvailability(ctx, requirements)
	if err != nil {
		return 0, fmt.Errorf("availability check failed: %w", err)
	}

	var total, satisfied float64

	for _, a := range availability {
		weight := 1.0
		if a.Requirement.IsOptional {
			weight = 0.5
		}

		total += weight

		if a.Available {
			satisfied += weight
		}
	}

	if total == 0 {
		return 100, nil
	}

	return satisfied / total * 100, nil
}
