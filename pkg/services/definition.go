package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stepline/stepline/pkg/execution"
	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/persistence"
	"github.com/stepline/stepline/pkg/validation"
)

// Definition manages the workflow definition catalog.
type Definition struct {
	persistence persistence.Persistence
}

// NewDefinition creates a new definition service.
func NewDefinition(persistence persistence.Persistence) *Definition {
	return &Definition{
		persistence: persistence,
	}
}

// HealthCheck checks the health of the persistence layer.
func (d *Definition) HealthCheck(ctx context.Context) (string, bool) {
	if d.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := d.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// List retrieves every non-retired definition.
func (d *Definition) List(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	defs, err := d.persistence.Definitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}

	return defs, nil
}

// FetchByID retrieves a definition by its ID, retired ones included.
func (d *Definition) FetchByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	def, err := d.persistence.DefinitionByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return def, nil
}

// Validate runs the graph validator and returns every issue found.
func (d *Definition) Validate(def *models.WorkflowDefinition) []validation.Issue {
	return validation.Validate(def)
}

// Create validates and stores a new definition.
func (d *Definition) Create(ctx context.Context, def *models.WorkflowDefinition) (*models.WorkflowDefinition, error) {
	if def == nil {
		return nil, ErrDefinitionNil
	}

	if issues := validation.Validate(def); len(issues) > 0 {
		return nil, NewValidationError(
			"Create",
			"INVALID_DEFINITION",
			fmt.Sprintf("definition has %d validation issue(s)", len(issues)),
			&execution.DefinitionInvalidError{Issues: issues},
		)
	}

	now := time.Now().UTC()
	def.ID = uuid.New().String()
	def.CreatedAt = now
	def.UpdatedAt = now

	if def.Visibility == "" {
		def.Visibility = models.VisibilityPrivate
	}

	if err := d.persistence.SaveDefinition(ctx, def); err != nil {
		return nil, fmt.Errorf("failed to create definition: %w", err)
	}

	return def, nil
}

// Update modifies an existing definition. Structural edits are rejected
// while any execution of the definition is still in flight; metadata-only
// edits go through.
func (d *Definition) Update(
	ctx context.Context,
	definitionID string,
	def *models.WorkflowDefinition,
) (*models.WorkflowDefinition, error) {
	if def == nil {
		return nil, ErrDefinitionNil
	}

	existing, err := d.persistence.DefinitionByID(ctx, definitionID)
	if err != nil {
		return nil, err
	}

	if existing.RetiredAt != nil {
		return nil, ErrDefinitionRetired
	}

	if issues := validation.Validate(def); len(issues) > 0 {
		return nil, NewValidationError(
			"Update",
			"INVALID_DEFINITION",
			fmt.Sprintf("definition has %d validation issue(s)", len(issues)),
			&execution.DefinitionInvalidError{Issues: issues},
		)
	}

	if !sameGraph(existing, def) {
		inFlight, err := d.hasExecutionsInFlight(ctx, definitionID)
		if err != nil {
			return nil, fmt.Errorf("failed to check executions: %w", err)
		}

		if inFlight {
			return nil, ErrDefinitionInUse
		}
	}

	def.ID = definitionID
	def.CreatedAt = existing.CreatedAt
	def.UpdatedAt = time.Now().UTC()

	if err := d.persistence.SaveDefinition(ctx, def); err != nil {
		return nil, fmt.Errorf("failed to update definition: %w", err)
	}

	return def, nil
}

// Retire soft-retires a definition. Existing executions keep their frozen
// copy; the definition simply stops being listed or startable.
func (d *Definition) Retire(ctx context.Context, definitionID string) error {
	if err := d.persistence.RetireDefinition(ctx, definitionID); err != nil {
		return err
	}

	return nil
}

func (d *Definition) hasExecutionsInFlight(ctx context.Context, definitionID string) (bool, error) {
	execs, err := d.persistence.ExecutionsByWorkflow(ctx, definitionID)
	if err != nil {
		return false, err
	}

	for _, exec := range execs {
		if !exec.Status.Terminal() {
			return true, nil
		}
	}

	return false, nil
}

// sameGraph reports whether two definitions share the same steps,
// connections and outcomes. Name and description changes are not structural.
func sameGraph(a, b *models.WorkflowDefinition) bool {
	return jsonEqual(a.Steps, b.Steps) &&
		jsonEqual(a.Connections, b.Connections) &&
		jsonEqual(a.Outcomes, b.Outcomes)
}

func jsonEqual(a, b any) bool {
	aj, err := json.Marshal(a)
	if err != nil {
		return false
	}

	bj, err := json.Marshal(b)
	if err != nil {
		return false
	}

	return string(aj) == string(bj)
}
