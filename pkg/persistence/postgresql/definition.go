package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/persistence"
)

// DefinitionRepository handles workflow definition database operations.
type DefinitionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewDefinitionRepository creates a new definition repository.
func NewDefinitionRepository(db *sql.DB, logger *slog.Logger) *DefinitionRepository {
	return &DefinitionRepository{db: db, logger: logger}
}

const definitionColumns = `
		id
	  , name
	  , description
	  , is_template
	  , visibility
	  , has_multiple_outcomes
	  , owner
	  , steps
	  , connections
	  , outcomes
	  , created_at
	  , updated_at
	  , retired_at
`

// GetAll returns all non-retired workflow definitions.
func (r *DefinitionRepository) GetAll(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	query := `
		SELECT ` + definitionColumns + `
		FROM workflow_definitions
		WHERE retired_at IS NULL
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow definitions: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	defs := make([]*models.WorkflowDefinition, 0)

	for rows.Next() {
		def, err := r.scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow definition: %w", err)
		}

		defs = append(defs, def)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflow definitions: %w", err)
	}

	return defs, nil
}

// GetByID returns a workflow definition by its ID, including retired ones.
func (r *DefinitionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	query := `
		SELECT ` + definitionColumns + `
		FROM workflow_definitions
		WHERE id = $1
	`

	row := r.db.QueryRowContext(ctx, query, id)

	def, err := r.scanDefinition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("DefinitionByID", id, persistence.ErrDefinitionNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow definition: %w", err)
	}

	return def, nil
}

// Save saves a workflow definition, inserting or updating in place.
func (r *DefinitionRepository) Save(ctx context.Context, def *models.WorkflowDefinition) error {
	now := time.Now().UTC()

	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}

	def.UpdatedAt = now

	if def.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate definition ID: %w", err)
		}

		def.ID = id.String()
	}

	stepsJSON, err := json.Marshal(def.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}

	connectionsJSON, err := json.Marshal(def.Connections)
	if err != nil {
		return fmt.Errorf("failed to marshal connections: %w", err)
	}

	outcomesJSON, err := json.Marshal(def.Outcomes)
	if err != nil {
		return fmt.Errorf("failed to marshal outcomes: %w", err)
	}

	query := `
		INSERT INTO workflow_definitions (id, name, description, is_template,
visibility, has_multiple_outcomes, owner, steps, connections, outcomes, created_at, updated_at, retired_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			is_template = EXCLUDED.is_template,
			visibility = EXCLUDED.visibility,
			has_multiple_outcomes = EXCLUDED.has_multiple_outcomes,
			owner = EXCLUDED.owner,
			steps = EXCLUDED.steps,
			connections = EXCLUDED.connections,
			outcomes = EXCLUDED.outcomes,
			updated_at = EXCLUDED.updated_at,
			retired_at = EXCLUDED.retired_at
	`

	_, err = r.db.ExecContext(ctx, query,
		def.ID,
		def.Name,
		def.Description,
		def.IsTemplate,
		def.Visibility,
		def.HasMultipleOutcomes,
		def.Owner,
		stepsJSON,
		connectionsJSON,
		outcomesJSON,
		def.CreatedAt,
		def.UpdatedAt,
		def.RetiredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow definition: %w", err)
	}

	return nil
}

// Retire soft-retires a definition by setting retired_at. Retiring an
// already-retired definition is a no-op.
func (r *DefinitionRepository) Retire(ctx context.Context, id string) error {
	query := `UPDATE workflow_definitions SET retired_at = NOW() WHERE id = $1 AND retired_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to retire workflow definition: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		var exists bool

		err = r.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM workflow_definitions WHERE id = $1)", id).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check definition existence: %w", err)
		}

		if !exists {
			return persistence.NewStoreError("RetireDefinition", id, persistence.ErrDefinitionNotFound)
		}
	}

	return nil
}

func (r *DefinitionRepository) scanDefinition(scanner interface {
	Scan(dest ...any) error
}) (*models.WorkflowDefinition, error) {
	var (
		def                                      models.WorkflowDefinition
		stepsJSON, connectionsJSON, outcomesJSON []byte
	)

	err := scanner.Scan(
		&def.ID,
		&def.Name,
		&def.Description,
		&def.IsTemplate,
		&def.Visibility,
		&def.HasMultipleOutcomes,
		&def.Owner,
		&stepsJSON,
		&connectionsJSON,
		&outcomesJSON,
		&def.CreatedAt,
		&def.UpdatedAt,
		&def.RetiredAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(stepsJSON, &def.Steps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal steps: %w", err)
	}

	if err := json.Unmarshal(connectionsJSON, &def.Connections); err != nil {
		return nil, fmt.Errorf("failed to unmarshal connections: %w", err)
	}

	if err := json.Unmarshal(outcomesJSON, &def.Outcomes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outcomes: %w", err)
	}

	return &def, nil
}
