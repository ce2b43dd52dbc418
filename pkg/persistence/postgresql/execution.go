package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/persistence"
)

// ExecutionRepository handles execution database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

const executionColumns = `
		id
	  , workflow_id
	  , definition
	  , initiator_id
	  , status
	  , started_at
	  , completed_at
	  , selected_outcome_id
	  , current_step_id
	  , variables
	  , steps
	  , history
	  , cancel_reason
	  , warnings
`

// GetAll returns all executions, most recently started first.
func (r *ExecutionRepository) GetAll(ctx context.Context) ([]*models.Execution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		ORDER BY started_at DESC
	`

	return r.queryExecutions(ctx, query)
}

// GetByWorkflow returns all executions of the given workflow definition.
func (r *ExecutionRepository) GetByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE workflow_id = $1
		ORDER BY started_at DESC
	`

	return r.queryExecutions(ctx, query, workflowID)
}

// GetByID returns an execution by its ID.
func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE id = $1
	`

	row := r.db.QueryRowContext(ctx, query, id)

	exec, err := r.scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("ExecutionByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return exec, nil
}

// Save saves an execution, inserting or updating in place.
func (r *ExecutionRepository) Save(ctx context.Context, exec *models.Execution) error {
	definitionJSON, err := json.Marshal(exec.Definition)
	if err != nil {
		return fmt.Errorf("failed to marshal definition: %w", err)
	}

	variablesJSON, err := json.Marshal(exec.Variables)
	if err != nil {
		return fmt.Errorf("failed to marshal variables: %w", err)
	}

	stepsJSON, err := json.Marshal(exec.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal step executions: %w", err)
	}

	historyJSON, err := json.Marshal(exec.History)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	warningsJSON, err := json.Marshal(exec.Warnings)
	if err != nil {
		return fmt.Errorf("failed to marshal warnings: %w", err)
	}

	query := `
		INSERT INTO executions (id, workflow_id, definition, initiator_id,
status, started_at, completed_at, selected_outcome_id, current_step_id, variables, steps, history, cancel_reason, warnings)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			completed_at = EXCLUDED.completed_at,
			selected_outcome_id = EXCLUDED.selected_outcome_id,
			current_step_id = EXCLUDED.current_step_id,
			variables = EXCLUDED.variables,
			steps = EXCLUDED.steps,
			history = EXCLUDED.history,
			cancel_reason = EXCLUDED.cancel_reason,
			warnings = EXCLUDED.warnings
	`

	_, err = r.db.ExecContext(ctx, query,
		exec.ID,
		exec.WorkflowID,
		definitionJSON,
		exec.InitiatorID,
		exec.Status,
		exec.StartedAt,
		exec.CompletedAt,
		exec.SelectedOutcomeID,
		exec.CurrentStepID,
		variablesJSON,
		stepsJSON,
		historyJSON,
		exec.CancelReason,
		warningsJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}

	return nil
}

func (r *ExecutionRepository) queryExecutions(ctx context.Context, query string, args ...any) ([]*models.Execution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	execs := make([]*models.Execution, 0)

	for rows.Next() {
		exec, err := r.scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		execs = append(execs, exec)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return execs, nil
}

func (r *ExecutionRepository) scanExecution(scanner interface {
	Scan(dest ...any) error
}) (*models.Execution, error) {
	var (
		exec models.Execution

		definitionJSON, variablesJSON, stepsJSON, historyJSON, warningsJSON []byte
		selectedOutcomeID, currentStepID, cancelReason                      sql.NullString
	)

	err := scanner.Scan(
		&exec.ID,
		&exec.WorkflowID,
		&definitionJSON,
		&exec.InitiatorID,
		&exec.Status,
		&exec.StartedAt,
		&exec.CompletedAt,
		&selectedOutcomeID,
		&currentStepID,
		&variablesJSON,
		&stepsJSON,
		&historyJSON,
		&cancelReason,
		&warningsJSON,
	)
	if err != nil {
		return nil, err
	}

	exec.SelectedOutcomeID = selectedOutcomeID.String
	exec.CurrentStepID = currentStepID.String
	exec.CancelReason = cancelReason.String

	if err := json.Unmarshal(definitionJSON, &exec.Definition); err != nil {
		return nil, fmt.Errorf("failed to unmarshal definition: %w", err)
	}

	if err := json.Unmarshal(variablesJSON, &exec.Variables); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
	}

	if err := json.Unmarshal(stepsJSON, &exec.Steps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal step executions: %w", err)
	}

	if err := json.Unmarshal(historyJSON, &exec.History); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}

	if warningsJSON != nil {
		if err := json.Unmarshal(warningsJSON, &exec.Warnings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal warnings: %w", err)
		}
	}

	return &exec, nil
}
