// Package postgresql provides PostgreSQL persistence for workflow definitions
// and executions.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/persistence/sqlbase"

	_ "github.com/lib/pq"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db             *sql.DB
	logger         *slog.Logger
	definitionRepo *DefinitionRepository
	executionRepo  *ExecutionRepository
}

// NewPersistence creates a new PostgreSQL persistence layer and runs
// migrations on initialization.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:             database,
		logger:         logger,
		definitionRepo: NewDefinitionRepository(database, logger),
		executionRepo:  NewExecutionRepository(database, logger),
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// DefinitionRepository exposes the underlying definition repository.
func (p *Persistence) DefinitionRepository() *DefinitionRepository {
	return p.definitionRepo
}

// ExecutionRepository exposes the underlying execution repository.
func (p *Persistence) ExecutionRepository() *ExecutionRepository {
	return p.executionRepo
}

// Definitions returns all non-retired workflow definitions.
func (p *Persistence) Definitions(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	return p.definitionRepo.GetAll(ctx)
}

// DefinitionByID returns a workflow definition by its ID.
func (p *Persistence) DefinitionByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	return p.definitionRepo.GetByID(ctx, id)
}

// SaveDefinition saves a workflow definition.
func (p *Persistence) SaveDefinition(ctx context.Context, def *models.WorkflowDefinition) error {
	return p.definitionRepo.Save(ctx, def)
}

// RetireDefinition soft-retires a definition by setting its retired_at timestamp.
func (p *Persistence) RetireDefinition(ctx context.Context, id string) error {
	return p.definitionRepo.Retire(ctx, id)
}

// Executions returns all executions.
func (p *Persistence) Executions(ctx context.Context) ([]*models.Execution, error) {
	return p.executionRepo.GetAll(ctx)
}

// ExecutionsByWorkflow returns all executions of the given workflow definition.
func (p *Persistence) ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	return p.executionRepo.GetByWorkflow(ctx, workflowID)
}

// ExecutionByID returns an execution by its ID.
func (p *Persistence) ExecutionByID(ctx context.Context, id string) (*models.Execution, error) {
	return p.executionRepo.GetByID(ctx, id)
}

// SaveExecution saves an execution.
func (p *Persistence) SaveExecution(ctx context.Context, exec *models.Execution) error {
	return p.executionRepo.Save(ctx, exec)
}
