// Package persistence provides the storage abstraction for workflow
// definitions and executions. The engine only depends on this interface;
// file and postgresql implementations live in subpackages.
package persistence

import (
	"context"

	"github.com/stepline/stepline/pkg/models"
)

type Persistence interface {
	Definitions(ctx context.Context) ([]*models.WorkflowDefinition, error)
	DefinitionByID(ctx context.Context, id string) (*models.WorkflowDefinition, error)
	SaveDefinition(ctx context.Context, def *models.WorkflowDefinition) error
	// RetireDefinition soft-retires: the definition stays readable for
	// executions that reference it and is never physically destroyed.
	RetireDefinition(ctx context.Context, id string) error

	Executions(ctx context.Context) ([]*models.Execution, error)
	ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error)
	ExecutionByID(ctx context.Context, id string) (*models.Execution, error)
	SaveExecution(ctx context.Context, exec *models.Execution) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
