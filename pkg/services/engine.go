package services

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/stepline/stepline/pkg/execution"
	"github.com/stepline/stepline/pkg/guidance"
	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/otelhelper"
	"github.com/stepline/stepline/pkg/persistence"
	"github.com/stepline/stepline/pkg/portable"
	"github.com/stepline/stepline/pkg/resources"
)

// Engine is the execution facade consumed by transports. It fronts the
// controller with definition lookups, guidance queries and tracing.
type Engine struct {
	persistence persistence.Persistence
	controller  *execution.Controller
	coordinator *resources.Coordinator
	tracer      trace.Tracer
}

// NewEngine creates a new engine service. A nil tracer disables tracing.
func NewEngine(
	persistence persistence.Persistence,
	controller *execution.Controller,
	coordinator *resources.Coordinator,
	tracer trace.Tracer,
) *Engine {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("stepline")
	}

	return &Engine{
		persistence: persistence,
		controller:  controller,
		coordinator: coordinator,
		tracer:      tracer,
	}
}

// StartRequest carries everything needed to start an execution.
type StartRequest struct {
	WorkflowID        string `json:"workflow_id"         validate:"required"`
	InitiatorID       string `json:"initiator_id"        validate:"required"`
	SelectedOutcomeID string `json:"selected_outcome_id"`
}

// Start begins a new execution of a workflow definition. Retired
// definitions cannot be started.
func (e *Engine) Start(ctx context.Context, req StartRequest) (*models.Execution, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine start",
		attribute.String(otelhelper.WorkflowIDKey, req.WorkflowID),
		attribute.String(otelhelper.InitiatorIDKey, req.InitiatorID),
	)
	defer span.End()

	def, err := e.persistence.DefinitionByID(ctx, req.WorkflowID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if def.RetiredAt != nil {
		otelhelper.SetError(span, ErrDefinitionRetired)

		return nil, ErrDefinitionRetired
	}

	exec, err := e.controller.Start(ctx, def, req.InitiatorID, req.SelectedOutcomeID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.ExecutionIDKey, exec.ID))

	return exec, nil
}

// Get returns a consistent snapshot of an execution.
func (e *Engine) Get(ctx context.Context, executionID string) (*models.Execution, error) {
	return e.controller.Execution(ctx, executionID)
}

// List returns every execution of a workflow.
func (e *Engine) List(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	execs, err := e.persistence.ExecutionsByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	return execs, nil
}

// Navigate activates a step reachable from the current position.
func (e *Engine) Navigate(ctx context.Context, executionID, stepID string) (*models.Execution, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine navigate",
		attribute.String(otelhelper.ExecutionIDKey, executionID),
		attribute.String(otelhelper.StepIDKey, stepID),
	)
	defer span.End()

	exec, err := e.controller.NavigateToStep(ctx, executionID, stepID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	return exec, nil
}

// Complete marks an active step completed, with optional completion data.
func (e *Engine) Complete(ctx context.Context, executionID, stepID string, data map[string]any) (*models.Execution, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine complete",
		attribute.String(otelhelper.ExecutionIDKey, executionID),
		attribute.String(otelhelper.StepIDKey, stepID),
	)
	defer span.End()

	exec, err := e.controller.CompleteStep(ctx, executionID, stepID, data)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	return exec, nil
}

// Decide picks an option at a decision step.
func (e *Engine) Decide(ctx context.Context, executionID, stepID, optionID string) (*models.Execution, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine decide",
		attribute.String(otelhelper.ExecutionIDKey, executionID),
		attribute.String(otelhelper.StepIDKey, stepID),
		attribute.String(otelhelper.OptionIDKey, optionID),
	)
	defer span.End()

	exec, err := e.controller.MakeDecision(ctx, executionID, stepID, optionID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	return exec, nil
}

// Pause suspends an active execution.
func (e *Engine) Pause(ctx context.Context, executionID, reason string) (*models.Execution, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine pause",
		attribute.String(otelhelper.ExecutionIDKey, executionID),
	)
	defer span.End()

	exec, err := e.controller.Pause(ctx, executionID, reason)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	return exec, nil
}

// Resume reactivates a paused execution.
func (e *Engine) Resume(ctx context.Context, executionID string) (*models.Execution, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine resume",
		attribute.String(otelhelper.ExecutionIDKey, executionID),
	)
	defer span.End()

	exec, err := e.controller.Resume(ctx, executionID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	return exec, nil
}

// Cancel terminates an execution and releases its reservations.
func (e *Engine) Cancel(ctx context.Context, executionID, reason string) (*models.Execution, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine cancel",
		attribute.String(otelhelper.ExecutionIDKey, executionID),
	)
	defer span.End()

	exec, err := e.controller.Cancel(ctx, executionID, reason)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	return exec, nil
}

// Progress reports completion percentage and remaining time estimate.
func (e *Engine) Progress(ctx context.Context, executionID string) (*execution.Progress, error) {
	return e.controller.Progress(ctx, executionID)
}

// AvailableActions lists what the operator can do next.
func (e *Engine) AvailableActions(ctx context.Context, executionID string) ([]guidance.Action, error) {
	exec, err := e.controller.Execution(ctx, executionID)
	if err != nil {
		return nil, err
	}

	return guidance.AvailableActions(exec), nil
}

// SuggestNextAction recommends the single most sensible next move.
func (e *Engine) SuggestNextAction(ctx context.Context, executionID string) (*guidance.Suggestion, error) {
	exec, err := e.controller.Execution(ctx, executionID)
	if err != nil {
		return nil, err
	}

	suggestion := guidance.SuggestNextAction(exec)

	return &suggestion, nil
}

// FindOptimalPath computes the cheapest route from the current step to the
// target, or to the default outcome when the target is empty.
func (e *Engine) FindOptimalPath(ctx context.Context, executionID, targetStepID string) (*guidance.PathResult, error) {
	exec, err := e.controller.Execution(ctx, executionID)
	if err != nil {
		return nil, err
	}

	result := guidance.FindOptimalPath(exec, targetStepID)

	return &result, nil
}

// Readiness scores how well stocked the inventory is for a definition.
func (e *Engine) Readiness(ctx context.Context, workflowID string) (float64, error) {
	def, err := e.persistence.DefinitionByID(ctx, workflowID)
	if err != nil {
		return 0, err
	}

	return e.coordinator.ReadinessScore(ctx, def)
}

// Export serializes a definition into the portable document format.
func (e *Engine) Export(ctx context.Context, workflowID string) (*portable.Document, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine export",
		attribute.String(otelhelper.WorkflowIDKey, workflowID),
	)
	defer span.End()

	def, err := e.persistence.DefinitionByID(ctx, workflowID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	return portable.ToPortable(def), nil
}

// Import parses a portable document, validates it and stores the resulting
// definition under a fresh identity owned by the importer.
func (e *Engine) Import(ctx context.Context, data []byte, owner string) (*models.WorkflowDefinition, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine import")
	defer span.End()

	def, err := portable.FromPortable(data)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	now := time.Now().UTC()
	def.Owner = owner
	def.CreatedAt = now
	def.UpdatedAt = now

	if err := e.persistence.SaveDefinition(ctx, def); err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to store imported definition: %w", err)
	}

	span.SetAttributes(attribute.String(otelhelper.WorkflowIDKey, def.ID))

	return def, nil
}
