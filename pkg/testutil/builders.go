// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/stepline/stepline/pkg/models"
)

// CreateTestStep creates a test Step with default values that can be overridden.
func CreateTestStep(id string, overrides ...func(*models.Step)) *models.Step {
	step := &models.Step{
		ID:                id,
		Name:              "Step " + id,
		Type:              models.StepTypeInstruction,
		Instructions:      "Do the work for " + id,
		EstimatedDuration: time.Minute,
	}

	for _, override := range overrides {
		override(step)
	}

	return step
}

// WithStepType sets the step type.
func WithStepType(stepType models.StepType) func(*models.Step) {
	return func(s *models.Step) {
		s.Type = stepType
	}
}

// WithDisplayOrder sets the step display order.
func WithDisplayOrder(order int) func(*models.Step) {
	return func(s *models.Step) {
		s.DisplayOrder = order
	}
}

// WithEstimatedDuration sets the step estimated duration.
func WithEstimatedDuration(d time.Duration) func(*models.Step) {
	return func(s *models.Step) {
		s.EstimatedDuration = d
	}
}

// AsOutcome marks the step as an outcome step.
func AsOutcome() func(*models.Step) {
	return func(s *models.Step) {
		s.Type = models.StepTypeOutcome
		s.IsOutcome = true
	}
}

// AsMilestone marks the step as a milestone.
func AsMilestone() func(*models.Step) {
	return func(s *models.Step) {
		s.Type = models.StepTypeMilestone
		s.IsMilestone = true
	}
}

// AsDecision marks the step as a decision point with the given options.
func AsDecision(options ...*models.DecisionOption) func(*models.Step) {
	return func(s *models.Step) {
		s.Type = models.StepTypeDecision
		s.IsDecisionPoint = true
		s.DecisionOptions = options
	}
}

// WithResources attaches resource requirements to the step.
func WithResources(resources ...*models.ResourceRequirement) func(*models.Step) {
	return func(s *models.Step) {
		s.Resources = resources
	}
}

// WithCondition attaches an activation condition to the step.
func WithCondition(condition *models.Condition) func(*models.Step) {
	return func(s *models.Step) {
		s.Condition = condition
	}
}

// CreateTestConnection creates a sequential connection between two steps.
func CreateTestConnection(id, source, target string, overrides ...func(*models.Connection)) *models.Connection {
	conn := &models.Connection{
		ID:           id,
		SourceStepID: source,
		TargetStepID: target,
		Type:         models.ConnectionTypeSequential,
	}

	for _, override := range overrides {
		override(conn)
	}

	return conn
}

// WithConnectionType sets the connection type.
func WithConnectionType(connType models.ConnectionType) func(*models.Connection) {
	return func(c *models.Connection) {
		c.Type = connType
	}
}

// WithConnectionCondition attaches a traversal condition to the connection.
func WithConnectionCondition(condition *models.Condition) func(*models.Connection) {
	return func(c *models.Connection) {
		c.Condition = condition
	}
}

// CreateTestDefinition creates a linear three-step definition ending in an
// outcome step. Overrides run after the defaults are set.
func CreateTestDefinition(overrides ...func(*models.WorkflowDefinition)) *models.WorkflowDefinition {
	def := &models.WorkflowDefinition{
		ID:          uuid.New().String(),
		Name:        "Test Workflow",
		Description: "A linear workflow for testing",
		Visibility:  models.VisibilityPrivate,
		Owner:       "test-user",
		Steps: []*models.Step{
			CreateTestStep("s1", WithDisplayOrder(1)),
			CreateTestStep("s2", WithDisplayOrder(2)),
			CreateTestStep("s3", WithDisplayOrder(3), AsOutcome()),
		},
		Connections: []*models.Connection{
			CreateTestConnection("c1", "s1", "s2"),
			CreateTestConnection("c2", "s2", "s3"),
		},
		Outcomes: []*models.Outcome{
			{ID: "o1", Name: "Done", IsDefault: true},
		},
	}

	for _, override := range overrides {
		override(def)
	}

	return def
}

// CreateTestExecution creates an execution of the given definition with the
// entry step ready.
func CreateTestExecution(def *models.WorkflowDefinition, overrides ...func(*models.Execution)) *models.Execution {
	steps := make(map[string]*models.StepExecution, len(def.Steps))
	for _, s := range def.Steps {
		steps[s.ID] = &models.StepExecution{StepID: s.ID, Status: models.StepExecutionStatusReady}
	}

	exec := &models.Execution{
		ID:          uuid.New().String(),
		WorkflowID:  def.ID,
		Definition:  def.Clone(),
		InitiatorID: "test-user",
		Status:      models.ExecutionStatusActive,
		StartedAt:   time.Now().UTC(),
		Variables:   map[string]any{},
		Steps:       steps,
		History:     []*models.NavigationEntry{},
	}

	if entries := def.EntrySteps(); len(entries) > 0 {
		exec.CurrentStepID = entries[0].ID
	}

	for _, override := range overrides {
		override(exec)
	}

	return exec
}
