// Package web provides HTTP request and response types for the workflow API.
package web

import "github.com/stepline/stepline/pkg/models"

// CreateDefinitionRequest represents the request body for creating a new
// workflow definition. The full graph is submitted at once.
type CreateDefinitionRequest struct {
	Name                string               `json:"name"                  validate:"required,min=3"`
	Description         string               `json:"description"`
	IsTemplate          bool                 `json:"is_template"`
	Visibility          string               `json:"visibility"            validate:"omitempty,oneof=private shared public"`
	HasMultipleOutcomes bool                 `json:"has_multiple_outcomes"`
	Owner               string               `json:"owner"                 validate:"required"`
	Steps               []*models.Step       `json:"steps"                 validate:"required,min=1"`
	Connections         []*models.Connection `json:"connections"`
	Outcomes            []*models.Outcome    `json:"outcomes"`
}

// UpdateDefinitionRequest represents the request body for updating an
// existing definition. Absent fields keep their stored value.
type UpdateDefinitionRequest struct {
	Name        *string              `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description *string              `json:"description,omitempty"`
	Steps       []*models.Step       `json:"steps,omitempty"`
	Connections []*models.Connection `json:"connections,omitempty"`
	Outcomes    []*models.Outcome    `json:"outcomes,omitempty"`
}

// StartExecutionRequest represents the request body for starting an
// execution.
type StartExecutionRequest struct {
	WorkflowID        string `json:"workflow_id"         validate:"required"`
	InitiatorID       string `json:"initiator_id"        validate:"required"`
	SelectedOutcomeID string `json:"selected_outcome_id"`
}

// NavigateRequest names the step to move to.
type NavigateRequest struct {
	StepID string `json:"step_id" validate:"required"`
}

// CompleteStepRequest carries optional data recorded with the completion.
type CompleteStepRequest struct {
	CompletionData map[string]any `json:"completion_data,omitempty"`
}

// DecideRequest picks an option at a decision step.
type DecideRequest struct {
	StepID   string `json:"step_id"   validate:"required"`
	OptionID string `json:"option_id" validate:"required"`
}

// PauseRequest carries the operator's reason for pausing.
type PauseRequest struct {
	Reason string `json:"reason"`
}

// CancelRequest carries the operator's reason for cancelling.
type CancelRequest struct {
	Reason string `json:"reason"`
}
