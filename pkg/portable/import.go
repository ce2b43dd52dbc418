package portable

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/validation"
)

// documentSchema is the shape contract every imported document must satisfy
// before referential integrity is even looked at.
const documentSchema = `{
	"type": "object",
	"required": ["preset_info", "workflow", "metadata"],
	"properties": {
		"preset_info": {
			"type": "object",
			"required": ["name"],
			"properties": {
				"name": {"type": "string", "minLength": 1}
			}
		},
		"workflow": {
			"type": "object",
			"required": ["name", "steps", "connections", "outcomes"],
			"properties": {
				"name": {"type": "string", "minLength": 1},
				"has_multiple_outcomes": {"type": "boolean"},
				"steps": {
					"type": "array",
					"items": {
						"type": "object",
						"required": ["id", "name", "step_type"],
						"properties": {
							"id": {"type": "string", "minLength": 1},
							"name": {"type": "string", "minLength": 1},
							"step_type": {"type": "string", "minLength": 1},
							"display_order": {"type": "integer"},
							"estimated_duration": {"type": "integer", "minimum": 0}
						}
					}
				},
				"connections": {
					"type": "array",
					"items": {
						"type": "object",
						"required": ["source_step", "target_step", "connection_type"],
						"properties": {
							"source_step": {"type": "string", "minLength": 1},
							"target_step": {"type": "string", "minLength": 1},
							"connection_type": {"type": "string", "minLength": 1}
						}
					}
				},
				"outcomes": {
					"type": "array",
					"items": {
						"type": "object",
						"required": ["name"],
						"properties": {
							"name": {"type": "string", "minLength": 1}
						}
					}
				}
			}
		},
		"metadata": {
			"type": "object",
			"required": ["version"],
			"properties": {
				"version": {"type": "string"}
			}
		}
	}
}`

// DocumentError accumulates every problem found in an imported document.
// Nothing is returned one problem at a time.
type DocumentError struct {
	ShapeProblems     []string
	IntegrityProblems []string
	Issues            []validation.Issue
}

func (e *DocumentError) Error() string {
	total := len(e.ShapeProblems) + len(e.IntegrityProblems) + len(e.Issues)

	return fmt.Sprintf("portable document rejected with %d problem(s)", total)
}

// IsDocumentError reports whether err is an accumulated document rejection.
func IsDocumentError(err error) bool {
	var docErr *DocumentError

	return errors.As(err, &docErr)
}

// FromPortable parses and validates a portable document and returns a fresh
// definition with newly allocated identifiers. Shape problems, referential
// integrity problems and graph validation issues are all accumulated into a
// single DocumentError.
func FromPortable(data []byte) (*models.WorkflowDefinition, error) {
	shapeProblems, err := validateShape(data)
	if err != nil {
		return nil, err
	}

	if len(shapeProblems) > 0 {
		return nil, &DocumentError{ShapeProblems: shapeProblems}
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse portable document: %w", err)
	}

	integrity := checkIntegrity(&doc)
	if len(integrity) > 0 {
		return nil, &DocumentError{IntegrityProblems: integrity}
	}

	def := remap(&doc)

	if issues := validation.Validate(def); len(issues) > 0 {
		return nil, &DocumentError{Issues: issues}
	}

	return def, nil
}

func validateShape(data []byte) ([]string, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(documentSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to validate document shape: %w", err)
	}

	if result.Valid() {
		return nil, nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}

	return problems, nil
}

// checkIntegrity verifies that every local id reference resolves to a
// declared step and that no local id is declared twice.
func checkIntegrity(doc *Document) []string {
	problems := make([]string, 0)
	declared := make(map[string]bool, len(doc.Workflow.Steps))

	for _, step := range doc.Workflow.Steps {
		if declared[step.ID] {
			problems = append(problems, fmt.Sprintf("duplicate local step id %q", step.ID))
		}

		declared[step.ID] = true
	}

	for i, conn := range doc.Workflow.Connections {
		if !declared[conn.SourceStep] {
			problems = append(problems, fmt.Sprintf("connection %d references unknown source step %q", i, conn.SourceStep))
		}

		if !declared[conn.TargetStep] {
			problems = append(problems, fmt.Sprintf("connection %d references unknown target step %q", i, conn.TargetStep))
		}
	}

	for _, step := range doc.Workflow.Steps {
		for _, option := range step.DecisionOptions {
			if option.ResultAction == nil || option.ResultAction.TargetStep == "" {
				continue
			}

			if !declared[option.ResultAction.TargetStep] {
				problems = append(problems, fmt.Sprintf(
					"decision option %q of step %q references unknown target step %q",
					option.OptionText, step.ID, option.ResultAction.TargetStep))
			}
		}
	}

	return problems
}

// remap converts the document into a definition with freshly allocated
// identifiers, translating every local id reference along the way.
func remap(doc *Document) *models.WorkflowDefinition {
	fresh := make(map[string]string, len(doc.Workflow.Steps))
	for _, step := range doc.Workflow.Steps {
		fresh[step.ID] = uuid.New().String()
	}

	steps := make([]*models.Step, 0, len(doc.Workflow.Steps))
	for _, step := range doc.Workflow.Steps {
		steps = append(steps, importStep(step, fresh))
	}

	connections := make([]*models.Connection, 0, len(doc.Workflow.Connections))
	for _, conn := range doc.Workflow.Connections {
		connections = append(connections, &models.Connection{
			ID:           uuid.New().String(),
			SourceStepID: fresh[conn.SourceStep],
			TargetStepID: fresh[conn.TargetStep],
			Type:         models.ConnectionType(conn.ConnectionType),
			Condition:    conn.Condition.Clone(),
			IsDefault:    conn.IsDefault,
		})
	}

	outcomes := make([]*models.Outcome, 0, len(doc.Workflow.Outcomes))
	for _, outcome := range doc.Workflow.Outcomes {
		outcomes = append(outcomes, &models.Outcome{
			ID:              uuid.New().String(),
			Name:            outcome.Name,
			Description:     outcome.Description,
			IsDefault:       outcome.IsDefault,
			SuccessCriteria: outcome.SuccessCriteria,
		})
	}

	return &models.WorkflowDefinition{
		ID:                  uuid.New().String(),
		Name:                doc.Workflow.Name,
		Description:         doc.Workflow.Description,
		Visibility:          models.VisibilityPrivate,
		HasMultipleOutcomes: doc.Workflow.HasMultipleOutcomes,
		Steps:               steps,
		Connections:         connections,
		Outcomes:            outcomes,
	}
}

func importStep(step *Step, fresh map[string]string) *models.Step {
	resources := make([]*models.ResourceRequirement, 0, len(step.Resources))
	for _, r := range step.Resources {
		resources = append(resources, &models.ResourceRequirement{
			Type:       models.ResourceType(r.ResourceType),
			Reference:  r.Reference,
			Quantity:   r.Quantity,
			Unit:       r.Unit,
			IsOptional: r.IsOptional,
			Notes:      r.Notes,
		})
	}

	var options []*models.DecisionOption

	for _, o := range step.DecisionOptions {
		option := &models.DecisionOption{
			ID:           uuid.New().String(),
			Text:         o.OptionText,
			DisplayOrder: o.DisplayOrder,
			IsDefault:    o.IsDefault,
		}

		if o.ResultAction != nil {
			option.ResultAction = &models.ResultAction{
				Set:          o.ResultAction.Set,
				TargetStepID: fresh[o.ResultAction.TargetStep],
			}
		}

		options = append(options, option)
	}

	return &models.Step{
		ID:                fresh[step.ID],
		Name:              step.Name,
		Description:       step.Description,
		Instructions:      step.Instructions,
		DisplayOrder:      step.DisplayOrder,
		Type:              models.StepType(step.StepType),
		IsMilestone:       step.IsMilestone,
		IsDecisionPoint:   step.IsDecisionPoint,
		IsOutcome:         step.IsOutcome,
		EstimatedDuration: time.Duration(step.EstimatedDuration) * time.Second,
		Resources:         resources,
		DecisionOptions:   options,
	}
}
