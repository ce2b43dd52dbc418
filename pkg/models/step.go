package models

import "time"

// StepType is the closed set of step kinds. Extension means adding a
// constant here and teaching the validator about it, not scattering string
// comparisons.
type StepType string

const (
	StepTypeInstruction   StepType = "instruction"
	StepTypeMaterial      StepType = "material"
	StepTypeTool          StepType = "tool"
	StepTypeTime          StepType = "time"
	StepTypeDecision      StepType = "decision"
	StepTypeMilestone     StepType = "milestone"
	StepTypeOutcome       StepType = "outcome"
	StepTypeQualityCheck  StepType = "quality_check"
	StepTypeDocumentation StepType = "documentation"
)

// KnownStepTypes lists every valid step type.
var KnownStepTypes = []StepType{
	StepTypeInstruction,
	StepTypeMaterial,
	StepTypeTool,
	StepTypeTime,
	StepTypeDecision,
	StepTypeMilestone,
	StepTypeOutcome,
	StepTypeQualityCheck,
	StepTypeDocumentation,
}

// Valid reports whether t is one of the known step types.
func (t StepType) Valid() bool {
	for _, k := range KnownStepTypes {
		if t == k {
			return true
		}
	}

	return false
}

// ResourceType identifies which external catalog a requirement references.
type ResourceType string

const (
	ResourceTypeMaterial      ResourceType = "material"
	ResourceTypeTool          ResourceType = "tool"
	ResourceTypeDocumentation ResourceType = "documentation"
)

// ResourceRequirement references an externally catalogued resource needed by
// a step. The engine never owns the resource, only the reference.
type ResourceRequirement struct {
	Type       ResourceType `json:"resource_type" validate:"required,oneof=material tool documentation"`
	Reference  string       `json:"reference"     validate:"required"`
	Quantity   float64      `json:"quantity"      validate:"gte=0"`
	Unit       string       `json:"unit"`
	IsOptional bool         `json:"is_optional"`
	Notes      string       `json:"notes,omitempty"`
}

// Key returns the inventory key for this requirement.
func (r *ResourceRequirement) Key() string {
	return string(r.Type) + ":" + r.Reference
}

// DecisionOption is one of the choices an operator picks at a decision step.
type DecisionOption struct {
	ID           string        `json:"id"`
	Text         string        `json:"option_text"   validate:"required"`
	DisplayOrder int           `json:"display_order"`
	IsDefault    bool          `json:"is_default"`
	ResultAction *ResultAction `json:"result_action,omitempty"`
}

// Step is a unit of work in the workflow graph.
type Step struct {
	ID                string                 `json:"id"`
	Name              string                 `json:"name"          validate:"required"`
	Description       string                 `json:"description"`
	Instructions      string                 `json:"instructions"`
	DisplayOrder      int                    `json:"display_order"`
	Type              StepType               `json:"step_type"     validate:"required"`
	ParentID          *string                `json:"parent_id,omitempty"`
	IsMilestone       bool                   `json:"is_milestone"`
	IsDecisionPoint   bool                   `json:"is_decision_point"`
	IsOutcome         bool                   `json:"is_outcome"`
	EstimatedDuration time.Duration          `json:"estimated_duration"`
	Condition         *Condition             `json:"condition,omitempty"`
	Resources         []*ResourceRequirement `json:"resources"`
	DecisionOptions   []*DecisionOption      `json:"decision_options,omitempty"`
}

// OptionByID returns the decision option with the given ID, or nil.
func (s *Step) OptionByID(id string) *DecisionOption {
	for _, o := range s.DecisionOptions {
		if o.ID == id {
			return o
		}
	}

	return nil
}

// DefaultOption returns the option flagged as default, or nil.
func (s *Step) DefaultOption() *DecisionOption {
	for _, o := range s.DecisionOptions {
		if o.IsDefault {
			return o
		}
	}

	return nil
}

// Clone returns a deep copy of the step.
func (s *Step) Clone() *Step {
	clone := *s

	if s.ParentID != nil {
		parent := *s.ParentID
		clone.ParentID = &parent
	}

	if s.Condition != nil {
		clone.Condition = s.Condition.Clone()
	}

	clone.Resources = make([]*ResourceRequirement, len(s.Resources))
	for i, r := range s.Resources {
		rc := *r
		clone.Resources[i] = &rc
	}

	clone.DecisionOptions = make([]*DecisionOption, len(s.DecisionOptions))
	for i, o := range s.DecisionOptions {
		oc := *o
		if o.ResultAction != nil {
			oc.ResultAction = o.ResultAction.Clone()
		}

		clone.DecisionOptions[i] = &oc
	}

	return &clone
}
