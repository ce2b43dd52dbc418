// Package portable translates workflow definitions to and from the portable
// JSON document format used for sharing definitions between installations.
// Local identifiers inside a document are stable and independent of the
// storage layer's primary keys.
package portable

import (
	"time"

	"github.com/stepline/stepline/pkg/models"
)

// DocumentVersion is written into every exported document.
const DocumentVersion = "1"

// Document is the portable representation of a workflow definition.
type Document struct {
	PresetInfo        PresetInfo        `json:"preset_info"`
	Workflow          Workflow          `json:"workflow"`
	RequiredResources RequiredResources `json:"required_resources"`
	Metadata          Metadata          `json:"metadata"`
}

// PresetInfo describes the document for catalog listings.
type PresetInfo struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Difficulty    string   `json:"difficulty,omitempty"`
	EstimatedTime int64    `json:"estimated_time"`
	Tags          []string `json:"tags"`
}

// Workflow is the graph payload of a document.
type Workflow struct {
	Name                string        `json:"name"`
	Description         string        `json:"description"`
	HasMultipleOutcomes bool          `json:"has_multiple_outcomes"`
	Steps               []*Step       `json:"steps"`
	Connections         []*Connection `json:"connections"`
	Outcomes            []*Outcome    `json:"outcomes"`
}

// Step is a step with a document-local identifier ("step-1", "step-2", ...).
type Step struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	Description       string            `json:"description,omitempty"`
	Instructions      string            `json:"instructions,omitempty"`
	DisplayOrder      int               `json:"display_order"`
	StepType          string            `json:"step_type"`
	EstimatedDuration int64             `json:"estimated_duration"`
	IsMilestone       bool              `json:"is_milestone"`
	IsDecisionPoint   bool              `json:"is_decision_point"`
	IsOutcome         bool              `json:"is_outcome"`
	Resources         []*Resource       `json:"resources"`
	DecisionOptions   []*DecisionOption `json:"decision_options,omitempty"`
}

// Resource is a resource requirement of a step.
type Resource struct {
	ResourceType string  `json:"resource_type"`
	Reference    string  `json:"reference"`
	Quantity     float64 `json:"quantity"`
	Unit         string  `json:"unit,omitempty"`
	IsOptional   bool    `json:"is_optional"`
	Notes        string  `json:"notes,omitempty"`
}

// DecisionOption is one choice of a decision step. A result action's target
// step references a document-local step id.
type DecisionOption struct {
	OptionText   string        `json:"option_text"`
	DisplayOrder int           `json:"display_order"`
	IsDefault    bool          `json:"is_default"`
	ResultAction *ResultAction `json:"result_action,omitempty"`
}

// ResultAction mirrors models.ResultAction with a local target step id.
type ResultAction struct {
	Set        map[string]any `json:"set,omitempty"`
	TargetStep string         `json:"target_step,omitempty"`
}

// Connection is an edge between two document-local step ids.
type Connection struct {
	SourceStep     string            `json:"source_step"`
	TargetStep     string            `json:"target_step"`
	ConnectionType string            `json:"connection_type"`
	Condition      *models.Condition `json:"condition,omitempty"`
	IsDefault      bool              `json:"is_default"`
}

// Outcome is a named end state of the workflow.
type Outcome struct {
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	IsDefault       bool           `json:"is_default"`
	SuccessCriteria map[string]any `json:"success_criteria,omitempty"`
}

// RequiredResources aggregates the distinct resource references of all steps
// so a reader can check their stock before importing.
type RequiredResources struct {
	Materials     []string `json:"materials"`
	Tools         []string `json:"tools"`
	Documentation []string `json:"documentation"`
}

// Metadata records provenance of the export.
type Metadata struct {
	Version    string    `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	OriginalID string    `json:"original_id"`
}
