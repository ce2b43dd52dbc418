// Package models defines the core domain models for guided workflow execution.
package models

import (
	"sort"
	"time"
)

// Visibility controls who can see and instantiate a workflow definition.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityShared  Visibility = "shared"
	VisibilityPublic  Visibility = "public"
)

// WorkflowDefinition is the static, reusable graph of steps, connections and
// outcomes. Once an execution binds to it the execution works on a frozen
// deep copy, so later edits never affect in-flight runs.
type WorkflowDefinition struct {
	ID                  string        `json:"id"`
	Name                string        `json:"name"                  validate:"required,min=3"`
	Description         string        `json:"description"`
	IsTemplate          bool          `json:"is_template"`
	Visibility          Visibility    `json:"visibility"            validate:"required,oneof=private shared public"`
	HasMultipleOutcomes bool          `json:"has_multiple_outcomes"`
	Owner               string        `json:"owner"`
	Steps               []*Step       `json:"steps"`
	Connections         []*Connection `json:"connections"`
	Outcomes            []*Outcome    `json:"outcomes"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
	RetiredAt           *time.Time    `json:"retired_at,omitempty"`
}

// Outcome is a named terminal result a workflow may conclude with.
type Outcome struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"             validate:"required"`
	Description     string         `json:"description"`
	IsDefault       bool           `json:"is_default"`
	SuccessCriteria map[string]any `json:"success_criteria,omitempty"`
}

// StepByID returns the step with the given ID, or nil.
func (d *WorkflowDefinition) StepByID(id string) *Step {
	for _, s := range d.Steps {
		if s.ID == id {
			return s
		}
	}

	return nil
}

// OutcomeByID returns the outcome with the given ID, or nil.
func (d *WorkflowDefinition) OutcomeByID(id string) *Outcome {
	for _, o := range d.Outcomes {
		if o.ID == id {
			return o
		}
	}

	return nil
}

// DefaultOutcome returns the outcome flagged as default, or nil.
func (d *WorkflowDefinition) DefaultOutcome() *Outcome {
	for _, o := range d.Outcomes {
		if o.IsDefault {
			return o
		}
	}

	return nil
}

// EntrySteps returns the steps with no incoming connection, ordered by
// display order. These form the execution entry set.
func (d *WorkflowDefinition) EntrySteps() []*Step {
	hasIncoming := make(map[string]bool, len(d.Steps))
	for _, c := range d.Connections {
		hasIncoming[c.TargetStepID] = true
	}

	entries := make([]*Step, 0)

	for _, s := range d.Steps {
		if !hasIncoming[s.ID] {
			entries = append(entries, s)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].DisplayOrder < entries[j].DisplayOrder
	})

	return entries
}

// OutgoingConnections returns the connections leaving the given step, ordered
// by the target step's display order, then by connection display order.
func (d *WorkflowDefinition) OutgoingConnections(stepID string) []*Connection {
	out := make([]*Connection, 0)

	for _, c := range d.Connections {
		if c.SourceStepID == stepID {
			out = append(out, c)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		ti, tj := d.StepByID(out[i].TargetStepID), d.StepByID(out[j].TargetStepID)
		if ti != nil && tj != nil && ti.DisplayOrder != tj.DisplayOrder {
			return ti.DisplayOrder < tj.DisplayOrder
		}

		return out[i].DisplayOrder < out[j].DisplayOrder
	})

	return out
}

// MandatoryRequirements collects the non-optional resource requirements of
// every step in the definition.
func (d *WorkflowDefinition) MandatoryRequirements() []*ResourceRequirement {
	reqs := make([]*ResourceRequirement, 0)

	for _, s := range d.Steps {
		for _, r := range s.Resources {
			if !r.IsOptional {
				reqs = append(reqs, r)
			}
		}
	}

	return reqs
}

// AllRequirements collects every resource requirement of every step.
func (d *WorkflowDefinition) AllRequirements() []*ResourceRequirement {
	reqs := make([]*ResourceRequirement, 0)

	for _, s := range d.Steps {
		reqs = append(reqs, s.Resources...)
	}

	return reqs
}

// Clone returns a deep copy of the definition. Executions bind to a clone so
// the authored definition stays editable.
func (d *WorkflowDefinition) Clone() *WorkflowDefinition {
	clone := *d

	clone.Steps = make([]*Step, len(d.Steps))
	for i, s := range d.Steps {
		clone.Steps[i] = s.Clone()
	}

	clone.Connections = make([]*Connection, len(d.Connections))
	for i, c := range d.Connections {
		cc := *c
		if c.Condition != nil {
			cc.Condition = c.Condition.Clone()
		}

		clone.Connections[i] = &cc
	}

	clone.Outcomes = make([]*Outcome, len(d.Outcomes))
	for i, o := range d.Outcomes {
		oc := *o
		oc.SuccessCriteria = cloneMap(o.SuccessCriteria)
		clone.Outcomes[i] = &oc
	}

	return &clone
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}

	return out
}
