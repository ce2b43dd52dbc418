// Package validation implements structural validation of workflow
// definitions. All problems are accumulated into a single issue list; the
// validator never stops at the first fault.
package validation

import (
	"fmt"

	"github.com/stepline/stepline/pkg/models"
)

// Issue codes.
const (
	CodeNilDefinition        = "nil_definition"
	CodeNoSteps              = "no_steps"
	CodeUnknownStepType      = "unknown_step_type"
	CodeUnknownConnection    = "unknown_connection_type"
	CodeDanglingSource       = "dangling_source_step"
	CodeDanglingTarget       = "dangling_target_step"
	CodeOrphanStep           = "orphan_step"
	CodeNoEntrySteps         = "no_entry_steps"
	CodeDuplicateOrder       = "duplicate_display_order"
	CodeTooFewOptions        = "too_few_decision_options"
	CodeDuplicateOptionFlag  = "duplicate_default_option"
	CodeDuplicateChoiceFlag  = "duplicate_default_choice"
	CodeIllegalCycle         = "illegal_cycle"
	CodeNoDefaultOutcome     = "no_default_outcome"
	CodeManyDefaultOutcomes  = "multiple_default_outcomes"
	CodeOutcomeUnreachable   = "outcome_unreachable"
	CodeDecisionFlagMismatch = "decision_flag_mismatch"
)

// Issue is one structural problem found in a definition.
type Issue struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	StepID       string `json:"step_id,omitempty"`
	ConnectionID string `json:"connection_id,omitempty"`
}

func (i Issue) String() string {
	return i.Code + ": " + i.Message
}

// Validate checks the structural integrity of a definition and returns every
// issue found. An empty result means the definition is valid.
func Validate(def *models.WorkflowDefinition) []Issue {
	if def == nil {
		return []Issue{{Code: CodeNilDefinition, Message: "definition is nil"}}
	}

	issues := make([]Issue, 0)

	if len(def.Steps) == 0 {
		issues = append(issues, Issue{Code: CodeNoSteps, Message: "definition has no steps"})

		return issues
	}

	steps := make(map[string]*models.Step, len(def.Steps))
	for _, s := range def.Steps {
		steps[s.ID] = s
	}

	issues = append(issues, checkSteps(def)...)
	issues = append(issues, checkConnections(def, steps)...)
	issues = append(issues, checkConnectivity(def)...)
	issues = append(issues, checkCycles(def, steps)...)
	issues = append(issues, checkOutcomes(def)...)

	return issues
}

func checkSteps(def *models.WorkflowDefinition) []Issue {
	issues := make([]Issue, 0)
	orders := make(map[int]string)

	for _, s := range def.Steps {
		if !s.Type.Valid() {
			issues = append(issues, Issue{
				Code:    CodeUnknownStepType,
				Message: fmt.Sprintf("step %q has unknown type %q", s.Name, s.Type),
				StepID:  s.ID,
			})
		}

		if prev, ok := orders[s.DisplayOrder]; ok {
			issues = append(issues, Issue{
				Code:    CodeDuplicateOrder,
				Message: fmt.Sprintf("step %q shares display order %d with step %q", s.ID, s.DisplayOrder, prev),
				StepID:  s.ID,
			})
		} else {
			orders[s.DisplayOrder] = s.ID
		}

		if s.Type == models.StepTypeDecision && !s.IsDecisionPoint {
			issues = append(issues, Issue{
				Code:    CodeDecisionFlagMismatch,
				Message: fmt.Sprintf("step %q has decision type but is_decision_point is false", s.Name),
				StepID:  s.ID,
			})
		}

		if s.IsDecisionPoint {
			if len(s.DecisionOptions) < 2 {
				issues = append(issues, Issue{
					Code:    CodeTooFewOptions,
					Message: fmt.Sprintf("decision step %q needs at least 2 options, has %d", s.Name, len(s.DecisionOptions)),
					StepID:  s.ID,
				})
			}

			defaults := 0

			for _, o := range s.DecisionOptions {
				if o.IsDefault {
					defaults++
				}
			}

			if defaults > 1 {
				issues = append(issues, Issue{
					Code:    CodeDuplicateOptionFlag,
					Message: fmt.Sprintf("decision step %q has %d default options", s.Name, defaults),
					StepID:  s.ID,
				})
			}
		}
	}

	return issues
}

func checkConnections(def *models.WorkflowDefinition, steps map[string]*models.Step) []Issue {
	issues := make([]Issue, 0)
	choiceDefaults := make(map[string]int)

	for _, c := range def.Connections {
		if !c.Type.Valid() {
			issues = append(issues, Issue{
				Code:         CodeUnknownConnection,
				Message:      fmt.Sprintf("connection %q has unknown type %q", c.ID, c.Type),
				ConnectionID: c.ID,
			})
		}

		if _, ok := steps[c.SourceStepID]; !ok {
			issues = append(issues, Issue{
				Code:         CodeDanglingSource,
				Message:      fmt.Sprintf("connection %q references unknown source step %q", c.ID, c.SourceStepID),
				ConnectionID: c.ID,
			})
		}

		if _, ok := steps[c.TargetStepID]; !ok {
			issues = append(issues, Issue{
				Code:         CodeDanglingTarget,
				Message:      fmt.Sprintf("connection %q references unknown target step %q", c.ID, c.TargetStepID),
				ConnectionID: c.ID,
			})
		}

		if c.Type == models.ConnectionTypeChoice && c.IsDefault {
			choiceDefaults[c.SourceStepID]++
		}
	}

	for stepID, count := range choiceDefaults {
		if count > 1 {
			issues = append(issues, Issue{
				Code:    CodeDuplicateChoiceFlag,
				Message: fmt.Sprintf("step %q has %d default choice connections", stepID, count),
				StepID:  stepID,
			})
		}
	}

	return issues
}

func checkConnectivity(def *models.WorkflowDefinition) []Issue {
	issues := make([]Issue, 0)

	hasIncoming := make(map[string]bool)
	hasOutgoing := make(map[string]bool)

	for _, c := range def.Connections {
		hasOutgoing[c.SourceStepID] = true
		hasIncoming[c.TargetStepID] = true
	}

	entries := 0

	for _, s := range def.Steps {
		if !hasIncoming[s.ID] {
			entries++
		}

		// A fully disconnected step is only tolerable when it is the whole
		// graph.
		if !hasIncoming[s.ID] && !hasOutgoing[s.ID] && len(def.Steps) > 1 {
			issues = append(issues, Issue{
				Code:    CodeOrphanStep,
				Message: fmt.Sprintf("step %q has no entering or leaving connections", s.Name),
				StepID:  s.ID,
			})
		}
	}

	if entries == 0 {
		issues = append(issues, Issue{Code: CodeNoEntrySteps, Message: "no step without incoming connections; execution has no entry point"})
	}

	return issues
}

// checkCycles flags any cycle built from non-loop connections. Loop
// connections are the sanctioned way to go back.
func checkCycles(def *models.WorkflowDefinition, steps map[string]*models.Step) []Issue {
	adjacent := make(map[string][]string)

	for _, c := range def.Connections {
		if c.Type == models.ConnectionTypeLoop {
			continue
		}

		if _, ok := steps[c.SourceStepID]; !ok {
			continue
		}

		if _, ok := steps[c.TargetStepID]; !ok {
			continue
		}

		adjacent[c.SourceStepID] = append(adjacent[c.SourceStepID], c.TargetStepID)
	}

	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)

	state := make(map[string]int, len(def.Steps))
	issues := make([]Issue, 0)

	var visit func(id string) bool

	visit = func(id string) bool {
		state[id] = inStack

		for _, next := range adjacent[id] {
			switch state[next] {
			case inStack:
				return true
			case unvisited:
				if visit(next) {
					return true
				}
			}
		}

		state[id] = done

		return false
	}

	for _, s := range def.Steps {
		if state[s.ID] == unvisited && visit(s.ID) {
			issues = append(issues, Issue{
				Code:    CodeIllegalCycle,
				Message: fmt.Sprintf("cycle through step %q uses non-loop connections", s.ID),
				StepID:  s.ID,
			})

			break
		}
	}

	return issues
}

func checkOutcomes(def *models.WorkflowDefinition) []Issue {
	issues := make([]Issue, 0)

	if def.HasMultipleOutcomes {
		defaults := 0

		for _, o := range def.Outcomes {
			if o.IsDefault {
				defaults++
			}
		}

		switch {
		case defaults == 0:
			issues = append(issues, Issue{Code: CodeNoDefaultOutcome, Message: "multiple-outcome definition has no default outcome"})
		case defaults > 1:
			issues = append(issues, Issue{Code: CodeManyDefaultOutcomes, Message: fmt.Sprintf("definition has %d default outcomes", defaults)})
		}
	}

	hasOutcomeStep := false

	for _, s := range def.Steps {
		if s.IsOutcome {
			hasOutcomeStep = true

			break
		}
	}

	if !hasOutcomeStep {
		if len(def.Outcomes) > 0 || def.HasMultipleOutcomes {
			issues = append(issues, Issue{Code: CodeOutcomeUnreachable, Message: "definition declares outcomes but no step is marked is_outcome"})
		}

		return issues
	}

	// Reachability from the entry set over every connection kind, loops
	// included.
	adjacent := make(map[string][]string)

	for _, c := range def.Connections {
		adjacent[c.SourceStepID] = append(adjacent[c.SourceStepID], c.TargetStepID)
	}

	reached := make(map[string]bool, len(def.Steps))
	queue := make([]string, 0, len(def.Steps))

	for _, s := range def.EntrySteps() {
		reached[s.ID] = true
		queue = append(queue, s.ID)
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		for _, next := range adjacent[id] {
			if !reached[next] {
				reached[next] = true
				queue = append(queue, next)
			}
		}
	}

	for _, s := range def.Steps {
		if s.IsOutcome && reached[s.ID] {
			return issues
		}
	}

	issues = append(issues, Issue{Code: CodeOutcomeUnreachable, Message: "no outcome step is reachable from the entry steps"})

	return issues
}
