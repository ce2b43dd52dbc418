// Package guidance computes legal next actions, suggestions and optimal
// paths for an execution. Everything here is read-only: functions take a
// consistent snapshot of the execution and never mutate it.
package guidance

import (
	"sort"

	"github.com/stepline/stepline/pkg/models"
)

// ActionKind classifies a legal next operation.
type ActionKind string

const (
	ActionNavigate ActionKind = "navigate"
	ActionComplete ActionKind = "complete"
	ActionDecide   ActionKind = "decide"
	ActionPause    ActionKind = "pause"
	ActionResume   ActionKind = "resume"
)

// Action is one legal next operation from the execution's current state.
type Action struct {
	Kind           ActionKind `json:"kind"`
	StepID         string     `json:"step_id,omitempty"`
	StepName       string     `json:"step_name,omitempty"`
	ConnectionID   string     `json:"connection_id,omitempty"`
	ConnectionType string     `json:"connection_type,omitempty"`
	IsDefault      bool       `json:"is_default,omitempty"`
}

// AvailableActions enumerates the legal next operations: traversable
// outgoing connections from the current step, completing or deciding the
// current step when it is active, and pause/resume.
func AvailableActions(exec *models.Execution) []Action {
	if exec.Status == models.ExecutionStatusPaused {
		return []Action{{Kind: ActionResume}}
	}

	if exec.Status != models.ExecutionStatusActive {
		return nil
	}

	actions := make([]Action, 0)

	current := exec.Definition.StepByID(exec.CurrentStepID)
	currentState := exec.StepExecutionFor(exec.CurrentStepID)

	if current != nil && currentState != nil {
		switch {
		case currentState.Status == models.StepExecutionStatusReady:
			actions = append(actions, Action{
				Kind:     ActionNavigate,
				StepID:   current.ID,
				StepName: current.Name,
			})
		case currentState.Status == models.StepExecutionStatusActive && current.IsDecisionPoint:
			actions = append(actions, decisionActions(current)...)
		case currentState.Status == models.StepExecutionStatusActive:
			actions = append(actions, Action{
				Kind:     ActionComplete,
				StepID:   current.ID,
				StepName: current.Name,
			})
		}
	}

	for _, conn := range TraversableConnections(exec, exec.CurrentStepID) {
		target := exec.Definition.StepByID(conn.TargetStepID)
		if target == nil {
			continue
		}

		state := exec.StepExecutionFor(target.ID)
		if state == nil || state.Status.Done() {
			continue
		}

		actions = append(actions, Action{
			Kind:           ActionNavigate,
			StepID:         target.ID,
			StepName:       target.Name,
			ConnectionID:   conn.ID,
			ConnectionType: string(conn.Type),
			IsDefault:      conn.IsDefault,
		})
	}

	actions = append(actions, Action{Kind: ActionPause})

	return actions
}

func decisionActions(step *models.Step) []Action {
	options := make([]*models.DecisionOption, len(step.DecisionOptions))
	copy(options, step.DecisionOptions)
	sort.Slice(options, func(i, j int) bool {
		return options[i].DisplayOrder < options[j].DisplayOrder
	})

	actions := make([]Action, 0, len(options))

	for _, o := range options {
		actions = append(actions, Action{
			Kind:      ActionDecide,
			StepID:    step.ID,
			StepName:  o.Text,
			IsDefault: o.IsDefault,
		})
	}

	return actions
}

// TraversableConnections returns the outgoing connections whose condition
// holds against the execution's variable store. When no conditional choice
// connection matches, the choice default is the fallback.
func TraversableConnections(exec *models.Execution, stepID string) []*models.Connection {
	outgoing := exec.Definition.OutgoingConnections(stepID)

	matched := make([]*models.Connection, 0, len(outgoing))

	var choiceDefault *models.Connection

	choiceMatched := false

	for _, conn := range outgoing {
		if conn.Type == models.ConnectionTypeChoice && conn.IsDefault {
			choiceDefault = conn
		}

		if !conn.Condition.Evaluate(exec.Variables) {
			continue
		}

		if conn.Type == models.ConnectionTypeChoice {
			choiceMatched = true
		}

		matched = append(matched, conn)
	}

	if !choiceMatched && choiceDefault != nil {
		present := false

		for _, conn := range matched {
			if conn == choiceDefault {
				present = true
			}
		}

		if !present {
			matched = append(matched, choiceDefault)
		}
	}

	return matched
}

// Suggestion is a single recommended next action, with decision options when
// the operator must choose.
type Suggestion struct {
	Action  Action   `json:"action"`
	Reason  string   `json:"reason"`
	Options []Action `json:"options,omitempty"`
}

// SuggestNextAction recommends what the operator should do next.
func SuggestNextAction(exec *models.Execution) Suggestion {
	if exec.Status == models.ExecutionStatusPaused {
		return Suggestion{Action: Action{Kind: ActionResume}, Reason: "execution is paused"}
	}

	current := exec.Definition.StepByID(exec.CurrentStepID)
	currentState := exec.StepExecutionFor(exec.CurrentStepID)

	if current == nil || currentState == nil {
		return Suggestion{Action: Action{Kind: ActionPause}, Reason: "no current step"}
	}

	if currentState.Status == models.StepExecutionStatusActive {
		if current.IsDecisionPoint {
			return Suggestion{
				Action:  Action{Kind: ActionDecide, StepID: current.ID, StepName: current.Name},
				Reason:  "decision step awaits a choice",
				Options: decisionActions(current),
			}
		}

		return Suggestion{
			Action: Action{Kind: ActionComplete, StepID: current.ID, StepName: current.Name},
			Reason: "current step is in progress",
		}
	}

	if currentState.Status == models.StepExecutionStatusReady {
		entries := exec.Definition.EntrySteps()
		if len(entries) > 0 && entries[0].ID == exec.CurrentStepID {
			return Suggestion{
				Action: Action{Kind: ActionNavigate, StepID: entries[0].ID, StepName: entries[0].Name},
				Reason: "execution just started; begin with the first entry step",
			}
		}
	}

	for _, conn := range TraversableConnections(exec, exec.CurrentStepID) {
		target := exec.Definition.StepByID(conn.TargetStepID)
		state := exec.StepExecutionFor(conn.TargetStepID)

		if target != nil && state != nil && !state.Status.Done() {
			return Suggestion{
				Action: Action{
					Kind:         ActionNavigate,
					StepID:       target.ID,
					StepName:     target.Name,
					ConnectionID: conn.ID,
				},
				Reason: "next reachable step",
			}
		}
	}

	return Suggestion{Action: Action{Kind: ActionPause}, Reason: "nothing left to do from the current step"}
}
