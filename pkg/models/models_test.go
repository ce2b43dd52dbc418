package models

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowDefinition_Validation_Valid(t *testing.T) {
	def := &WorkflowDefinition{
		ID:         "def-1",
		Name:       "Bike assembly",
		Visibility: VisibilityPrivate,
	}

	validate := validator.New()
	assert.NoError(t, validate.Struct(def))
}

func TestWorkflowDefinition_Validation_BadVisibility(t *testing.T) {
	def := &WorkflowDefinition{
		ID:         "def-1",
		Name:       "Bike assembly",
		Visibility: "internal",
	}

	validate := validator.New()
	assert.Error(t, validate.Struct(def))
}

func TestStepType_Valid(t *testing.T) {
	for _, st := range KnownStepTypes {
		assert.True(t, st.Valid(), string(st))
	}

	assert.False(t, StepType("teleport").Valid())
}

func TestEntrySteps_OrderedByDisplayOrder(t *testing.T) {
	def := &WorkflowDefinition{
		Steps: []*Step{
			{ID: "c", DisplayOrder: 3},
			{ID: "a", DisplayOrder: 1},
			{ID: "b", DisplayOrder: 2},
		},
		Connections: []*Connection{
			{SourceStepID: "a", TargetStepID: "c", Type: ConnectionTypeSequential},
		},
	}

	entries := def.EntrySteps()
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].ID)
	assert.Equal(t, "b", entries[1].ID)
}

func TestOutgoingConnections_OrderedByTargetDisplayOrder(t *testing.T) {
	def := &WorkflowDefinition{
		Steps: []*Step{
			{ID: "s", DisplayOrder: 1},
			{ID: "late", DisplayOrder: 9},
			{ID: "early", DisplayOrder: 2},
		},
		Connections: []*Connection{
			{SourceStepID: "s", TargetStepID: "late", Type: ConnectionTypeChoice},
			{SourceStepID: "s", TargetStepID: "early", Type: ConnectionTypeChoice},
		},
	}

	out := def.OutgoingConnections("s")
	require.Len(t, out, 2)
	assert.Equal(t, "early", out[0].TargetStepID)
	assert.Equal(t, "late", out[1].TargetStepID)
}

func TestCondition_Evaluate(t *testing.T) {
	vars := map[string]any{"frame": "carbon", "wheels": 2}

	assert.True(t, (*Condition)(nil).Evaluate(vars))
	assert.True(t, (&Condition{Variable: "frame", Equals: "carbon"}).Evaluate(vars))
	assert.False(t, (&Condition{Variable: "frame", Equals: "steel"}).Evaluate(vars))

	// Numbers compare across int/float64, the way they come back from JSON.
	assert.True(t, (&Condition{Variable: "wheels", Equals: float64(2)}).Evaluate(vars))

	all := &Condition{All: []*Condition{
		{Variable: "frame", Equals: "carbon"},
		{Variable: "wheels", Equals: 2},
	}}
	assert.True(t, all.Evaluate(vars))

	anyOf := &Condition{Any: []*Condition{
		{Variable: "frame", Equals: "steel"},
		{Variable: "wheels", Equals: 2},
	}}
	assert.True(t, anyOf.Evaluate(vars))

	assert.False(t, (&Condition{Any: []*Condition{{Variable: "frame", Equals: "steel"}}}).Evaluate(vars))
}

func TestDefinition_Clone_IsDeep(t *testing.T) {
	def := &WorkflowDefinition{
		ID:   "def-1",
		Name: "Original",
		Steps: []*Step{
			{
				ID:   "s1",
				Name: "Step 1",
				Type: StepTypeInstruction,
				Resources: []*ResourceRequirement{
					{Type: ResourceTypeTool, Reference: "wrench", Quantity: 1},
				},
				DecisionOptions: []*DecisionOption{
					{ID: "o1", Text: "Go left", ResultAction: &ResultAction{Set: map[string]any{"dir": "left"}}},
				},
			},
		},
		Connections: []*Connection{
			{ID: "c1", SourceStepID: "s1", TargetStepID: "s1", Type: ConnectionTypeLoop, Condition: &Condition{Variable: "again", Equals: true}},
		},
		Outcomes: []*Outcome{
			{ID: "out-1", Name: "Done", IsDefault: true, SuccessCriteria: map[string]any{"quality": "ok"}},
		},
	}

	clone := def.Clone()

	clone.Steps[0].Name = "Changed"
	clone.Steps[0].Resources[0].Quantity = 99
	clone.Steps[0].DecisionOptions[0].ResultAction.Set["dir"] = "right"
	clone.Connections[0].Condition.Equals = false
	clone.Outcomes[0].SuccessCriteria["quality"] = "bad"

	assert.Equal(t, "Step 1", def.Steps[0].Name)
	assert.Equal(t, float64(1), def.Steps[0].Resources[0].Quantity)
	assert.Equal(t, "left", def.Steps[0].DecisionOptions[0].ResultAction.Set["dir"])
	assert.Equal(t, true, def.Connections[0].Condition.Equals)
	assert.Equal(t, "ok", def.Outcomes[0].SuccessCriteria["quality"])
}

func TestExecution_Clone_IsDeep(t *testing.T) {
	now := time.Now().UTC()
	exec := &Execution{
		ID:         "exec-1",
		Definition: &WorkflowDefinition{ID: "def-1", Name: "Def"},
		Status:     ExecutionStatusActive,
		StartedAt:  now,
		Variables:  map[string]any{"a": 1},
		Steps: map[string]*StepExecution{
			"s1": {StepID: "s1", Status: StepExecutionStatusReady},
		},
		History: []*NavigationEntry{
			{StepID: "s1", Action: NavigationActionStarted, Timestamp: now},
		},
	}

	clone := exec.Clone()

	clone.Variables["a"] = 2
	clone.Steps["s1"].Status = StepExecutionStatusCompleted
	clone.History[0].Action = NavigationActionCancelled

	assert.Equal(t, 1, exec.Variables["a"])
	assert.Equal(t, StepExecutionStatusReady, exec.Steps["s1"].Status)
	assert.Equal(t, NavigationActionStarted, exec.History[0].Action)
}

func TestExecutionStatus_Terminal(t *testing.T) {
	assert.False(t, ExecutionStatusActive.Terminal())
	assert.False(t, ExecutionStatusPaused.Terminal())
	assert.True(t, ExecutionStatusCompleted.Terminal())
	assert.True(t, ExecutionStatusFailed.Terminal())
	assert.True(t, ExecutionStatusCancelled.Terminal())
	assert.True(t, ExecutionStatusTimeout.Terminal())
}

func TestRequirement_Key(t *testing.T) {
	r := &ResourceRequirement{Type: ResourceTypeMaterial, Reference: "frame-tube"}
	assert.Equal(t, "material:frame-tube", r.Key())
}
