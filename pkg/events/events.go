// Package events defines the typed notifications emitted at every execution
// transition. Delivery is best-effort; consumers are analytics and
// notification collaborators.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Kafka topic for execution lifecycle events.
const Topic = "stepline.executions"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ExecutionStartedEvent   EventType = "execution.started"
	StepNavigatedEvent      EventType = "execution.step.navigated"
	StepCompletedEvent      EventType = "execution.step.completed"
	MilestoneReachedEvent   EventType = "execution.milestone.reached"
	DecisionMadeEvent       EventType = "execution.decision.made"
	ExecutionPausedEvent    EventType = "execution.paused"
	ExecutionResumedEvent   EventType = "execution.resumed"
	ExecutionCancelledEvent EventType = "execution.cancelled"
	ExecutionCompletedEvent EventType = "execution.completed"
)

// BaseEvent carries the fields common to every execution event.
type BaseEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	ExecutionID string         `json:"execution_id"`
	WorkflowID  string         `json:"workflow_id"`
	UserID      string         `json:"user_id"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type ExecutionStarted struct {
	BaseEvent

	WorkflowName      string   `json:"workflow_name"`
	EntryStepID       string   `json:"entry_step_id"`
	SelectedOutcomeID string   `json:"selected_outcome_id,omitempty"`
	ResourceWarnings  []string `json:"resource_warnings,omitempty"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type StepNavigated struct {
	BaseEvent

	FromStepID string `json:"from_step_id"`
	ToStepID   string `json:"to_step_id"`
}

func (e StepNavigated) GetType() EventType {
	return StepNavigatedEvent
}

type StepCompleted struct {
	BaseEvent

	StepID         string         `json:"step_id"`
	StepName       string         `json:"step_name"`
	ActualDuration time.Duration  `json:"actual_duration"`
	CompletionData map[string]any `json:"completion_data,omitempty"`
}

func (e StepCompleted) GetType() EventType {
	return StepCompletedEvent
}

type MilestoneReached struct {
	BaseEvent

	StepID   string `json:"step_id"`
	StepName string `json:"step_name"`
}

func (e MilestoneReached) GetType() EventType {
	return MilestoneReachedEvent
}

type DecisionMade struct {
	BaseEvent

	StepID     string `json:"step_id"`
	OptionID   string `json:"option_id"`
	OptionText string `json:"option_text"`
	NextStepID string `json:"next_step_id,omitempty"`
}

func (e DecisionMade) GetType() EventType {
	return DecisionMadeEvent
}

type ExecutionPaused struct {
	BaseEvent

	Reason         string `json:"reason,omitempty"`
	PausedAtStepID string `json:"paused_at_step_id"`
}

func (e ExecutionPaused) GetType() EventType {
	return ExecutionPausedEvent
}

type ExecutionResumed struct {
	BaseEvent

	PauseDuration time.Duration `json:"pause_duration"`
}

func (e ExecutionResumed) GetType() EventType {
	return ExecutionResumedEvent
}

type ExecutionCancelled struct {
	BaseEvent

	Reason   string        `json:"reason,omitempty"`
	Timeout  bool          `json:"timeout"`
	Duration time.Duration `json:"duration"`
}

func (e ExecutionCancelled) GetType() EventType {
	return ExecutionCancelledEvent
}

type ExecutionCompleted struct {
	BaseEvent

	OutcomeID      string        `json:"outcome_id,omitempty"`
	OutcomeName    string        `json:"outcome_name,omitempty"`
	Duration       time.Duration `json:"duration"`
	StepsCompleted int           `json:"steps_completed"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

func NewBaseEvent(eventType EventType, executionID, workflowID, userID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		ExecutionID: executionID,
		WorkflowID:  workflowID,
		UserID:      userID,
		Metadata:    make(map[string]any),
	}
}
