package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of an agent task.
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task type constants
const (
	// TaskTypeExecuteForm asks the executor to create or update the form
	// of a conversation from the blueprint carried in the payload.
	TaskTypeExecuteForm = "execute_form"

	// TaskTypeFormCreated is the reply sent back to the source agent after
	// an execute_form task completed.
	TaskTypeFormCreated = "form_created"

	// TaskTypeFormCreationFailed is the reply sent back to the source agent
	// after an execute_form task failed terminally.
	TaskTypeFormCreationFailed = "form_creation_failed"
)

// Agent labels used by the planner/executor hand-off.
const (
	AgentPlanner  = "planner"
	AgentExecutor = "executor"
)

// Common validation errors for Task
var (
	ErrEmptyConversationID = errors.New("task conversation ID cannot be empty")
	ErrEmptyTaskType       = errors.New("task type cannot be empty")
	ErrEmptyTargetAgent    = errors.New("task target agent cannot be empty")
	ErrEmptyPayload        = errors.New("task payload cannot be empty")
	ErrInvalidTaskStatus   = errors.New("invalid task status")
)

// Task is a durable unit of deferred work handed from one agent to another.
type Task struct {
	ID             uuid.UUID       `json:"id"`
	ConversationID uuid.UUID       `json:"conversation_id"`
	TaskType       string          `json:"task_type"`
	SourceAgent    string          `json:"source_agent"`
	TargetAgent    string          `json:"target_agent"`
	Payload        json.RawMessage `json:"payload"`
	Result         *TaskResult     `json:"result"`
	Status         TaskStatus      `json:"status"`
	AttemptCount   int             `json:"attempt_count"`
	CreatedAt      time.Time       `json:"created_at"`
	ClaimedAt      *time.Time      `json:"claimed_at"`
	CompletedAt    *time.Time      `json:"completed_at"`
	Error          *TaskFailure    `json:"error"`

	// AvailableAt is the earliest time the task may be claimed again.
	AvailableAt time.Time `json:"-"`

	// ClaimToken fences write-backs to the worker holding the current claim.
	ClaimToken uuid.UUID `json:"-"`
}

// TaskResult is the structured output written when a task completes.
type TaskResult struct {
	ExternalID string          `json:"external_id,omitempty"`
	URL        string          `json:"url,omitempty"`
	Warnings   []string        `json:"warnings"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// TaskFailure is the classified error written when a task fails terminally.
type TaskFailure struct {
	Category ErrorCategory `json:"category"`
	Message  string        `json:"message"`
}

// NewTask creates a pending task with a fresh ID. The payload is copied so
// later mutation of the caller's buffer cannot change the stored task.
func NewTask(
	conversationID uuid.UUID,
	taskType, sourceAgent, targetAgent string,
	payload json.RawMessage,
) (*Task, error) {
	now := time.Now().UTC()
	t := &Task{
		ID:             uuid.New(),
		ConversationID: conversationID,
		TaskType:       taskType,
		SourceAgent:    sourceAgent,
		TargetAgent:    targetAgent,
		Payload:        append(json.RawMessage(nil), payload...),
		Status:         TaskStatusPending,
		CreatedAt:      now,
		AvailableAt:    now,
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}

	return t, nil
}

// Validate checks the fields required for a task to be enqueued.
func (t *Task) Validate() error {
	if t.ConversationID == uuid.Nil {
		return NewValidationError(ErrEmptyConversationID.Error(), ErrEmptyConversationID)
	}
	if t.TaskType == "" {
		return NewValidationError(ErrEmptyTaskType.Error(), ErrEmptyTaskType)
	}
	if t.TargetAgent == "" {
		return NewValidationError(ErrEmptyTargetAgent.Error(), ErrEmptyTargetAgent)
	}
	if isEmptyPayload(t.Payload) {
		return NewValidationError(ErrEmptyPayload.Error(), ErrEmptyPayload)
	}
	if !IsValidTaskStatus(t.Status) {
		return NewValidationError(ErrInvalidTaskStatus.Error(), ErrInvalidTaskStatus)
	}
	return nil
}

// IsTerminal reports whether the task reached completed or failed.
func (t *Task) IsTerminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}

func isEmptyPayload(p json.RawMessage) bool {
	if len(p) == 0 {
		return true
	}
	s := string(p)
	return s == "null" || s == "{}" || s == `""`
}

// IsValidTaskStatus checks if the given status is a known TaskStatus.
func IsValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// legalTransitions is the complete task state machine. processing -> pending
// is only taken by the retry path and the stale-task sweeper.
var legalTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:    {TaskStatusProcessing},
	TaskStatusProcessing: {TaskStatusCompleted, TaskStatusFailed, TaskStatusPending},
}

// CanTransition reports whether from -> to is an edge of the task state machine.
func CanTransition(from, to TaskStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns a StateError when from -> to is not a legal edge.
func CheckTransition(id uuid.UUID, from, to TaskStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	return NewStateError(id, from, to)
}
