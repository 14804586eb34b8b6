package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/formrelay/internal/domain"
	"github.com/phrazzld/formrelay/internal/store"
)

// TaskFinishedEvent is emitted once a task reaches a terminal state.
// It carries a snapshot of the task so handlers need not read it back.
type TaskFinishedEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	TaskID         uuid.UUID         `json:"task_id"`
	ConversationID uuid.UUID         `json:"conversation_id"`
	TaskType       string            `json:"task_type"`
	SourceAgent    string            `json:"source_agent"`
	TargetAgent    string            `json:"target_agent"`
	Status         domain.TaskStatus `json:"status"`
	AttemptCount   int               `json:"attempt_count"`

	// Result is set when Status is completed.
	Result *domain.TaskResult `json:"result,omitempty"`

	// Error is set when Status is failed.
	Error *domain.TaskFailure `json:"error,omitempty"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`

	// Tx, when set, writes in the transaction that moved the task to its
	// terminal state. A handler error rolls that transition back.
	Tx store.TaskWriter `json:"-"`
}

// NewTaskFinishedEvent snapshots a terminal task.
func NewTaskFinishedEvent(task *domain.Task) *TaskFinishedEvent {
	return &TaskFinishedEvent{
		ID:             uuid.New(),
		TaskID:         task.ID,
		ConversationID: task.ConversationID,
		TaskType:       task.TaskType,
		SourceAgent:    task.SourceAgent,
		TargetAgent:    task.TargetAgent,
		Status:         task.Status,
		AttemptCount:   task.AttemptCount,
		Result:         task.Result,
		Error:          task.Error,
		CreatedAt:      time.Now().UTC(),
	}
}

// Succeeded reports whether the task completed.
func (e *TaskFinishedEvent) Succeeded() bool {
	return e.Status == domain.TaskStatusCompleted
}

// EventHandler defines an interface for components that can handle events.
// Handlers are responsible for processing events and taking appropriate actions.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *TaskFinishedEvent) error
}

// EventEmitter defines an interface for components that can emit events.
// This allows the worker to publish outcomes without knowing who reacts.
// Emitters must return handler errors so a transactional publisher can
// roll back.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *TaskFinishedEvent) error
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(ctx context.Context, event *TaskFinishedEvent) error

// HandleEvent calls f.
func (f EventHandlerFunc) HandleEvent(ctx context.Context, event *TaskFinishedEvent) error {
	return f(ctx, event)
}
