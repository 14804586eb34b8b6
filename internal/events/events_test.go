package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/formrelay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func finishedTask(status domain.TaskStatus) *domain.Task {
	return &domain.Task{
		ID:             uuid.New(),
		ConversationID: uuid.New(),
		TaskType:       domain.TaskTypeExecuteForm,
		SourceAgent:    domain.AgentPlanner,
		TargetAgent:    domain.AgentExecutor,
		Status:         status,
		AttemptCount:   2,
	}
}

func TestNewTaskFinishedEvent(t *testing.T) {
	task := finishedTask(domain.TaskStatusCompleted)
	task.Result = &domain.TaskResult{ExternalID: "f1", Warnings: []string{}}

	event := NewTaskFinishedEvent(task)

	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.Equal(t, task.ID, event.TaskID)
	assert.Equal(t, task.ConversationID, event.ConversationID)
	assert.Equal(t, domain.AgentPlanner, event.SourceAgent)
	assert.Equal(t, 2, event.AttemptCount)
	assert.True(t, event.Succeeded())
	assert.WithinDuration(t, time.Now(), event.CreatedAt, 2*time.Second)

	raw, err := json.Marshal(event)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"external_id":"f1"`)
	assert.NotContains(t, string(raw), `"error"`)
}

func TestTaskFinishedEvent_Failed(t *testing.T) {
	task := finishedTask(domain.TaskStatusFailed)
	task.Error = &domain.TaskFailure{Category: domain.CategoryValidation, Message: "bad payload"}

	event := NewTaskFinishedEvent(task)
	assert.False(t, event.Succeeded())
	assert.Equal(t, "bad payload", event.Error.Message)
}

// MockEventHandler implements the EventHandler interface for testing
type MockEventHandler struct {
	// The last event received by this handler
	LastEvent *TaskFinishedEvent
	// Error to return from HandleEvent
	HandlerError error
	// Count of events handled
	HandledCount int
}

// HandleEvent implements the EventHandler interface
func (h *MockEventHandler) HandleEvent(ctx context.Context, event *TaskFinishedEvent) error {
	h.LastEvent = event
	h.HandledCount++
	return h.HandlerError
}

func TestEventHandlerFunc(t *testing.T) {
	var got *TaskFinishedEvent
	handler := EventHandlerFunc(func(_ context.Context, e *TaskFinishedEvent) error {
		got = e
		return errors.New("handler error")
	})

	event := NewTaskFinishedEvent(finishedTask(domain.TaskStatusCompleted))
	err := handler.HandleEvent(context.Background(), event)
	assert.EqualError(t, err, "handler error")
	assert.Same(t, event, got)
}
