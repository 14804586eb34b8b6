package api

import (
	"encoding/json"
	"time"

	"github.com/phrazzld/formrelay/internal/domain"
	"github.com/phrazzld/formrelay/internal/store"
)

// EnqueueTaskRequest defines the payload for POST /api/tasks. The source
// agent is taken from the bearer token, never from the body.
type EnqueueTaskRequest struct {
	ConversationID string          `json:"conversation_id" validate:"required,uuid"`
	TaskType       string          `json:"task_type"       validate:"required,max=64"`
	TargetAgent    string          `json:"target_agent"    validate:"required,max=64"`
	Payload        json.RawMessage `json:"payload"         validate:"required"`
}

// TaskResponse is the public view of a task. Claim tokens and scheduling
// fields stay internal.
type TaskResponse struct {
	ID             string              `json:"id"`
	ConversationID string              `json:"conversation_id"`
	TaskType       string              `json:"task_type"`
	SourceAgent    string              `json:"source_agent"`
	TargetAgent    string              `json:"target_agent"`
	Status         domain.TaskStatus   `json:"status"`
	AttemptCount   int                 `json:"attempt_count"`
	Payload        json.RawMessage     `json:"payload"`
	Result         *domain.TaskResult  `json:"result,omitempty"`
	Error          *domain.TaskFailure `json:"error,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	ClaimedAt      *time.Time          `json:"claimed_at,omitempty"`
	CompletedAt    *time.Time          `json:"completed_at,omitempty"`
}

// TaskListResponse wraps the tasks of one conversation.
type TaskListResponse struct {
	ConversationID string         `json:"conversation_id"`
	Tasks          []TaskResponse `json:"tasks"`
}

// StatsResponse reports task counts by target agent and status.
type StatsResponse struct {
	Counts []store.StatusCount `json:"counts"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

func taskToResponse(t *domain.Task) TaskResponse {
	return TaskResponse{
		ID:             t.ID.String(),
		ConversationID: t.ConversationID.String(),
		TaskType:       t.TaskType,
		SourceAgent:    t.SourceAgent,
		TargetAgent:    t.TargetAgent,
		Status:         t.Status,
		AttemptCount:   t.AttemptCount,
		Payload:        t.Payload,
		Result:         t.Result,
		Error:          t.Error,
		CreatedAt:      t.CreatedAt,
		ClaimedAt:      t.ClaimedAt,
		CompletedAt:    t.CompletedAt,
	}
}
