package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/formrelay/internal/domain"
	"github.com/phrazzld/formrelay/internal/platform/logger"
	"github.com/phrazzld/formrelay/internal/store"
)

// EnqueueRequest describes a task a producer hands to another agent.
type EnqueueRequest struct {
	ConversationID uuid.UUID
	TaskType       string
	SourceAgent    string
	TargetAgent    string
	Payload        json.RawMessage
}

// TaskService is the producer boundary of the task queue.
type TaskService interface {
	// Enqueue validates and stores a new pending task.
	Enqueue(ctx context.Context, req EnqueueRequest) (*domain.Task, error)

	// GetTask returns one task.
	GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// ListConversationTasks returns a conversation's tasks, oldest first.
	ListConversationTasks(ctx context.Context, conversationID uuid.UUID) ([]*domain.Task, error)

	// Stats returns task counts by target agent and status.
	Stats(ctx context.Context) ([]store.StatusCount, error)
}

// taskServiceImpl implements the TaskService interface
type taskServiceImpl struct {
	tasks  store.TaskStore
	logger *slog.Logger
}

// NewTaskService creates a new TaskService.
// It returns an error if any of the required dependencies are nil.
func NewTaskService(tasks store.TaskStore, logger *slog.Logger) (TaskService, error) {
	if tasks == nil {
		return nil, &TaskServiceError{Operation: "create_service", Message: "task store cannot be nil"}
	}
	if logger == nil {
		return nil, &TaskServiceError{Operation: "create_service", Message: "logger cannot be nil"}
	}
	return &taskServiceImpl{
		tasks:  tasks,
		logger: logger.With("component", "task_service"),
	}, nil
}

// Enqueue implements TaskService. execute_form payloads must be valid
// blueprints; a malformed one is rejected here rather than failing later
// in the worker.
func (s *taskServiceImpl) Enqueue(ctx context.Context, req EnqueueRequest) (*domain.Task, error) {
	log := logger.FromContext(ctx)

	t, err := domain.NewTask(req.ConversationID, req.TaskType, req.SourceAgent, req.TargetAgent, req.Payload)
	if err != nil {
		return nil, err
	}

	if t.TaskType == domain.TaskTypeExecuteForm {
		if _, err := domain.ParseBlueprint(t.Payload); err != nil {
			log.Debug("rejected execute_form task with invalid blueprint",
				"conversation_id", t.ConversationID,
				"error", err)
			return nil, err
		}
	}

	if err := s.tasks.Enqueue(ctx, t); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return nil, err
		}
		log.Error("failed to enqueue task",
			"task_id", t.ID,
			"conversation_id", t.ConversationID,
			"error", err)
		return nil, NewTaskServiceError("enqueue", "failed to store task", err)
	}

	s.logger.Info("task enqueued",
		"task_id", t.ID,
		"task_type", t.TaskType,
		"conversation_id", t.ConversationID,
		"source_agent", t.SourceAgent,
		"target_agent", t.TargetAgent)
	return t, nil
}

// GetTask implements TaskService.
func (s *taskServiceImpl) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	t, err := s.tasks.Get(ctx, id)
	if err != nil {
		return nil, NewTaskServiceError("get_task", "failed to load task", err)
	}
	return t, nil
}

// ListConversationTasks implements TaskService.
func (s *taskServiceImpl) ListConversationTasks(ctx context.Context, conversationID uuid.UUID) ([]*domain.Task, error) {
	tasks, err := s.tasks.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, NewTaskServiceError("list_tasks", "failed to list conversation tasks", err)
	}
	return tasks, nil
}

// Stats implements TaskService.
func (s *taskServiceImpl) Stats(ctx context.Context) ([]store.StatusCount, error) {
	counts, err := s.tasks.Stats(ctx)
	if err != nil {
		return nil, NewTaskServiceError("stats", "failed to count tasks", err)
	}
	return counts, nil
}
