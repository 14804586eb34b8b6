package api

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/formrelay/internal/api/shared"
	"github.com/phrazzld/formrelay/internal/platform/logger"
	"github.com/phrazzld/formrelay/internal/service"
	"github.com/phrazzld/formrelay/internal/store"
)

// TaskHandler serves the producer endpoints of the task queue.
type TaskHandler struct {
	tasks  service.TaskService
	logger *slog.Logger
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(tasks service.TaskService, logger *slog.Logger) *TaskHandler {
	if tasks == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("task service cannot be nil for TaskHandler")
	}
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for TaskHandler")
	}
	return &TaskHandler{
		tasks:  tasks,
		logger: logger.With(slog.String("component", "task_handler")),
	}
}

// EnqueueTask handles POST /api/tasks.
func (h *TaskHandler) EnqueueTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	agent, ok := requireAgent(w, r, log)
	if !ok {
		return
	}

	var req EnqueueTaskRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	conversationID, err := uuid.Parse(req.ConversationID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid conversation_id: must be a UUID", err)
		return
	}

	task, err := h.tasks.Enqueue(r.Context(), service.EnqueueRequest{
		ConversationID: conversationID,
		TaskType:       req.TaskType,
		SourceAgent:    agent,
		TargetAgent:    req.TargetAgent,
		Payload:        req.Payload,
	})
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	log.Debug("task enqueued via API",
		slog.String("task_id", task.ID.String()),
		slog.String("task_type", task.TaskType))
	shared.RespondWithJSON(w, r, http.StatusCreated, taskToResponse(task))
}

// GetTask handles GET /api/tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	id, ok := handlePathUUID(w, r, "id", log)
	if !ok {
		return
	}

	task, err := h.tasks.GetTask(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}

// ListConversationTasks handles GET /api/conversations/{id}/tasks.
func (h *TaskHandler) ListConversationTasks(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	conversationID, ok := handlePathUUID(w, r, "id", log)
	if !ok {
		return
	}

	tasks, err := h.tasks.ListConversationTasks(r.Context(), conversationID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list tasks")
		return
	}

	resp := TaskListResponse{
		ConversationID: conversationID.String(),
		Tasks:          make([]TaskResponse, 0, len(tasks)),
	}
	for _, t := range tasks {
		resp.Tasks = append(resp.Tasks, taskToResponse(t))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// GetStats handles GET /api/stats.
func (h *TaskHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.tasks.Stats(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load stats")
		return
	}
	if counts == nil {
		counts = []store.StatusCount{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, StatsResponse{Counts: counts})
}
