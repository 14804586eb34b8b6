package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/formrelay/internal/domain"
	"github.com/phrazzld/formrelay/internal/events"
	"github.com/phrazzld/formrelay/internal/store"
)

// formCreatedPayload is sent back to the source agent after a form sync.
type formCreatedPayload struct {
	TaskID     uuid.UUID `json:"task_id"`
	ExternalID string    `json:"external_id"`
	URL        string    `json:"url"`
	Warnings   []string  `json:"warnings"`
}

// formCreationFailedPayload is sent back when the sync failed terminally.
type formCreationFailedPayload struct {
	TaskID uuid.UUID           `json:"task_id"`
	Error  *domain.TaskFailure `json:"error"`
}

// ReplyEventHandler implements events.EventHandler. For every finished
// execute_form task it enqueues a form_created or form_creation_failed task
// addressed to the agent that sent the original.
type ReplyEventHandler struct {
	store  store.TaskStore
	logger *slog.Logger
}

// NewReplyEventHandler creates a handler that enqueues replies into taskStore.
func NewReplyEventHandler(taskStore store.TaskStore, logger *slog.Logger) *ReplyEventHandler {
	return &ReplyEventHandler{
		store:  taskStore,
		logger: logger.With("component", "reply_event_handler"),
	}
}

// HandleEvent enqueues the reply through event.Tx when the event carries
// one, so the reply commits with the terminal transition of the original
// task. Errors are returned to the emitter.
func (h *ReplyEventHandler) HandleEvent(ctx context.Context, event *events.TaskFinishedEvent) error {
	if event.TaskType != domain.TaskTypeExecuteForm {
		return nil
	}
	if event.SourceAgent == "" {
		h.logger.Debug("task has no source agent, not replying", "task_id", event.TaskID)
		return nil
	}

	var (
		taskType string
		payload  any
	)
	if event.Succeeded() {
		taskType = domain.TaskTypeFormCreated
		p := formCreatedPayload{TaskID: event.TaskID, Warnings: []string{}}
		if event.Result != nil {
			p.ExternalID = event.Result.ExternalID
			p.URL = event.Result.URL
			if event.Result.Warnings != nil {
				p.Warnings = event.Result.Warnings
			}
		}
		payload = p
	} else {
		taskType = domain.TaskTypeFormCreationFailed
		payload = formCreationFailedPayload{TaskID: event.TaskID, Error: event.Error}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal reply payload: %w", err)
	}

	reply, err := domain.NewTask(event.ConversationID, taskType, event.TargetAgent, event.SourceAgent, raw)
	if err != nil {
		return fmt.Errorf("failed to build reply task: %w", err)
	}
	var w store.TaskWriter = h.store
	if event.Tx != nil {
		w = event.Tx
	}
	if err := w.Enqueue(ctx, reply); err != nil {
		return fmt.Errorf("failed to enqueue reply task: %w", err)
	}

	h.logger.Info("reply enqueued",
		"task_id", event.TaskID,
		"reply_id", reply.ID,
		"reply_type", taskType,
		"target_agent", event.SourceAgent)
	return nil
}

// Ensure ReplyEventHandler implements events.EventHandler
var _ events.EventHandler = (*ReplyEventHandler)(nil)
