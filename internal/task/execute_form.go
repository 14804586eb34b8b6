package task

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/formrelay/internal/domain"
	"github.com/phrazzld/formrelay/internal/forms"
	"github.com/phrazzld/formrelay/internal/formsync"
	"github.com/phrazzld/formrelay/internal/store"
)

// Common errors
var (
	ErrNilConversations = errors.New("conversation store cannot be nil")
	ErrNilTokens        = errors.New("token provider cannot be nil")
	ErrNilClients       = errors.New("forms client factory cannot be nil")
	ErrNilSyncer        = errors.New("syncer cannot be nil")
	ErrNilLogger        = errors.New("logger cannot be nil")
)

// TokenProvider hands out OAuth access tokens for a principal.
type TokenProvider interface {
	// GetValidToken returns an unexpired token, refreshing at most once.
	GetValidToken(ctx context.Context, principalID uuid.UUID) (string, error)

	// ForceRefresh refreshes even if the stored token looks unexpired.
	ForceRefresh(ctx context.Context, principalID uuid.UUID) (string, error)
}

// FormSyncer reconciles a conversation's external form with a blueprint.
type FormSyncer interface {
	Sync(ctx context.Context, conversationID uuid.UUID, bp *domain.Blueprint, client forms.Client) (*formsync.Result, error)
}

// ExecuteFormHandler runs execute_form tasks: it resolves the conversation
// owner's credential and syncs the blueprint to the external form.
type ExecuteFormHandler struct {
	conversations store.ConversationStore
	tokens        TokenProvider
	clients       forms.ClientFactory
	syncer        FormSyncer
	logger        *slog.Logger
}

var _ Handler = (*ExecuteFormHandler)(nil)

// NewExecuteFormHandler creates the execute_form handler.
func NewExecuteFormHandler(
	conversations store.ConversationStore,
	tokens TokenProvider,
	clients forms.ClientFactory,
	syncer FormSyncer,
	logger *slog.Logger,
) (*ExecuteFormHandler, error) {
	if conversations == nil {
		return nil, ErrNilConversations
	}
	if tokens == nil {
		return nil, ErrNilTokens
	}
	if clients == nil {
		return nil, ErrNilClients
	}
	if syncer == nil {
		return nil, ErrNilSyncer
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	return &ExecuteFormHandler{
		conversations: conversations,
		tokens:        tokens,
		clients:       clients,
		syncer:        syncer,
		logger:        logger.With("task_type", domain.TaskTypeExecuteForm),
	}, nil
}

// Type implements Handler.
func (h *ExecuteFormHandler) Type() string {
	return domain.TaskTypeExecuteForm
}

// Execute implements Handler. An AuthError from the external service gets
// one forced refresh and one more sync; a second AuthError is returned.
func (h *ExecuteFormHandler) Execute(ctx context.Context, task *domain.Task) (*domain.TaskResult, error) {
	log := h.logger.With("task_id", task.ID, "conversation_id", task.ConversationID)

	bp, err := domain.ParseBlueprint(task.Payload)
	if err != nil {
		return nil, err
	}

	principal, err := h.conversations.PrincipalOf(ctx, task.ConversationID)
	switch {
	case errors.Is(err, store.ErrConversationNotFound):
		return nil, domain.NewFatalError("conversation "+task.ConversationID.String()+" does not exist", err)
	case err != nil:
		return nil, domain.NewTransientError("resolve conversation owner", err)
	}

	token, err := h.tokens.GetValidToken(ctx, principal)
	if err != nil {
		return nil, err
	}

	res, err := h.sync(ctx, task, bp, token)
	if errors.Is(err, domain.ErrAuth) {
		log.Warn("external service rejected token, forcing refresh", "principal_id", principal)
		token, err = h.tokens.ForceRefresh(ctx, principal)
		if err != nil {
			return nil, err
		}
		res, err = h.sync(ctx, task, bp, token)
	}
	if err != nil {
		return nil, err
	}

	log.Info("form synced",
		"external_id", res.ExternalID,
		"created", res.Created,
		"operations", res.Operations,
		"warnings", len(res.Warnings))

	return &domain.TaskResult{
		ExternalID: res.ExternalID,
		URL:        res.URL,
		Warnings:   res.Warnings,
	}, nil
}

func (h *ExecuteFormHandler) sync(
	ctx context.Context,
	task *domain.Task,
	bp *domain.Blueprint,
	token string,
) (*formsync.Result, error) {
	client, err := h.clients.ForToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return h.syncer.Sync(ctx, task.ConversationID, bp, client)
}
