package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/formrelay/internal/domain"
)

// ExternalRecordStore persists the one external record of each conversation.
type ExternalRecordStore interface {
	// GetByConversation returns the record of a conversation, or
	// ErrExternalRecordNotFound.
	GetByConversation(ctx context.Context, conversationID uuid.UUID) (*domain.ExternalRecord, error)

	// Create inserts a new record. Returns ErrExternalRecordExists when the
	// conversation already has one.
	Create(ctx context.Context, record *domain.ExternalRecord) error

	// Touch records a successful update of the conversation's external
	// resource, refreshing its access URL and updated_at.
	Touch(ctx context.Context, conversationID uuid.UUID, accessURL string) error
}
