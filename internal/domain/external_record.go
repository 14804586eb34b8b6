package domain

import (
	"time"

	"github.com/google/uuid"
)

// ExternalRecord is the local mirror of the form created for a conversation.
// There is at most one per conversation.
type ExternalRecord struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	ExternalID     string    `json:"external_id"`
	AccessURL      string    `json:"access_url"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewExternalRecord creates a record for a freshly created external form.
func NewExternalRecord(conversationID uuid.UUID, externalID, accessURL string) (*ExternalRecord, error) {
	if conversationID == uuid.Nil {
		return nil, NewValidationError(ErrEmptyConversationID.Error(), ErrEmptyConversationID)
	}
	if externalID == "" {
		return nil, NewValidationError("external id cannot be empty", nil)
	}
	now := time.Now().UTC()
	return &ExternalRecord{
		ID:             uuid.New(),
		ConversationID: conversationID,
		ExternalID:     externalID,
		AccessURL:      accessURL,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}
