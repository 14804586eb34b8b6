package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/formrelay/internal/domain"
)

// CredentialStore reads and refreshes per-principal OAuth credentials.
// Credentials are provisioned elsewhere; this store never creates or
// deletes them.
type CredentialStore interface {
	// Get returns the credential of a principal, or ErrCredentialNotFound.
	Get(ctx context.Context, principalID uuid.UUID) (*domain.Credential, error)

	// UpdateAccessToken persists a refreshed access token. Concurrent
	// refreshes for the same principal resolve last-writer-wins.
	UpdateAccessToken(ctx context.Context, principalID uuid.UUID, accessToken string, expiresAt time.Time) error
}

// ConversationStore resolves the principal that owns a conversation.
type ConversationStore interface {
	// PrincipalOf returns the owning principal, or ErrConversationNotFound.
	PrincipalOf(ctx context.Context, conversationID uuid.UUID) (uuid.UUID, error)
}
