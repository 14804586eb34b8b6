package domain

import (
	"time"

	"github.com/google/uuid"
)

// Credential holds the OAuth tokens of a principal. Rows are provisioned by
// the login flow; the credential provider only ever refreshes them.
type Credential struct {
	PrincipalID  uuid.UUID
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	UpdatedAt    time.Time
}

// Valid reports whether the access token is still usable at now. A zero
// expiry is treated as expired.
func (c *Credential) Valid(now time.Time) bool {
	return c.AccessToken != "" && !c.ExpiresAt.IsZero() && c.ExpiresAt.After(now)
}

// Conversation ties a task's conversation to the principal whose credential
// is used to act on the external service.
type Conversation struct {
	ID          uuid.UUID
	PrincipalID uuid.UUID
	CreatedAt   time.Time
}
