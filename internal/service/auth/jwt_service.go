// Package auth verifies the bearer tokens that producer agents present when
// they enqueue or read tasks.
package auth

import (
	"context"
	"time"
)

// TokenTypeProducer marks tokens issued to producer agents.
const TokenTypeProducer = "producer"

// JWTService issues and verifies producer tokens.
type JWTService interface {
	// GenerateToken creates a signed token for agent, valid for lifetime.
	// Operators use it to provision producers; the API only validates.
	GenerateToken(ctx context.Context, agent string, lifetime time.Duration) (string, error)

	// ValidateToken validates the provided token string and extracts the claims.
	// Returns the claims if the token is valid, or an error if validation
	// fails (expired, invalid signature, wrong token type, etc.).
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims represents the verified content of a producer token.
type Claims struct {
	// Agent is the producer the token was issued to. It becomes the
	// source_agent of tasks enqueued with the token.
	Agent string `json:"agent,omitempty"`

	// TokenType is always TokenTypeProducer for a valid token.
	TokenType string `json:"type,omitempty"`

	// Standard registered JWT claims
	Subject   string    `json:"sub,omitempty"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
	ID        string    `json:"jti,omitempty"`
}
