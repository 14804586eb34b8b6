package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/formrelay/internal/domain"
	"github.com/phrazzld/formrelay/internal/store"
)

// Sealer encrypts token material before it reaches the database.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// PostgresCredentialStore implements store.CredentialStore. Tokens are
// stored sealed.
type PostgresCredentialStore struct {
	db     store.DBTX
	sealer Sealer
}

// NewPostgresCredentialStore creates a new PostgresCredentialStore.
func NewPostgresCredentialStore(db store.DBTX, sealer Sealer) *PostgresCredentialStore {
	return &PostgresCredentialStore{db: db, sealer: sealer}
}

var _ store.CredentialStore = (*PostgresCredentialStore)(nil)

// Get returns the decrypted credential of a principal.
func (s *PostgresCredentialStore) Get(ctx context.Context, principalID uuid.UUID) (*domain.Credential, error) {
	var (
		c                           domain.Credential
		sealedAccess, sealedRefresh []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT principal_id, access_token, refresh_token, expires_at, updated_at
		FROM credentials
		WHERE principal_id = $1
	`, principalID).Scan(&c.PrincipalID, &sealedAccess, &sealedRefresh, &c.ExpiresAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", MapError(err))
	}

	access, err := s.sealer.Open(sealedAccess)
	if err != nil {
		return nil, fmt.Errorf("failed to open access token: %w", err)
	}
	refresh, err := s.sealer.Open(sealedRefresh)
	if err != nil {
		return nil, fmt.Errorf("failed to open refresh token: %w", err)
	}
	c.AccessToken = string(access)
	c.RefreshToken = string(refresh)
	return &c, nil
}

// UpdateAccessToken stores a refreshed access token. The last writer wins.
func (s *PostgresCredentialStore) UpdateAccessToken(
	ctx context.Context,
	principalID uuid.UUID,
	accessToken string,
	expiresAt time.Time,
) error {
	sealed, err := s.sealer.Seal([]byte(accessToken))
	if err != nil {
		return fmt.Errorf("failed to seal access token: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE credentials
		SET access_token = $2, expires_at = $3, updated_at = NOW()
		WHERE principal_id = $1
	`, principalID, sealed, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to update credential: %w", MapError(err))
	}
	if err := CheckRowsAffected(res, "credential"); err != nil {
		return store.ErrCredentialNotFound
	}
	return nil
}

// PostgresConversationStore implements store.ConversationStore.
type PostgresConversationStore struct {
	db store.DBTX
}

// NewPostgresConversationStore creates a new PostgresConversationStore.
func NewPostgresConversationStore(db store.DBTX) *PostgresConversationStore {
	return &PostgresConversationStore{db: db}
}

var _ store.ConversationStore = (*PostgresConversationStore)(nil)

// PrincipalOf returns the principal that owns a conversation.
func (s *PostgresConversationStore) PrincipalOf(ctx context.Context, conversationID uuid.UUID) (uuid.UUID, error) {
	var principalID uuid.UUID
	err := s.db.QueryRowContext(ctx,
		`SELECT principal_id FROM conversations WHERE id = $1`, conversationID).Scan(&principalID)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, store.ErrConversationNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to get conversation: %w", MapError(err))
	}
	return principalID, nil
}
