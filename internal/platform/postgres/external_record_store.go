package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/formrelay/internal/domain"
	"github.com/phrazzld/formrelay/internal/store"
)

// PostgresExternalRecordStore implements store.ExternalRecordStore. The
// UNIQUE constraint on conversation_id is what keeps two racing syncs from
// both creating a record.
type PostgresExternalRecordStore struct {
	db store.DBTX
}

// NewPostgresExternalRecordStore creates a new PostgresExternalRecordStore.
func NewPostgresExternalRecordStore(db store.DBTX) *PostgresExternalRecordStore {
	return &PostgresExternalRecordStore{db: db}
}

var _ store.ExternalRecordStore = (*PostgresExternalRecordStore)(nil)

// GetByConversation returns the record of a conversation.
func (s *PostgresExternalRecordStore) GetByConversation(
	ctx context.Context,
	conversationID uuid.UUID,
) (*domain.ExternalRecord, error) {
	var r domain.ExternalRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, external_id, access_url, created_at, updated_at
		FROM external_records
		WHERE conversation_id = $1
	`, conversationID).Scan(&r.ID, &r.ConversationID, &r.ExternalID, &r.AccessURL, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrExternalRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get external record: %w", MapError(err))
	}
	return &r, nil
}

// Create inserts a record, or returns store.ErrExternalRecordExists.
func (s *PostgresExternalRecordStore) Create(ctx context.Context, record *domain.ExternalRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO external_records (id, conversation_id, external_id, access_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, record.ID, record.ConversationID, record.ExternalID, record.AccessURL, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return MapUniqueViolation(err, store.ErrExternalRecordExists)
		}
		return fmt.Errorf("failed to create external record: %w", MapError(err))
	}
	return nil
}

// Touch refreshes the access URL and updated_at of a conversation's record.
func (s *PostgresExternalRecordStore) Touch(ctx context.Context, conversationID uuid.UUID, accessURL string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE external_records
		SET access_url = CASE WHEN $2 = '' THEN access_url ELSE $2 END, updated_at = NOW()
		WHERE conversation_id = $1
	`, conversationID, accessURL)
	if err != nil {
		return fmt.Errorf("failed to update external record: %w", MapError(err))
	}
	if err := CheckRowsAffected(res, "external record"); err != nil {
		return store.ErrExternalRecordNotFound
	}
	return nil
}
