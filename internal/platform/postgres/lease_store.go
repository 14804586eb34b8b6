package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/formrelay/internal/store"
)

// PostgresLeaseStore implements store.LeaseStore on the conversation_leases
// table. A lease is a row; taking it is an upsert that only succeeds when
// the current row is expired or already ours.
type PostgresLeaseStore struct {
	db store.DBTX
}

// NewPostgresLeaseStore creates a new PostgresLeaseStore.
func NewPostgresLeaseStore(db store.DBTX) *PostgresLeaseStore {
	return &PostgresLeaseStore{db: db}
}

var _ store.LeaseStore = (*PostgresLeaseStore)(nil)

// TryAcquire takes the conversation lease for holder.
func (s *PostgresLeaseStore) TryAcquire(
	ctx context.Context,
	conversationID uuid.UUID,
	holder string,
	ttl time.Duration,
) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_leases (conversation_id, holder, expires_at)
		VALUES ($1, $2, NOW() + $3 * INTERVAL '1 millisecond')
		ON CONFLICT (conversation_id) DO UPDATE
		SET holder = EXCLUDED.holder, expires_at = EXCLUDED.expires_at
		WHERE conversation_leases.expires_at < NOW()
		   OR conversation_leases.holder = EXCLUDED.holder
	`, conversationID, holder, ttl.Milliseconds())
	if err != nil {
		return false, fmt.Errorf("failed to acquire conversation lease: %w", MapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

// Release drops the lease if holder still owns it.
func (s *PostgresLeaseStore) Release(ctx context.Context, conversationID uuid.UUID, holder string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM conversation_leases WHERE conversation_id = $1 AND holder = $2`,
		conversationID, holder)
	if err != nil {
		return fmt.Errorf("failed to release conversation lease: %w", MapError(err))
	}
	return nil
}
