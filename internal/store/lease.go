package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// LeaseStore hands out time-bounded exclusive leases keyed by conversation.
// It lets worker processes that share no memory serialize work on a
// conversation.
type LeaseStore interface {
	// TryAcquire takes the lease for holder if it is free, expired, or
	// already held by holder. It reports whether the lease was taken.
	TryAcquire(ctx context.Context, conversationID uuid.UUID, holder string, ttl time.Duration) (bool, error)

	// Release drops the lease if holder still owns it.
	Release(ctx context.Context, conversationID uuid.UUID, holder string) error
}
