package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/formrelay/internal/store"
)

// MockLeaseStore implements store.LeaseStore in memory.
type MockLeaseStore struct {
	TryAcquireFn func(ctx context.Context, conversationID uuid.UUID, holder string, ttl time.Duration) (bool, error)

	mu     sync.Mutex
	leases map[uuid.UUID]lease
}

type lease struct {
	holder    string
	expiresAt time.Time
}

var _ store.LeaseStore = (*MockLeaseStore)(nil)

// NewMockLeaseStore creates an empty lease table.
func NewMockLeaseStore() *MockLeaseStore {
	return &MockLeaseStore{leases: map[uuid.UUID]lease{}}
}

// TryAcquire implements store.LeaseStore.
func (m *MockLeaseStore) TryAcquire(
	ctx context.Context,
	conversationID uuid.UUID,
	holder string,
	ttl time.Duration,
) (bool, error) {
	if m.TryAcquireFn != nil {
		return m.TryAcquireFn(ctx, conversationID, holder, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if cur, ok := m.leases[conversationID]; ok && cur.holder != holder && cur.expiresAt.After(now) {
		return false, nil
	}
	m.leases[conversationID] = lease{holder: holder, expiresAt: now.Add(ttl)}
	return true, nil
}

// Release implements store.LeaseStore.
func (m *MockLeaseStore) Release(_ context.Context, conversationID uuid.UUID, holder string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.leases[conversationID]; ok && cur.holder == holder {
		delete(m.leases, conversationID)
	}
	return nil
}

// Held reports whether any holder has a live lease on the conversation.
func (m *MockLeaseStore) Held(conversationID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.leases[conversationID]
	return ok && cur.expiresAt.After(time.Now())
}
