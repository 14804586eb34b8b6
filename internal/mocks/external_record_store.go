package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/formrelay/internal/domain"
	"github.com/phrazzld/formrelay/internal/store"
)

// MockExternalRecordStore implements store.ExternalRecordStore in memory.
type MockExternalRecordStore struct {
	// Function fields for customizable behavior
	GetByConversationFn func(ctx context.Context, conversationID uuid.UUID) (*domain.ExternalRecord, error)
	CreateFn            func(ctx context.Context, record *domain.ExternalRecord) error
	TouchFn             func(ctx context.Context, conversationID uuid.UUID, accessURL string) error

	mu      sync.Mutex
	records map[uuid.UUID]domain.ExternalRecord
	touches int
}

var _ store.ExternalRecordStore = (*MockExternalRecordStore)(nil)

// NewMockExternalRecordStore creates an empty store.
func NewMockExternalRecordStore() *MockExternalRecordStore {
	return &MockExternalRecordStore{records: map[uuid.UUID]domain.ExternalRecord{}}
}

// GetByConversation implements store.ExternalRecordStore.
func (m *MockExternalRecordStore) GetByConversation(
	ctx context.Context,
	conversationID uuid.UUID,
) (*domain.ExternalRecord, error) {
	if m.GetByConversationFn != nil {
		return m.GetByConversationFn(ctx, conversationID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[conversationID]
	if !ok {
		return nil, store.ErrExternalRecordNotFound
	}
	return &rec, nil
}

// Create implements store.ExternalRecordStore.
func (m *MockExternalRecordStore) Create(ctx context.Context, record *domain.ExternalRecord) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, record)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[record.ConversationID]; exists {
		return store.ErrExternalRecordExists
	}
	m.records[record.ConversationID] = *record
	return nil
}

// Touch implements store.ExternalRecordStore.
func (m *MockExternalRecordStore) Touch(ctx context.Context, conversationID uuid.UUID, accessURL string) error {
	if m.TouchFn != nil {
		return m.TouchFn(ctx, conversationID, accessURL)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[conversationID]
	if !ok {
		return store.ErrExternalRecordNotFound
	}
	if accessURL != "" {
		rec.AccessURL = accessURL
	}
	rec.UpdatedAt = time.Now().UTC()
	m.records[conversationID] = rec
	m.touches++
	return nil
}

// Put stores a record directly, bypassing uniqueness checks.
func (m *MockExternalRecordStore) Put(record domain.ExternalRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.ConversationID] = record
}

// Count returns the number of stored records.
func (m *MockExternalRecordStore) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Touches returns the number of successful Touch calls.
func (m *MockExternalRecordStore) Touches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.touches
}
