package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/formrelay/internal/domain"
	"github.com/phrazzld/formrelay/internal/store"
)

// MockCredentialStore implements store.CredentialStore in memory.
type MockCredentialStore struct {
	GetFn               func(ctx context.Context, principalID uuid.UUID) (*domain.Credential, error)
	UpdateAccessTokenFn func(ctx context.Context, principalID uuid.UUID, accessToken string, expiresAt time.Time) error

	mu          sync.Mutex
	credentials map[uuid.UUID]domain.Credential
	updates     int
}

var _ store.CredentialStore = (*MockCredentialStore)(nil)

// NewMockCredentialStore creates a store holding creds.
func NewMockCredentialStore(creds ...domain.Credential) *MockCredentialStore {
	m := &MockCredentialStore{credentials: map[uuid.UUID]domain.Credential{}}
	for _, c := range creds {
		m.credentials[c.PrincipalID] = c
	}
	return m
}

// Get implements store.CredentialStore.
func (m *MockCredentialStore) Get(ctx context.Context, principalID uuid.UUID) (*domain.Credential, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, principalID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok := m.credentials[principalID]
	if !ok {
		return nil, store.ErrCredentialNotFound
	}
	return &cred, nil
}

// UpdateAccessToken implements store.CredentialStore.
func (m *MockCredentialStore) UpdateAccessToken(
	ctx context.Context,
	principalID uuid.UUID,
	accessToken string,
	expiresAt time.Time,
) error {
	if m.UpdateAccessTokenFn != nil {
		return m.UpdateAccessTokenFn(ctx, principalID, accessToken, expiresAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok := m.credentials[principalID]
	if !ok {
		return store.ErrCredentialNotFound
	}
	cred.AccessToken = accessToken
	cred.ExpiresAt = expiresAt
	cred.UpdatedAt = time.Now().UTC()
	m.credentials[principalID] = cred
	m.updates++
	return nil
}

// Updates returns the number of successful UpdateAccessToken calls.
func (m *MockCredentialStore) Updates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates
}

// MockConversationStore implements store.ConversationStore from a fixed map.
type MockConversationStore struct {
	PrincipalOfFn func(ctx context.Context, conversationID uuid.UUID) (uuid.UUID, error)

	// Owners maps conversation to principal.
	Owners map[uuid.UUID]uuid.UUID
}

var _ store.ConversationStore = (*MockConversationStore)(nil)

// PrincipalOf implements store.ConversationStore.
func (m *MockConversationStore) PrincipalOf(ctx context.Context, conversationID uuid.UUID) (uuid.UUID, error) {
	if m.PrincipalOfFn != nil {
		return m.PrincipalOfFn(ctx, conversationID)
	}
	principal, ok := m.Owners[conversationID]
	if !ok {
		return uuid.Nil, store.ErrConversationNotFound
	}
	return principal, nil
}
