package task

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/formrelay/internal/domain"
	"github.com/phrazzld/formrelay/internal/forms"
	"github.com/phrazzld/formrelay/internal/formsync"
	"github.com/phrazzld/formrelay/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	t.Parallel()
	noop := func(context.Context, *domain.Task) (*domain.TaskResult, error) { return nil, nil }

	_, err := NewRegistry(
		HandlerFunc{TaskType: "a", Fn: noop},
		HandlerFunc{TaskType: "a", Fn: noop},
	)
	assert.ErrorContains(t, err, "duplicate handler")

	r, err := NewRegistry(HandlerFunc{TaskType: "a", Fn: noop})
	require.NoError(t, err)

	h, err := r.Lookup(&domain.Task{TaskType: "a"})
	require.NoError(t, err)
	assert.Equal(t, "a", h.Type())

	_, err = r.Lookup(&domain.Task{TaskType: "b"})
	assert.ErrorIs(t, err, domain.ErrFatal)
}

func TestNewExecuteFormHandler_RequiresDependencies(t *testing.T) {
	t.Parallel()
	owners := &mocks.MockConversationStore{}
	tokens := &stubTokens{}
	clients := forms.NewFake().Factory()
	syncer, err := formsync.NewSyncer(mocks.NewMockExternalRecordStore(), testLogger())
	require.NoError(t, err)
	logger := testLogger()

	tests := []struct {
		name    string
		build   func() (*ExecuteFormHandler, error)
		wantErr error
	}{
		{"conversations", func() (*ExecuteFormHandler, error) {
			return NewExecuteFormHandler(nil, tokens, clients, syncer, logger)
		}, ErrNilConversations},
		{"tokens", func() (*ExecuteFormHandler, error) {
			return NewExecuteFormHandler(owners, nil, clients, syncer, logger)
		}, ErrNilTokens},
		{"clients", func() (*ExecuteFormHandler, error) {
			return NewExecuteFormHandler(owners, tokens, nil, syncer, logger)
		}, ErrNilClients},
		{"syncer", func() (*ExecuteFormHandler, error) {
			return NewExecuteFormHandler(owners, tokens, clients, nil, logger)
		}, ErrNilSyncer},
		{"logger", func() (*ExecuteFormHandler, error) {
			return NewExecuteFormHandler(owners, tokens, clients, syncer, nil)
		}, ErrNilLogger},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h, err := tt.build()
			assert.Nil(t, h)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestExecuteFormHandler_TokenErrors(t *testing.T) {
	t.Parallel()
	conv := uuid.New()
	owners := &mocks.MockConversationStore{Owners: map[uuid.UUID]uuid.UUID{conv: uuid.New()}}
	fake := forms.NewFake()
	syncer, err := formsync.NewSyncer(mocks.NewMockExternalRecordStore(), testLogger())
	require.NoError(t, err)

	tokens := &stubTokens{getErr: domain.NewTransientError("token endpoint unavailable", nil)}
	h, err := NewExecuteFormHandler(owners, tokens, fake.Factory(), syncer, testLogger())
	require.NoError(t, err)

	task, err := domain.NewTask(conv, domain.TaskTypeExecuteForm, domain.AgentPlanner,
		domain.AgentExecutor, []byte(`{"title":"Test"}`))
	require.NoError(t, err)

	_, err = h.Execute(context.Background(), task)
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.Zero(t, fake.FormCount())
	assert.Empty(t, fake.Tokens())

	owners.PrincipalOfFn = func(context.Context, uuid.UUID) (uuid.UUID, error) {
		return uuid.Nil, assert.AnError
	}
	_, err = h.Execute(context.Background(), task)
	assert.ErrorIs(t, err, domain.ErrTransient, "owner lookup outage is retryable")
}
