package task

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/formrelay/internal/domain"
	"github.com/phrazzld/formrelay/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClock is a settable time source shared by a store and a runner.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClockedStore(clock *testClock) *MemoryStore {
	s := NewMemoryStore()
	s.Clock = clock.Now
	return s
}

// enqueueAt enqueues an execute_form task created (and claimable) at the
// clock's current time.
func enqueueAt(t *testing.T, s *MemoryStore, clock *testClock, conv uuid.UUID, payload string) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(conv, domain.TaskTypeExecuteForm, domain.AgentPlanner,
		domain.AgentExecutor, json.RawMessage(payload))
	require.NoError(t, err)
	task.CreatedAt = clock.Now()
	task.AvailableAt = clock.Now()
	require.NoError(t, s.Enqueue(context.Background(), task))
	// Distinct creation times keep FIFO order deterministic.
	clock.Advance(time.Millisecond)
	return task
}

func TestMemoryStore_EnqueueValidates(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()

	err := s.Enqueue(context.Background(), &domain.Task{
		ID:          uuid.New(),
		TaskType:    domain.TaskTypeExecuteForm,
		TargetAgent: domain.AgentExecutor,
		Payload:     json.RawMessage(`{"title":"x"}`),
		Status:      domain.TaskStatusPending,
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	task, err := domain.NewTask(uuid.New(), domain.TaskTypeExecuteForm, domain.AgentPlanner,
		domain.AgentExecutor, json.RawMessage(`{"title":"x"}`))
	require.NoError(t, err)
	require.NoError(t, s.Enqueue(context.Background(), task))
	assert.ErrorIs(t, s.Enqueue(context.Background(), task), store.ErrDuplicate)
}

func TestMemoryStore_ClaimIsFIFOAndCountsAttempts(t *testing.T) {
	t.Parallel()
	clock := newTestClock()
	s := newClockedStore(clock)

	a := enqueueAt(t, s, clock, uuid.New(), `{"title":"A"}`)
	b := enqueueAt(t, s, clock, uuid.New(), `{"title":"B"}`)
	c := enqueueAt(t, s, clock, uuid.New(), `{"title":"C"}`)

	batch, err := s.Claim(context.Background(), domain.AgentExecutor, 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, a.ID, batch[0].ID)
	assert.Equal(t, b.ID, batch[1].ID)
	assert.Equal(t, batch[0].ClaimToken, batch[1].ClaimToken)
	assert.NotEqual(t, uuid.Nil, batch[0].ClaimToken)
	for _, task := range batch {
		assert.Equal(t, domain.TaskStatusProcessing, task.Status)
		assert.Equal(t, 1, task.AttemptCount)
		require.NotNil(t, task.ClaimedAt)
	}

	batch, err = s.Claim(context.Background(), domain.AgentExecutor, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, c.ID, batch[0].ID)

	batch, err = s.Claim(context.Background(), domain.AgentPlanner, 10)
	require.NoError(t, err)
	assert.NotNil(t, batch)
	assert.Empty(t, batch)
}

func TestMemoryStore_TwoClaimersRaceOnOneTask(t *testing.T) {
	t.Parallel()
	clock := newTestClock()
	s := newClockedStore(clock)
	enqueueAt(t, s, clock, uuid.New(), `{"title":"Test"}`)

	results := make([][]*domain.Task, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			batch, err := s.Claim(context.Background(), domain.AgentExecutor, 1)
			assert.NoError(t, err)
			results[i] = batch
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, len(results[0])+len(results[1]))
}

func TestMemoryStore_ConcurrentClaimersPartitionTasks(t *testing.T) {
	t.Parallel()
	clock := newTestClock()
	s := newClockedStore(clock)

	const tasks, claimers = 50, 8
	for i := 0; i < tasks; i++ {
		enqueueAt(t, s, clock, uuid.New(), `{"title":"Test"}`)
	}

	var (
		mu   sync.Mutex
		seen = map[uuid.UUID]int{}
		wg   sync.WaitGroup
	)
	for w := 0; w < claimers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				batch, err := s.Claim(context.Background(), domain.AgentExecutor, 3)
				if !assert.NoError(t, err) || len(batch) == 0 {
					return
				}
				mu.Lock()
				for _, task := range batch {
					seen[task.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, tasks)
	for id, n := range seen {
		assert.Equal(t, 1, n, "task %s claimed %d times", id, n)
	}
}

func TestMemoryStore_ClaimSkipsBusyConversationAndBackedOffTasks(t *testing.T) {
	t.Parallel()
	clock := newTestClock()
	s := newClockedStore(clock)
	ctx := context.Background()

	conv := uuid.New()
	first := enqueueAt(t, s, clock, conv, `{"title":"1"}`)
	second := enqueueAt(t, s, clock, conv, `{"title":"2"}`)
	other := enqueueAt(t, s, clock, uuid.New(), `{"title":"3"}`)

	// One task per conversation per claim; the sibling stays pending.
	batch, err := s.Claim(ctx, domain.AgentExecutor, 10)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, first.ID, batch[0].ID)
	assert.Equal(t, other.ID, batch[1].ID)
	sibling, err := s.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPending, sibling.Status)
	assert.Nil(t, sibling.ClaimedAt)

	batch2, err := s.Claim(ctx, domain.AgentExecutor, 10)
	require.NoError(t, err)
	assert.Empty(t, batch2, "conversation is busy")

	require.NoError(t, s.Requeue(ctx, first.ID, batch[0].ClaimToken, clock.Now().Add(time.Minute)))
	batch3, err := s.Claim(ctx, domain.AgentExecutor, 10)
	require.NoError(t, err)
	require.Len(t, batch3, 1)
	assert.Equal(t, second.ID, batch3[0].ID)
	require.NoError(t, s.Complete(ctx, second.ID, batch3[0].ClaimToken, nil))

	batch4, err := s.Claim(ctx, domain.AgentExecutor, 10)
	require.NoError(t, err)
	assert.Empty(t, batch4, "backoff has not elapsed")

	clock.Advance(time.Minute)
	batch5, err := s.Claim(ctx, domain.AgentExecutor, 10)
	require.NoError(t, err)
	require.Len(t, batch5, 1)
	assert.Equal(t, first.ID, batch5[0].ID)
	assert.Equal(t, 2, batch5[0].AttemptCount)
}

func TestMemoryStore_Fencing(t *testing.T) {
	t.Parallel()
	clock := newTestClock()
	s := newClockedStore(clock)
	ctx := context.Background()

	task := enqueueAt(t, s, clock, uuid.New(), `{"title":"Test"}`)

	err := s.Complete(ctx, task.ID, uuid.New(), nil)
	assert.ErrorIs(t, err, domain.ErrState, "pending task cannot complete")

	batch, err := s.Claim(ctx, domain.AgentExecutor, 1)
	require.NoError(t, err)
	stale := batch[0].ClaimToken

	require.NoError(t, s.Requeue(ctx, task.ID, stale, clock.Now()))
	batch, err = s.Claim(ctx, domain.AgentExecutor, 1)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	assert.ErrorIs(t, s.Complete(ctx, task.ID, stale, &domain.TaskResult{ExternalID: "late"}), domain.ErrState)
	assert.ErrorIs(t, s.Fail(ctx, task.ID, batch[0].ClaimToken, &domain.TaskFailure{}), domain.ErrFatal)
	require.NoError(t, s.Complete(ctx, task.ID, batch[0].ClaimToken, &domain.TaskResult{ExternalID: "f1"}))

	got, err := s.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, got.Status)
	assert.Equal(t, "f1", got.Result.ExternalID)
	assert.NotNil(t, got.Result.Warnings)
	assert.NotNil(t, got.CompletedAt)

	err = s.Fail(ctx, task.ID, batch[0].ClaimToken, &domain.TaskFailure{Category: domain.CategoryFatal, Message: "x"})
	assert.ErrorIs(t, err, domain.ErrState)

	_, err = s.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
	assert.ErrorIs(t, s.Requeue(ctx, uuid.New(), uuid.New(), clock.Now()), store.ErrTaskNotFound)

	assert.Equal(t, []domain.TaskStatus{
		domain.TaskStatusPending,
		domain.TaskStatusProcessing,
		domain.TaskStatusPending,
		domain.TaskStatusProcessing,
		domain.TaskStatusCompleted,
	}, s.Transitions(task.ID))
}

func TestMemoryStore_ReadsAndStats(t *testing.T) {
	t.Parallel()
	clock := newTestClock()
	s := newClockedStore(clock)
	ctx := context.Background()

	conv := uuid.New()
	first := enqueueAt(t, s, clock, conv, `{"title":"1"}`)
	enqueueAt(t, s, clock, conv, `{"title":"2"}`)
	enqueueAt(t, s, clock, uuid.New(), `{"title":"3"}`)

	list, err := s.ListByConversation(ctx, conv)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)

	_, err = s.Claim(ctx, domain.AgentExecutor, 1)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	stale, err := s.ListStale(ctx, clock.Now().Add(-30*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, first.ID, stale[0].ID)

	stale, err = s.ListStale(ctx, clock.Now().Add(-2*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, stale)

	counts, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []store.StatusCount{
		{TargetAgent: domain.AgentExecutor, Status: domain.TaskStatusPending, Count: 2},
		{TargetAgent: domain.AgentExecutor, Status: domain.TaskStatusProcessing, Count: 1},
	}, counts)

	// Returned tasks are copies.
	list[0].Status = domain.TaskStatusFailed
	got, err := s.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusProcessing, got.Status)
}

func TestMemoryStore_InTx(t *testing.T) {
	t.Parallel()
	clock := newTestClock()
	ctx := context.Background()

	claimOne := func(t *testing.T, s *MemoryStore) (*domain.Task, *domain.Task) {
		t.Helper()
		conv := uuid.New()
		enqueueAt(t, s, clock, conv, `{"title":"Test"}`)
		batch, err := s.Claim(ctx, domain.AgentExecutor, 1)
		require.NoError(t, err)
		require.Len(t, batch, 1)
		reply, err := domain.NewTask(conv, domain.TaskTypeFormCreated, domain.AgentExecutor,
			domain.AgentPlanner, json.RawMessage(`{"external_id":"f1"}`))
		require.NoError(t, err)
		return batch[0], reply
	}

	t.Run("commits every write", func(t *testing.T) {
		t.Parallel()
		s := newClockedStore(clock)
		claimed, reply := claimOne(t, s)

		err := s.InTx(ctx, func(ctx context.Context, w store.TaskWriter) error {
			if err := w.Complete(ctx, claimed.ID, claimed.ClaimToken, nil); err != nil {
				return err
			}
			return w.Enqueue(ctx, reply)
		})
		require.NoError(t, err)

		list, err := s.ListByConversation(ctx, claimed.ConversationID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, domain.TaskStatusCompleted, list[0].Status)
		assert.Equal(t, domain.TaskTypeFormCreated, list[1].TaskType)
	})

	t.Run("an error discards every write", func(t *testing.T) {
		t.Parallel()
		s := newClockedStore(clock)
		claimed, reply := claimOne(t, s)
		enqueueFailed := errors.New("enqueue failed")

		err := s.InTx(ctx, func(ctx context.Context, w store.TaskWriter) error {
			if err := w.Complete(ctx, claimed.ID, claimed.ClaimToken, nil); err != nil {
				return err
			}
			if err := w.Enqueue(ctx, reply); err != nil {
				return err
			}
			return enqueueFailed
		})
		assert.ErrorIs(t, err, enqueueFailed)

		list, err := s.ListByConversation(ctx, claimed.ConversationID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, domain.TaskStatusProcessing, list[0].Status)
		assert.Nil(t, list[0].Result)
		assert.Equal(t, []domain.TaskStatus{domain.TaskStatusPending, domain.TaskStatusProcessing},
			s.Transitions(claimed.ID))

		// The claim is still held and can be completed later.
		require.NoError(t, s.Complete(ctx, claimed.ID, claimed.ClaimToken, nil))
	})
}
