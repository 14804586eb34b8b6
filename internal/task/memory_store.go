package task

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/formrelay/internal/domain"
	"github.com/phrazzld/formrelay/internal/store"
)

// MemoryStore is an in-process store.TaskStore with the same claim,
// fencing and eligibility rules as the Postgres store. It backs unit tests.
type MemoryStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.Task
	// transitions records every status change, in order, per task.
	transitions map[uuid.UUID][]domain.TaskStatus
	// order breaks created_at ties by insertion.
	order map[uuid.UUID]uint64
	next  uint64

	// Clock returns the current time; tests replace it to step over backoff.
	Clock func() time.Time

	// ClaimFn, when set, replaces Claim. Tests use it to simulate outages.
	ClaimFn func(ctx context.Context, targetAgent string, limit int) ([]*domain.Task, error)
}

var (
	_ store.TaskStore      = (*MemoryStore)(nil)
	_ store.TaskTransactor = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty store using the wall clock.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:       map[uuid.UUID]*domain.Task{},
		transitions: map[uuid.UUID][]domain.TaskStatus{},
		order:       map[uuid.UUID]uint64{},
		Clock:       time.Now,
	}
}

func cloneTask(t *domain.Task) *domain.Task {
	c := *t
	if t.Result != nil {
		r := *t.Result
		r.Warnings = append([]string{}, t.Result.Warnings...)
		c.Result = &r
	}
	if t.Error != nil {
		e := *t.Error
		c.Error = &e
	}
	c.Payload = append([]byte(nil), t.Payload...)
	return &c
}

// before orders tasks oldest first.
func (m *MemoryStore) before(a, b *domain.Task) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return m.order[a.ID] < m.order[b.ID]
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func (m *MemoryStore) setStatus(t *domain.Task, to domain.TaskStatus) {
	t.Status = to
	m.transitions[t.ID] = append(m.transitions[t.ID], to)
}

// Enqueue implements store.TaskStore.
func (m *MemoryStore) Enqueue(_ context.Context, task *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enqueueLocked(task)
}

func (m *MemoryStore) enqueueLocked(task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	if _, exists := m.tasks[task.ID]; exists {
		return store.ErrDuplicate
	}
	task.Status = domain.TaskStatusPending
	task.AttemptCount = 0
	stored := cloneTask(task)
	m.tasks[task.ID] = stored
	m.next++
	m.order[task.ID] = m.next
	m.transitions[task.ID] = []domain.TaskStatus{domain.TaskStatusPending}
	return nil
}

// Claim implements store.TaskStore.
func (m *MemoryStore) Claim(ctx context.Context, targetAgent string, limit int) ([]*domain.Task, error) {
	if m.ClaimFn != nil {
		return m.ClaimFn(ctx, targetAgent, limit)
	}
	if limit <= 0 {
		return []*domain.Task{}, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Clock()
	busy := map[uuid.UUID]bool{}
	for _, t := range m.tasks {
		if t.Status == domain.TaskStatusProcessing {
			busy[t.ConversationID] = true
		}
	}

	var candidates []*domain.Task
	for _, t := range m.tasks {
		if t.Status == domain.TaskStatusPending &&
			t.TargetAgent == targetAgent &&
			!t.AvailableAt.After(now) &&
			!busy[t.ConversationID] {
			candidates = append(candidates, t)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return m.before(candidates[i], candidates[j]) })

	// At most one task per conversation per claim: the oldest eligible one.
	picked := make([]*domain.Task, 0, limit)
	for _, t := range candidates {
		if len(picked) == limit {
			break
		}
		if busy[t.ConversationID] {
			continue
		}
		busy[t.ConversationID] = true
		picked = append(picked, t)
	}
	candidates = picked

	token := uuid.New()
	claimed := make([]*domain.Task, 0, len(candidates))
	for _, t := range candidates {
		claimedAt := now
		m.setStatus(t, domain.TaskStatusProcessing)
		t.AttemptCount++
		t.ClaimedAt = &claimedAt
		t.ClaimToken = token
		claimed = append(claimed, cloneTask(t))
	}
	return claimed, nil
}

// fenced looks up a task the caller claims to hold.
func (m *MemoryStore) fenced(id, claimToken uuid.UUID, to domain.TaskStatus) (*domain.Task, error) {
	t, ok := m.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	if t.Status != domain.TaskStatusProcessing || t.ClaimToken != claimToken {
		return nil, domain.NewStateError(id, t.Status, to)
	}
	return t, nil
}

// Complete implements store.TaskStore.
func (m *MemoryStore) Complete(_ context.Context, id, claimToken uuid.UUID, result *domain.TaskResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completeLocked(id, claimToken, result)
}

func (m *MemoryStore) completeLocked(id, claimToken uuid.UUID, result *domain.TaskResult) error {
	t, err := m.fenced(id, claimToken, domain.TaskStatusCompleted)
	if err != nil {
		return err
	}
	if result == nil {
		result = &domain.TaskResult{}
	}
	r := *result
	r.Warnings = append([]string{}, result.Warnings...)
	now := m.Clock()
	m.setStatus(t, domain.TaskStatusCompleted)
	t.Result = &r
	t.CompletedAt = &now
	t.ClaimToken = uuid.Nil
	return nil
}

// Fail implements store.TaskStore.
func (m *MemoryStore) Fail(_ context.Context, id, claimToken uuid.UUID, failure *domain.TaskFailure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failLocked(id, claimToken, failure)
}

func (m *MemoryStore) failLocked(id, claimToken uuid.UUID, failure *domain.TaskFailure) error {
	if failure == nil || failure.Message == "" {
		return domain.NewFatalError("task failure must carry a message", nil)
	}
	t, err := m.fenced(id, claimToken, domain.TaskStatusFailed)
	if err != nil {
		return err
	}
	f := *failure
	now := m.Clock()
	m.setStatus(t, domain.TaskStatusFailed)
	t.Error = &f
	t.CompletedAt = &now
	t.ClaimToken = uuid.Nil
	return nil
}

// InTx implements store.TaskTransactor. The store stays locked while fn
// runs, so fn must only use w. Every change made through w is undone when
// fn returns an error.
func (m *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, w store.TaskWriter) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	saved := m.snapshot()
	if err := fn(ctx, memoryTx{m: m}); err != nil {
		m.restore(saved)
		return err
	}
	return nil
}

type memorySnapshot struct {
	tasks       map[uuid.UUID]*domain.Task
	transitions map[uuid.UUID][]domain.TaskStatus
	order       map[uuid.UUID]uint64
	next        uint64
}

func (m *MemoryStore) snapshot() memorySnapshot {
	s := memorySnapshot{
		tasks:       make(map[uuid.UUID]*domain.Task, len(m.tasks)),
		transitions: make(map[uuid.UUID][]domain.TaskStatus, len(m.transitions)),
		order:       make(map[uuid.UUID]uint64, len(m.order)),
		next:        m.next,
	}
	for id, t := range m.tasks {
		s.tasks[id] = cloneTask(t)
	}
	for id, h := range m.transitions {
		s.transitions[id] = append([]domain.TaskStatus(nil), h...)
	}
	for id, n := range m.order {
		s.order[id] = n
	}
	return s
}

func (m *MemoryStore) restore(s memorySnapshot) {
	m.tasks = s.tasks
	m.transitions = s.transitions
	m.order = s.order
	m.next = s.next
}

// memoryTx is the TaskWriter handed to InTx callbacks; the store lock is
// already held.
type memoryTx struct {
	m *MemoryStore
}

func (tx memoryTx) Enqueue(_ context.Context, task *domain.Task) error {
	return tx.m.enqueueLocked(task)
}

func (tx memoryTx) Complete(_ context.Context, id, claimToken uuid.UUID, result *domain.TaskResult) error {
	return tx.m.completeLocked(id, claimToken, result)
}

func (tx memoryTx) Fail(_ context.Context, id, claimToken uuid.UUID, failure *domain.TaskFailure) error {
	return tx.m.failLocked(id, claimToken, failure)
}

// Requeue implements store.TaskStore.
func (m *MemoryStore) Requeue(_ context.Context, id, claimToken uuid.UUID, notBefore time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.fenced(id, claimToken, domain.TaskStatusPending)
	if err != nil {
		return err
	}
	m.setStatus(t, domain.TaskStatusPending)
	t.AvailableAt = notBefore
	t.ClaimToken = uuid.Nil
	return nil
}

// Get implements store.TaskStore.
func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return cloneTask(t), nil
}

// ListByConversation implements store.TaskStore.
func (m *MemoryStore) ListByConversation(_ context.Context, conversationID uuid.UUID) ([]*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*domain.Task{}
	for _, t := range m.tasks {
		if t.ConversationID == conversationID {
			out = append(out, cloneTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return m.before(out[i], out[j]) })
	return out, nil
}

// ListStale implements store.TaskStore.
func (m *MemoryStore) ListStale(_ context.Context, claimedBefore time.Time, limit int) ([]*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*domain.Task{}
	for _, t := range m.tasks {
		if t.Status == domain.TaskStatusProcessing && t.ClaimedAt != nil && t.ClaimedAt.Before(claimedBefore) {
			out = append(out, cloneTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClaimedAt.Before(*out[j].ClaimedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Stats implements store.TaskStore.
func (m *MemoryStore) Stats(_ context.Context) ([]store.StatusCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[store.StatusCount]int{}
	for _, t := range m.tasks {
		counts[store.StatusCount{TargetAgent: t.TargetAgent, Status: t.Status}]++
	}
	out := make([]store.StatusCount, 0, len(counts))
	for k, n := range counts {
		k.Count = n
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TargetAgent != out[j].TargetAgent {
			return out[i].TargetAgent < out[j].TargetAgent
		}
		return out[i].Status < out[j].Status
	})
	return out, nil
}

// Transitions returns the status history of a task, starting with pending.
func (m *MemoryStore) Transitions(id uuid.UUID) []domain.TaskStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.TaskStatus(nil), m.transitions[id]...)
}
