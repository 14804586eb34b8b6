package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/formrelay/internal/domain"
	"github.com/phrazzld/formrelay/internal/store"
)

// leaseRetryInterval bounds how often a busy lease is polled.
const leaseRetryInterval = 250 * time.Millisecond

// ConversationLocker serializes task execution per conversation. Within a
// process a keyed mutex queues callers; across processes a lease row in the
// store does. Both are held for the duration of one task.
type ConversationLocker struct {
	leases store.LeaseStore
	holder string
	wait   time.Duration
	ttl    time.Duration

	mu    sync.Mutex
	slots map[uuid.UUID]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewConversationLocker creates a locker identified as holder. A nil
// lease store limits serialization to this process.
func NewConversationLocker(leases store.LeaseStore, holder string, wait, ttl time.Duration) *ConversationLocker {
	return &ConversationLocker{
		leases: leases,
		holder: holder,
		wait:   wait,
		ttl:    ttl,
		slots:  map[uuid.UUID]*slot{},
	}
}

// Acquire blocks until the conversation is free or the configured wait
// elapses. Timing out is a TransientError so the task is retried later.
// The returned release function must be called exactly once.
func (l *ConversationLocker) Acquire(ctx context.Context, conversationID uuid.UUID) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	s := l.ref(conversationID)
	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(conversationID)
		return nil, l.timeout(conversationID, ctx.Err())
	}

	unlockLocal := func() {
		<-s.ch
		l.unref(conversationID)
	}

	if l.leases == nil {
		return unlockLocal, nil
	}

	if err := l.acquireLease(ctx, conversationID); err != nil {
		unlockLocal()
		return nil, err
	}

	return func() {
		// Release must run even if the task's context is gone.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.leases.Release(releaseCtx, conversationID, l.holder)
		unlockLocal()
	}, nil
}

func (l *ConversationLocker) acquireLease(ctx context.Context, conversationID uuid.UUID) error {
	ticker := time.NewTicker(min(leaseRetryInterval, l.wait))
	defer ticker.Stop()

	for {
		ok, err := l.leases.TryAcquire(ctx, conversationID, l.holder, l.ttl)
		if err != nil {
			return domain.NewTransientError("acquire conversation lease", err)
		}
		if ok {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return l.timeout(conversationID, ctx.Err())
		}
	}
}

func (l *ConversationLocker) timeout(conversationID uuid.UUID, err error) error {
	return domain.NewTransientError(
		fmt.Sprintf("conversation %s busy for more than %s", conversationID, l.wait), err)
}

func (l *ConversationLocker) ref(id uuid.UUID) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[id]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[id] = s
	}
	s.refs++
	return s
}

func (l *ConversationLocker) unref(id uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.slots[id]
	s.refs--
	if s.refs == 0 {
		delete(l.slots, id)
	}
}
