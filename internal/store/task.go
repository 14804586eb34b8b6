package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/formrelay/internal/domain"
)

// StatusCount is one cell of the task introspection table.
type StatusCount struct {
	TargetAgent string            `json:"target_agent"`
	Status      domain.TaskStatus `json:"status"`
	Count       int               `json:"count"`
}

// TaskStore owns task rows, the task state machine and the claim protocol.
// Write-backs after a claim are fenced by the claim token handed out by
// Claim: a caller whose token no longer matches gets a StateError and the
// row is left unchanged.
type TaskStore interface {
	// Enqueue inserts a validated task with status pending and attempt_count 0.
	// Returns a ValidationError if the task is missing required fields.
	Enqueue(ctx context.Context, task *domain.Task) error

	// Claim atomically moves up to limit eligible pending tasks for
	// targetAgent to processing, oldest first, incrementing attempt_count and
	// stamping claimed_at and a fresh claim token. A task is eligible when its
	// available_at has passed and no other task of the same conversation is
	// processing. Returns an empty slice when nothing matches.
	Claim(ctx context.Context, targetAgent string, limit int) ([]*domain.Task, error)

	// Complete moves a processing task to completed and writes its result.
	Complete(ctx context.Context, id, claimToken uuid.UUID, result *domain.TaskResult) error

	// Fail moves a processing task to failed and writes its error.
	Fail(ctx context.Context, id, claimToken uuid.UUID, failure *domain.TaskFailure) error

	// Requeue moves a processing task back to pending, not claimable before
	// notBefore. It does not touch attempt_count.
	Requeue(ctx context.Context, id, claimToken uuid.UUID, notBefore time.Time) error

	// Get returns a task by ID, or ErrTaskNotFound.
	Get(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// ListByConversation returns the tasks of a conversation, oldest first.
	ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]*domain.Task, error)

	// ListStale returns up to limit processing tasks claimed before claimedBefore.
	ListStale(ctx context.Context, claimedBefore time.Time, limit int) ([]*domain.Task, error)

	// Stats returns task counts grouped by target agent and status.
	Stats(ctx context.Context) ([]StatusCount, error)
}

// TaskWriter is the part of TaskStore that can join a transaction.
type TaskWriter interface {
	Enqueue(ctx context.Context, task *domain.Task) error
	Complete(ctx context.Context, id, claimToken uuid.UUID, result *domain.TaskResult) error
	Fail(ctx context.Context, id, claimToken uuid.UUID, failure *domain.TaskFailure) error
}

// TaskTransactor is implemented by task stores that can group writes. The
// writes fn makes through w commit together when fn returns nil and are all
// discarded otherwise.
type TaskTransactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context, w TaskWriter) error) error
}
