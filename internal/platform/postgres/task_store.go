package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/formrelay/internal/domain"
	"github.com/phrazzld/formrelay/internal/platform/logger"
	"github.com/phrazzld/formrelay/internal/store"
)

const taskColumns = `id, conversation_id, task_type, source_agent, target_agent, payload,
	result, error, status, attempt_count, claim_token, available_at,
	created_at, claimed_at, completed_at`

// claimQuery selects and transitions in one statement. SKIP LOCKED makes
// concurrent claimers pass over rows another transaction is already taking,
// so no row is ever returned to two callers. Only the oldest eligible task of
// a conversation is a candidate, and none while a sibling is processing.
const claimQuery = `
	WITH candidates AS (
		SELECT t.id
		FROM agent_tasks t
		WHERE t.status = 'pending'
		  AND t.target_agent = $1
		  AND t.available_at <= NOW()
		  AND NOT EXISTS (
			SELECT 1 FROM agent_tasks p
			WHERE p.conversation_id = t.conversation_id
			  AND p.status = 'processing'
		  )
		  AND NOT EXISTS (
			SELECT 1 FROM agent_tasks e
			WHERE e.conversation_id = t.conversation_id
			  AND e.status = 'pending'
			  AND e.target_agent = t.target_agent
			  AND e.available_at <= NOW()
			  AND (e.created_at, e.id) < (t.created_at, t.id)
		  )
		ORDER BY t.created_at ASC, t.id ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	)
	UPDATE agent_tasks t
	SET status = 'processing',
		claimed_at = NOW(),
		attempt_count = t.attempt_count + 1,
		claim_token = $3
	FROM candidates c
	WHERE t.id = c.id
	RETURNING ` + `t.id, t.conversation_id, t.task_type, t.source_agent, t.target_agent, t.payload,
	t.result, t.error, t.status, t.attempt_count, t.claim_token, t.available_at,
	t.created_at, t.claimed_at, t.completed_at`

// PostgresTaskStore implements the store.TaskStore interface using PostgreSQL.
type PostgresTaskStore struct {
	db store.DBTX
	// conn is set when db is a pool rather than an open transaction.
	conn *sql.DB
}

// NewPostgresTaskStore creates a new PostgresTaskStore. db may be a pool or
// a transaction.
func NewPostgresTaskStore(db store.DBTX) *PostgresTaskStore {
	s := &PostgresTaskStore{db: db}
	if conn, ok := db.(*sql.DB); ok {
		s.conn = conn
	}
	return s
}

// Ensure PostgresTaskStore implements store.TaskStore and store.TaskTransactor
var (
	_ store.TaskStore      = (*PostgresTaskStore)(nil)
	_ store.TaskTransactor = (*PostgresTaskStore)(nil)
)

// InTx runs fn against a store bound to one transaction. A store that is
// already bound to a transaction hands itself to fn.
func (s *PostgresTaskStore) InTx(
	ctx context.Context,
	fn func(ctx context.Context, w store.TaskWriter) error,
) error {
	if s.conn == nil {
		return fn(ctx, s)
	}
	return store.RunInTransaction(ctx, s.conn, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, NewPostgresTaskStore(tx))
	})
}

// Enqueue persists a new pending task.
func (s *PostgresTaskStore) Enqueue(ctx context.Context, task *domain.Task) error {
	log := logger.FromContext(ctx)

	if err := task.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO agent_tasks (id, conversation_id, task_type, source_agent, target_agent,
			payload, status, attempt_count, available_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', 0, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		task.ID,
		task.ConversationID,
		task.TaskType,
		task.SourceAgent,
		task.TargetAgent,
		[]byte(task.Payload),
		task.AvailableAt,
		task.CreatedAt,
	)
	if err != nil {
		log.Error("failed to enqueue task",
			slog.String("task_id", task.ID.String()),
			slog.String("task_type", task.TaskType),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to enqueue task: %w", MapError(err))
	}

	task.Status = domain.TaskStatusPending
	task.AttemptCount = 0
	return nil
}

// Claim atomically moves up to limit eligible pending tasks to processing.
// Every task of one claim shares a fresh claim token.
func (s *PostgresTaskStore) Claim(ctx context.Context, targetAgent string, limit int) ([]*domain.Task, error) {
	if limit <= 0 {
		return []*domain.Task{}, nil
	}

	rows, err := s.db.QueryContext(ctx, claimQuery, targetAgent, limit, uuid.New())
	if err != nil {
		return nil, fmt.Errorf("failed to claim tasks: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to claim tasks: %w", err)
	}

	// RETURNING carries no order.
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks, nil
}

// Complete moves a processing task to completed.
func (s *PostgresTaskStore) Complete(
	ctx context.Context,
	id, claimToken uuid.UUID,
	result *domain.TaskResult,
) error {
	if result == nil {
		result = &domain.TaskResult{}
	}
	if result.Warnings == nil {
		result.Warnings = []string{}
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode task result: %w", err)
	}

	query := `
		UPDATE agent_tasks
		SET status = 'completed', result = $3, completed_at = NOW(), claim_token = NULL
		WHERE id = $1 AND status = 'processing' AND claim_token = $2
	`
	return s.fencedUpdate(ctx, id, domain.TaskStatusCompleted, query, id, claimToken, raw)
}

// Fail moves a processing task to failed.
func (s *PostgresTaskStore) Fail(
	ctx context.Context,
	id, claimToken uuid.UUID,
	failure *domain.TaskFailure,
) error {
	if failure == nil || failure.Message == "" {
		return domain.NewFatalError("task failure must carry a message", nil)
	}
	raw, err := json.Marshal(failure)
	if err != nil {
		return fmt.Errorf("failed to encode task error: %w", err)
	}

	query := `
		UPDATE agent_tasks
		SET status = 'failed', error = $3, completed_at = NOW(), claim_token = NULL
		WHERE id = $1 AND status = 'processing' AND claim_token = $2
	`
	return s.fencedUpdate(ctx, id, domain.TaskStatusFailed, query, id, claimToken, raw)
}

// Requeue moves a processing task back to pending, claimable from notBefore.
func (s *PostgresTaskStore) Requeue(
	ctx context.Context,
	id, claimToken uuid.UUID,
	notBefore time.Time,
) error {
	query := `
		UPDATE agent_tasks
		SET status = 'pending', available_at = $3, claim_token = NULL
		WHERE id = $1 AND status = 'processing' AND claim_token = $2
	`
	return s.fencedUpdate(ctx, id, domain.TaskStatusPending, query, id, claimToken, notBefore.UTC())
}

// fencedUpdate runs a write that only applies to the current claim holder.
// When nothing matched it reports why: the task is gone or is no longer in
// the state the caller believes it holds.
func (s *PostgresTaskStore) fencedUpdate(
	ctx context.Context,
	id uuid.UUID,
	to domain.TaskStatus,
	query string,
	args ...any,
) error {
	log := logger.FromContext(ctx)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to update task status",
			slog.String("task_id", id.String()),
			slog.String("status", string(to)),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to move task to %s: %w", to, MapError(err))
	}

	err = CheckRowsAffected(res, "task")
	if err == nil {
		return nil
	}
	if !store.IsNotFoundError(err) {
		return err
	}

	var current domain.TaskStatus
	err = s.db.QueryRowContext(ctx, `SELECT status FROM agent_tasks WHERE id = $1`, id).Scan(&current)
	if IsNotFoundError(err) {
		return store.ErrTaskNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read task status: %w", MapError(err))
	}

	log.Warn("rejected task write from a worker that no longer holds the claim",
		slog.String("task_id", id.String()),
		slog.String("current_status", string(current)),
		slog.String("requested_status", string(to)))
	return domain.NewStateError(id, current, to)
}

// Get returns a task by ID.
func (s *PostgresTaskStore) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM agent_tasks WHERE id = $1`, id)
	task, err := scanTask(row)
	if IsNotFoundError(err) {
		return nil, store.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", MapError(err))
	}
	return task, nil
}

// ListByConversation returns the tasks of a conversation, oldest first.
func (s *PostgresTaskStore) ListByConversation(
	ctx context.Context,
	conversationID uuid.UUID,
) ([]*domain.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM agent_tasks WHERE conversation_id = $1 ORDER BY created_at ASC, id ASC`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation tasks: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	return scanTasks(rows)
}

// ListStale returns processing tasks claimed before claimedBefore.
func (s *PostgresTaskStore) ListStale(
	ctx context.Context,
	claimedBefore time.Time,
	limit int,
) ([]*domain.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM agent_tasks
		WHERE status = 'processing' AND claimed_at < $1
		ORDER BY claimed_at ASC
		LIMIT $2`,
		claimedBefore.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale tasks: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	return scanTasks(rows)
}

// Stats returns task counts grouped by target agent and status.
func (s *PostgresTaskStore) Stats(ctx context.Context) ([]store.StatusCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT target_agent, status, COUNT(*)
		FROM agent_tasks
		GROUP BY target_agent, status
		ORDER BY target_agent, status
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	counts := []store.StatusCount{}
	for rows.Next() {
		var c store.StatusCount
		if err := rows.Scan(&c.TargetAgent, &c.Status, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan task count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task counts: %w", err)
	}
	return counts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTasks(rows *sql.Rows) ([]*domain.Task, error) {
	tasks := []*domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}
	return tasks, nil
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		t           domain.Task
		payload     []byte
		result      []byte
		failure     []byte
		claimToken  uuid.NullUUID
		claimedAt   sql.NullTime
		completedAt sql.NullTime
	)

	err := row.Scan(
		&t.ID,
		&t.ConversationID,
		&t.TaskType,
		&t.SourceAgent,
		&t.TargetAgent,
		&payload,
		&result,
		&failure,
		&t.Status,
		&t.AttemptCount,
		&claimToken,
		&t.AvailableAt,
		&t.CreatedAt,
		&claimedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Payload = json.RawMessage(payload)
	if len(result) > 0 {
		t.Result = &domain.TaskResult{}
		if err := json.Unmarshal(result, t.Result); err != nil {
			return nil, fmt.Errorf("decode result of task %s: %w", t.ID, err)
		}
	}
	if len(failure) > 0 {
		t.Error = &domain.TaskFailure{}
		if err := json.Unmarshal(failure, t.Error); err != nil {
			return nil, fmt.Errorf("decode error of task %s: %w", t.ID, err)
		}
	}
	if claimToken.Valid {
		t.ClaimToken = claimToken.UUID
	}
	if claimedAt.Valid {
		ts := claimedAt.Time
		t.ClaimedAt = &ts
	}
	if completedAt.Valid {
		ts := completedAt.Time
		t.CompletedAt = &ts
	}
	return &t, nil
}
