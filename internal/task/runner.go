package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/formrelay/internal/config"
	"github.com/phrazzld/formrelay/internal/domain"
	"github.com/phrazzld/formrelay/internal/events"
	"github.com/phrazzld/formrelay/internal/platform/logger"
	"github.com/phrazzld/formrelay/internal/platform/telemetry"
	"github.com/phrazzld/formrelay/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// writeBackTimeout bounds a store write-back after a task ran. Write-backs
// do not inherit cancellation so a shutdown mid-task still records the result.
const writeBackTimeout = 10 * time.Second

// TaskRunnerConfig holds configuration for the task runner
type TaskRunnerConfig struct {
	// WorkerID identifies this process in logs and conversation leases
	WorkerID string

	// TargetAgent selects which tasks this runner claims
	TargetAgent string

	// PollInterval is the sleep between claim attempts
	PollInterval time.Duration

	// BatchSize caps both the claim size and the concurrency of a batch
	BatchSize int
}

// NewTaskRunnerConfig reads the runner settings from worker configuration.
func NewTaskRunnerConfig(workerID string, cfg config.WorkerConfig) TaskRunnerConfig {
	return TaskRunnerConfig{
		WorkerID:     workerID,
		TargetAgent:  cfg.TargetAgent,
		PollInterval: cfg.PollInterval,
		BatchSize:    cfg.BatchSize,
	}
}

// TaskRunner is the worker loop: it polls the task store, claims batches
// and drives each claimed task to completed, failed or back to pending.
// It is the only component that decides between retrying and failing.
type TaskRunner struct {
	store    store.TaskStore
	handlers Registry
	policy   RetryPolicy
	locker   *ConversationLocker
	pool     *WorkerPool
	emitter  events.EventEmitter
	tracer   trace.Tracer
	metrics  *telemetry.Metrics
	config   TaskRunnerConfig
	logger   *slog.Logger
	now      func() time.Time

	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewTaskRunner creates a new TaskRunner. The locker may be nil, in which
// case only the claim filter and batch grouping serialize conversations.
func NewTaskRunner(
	taskStore store.TaskStore,
	handlers Registry,
	policy RetryPolicy,
	locker *ConversationLocker,
	config TaskRunnerConfig,
	log *slog.Logger,
) *TaskRunner {
	log = log.With("component", "task_runner", "worker_id", config.WorkerID)
	noop := telemetry.Noop()
	return &TaskRunner{
		store:    taskStore,
		handlers: handlers,
		policy:   policy,
		locker:   locker,
		pool:     NewWorkerPool(WorkerPoolConfig{WorkerCount: config.BatchSize}, log),
		tracer:   noop.Tracer,
		config:   config,
		logger:   log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetEmitter sets where task-finished events are published.
func (r *TaskRunner) SetEmitter(emitter events.EventEmitter) {
	r.emitter = emitter
}

// SetTelemetry sets the tracer and the metric instruments.
func (r *TaskRunner) SetTelemetry(tracer trace.Tracer, metrics *telemetry.Metrics) {
	r.tracer = tracer
	r.metrics = metrics
}

// SetClock replaces the time source used for backoff deadlines.
func (r *TaskRunner) SetClock(now func() time.Time) {
	r.now = now
}

// Start runs the loop in the background until Stop is called.
func (r *TaskRunner) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancelFunc = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_ = r.Run(ctx)
	}()
}

// Stop cancels the loop and waits for the in-flight batch to finish.
func (r *TaskRunner) Stop() {
	if r.cancelFunc != nil {
		r.cancelFunc()
	}
	r.wg.Wait()
}

// Run polls until ctx is cancelled. The first claim happens immediately;
// later ones wait PollInterval. A failed iteration is logged and the loop
// carries on.
func (r *TaskRunner) Run(ctx context.Context) error {
	r.logger.Info("starting worker loop",
		"target_agent", r.config.TargetAgent,
		"poll_interval", r.config.PollInterval,
		"batch_size", r.config.BatchSize)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("stopping worker loop")
			return ctx.Err()
		case <-timer.C:
		}

		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("worker iteration failed", "error", err)
		}
		timer.Reset(r.config.PollInterval)
	}
}

// RunOnce claims one batch and executes it. It returns how many tasks were
// claimed. Only a failure to claim is returned; per-task outcomes are
// recorded in the store.
func (r *TaskRunner) RunOnce(ctx context.Context) (int, error) {
	tasks, err := r.store.Claim(ctx, r.config.TargetAgent, r.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("claim tasks: %w", err)
	}
	if len(tasks) == 0 {
		return 0, nil
	}

	r.logger.Debug("claimed tasks", "count", len(tasks))
	if r.metrics != nil {
		r.metrics.TasksClaimed.Add(ctx, int64(len(tasks)),
			metric.WithAttributes(attribute.String("target_agent", r.config.TargetAgent)))
	}

	r.pool.Run(ctx, tasks, r.processTask)
	return len(tasks), nil
}

// processTask handles execution of a single claimed task
func (r *TaskRunner) processTask(ctx context.Context, t *domain.Task) {
	log := r.logger.With(
		"task_id", t.ID,
		"task_type", t.TaskType,
		"conversation_id", t.ConversationID,
		"attempt", t.AttemptCount,
	)
	ctx = logger.WithContext(ctx, log)

	ctx, span := r.tracer.Start(ctx, "task.execute", trace.WithAttributes(
		attribute.String("task.id", t.ID.String()),
		attribute.String("task.type", t.TaskType),
		attribute.String("conversation.id", t.ConversationID.String()),
		attribute.Int("task.attempt", t.AttemptCount),
	))
	defer span.End()

	log.Info("processing task")
	start := time.Now()
	result, err := r.execute(ctx, t)
	if r.metrics != nil {
		r.metrics.TaskDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("task_type", t.TaskType)))
	}

	if err == nil {
		r.complete(ctx, log, t, result)
		return
	}

	span.RecordError(err)
	decision := r.policy.Classify(err, t.AttemptCount)
	switch decision.Outcome {
	case OutcomeRetry:
		r.retry(ctx, log, t, decision.Delay, err)
	default:
		span.SetStatus(codes.Error, decision.Failure.Message)
		r.fail(ctx, log, t, decision.Failure)
	}
}

// execute holds the conversation lock around the handler. A panicking
// handler is reported as a FatalError rather than taking the process down.
func (r *TaskRunner) execute(ctx context.Context, t *domain.Task) (result *domain.TaskResult, err error) {
	handler, err := r.handlers.Lookup(t)
	if err != nil {
		return nil, err
	}

	if r.locker != nil {
		release, err := r.locker.Acquire(ctx, t.ConversationID)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	defer func() {
		if p := recover(); p != nil {
			result, err = nil, domain.NewFatalError(fmt.Sprintf("handler panicked: %v", p), nil)
		}
	}()
	return handler.Execute(ctx, t)
}

func (r *TaskRunner) writeBackContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), writeBackTimeout)
}

func (r *TaskRunner) complete(ctx context.Context, log *slog.Logger, t *domain.Task, result *domain.TaskResult) {
	if result == nil {
		result = &domain.TaskResult{}
	}
	if result.Warnings == nil {
		result.Warnings = []string{}
	}

	finished := *t
	finished.Status = domain.TaskStatusCompleted
	finished.Result = result

	wctx, cancel := r.writeBackContext(ctx)
	defer cancel()
	err := finishTask(wctx, r.store, r.emitter, &finished, func(ctx context.Context, w store.TaskWriter) error {
		return w.Complete(ctx, t.ID, t.ClaimToken, result)
	})
	if err != nil {
		r.logWriteBackError(log, "complete", err)
		return
	}

	log.Info("task completed", "warnings", len(result.Warnings))
	r.recordOutcome(ctx, t, "completed")
}

func (r *TaskRunner) retry(ctx context.Context, log *slog.Logger, t *domain.Task, delay time.Duration, cause error) {
	notBefore := r.now().Add(delay)

	wctx, cancel := r.writeBackContext(ctx)
	defer cancel()
	if err := r.store.Requeue(wctx, t.ID, t.ClaimToken, notBefore); err != nil {
		r.logWriteBackError(log, "requeue", err)
		return
	}

	log.Warn("task attempt failed, will retry",
		"category", domain.CategoryOf(cause),
		"delay", delay,
		"error", cause)
	r.recordOutcome(ctx, t, "retried")
}

func (r *TaskRunner) fail(ctx context.Context, log *slog.Logger, t *domain.Task, failure *domain.TaskFailure) {
	finished := *t
	finished.Status = domain.TaskStatusFailed
	finished.Error = failure

	wctx, cancel := r.writeBackContext(ctx)
	defer cancel()
	err := finishTask(wctx, r.store, r.emitter, &finished, func(ctx context.Context, w store.TaskWriter) error {
		return w.Fail(ctx, t.ID, t.ClaimToken, failure)
	})
	if err != nil {
		r.logWriteBackError(log, "fail", err)
		return
	}

	attrs := []any{"category", failure.Category, "error", failure.Message}
	if failure.Category == domain.CategoryFatal {
		attrs = append(attrs, "severity", "fatal")
	}
	log.Error("task failed", attrs...)
	r.recordOutcome(ctx, t, "failed")
}

// finishTask applies a terminal write and publishes the finished event. On
// a transactional store both happen in one transaction, so a failing
// handler (a reply that could not be enqueued) leaves the task processing
// for the sweeper to retry.
func finishTask(
	ctx context.Context,
	taskStore store.TaskStore,
	emitter events.EventEmitter,
	finished *domain.Task,
	write func(ctx context.Context, w store.TaskWriter) error,
) error {
	publish := func(ctx context.Context, w store.TaskWriter) error {
		if err := write(ctx, w); err != nil {
			return err
		}
		if emitter == nil {
			return nil
		}
		event := events.NewTaskFinishedEvent(finished)
		event.Tx = w
		if err := emitter.EmitEvent(ctx, event); err != nil {
			return fmt.Errorf("publish task finished event: %w", err)
		}
		return nil
	}

	if tx, ok := taskStore.(store.TaskTransactor); ok {
		return tx.InTx(ctx, publish)
	}
	return publish(ctx, taskStore)
}

// logWriteBackError logs a rejected or failed write-back. A StateError means
// the claim went stale (the sweeper requeued the task) and the row was left
// alone; anything else is a store outage and the sweeper will pick the task
// up once its claim is stale.
func (r *TaskRunner) logWriteBackError(log *slog.Logger, op string, err error) {
	if errors.Is(err, domain.ErrState) {
		log.Warn("write-back rejected, claim is no longer held", "operation", op, "error", err)
		return
	}
	log.Error("write-back failed", "operation", op, "error", err)
}

func (r *TaskRunner) recordOutcome(ctx context.Context, t *domain.Task, outcome string) {
	if r.metrics == nil {
		return
	}
	r.metrics.TaskOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task_type", t.TaskType),
		attribute.String("outcome", outcome),
	))
}
