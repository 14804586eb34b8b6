package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/formrelay/internal/domain"
	"github.com/phrazzld/formrelay/internal/events"
	"github.com/phrazzld/formrelay/internal/platform/telemetry"
	"github.com/phrazzld/formrelay/internal/store"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// sweepLimit caps how many stale tasks one sweep handles.
const sweepLimit = 100

// Sweeper finds tasks whose worker stopped responding mid-processing and
// pushes them back through the retry policy. The abandoned attempt was
// already counted by claim, so an exhausted task fails instead.
type Sweeper struct {
	store     store.TaskStore
	policy    RetryPolicy
	threshold time.Duration
	interval  time.Duration
	emitter   events.EventEmitter
	metrics   *telemetry.Metrics
	logger    *slog.Logger
	now       func() time.Time

	cron *cron.Cron
}

// NewSweeper creates a sweeper that runs every interval and treats claims
// older than threshold as abandoned.
func NewSweeper(taskStore store.TaskStore, policy RetryPolicy, threshold, interval time.Duration, logger *slog.Logger) *Sweeper {
	logger = logger.With("component", "sweeper")
	return &Sweeper{
		store:     taskStore,
		policy:    policy,
		threshold: threshold,
		interval:  interval,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetEmitter sets where events for swept-and-failed tasks are published.
func (s *Sweeper) SetEmitter(emitter events.EventEmitter) {
	s.emitter = emitter
}

// SetMetrics sets the metric instruments.
func (s *Sweeper) SetMetrics(metrics *telemetry.Metrics) {
	s.metrics = metrics
}

// SetClock replaces the time source.
func (s *Sweeper) SetClock(now func() time.Time) {
	s.now = now
}

// Start schedules Sweep on the interval. Overlapping runs are skipped.
func (s *Sweeper) Start(ctx context.Context) {
	cl := cronLogger{s.logger}
	s.cron = cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	s.cron.Schedule(cron.Every(s.interval), cron.FuncJob(func() {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("sweep failed", "error", err)
		}
	}))
	s.cron.Start()
	s.logger.Info("sweeper started", "interval", s.interval, "threshold", s.threshold)
}

// Stop stops scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// Sweep handles one round of stale tasks and returns how many it moved.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	stale, err := s.store.ListStale(ctx, now.Add(-s.threshold), sweepLimit)
	if err != nil {
		return 0, fmt.Errorf("list stale tasks: %w", err)
	}

	moved := 0
	for _, t := range stale {
		log := s.logger.With("task_id", t.ID, "conversation_id", t.ConversationID, "attempt", t.AttemptCount)
		cause := domain.NewTransientError(
			fmt.Sprintf("worker stopped responding; claim older than %s", s.threshold), nil)
		decision := s.policy.Classify(cause, t.AttemptCount)

		if decision.Outcome == OutcomeRetry {
			err = s.store.Requeue(ctx, t.ID, t.ClaimToken, now.Add(decision.Delay))
		} else {
			finished := *t
			finished.Status = domain.TaskStatusFailed
			finished.Error = decision.Failure
			err = finishTask(ctx, s.store, s.emitter, &finished, func(ctx context.Context, w store.TaskWriter) error {
				return w.Fail(ctx, t.ID, t.ClaimToken, decision.Failure)
			})
		}
		switch {
		case errors.Is(err, domain.ErrState):
			// The worker finished after all.
			log.Debug("stale task moved before sweep", "error", err)
			continue
		case err != nil:
			return moved, fmt.Errorf("sweep task %s: %w", t.ID, err)
		}

		moved++
		if s.metrics != nil {
			s.metrics.TasksSwept.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(decision.Outcome))))
		}
		if decision.Outcome == OutcomeRetry {
			log.Warn("requeued stale task", "delay", decision.Delay)
			continue
		}

		log.Error("failed stale task", "error", decision.Failure.Message)
	}
	return moved, nil
}

// cronLogger routes cron's own logging to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
