package task

import (
	"fmt"
	"time"

	"github.com/phrazzld/formrelay/internal/config"
	"github.com/phrazzld/formrelay/internal/domain"
	"github.com/phrazzld/formrelay/internal/redact"
)

// Outcome is what the worker does with a failed attempt.
type Outcome string

// Possible outcomes of a failed attempt.
const (
	OutcomeRetry Outcome = "retry"
	OutcomeFail  Outcome = "fail"
)

// Decision is the retry policy's verdict for one failed attempt.
type Decision struct {
	Outcome Outcome
	// Delay is how long the task stays unclaimable when retried.
	Delay time.Duration
	// Failure is the error to persist when the task fails.
	Failure *domain.TaskFailure
}

// RetryPolicy decides between retrying and failing. It is the only place
// where that decision is made.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Cap         time.Duration
}

// NewRetryPolicy reads the policy from worker configuration.
func NewRetryPolicy(cfg config.WorkerConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseBackoffDelay,
		Cap:         cfg.BackoffCap,
	}
}

// Backoff returns min(Cap, BaseDelay * 2^attempt). It never decreases as
// attempt grows.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := p.BaseDelay
	for i := 0; i < attempt; i++ {
		if delay >= p.Cap || delay > time.Duration(1<<62)/2 {
			return p.Cap
		}
		delay *= 2
	}
	return min(delay, p.Cap)
}

// Classify maps the error of an attempt to a decision. attemptCount is the
// task's attempt_count, which already includes the attempt that failed.
func (p RetryPolicy) Classify(err error, attemptCount int) Decision {
	category := domain.CategoryOf(err)
	message := redact.Error(err)

	if category == domain.CategoryTransient {
		if attemptCount < p.MaxAttempts {
			return Decision{Outcome: OutcomeRetry, Delay: p.Backoff(attemptCount)}
		}
		message = fmt.Sprintf("gave up after %d attempts: %s", attemptCount, message)
	}

	// Auth has already had its inline refresh retry. Validation, state,
	// fatal and any unsupported feature that escaped the sync are terminal.
	return Decision{
		Outcome: OutcomeFail,
		Failure: &domain.TaskFailure{Category: category, Message: message},
	}
}
