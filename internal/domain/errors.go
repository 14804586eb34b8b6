// Package domain defines the core business entities and errors.
package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrorCategory classifies a failure for the retry policy.
type ErrorCategory string

// Error categories understood by the worker's retry policy.
const (
	CategoryValidation         ErrorCategory = "validation"
	CategoryTransient          ErrorCategory = "transient"
	CategoryAuth               ErrorCategory = "auth"
	CategoryUnsupportedFeature ErrorCategory = "unsupported_feature"
	CategoryState              ErrorCategory = "state"
	CategoryFatal              ErrorCategory = "fatal"
)

// Sentinel errors, one per category. A *TaskError matches its category's
// sentinel with errors.Is.
var (
	ErrValidation         = errors.New("validation failed")
	ErrTransient          = errors.New("transient failure")
	ErrAuth               = errors.New("authentication failed")
	ErrUnsupportedFeature = errors.New("unsupported feature")
	ErrState              = errors.New("illegal state transition")
	ErrFatal              = errors.New("fatal error")

	// ErrUnauthorized is returned when a caller is not permitted to act.
	ErrUnauthorized = errors.New("unauthorized operation")
)

var categorySentinels = map[ErrorCategory]error{
	CategoryValidation:         ErrValidation,
	CategoryTransient:          ErrTransient,
	CategoryAuth:               ErrAuth,
	CategoryUnsupportedFeature: ErrUnsupportedFeature,
	CategoryState:              ErrState,
	CategoryFatal:              ErrFatal,
}

// TaskError is a classified error raised by the components below the worker.
// None of those components retry; the worker reads Category to decide.
type TaskError struct {
	Category ErrorCategory
	Message  string
	Err      error
}

// Error implements the error interface.
func (e *TaskError) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *TaskError) Unwrap() error {
	return e.Err
}

// Is matches the category sentinel so callers can write errors.Is(err, ErrTransient).
func (e *TaskError) Is(target error) bool {
	return categorySentinels[e.Category] == target
}

func newTaskError(category ErrorCategory, message string, err error) *TaskError {
	if message == "" && err != nil {
		message = err.Error()
	}
	if message == "" {
		message = categorySentinels[category].Error()
	}
	return &TaskError{Category: category, Message: message, Err: err}
}

// NewValidationError reports a payload that fails schema or business rules.
func NewValidationError(message string, err error) *TaskError {
	return newTaskError(CategoryValidation, message, err)
}

// NewTransientError reports a failure that may succeed on a later attempt.
func NewTransientError(message string, err error) *TaskError {
	return newTaskError(CategoryTransient, message, err)
}

// NewAuthError reports a credential that could not be used or refreshed.
func NewAuthError(message string, err error) *TaskError {
	return newTaskError(CategoryAuth, message, err)
}

// NewUnsupportedFeatureError reports a blueprint feature the external
// service cannot represent. It is downgraded to a warning, never a failure.
func NewUnsupportedFeatureError(message string) *TaskError {
	return newTaskError(CategoryUnsupportedFeature, message, nil)
}

// NewStateError reports an attempted transition outside the state machine.
func NewStateError(id uuid.UUID, from, to TaskStatus) *TaskError {
	return newTaskError(CategoryState,
		fmt.Sprintf("task %s cannot move from %s to %s", id, from, to), nil)
}

// NewFatalError reports a broken internal invariant.
func NewFatalError(message string, err error) *TaskError {
	return newTaskError(CategoryFatal, message, err)
}

// CategoryOf returns the category of err. Unclassified errors are treated
// as transient: an unknown failure is retried until attempts run out.
func CategoryOf(err error) ErrorCategory {
	var te *TaskError
	if errors.As(err, &te) {
		return te.Category
	}
	return CategoryTransient
}

// MessageOf returns the human-readable message of err, never empty.
func MessageOf(err error) string {
	var te *TaskError
	if errors.As(err, &te) && te.Message != "" {
		return te.Message
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return "unknown error"
}
