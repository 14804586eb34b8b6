package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskError_IsMatchesCategorySentinel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      *TaskError
		sentinel error
		category ErrorCategory
	}{
		{"validation", NewValidationError("bad", nil), ErrValidation, CategoryValidation},
		{"transient", NewTransientError("slow", nil), ErrTransient, CategoryTransient},
		{"auth", NewAuthError("denied", nil), ErrAuth, CategoryAuth},
		{"unsupported", NewUnsupportedFeatureError("file field skipped"), ErrUnsupportedFeature, CategoryUnsupportedFeature},
		{"fatal", NewFatalError("broken", nil), ErrFatal, CategoryFatal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			wrapped := fmt.Errorf("outer: %w", tc.err)
			assert.ErrorIs(t, wrapped, tc.sentinel)
			assert.Equal(t, tc.category, CategoryOf(wrapped))

			for _, other := range []error{ErrValidation, ErrTransient, ErrAuth, ErrFatal} {
				if other != tc.sentinel {
					assert.NotErrorIs(t, wrapped, other)
				}
			}
		})
	}
}

func TestTaskError_UnwrapsCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := NewTransientError("create form", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, "create form", MessageOf(err))
}

func TestCategoryOf_UnclassifiedIsTransient(t *testing.T) {
	t.Parallel()
	assert.Equal(t, CategoryTransient, CategoryOf(errors.New("boom")))
}

func TestMessageOf_NeverEmpty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "boom", MessageOf(errors.New("boom")))
	assert.Equal(t, "unknown error", MessageOf(nil))
	assert.Equal(t, ErrAuth.Error(), MessageOf(NewAuthError("", nil)))
}
