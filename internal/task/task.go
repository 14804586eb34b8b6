package task

import (
	"context"
	"fmt"

	"github.com/phrazzld/formrelay/internal/domain"
)

// Handler executes one claimed task of a given type. It returns the result
// to persist on success, or a categorized error. Handlers never retry; the
// worker applies the retry policy to whatever they return.
type Handler interface {
	// Type returns the task type this handler executes
	Type() string

	// Execute runs the task logic
	Execute(ctx context.Context, task *domain.Task) (*domain.TaskResult, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc struct {
	TaskType string
	Fn       func(ctx context.Context, task *domain.Task) (*domain.TaskResult, error)
}

// Type implements Handler.
func (h HandlerFunc) Type() string { return h.TaskType }

// Execute implements Handler.
func (h HandlerFunc) Execute(ctx context.Context, task *domain.Task) (*domain.TaskResult, error) {
	return h.Fn(ctx, task)
}

// Registry maps task types to handlers.
type Registry map[string]Handler

// NewRegistry builds a registry from handlers. Registering two handlers for
// the same type is a programming error.
func NewRegistry(handlers ...Handler) (Registry, error) {
	r := Registry{}
	for _, h := range handlers {
		if _, dup := r[h.Type()]; dup {
			return nil, fmt.Errorf("duplicate handler for task type %q", h.Type())
		}
		r[h.Type()] = h
	}
	return r, nil
}

// Lookup returns the handler for a task. A task type with no handler is a
// FatalError: retrying cannot help.
func (r Registry) Lookup(task *domain.Task) (Handler, error) {
	h, ok := r[task.TaskType]
	if !ok {
		return nil, domain.NewFatalError(fmt.Sprintf("no handler for task type %q", task.TaskType), nil)
	}
	return h, nil
}
