package task

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/formrelay/internal/domain"
	"golang.org/x/sync/errgroup"
)

// WorkerPool runs the tasks of one claimed batch with bounded concurrency.
// Tasks of the same conversation run one after another, in claim order, on
// a single goroutine; different conversations run in parallel.
type WorkerPool struct {
	// workerCount caps how many conversations execute at once
	workerCount int

	// logger for structured logging
	logger *slog.Logger
}

// WorkerPoolConfig holds configuration options for the worker pool
type WorkerPoolConfig struct {
	// WorkerCount determines how many conversations run concurrently.
	// If zero or negative, defaults to 1
	WorkerCount int
}

// NewWorkerPool creates a new worker pool with the specified configuration
func NewWorkerPool(config WorkerPoolConfig, logger *slog.Logger) *WorkerPool {
	workerCount := config.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
	}

	return &WorkerPool{
		workerCount: workerCount,
		logger:      logger,
	}
}

// Run executes fn for every task and returns when all have finished. fn
// owns the outcome of its task; Run does not inspect errors.
func (p *WorkerPool) Run(ctx context.Context, tasks []*domain.Task, fn func(context.Context, *domain.Task)) {
	groups := groupByConversation(tasks)
	p.logger.Debug("running batch", "tasks", len(tasks), "conversations", len(groups))

	var g errgroup.Group
	g.SetLimit(p.workerCount)
	for _, group := range groups {
		g.Go(func() error {
			for _, t := range group {
				fn(ctx, t)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// groupByConversation splits tasks by conversation, keeping the order of
// first appearance for groups and the input order within each group.
func groupByConversation(tasks []*domain.Task) [][]*domain.Task {
	index := map[uuid.UUID]int{}
	var groups [][]*domain.Task
	for _, t := range tasks {
		i, ok := index[t.ConversationID]
		if !ok {
			i = len(groups)
			index[t.ConversationID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], t)
	}
	return groups
}
