// Package worker runs fire-and-forget background tasks with panic recovery.
// The caller's contract is "task accepted", never "task succeeded".
package worker

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Task is a unit of background work. Failures belong to the task: it logs
// its own errors and the runner only records that it finished.
type Task func(ctx context.Context) error

// Runner executes tasks on their own goroutines, detached from the
// submitting caller. Submitted tasks run under the runner's base context,
// not the caller's, so an HTTP request finishing does not cancel the sync
// it kicked off.
type Runner struct {
	base context.Context
	wg   sync.WaitGroup
}

// New creates a Runner whose tasks run under base.
func New(base context.Context) *Runner {
	return &Runner{base: base}
}

// Go accepts a task and returns immediately. The task's error and any panic
// are logged under the generated task id; neither reaches the caller.
func (r *Runner) Go(name string, task Task) {
	id := uuid.New().String()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("background task panicked",
					"task", name, "task_id", id,
					"panic", rec, "stack", string(debug.Stack()))
			}
		}()

		start := time.Now()
		slog.Info("background task started", "task", name, "task_id", id)
		if err := task(r.base); err != nil {
			slog.Error("background task failed",
				"task", name, "task_id", id, "error", err,
				"duration", time.Since(start).Round(time.Millisecond))
			return
		}
		slog.Info("background task finished",
			"task", name, "task_id", id,
			"duration", time.Since(start).Round(time.Millisecond))
	}()
}

// Wait blocks until every accepted task has finished. Called on shutdown so
// in-flight syncs can complete.
func (r *Runner) Wait() {
	r.wg.Wait()
}
