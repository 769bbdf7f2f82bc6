package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestRunnerRunsTasksUnderBaseContext(t *testing.T) {
	t.Parallel()

	type ctxKey struct{}
	base := context.WithValue(context.Background(), ctxKey{}, "base")
	r := New(base)

	var got atomic.Value
	r.Go("probe", func(ctx context.Context) error {
		got.Store(ctx.Value(ctxKey{}))
		return nil
	})
	r.Wait()

	if got.Load() != "base" {
		t.Errorf("task context value = %v, want the runner's base context", got.Load())
	}
}

func TestRunnerWaitBlocksUntilDone(t *testing.T) {
	t.Parallel()

	r := New(context.Background())
	var done atomic.Int64
	for i := 0; i < 5; i++ {
		r.Go("work", func(context.Context) error {
			done.Add(1)
			return nil
		})
	}
	r.Wait()

	if done.Load() != 5 {
		t.Errorf("done = %d, want 5 after Wait", done.Load())
	}
}

func TestRunnerSwallowsErrorsAndPanics(t *testing.T) {
	t.Parallel()

	r := New(context.Background())
	r.Go("failing", func(context.Context) error {
		return errors.New("task error")
	})
	r.Go("panicking", func(context.Context) error {
		panic("boom")
	})
	// Wait returning at all proves the panic was recovered.
	r.Wait()
}
