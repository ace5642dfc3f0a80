package remote

import (
	"context"
	"sync"
)

// Runtime is the shared worker pool that executes transport operations.
// Command callers are synchronous; each call submits one task and blocks
// on a one-shot result channel. No locks are held across that boundary.
type Runtime struct {
	tasks chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

const defaultWorkers = 4

func NewRuntime(workers int) *Runtime {
	if workers <= 0 {
		workers = defaultWorkers
	}
	r := &Runtime{tasks: make(chan func())}
	r.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer r.wg.Done()
			for task := range r.tasks {
				task()
			}
		}()
	}
	return r
}

// Shutdown stops accepting tasks and waits for running ones to finish.
func (r *Runtime) Shutdown() {
	r.once.Do(func() { close(r.tasks) })
	r.wg.Wait()
}

type result[T any] struct {
	value T
	err   error
}

// Do runs fn on the runtime and blocks until it returns or ctx is done.
// When ctx expires the task keeps running in the background; its result
// is discarded.
func Do[T any](ctx context.Context, rt *Runtime, fn func(ctx context.Context) (T, error)) (T, error) {
	done := make(chan result[T], 1)
	rt.tasks <- func() {
		value, err := fn(ctx)
		done <- result[T]{value: value, err: err}
	}
	select {
	case res := <-done:
		return res.value, res.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
