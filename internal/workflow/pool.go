package workflow

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Pool bounds how many blocking operations run at once across all runs that
// share it. The caller waits for its task; only the work itself is offloaded.
type Pool struct {
	size int64
	sem  *semaphore.Weighted
}

// NewPool returns a pool with size workers (at least one).
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{size: int64(size), sem: semaphore.NewWeighted(int64(size))}
}

// Size reports the number of workers.
func (p *Pool) Size() int {
	return int(p.size)
}

// Do runs fn on a pool worker and waits for it to return. Cancellation while
// waiting for a free worker returns the context error; a running fn observes
// the same context and is always waited for, so it never outlives the call.
func (p *Pool) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("worker panic: %v", r)
			}
		}()
		done <- fn(ctx)
	}()
	return <-done
}
