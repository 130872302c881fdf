// Package diskpool provides the execution context for blocking filesystem work,
// keeping it off the goroutines that serve connections.
package diskpool

import (
	"context"

	"golang.org/x/sync/semaphore"
)

const DefaultWorkers = 16

// Pool bounds the number of concurrently running disk operations.
type Pool struct {
	sem     *semaphore.Weighted
	workers int
}

// New creates a pool running at most workers operations at a time.
// A non-positive value means DefaultWorkers.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Pool{
		sem:     semaphore.NewWeighted(int64(workers)),
		workers: workers,
	}
}

func (p *Pool) Workers() int {
	return p.workers
}

// Do runs fn on a pool worker and waits for it.
//
// If ctx is done first, Do returns ctx.Err() without waiting. An fn that has
// already started still runs to completion; cleaning up whatever it produced
// is up to the caller. An fn that has not started yet is never run.
func (p *Pool) Do(ctx context.Context, fn func()) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	done := make(chan struct{})
	go func() {
		defer p.sem.Release(1)
		defer close(done)
		fn()
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
