// Package worker offloads blocking calls from the turn loop onto a bounded set
// of goroutines and hands back futures the loop can await with cancellation.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrPanic wraps a panic recovered from a job.
var ErrPanic = errors.New("worker job panicked")

// Pool bounds the number of concurrently running jobs.
type Pool struct {
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewPool creates a pool that runs at most size jobs at once.
func NewPool(size int, logger *zap.Logger) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("worker pool size must be positive, got %d", size)
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Pool{
		sem:    semaphore.NewWeighted(int64(size)),
		logger: logger.Named("worker_pool"),
	}, nil
}

// Future is the eventual result of a job.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Await blocks until the job finishes or ctx is done. When ctx wins, the job
// keeps running to completion in the background and its result is dropped.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Submit schedules fn on p. The job receives ctx, so well behaved blocking
// calls abort when the caller gives up.
func Submit[T any](ctx context.Context, p *Pool, name string, fn func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(f.done)

		if err := p.sem.Acquire(ctx, 1); err != nil {
			f.err = fmt.Errorf("acquiring worker for %s: %w", name, err)
			return
		}
		defer p.sem.Release(1)

		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("Recovered from panic in worker job",
					zap.String("job", name),
					zap.Any("panic_value", r),
					zap.ByteString("stack", debug.Stack()),
				)
				f.err = fmt.Errorf("%w: %s: %v", ErrPanic, name, r)
			}
		}()

		f.val, f.err = fn(ctx)
	}()

	return f
}

// Run submits fn and awaits it.
func Run[T any](ctx context.Context, p *Pool, name string, fn func(context.Context) (T, error)) (T, error) {
	return Submit(ctx, p, name, fn).Await(ctx)
}

// Drain waits for every submitted job to finish, or for ctx to expire.
func (p *Pool) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.logger.Warn("Worker pool drain timed out; jobs still running.")
		return ctx.Err()
	}
}
