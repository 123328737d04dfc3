// Package tasks runs background work with a hard concurrency bound.
//
// Two shapes are supported: fire-and-forget jobs (Submit) and bounded waits
// (Run), where the caller stops waiting after a timeout and the job's late
// result is dropped.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrTimeout indicates Run gave up waiting for the job.
	ErrTimeout = errors.New("task timed out")

	// ErrClosed indicates the queue no longer accepts work.
	ErrClosed = errors.New("task queue closed")
)

// Queue is a bounded background runner.
type Queue struct {
	sem    *semaphore.Weighted
	logger *zap.Logger

	// base is cancelled by Close; fire-and-forget jobs inherit it instead of
	// the request context that submitted them.
	base   context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewQueue creates a queue running at most maxConcurrent jobs at once.
func NewQueue(maxConcurrent int, logger *zap.Logger) *Queue {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Queue{
		sem:    semaphore.NewWeighted(int64(maxConcurrent)),
		logger: logger,
		base:   base,
		cancel: cancel,
	}
}

// Submit schedules fn in the background. It returns once the job has been
// accepted, not when it finishes. Failures are logged under name.
func (q *Queue) Submit(name string, fn func(ctx context.Context) error) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		if err := q.sem.Acquire(q.base, 1); err != nil {
			q.logger.Warn("task dropped", zap.String("task", name), zap.Error(err))
			return
		}
		defer q.sem.Release(1)

		defer func() {
			if r := recover(); r != nil {
				q.logger.Error("task panicked", zap.String("task", name), zap.Any("panic", r))
			}
		}()
		if err := fn(q.base); err != nil {
			q.logger.Warn("task failed", zap.String("task", name), zap.Error(err))
		}
	}()
	return nil
}

// Run executes fn on the queue and waits at most timeout for its result.
// On timeout the job's context is cancelled, ErrTimeout is returned and any
// result it still produces is discarded.
func Run[T any](ctx context.Context, q *Queue, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return zero, ErrClosed
	}
	q.wg.Add(1)
	q.mu.RUnlock()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)

	go func() {
		defer q.wg.Done()
		if err := q.sem.Acquire(ctx, 1); err != nil {
			done <- result{err: err}
			return
		}
		defer q.sem.Release(1)

		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("task panicked: %v", r)}
			}
		}()
		v, err := fn(ctx)
		done <- result{val: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() != nil {
			return zero, ErrTimeout
		}
		return r.val, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, ErrTimeout
		}
		return zero, ctx.Err()
	}
}

// Close stops accepting work and waits for running jobs until ctx expires.
// Jobs still queued when ctx expires are cancelled.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		return fmt.Errorf("waiting for tasks: %w", ctx.Err())
	}
}

// Wait blocks until every accepted job has finished. Intended for tests.
func (q *Queue) Wait() {
	q.wg.Wait()
}
