package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

// Task is a detached unit of work. Its context is not tied to any request.
type Task func(ctx context.Context) error

// Runner executes fire-and-forget side effects (heartbeats, read receipts,
// outbound mail) off the request path. Tasks are best-effort: when the runner
// is saturated or shutting down they are dropped and logged, and their errors
// never reach the caller. Shutdown flushes in-flight tasks.
type Runner struct {
	sem     *semaphore.Weighted
	timeout time.Duration
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewRunner creates a runner allowing maxConcurrent tasks, each bounded by timeout
func NewRunner(maxConcurrent int, timeout time.Duration) *Runner {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Runner{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		timeout: timeout,
	}
}

// Go schedules task and returns immediately. It reports whether the task was accepted.
func (r *Runner) Go(name string, task Task) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		log.Warn().Str("task", name).Msg("task dropped: runner is shut down")
		return false
	}

	if !r.sem.TryAcquire(1) {
		log.Warn().Str("task", name).Msg("task dropped: runner saturated")
		return false
	}

	r.wg.Add(1)
	go r.run(name, task)
	return true
}

func (r *Runner) run(name string, task Task) {
	defer r.wg.Done()
	defer r.sem.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	start := time.Now()
	if err := safeCall(ctx, task); err != nil {
		log.Warn().
			Err(err).
			Str("task", name).
			Dur("elapsed", time.Since(start)).
			Msg("background task failed")
	}
}

func safeCall(ctx context.Context, task Task) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return task(ctx)
}

// Shutdown stops accepting tasks and waits for running ones or ctx expiry
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("background tasks still running: %w", ctx.Err())
	}
}
