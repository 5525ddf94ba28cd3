package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// ErrRunnerClosed is returned by TryGo after Shutdown has begun.
var ErrRunnerClosed = errors.New("runner is shutting down")

// Runner executes background tasks that outlive the request which started
// them. Each task gets its own timeout and a context that is cancelled only
// when shutdown gives up waiting.
type Runner struct {
	timeout time.Duration
	logger  *slog.Logger

	base   context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewRunner creates a Runner. A non-positive timeout leaves tasks unbounded.
func NewRunner(timeout time.Duration, logger *slog.Logger) *Runner {
	base, cancel := context.WithCancel(context.Background())
	return &Runner{
		timeout: timeout,
		logger:  loggerOrDefault(logger),
		base:    base,
		cancel:  cancel,
	}
}

// Go runs fn in the background. Tasks submitted after Shutdown are dropped.
func (r *Runner) Go(name string, fn func(ctx context.Context)) {
	if err := r.TryGo(name, fn); err != nil {
		r.logger.Warn("background task dropped", "task", name, "error", err)
	}
}

// TryGo is Go with an error when the runner no longer accepts work.
func (r *Runner) TryGo(name string, fn func(ctx context.Context)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRunnerClosed
	}
	r.wg.Add(1)
	go r.run(name, fn)
	return nil
}

func (r *Runner) run(name string, fn func(ctx context.Context)) {
	defer r.wg.Done()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("background task panicked",
				"task", name,
				"panic", fmt.Sprint(rec),
				"stack", string(debug.Stack()),
			)
		}
	}()

	ctx := r.base
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	fn(ctx)
	r.logger.Debug("background task finished", "task", name, "duration_ms", time.Since(start).Milliseconds())
}

// Wait blocks until every running task has returned or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting tasks and drains running ones. When ctx expires
// first, running tasks are cancelled and ctx's error is returned.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	err := r.Wait(ctx)
	r.cancel()
	if err != nil {
		r.logger.Warn("shutdown deadline reached with tasks still running", "error", err)
		return fmt.Errorf("drain background tasks: %w", err)
	}
	return nil
}
