package dedup

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Janitor periodically prunes expired records from a Store.
type Janitor struct {
	store    Store
	interval time.Duration
	logger   *slog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewJanitor creates a Janitor that prunes every interval.
func NewJanitor(store Store, interval time.Duration, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		store:    store,
		interval: interval,
		logger:   logger.With("component", "dedup-janitor"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the prune loop.
func (j *Janitor) Start(ctx context.Context) {
	j.wg.Add(1)
	go j.loop(ctx)
}

// Stop ends the prune loop and waits for it to exit.
func (j *Janitor) Stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
	j.wg.Wait()
}

func (j *Janitor) loop(ctx context.Context) {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.prune(ctx)
		case <-j.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (j *Janitor) prune(ctx context.Context) {
	n, err := j.store.Prune(ctx)
	if err != nil {
		j.logger.Warn("dedup prune failed", "error", err)
		return
	}
	if n > 0 {
		j.logger.Debug("dedup records pruned", "count", n)
	}
}
