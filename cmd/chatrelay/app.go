package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mattjoyce/chatrelay/internal/api"
	"github.com/mattjoyce/chatrelay/internal/backend"
	"github.com/mattjoyce/chatrelay/internal/callback"
	"github.com/mattjoyce/chatrelay/internal/config"
	"github.com/mattjoyce/chatrelay/internal/dedup"
	"github.com/mattjoyce/chatrelay/internal/lock"
	"github.com/mattjoyce/chatrelay/internal/log"
	"github.com/mattjoyce/chatrelay/internal/relay"
	"github.com/mattjoyce/chatrelay/internal/webhook"
	"github.com/mattjoyce/chatrelay/internal/whatsapp"
)

// app owns every long-lived component of a running gateway.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	pidLock *lock.PIDLock
	store   dedup.Store
	janitor *dedup.Janitor
	relay   *relay.Relay
	server  *api.Server
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, logger: log.WithComponent("main")}
	if err := a.build(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) build(ctx context.Context) error {
	cfg := a.cfg
	var err error

	if cfg.Dedup.Driver == "sqlite" {
		lockPath := lock.PathFor(cfg.Dedup.SQLitePath)
		a.pidLock, err = lock.AcquirePIDLock(lockPath)
		if err != nil {
			return fmt.Errorf("acquire PID lock: %w", err)
		}
		a.logger.Info("acquired PID lock", "path", lockPath)
	}

	a.store, err = dedup.Open(ctx, cfg.Dedup)
	if err != nil {
		return fmt.Errorf("open dedup store: %w", err)
	}
	a.logger.Info("dedup store opened", "driver", cfg.Dedup.Driver)
	a.janitor = dedup.NewJanitor(a.store, cfg.Dedup.PruneInterval, log.WithComponent("dedup"))

	backendCfg, err := backend.FromGlobalConfig(cfg)
	if err != nil {
		return err
	}
	engine := backend.New(backendCfg, log.WithComponent("backend"))

	waCfg, err := whatsapp.FromGlobalConfig(cfg)
	if err != nil {
		return err
	}
	messenger := whatsapp.New(waCfg, nil, log.WithComponent("whatsapp"))

	relayCfg, err := relay.FromGlobalConfig(cfg)
	if err != nil {
		return err
	}
	processor := relay.NewProcessor(relayCfg, engine, messenger, log.WithComponent("relay"))
	a.relay = relay.New(processor, relay.NewRunner(relayCfg.TaskTimeout, log.WithComponent("runner")))

	webhookCfg, err := webhook.FromGlobalConfig(cfg)
	if err != nil {
		return err
	}
	wh := webhook.New(webhookCfg, a.relay, log.WithComponent("webhook"))

	callbackCfg, err := callback.FromGlobalConfig(cfg)
	if err != nil {
		return err
	}
	cb := callback.New(callbackCfg, a.store, messenger, log.WithComponent("callback"))

	a.server = api.New(api.Config{
		Listen:          cfg.Server.Listen,
		ServiceName:     cfg.Service.Name,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, log.WithComponent("http"), wh, cb)

	return nil
}

// Handler exposes the routed handler for tests.
func (a *app) Handler() http.Handler {
	return a.server.Handler()
}

// run serves until ctx is cancelled or the server fails, then drains
// background work within the shutdown timeout.
func (a *app) run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.janitor.Start(runCtx)

	errCh := make(chan error, 1)
	go func() { errCh <- a.server.Start(runCtx) }()

	a.logger.Info("chatrelay running", "listen", a.cfg.Server.Listen, "public_url", a.cfg.Server.PublicURL)

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("received shutdown signal")
		cancel()
		serveErr = <-errCh
	case serveErr = <-errCh:
		cancel()
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), shutdownTimeout(a.cfg))
	defer drainCancel()
	drainErr := a.relay.Shutdown(drainCtx)

	return errors.Join(serveErr, drainErr)
}

func (a *app) close() {
	if a.janitor != nil {
		a.janitor.Stop()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("failed to close dedup store", "error", err)
		}
	}
	if a.pidLock != nil {
		_ = a.pidLock.Release()
	}
}

func shutdownTimeout(cfg *config.Config) time.Duration {
	if cfg.Server.ShutdownTimeout > 0 {
		return cfg.Server.ShutdownTimeout
	}
	return 30 * time.Second
}
