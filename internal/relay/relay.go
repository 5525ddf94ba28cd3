// Package relay turns verified webhook payloads into backend dispatches.
//
// A payload is handed to Relay.Submit after the webhook has answered the
// platform. Submit schedules the payload on a Runner, and the Processor walks
// its messages in sender order: normalize, admit, show the typing indicator,
// dispatch. Replies arrive later through the callback endpoints.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattjoyce/chatrelay/internal/backend"
	"github.com/mattjoyce/chatrelay/internal/callback"
	"github.com/mattjoyce/chatrelay/internal/config"
	"github.com/mattjoyce/chatrelay/internal/message"
)

//go:generate mockgen -destination=mocks/mock_relay.go -package=mocks github.com/mattjoyce/chatrelay/internal/relay Dispatcher,Messenger

// Dispatcher enqueues a message on the backend.
type Dispatcher interface {
	Dispatch(ctx context.Context, req backend.DispatchRequest) (*backend.QueuedAck, error)
}

// Messenger sends outbound platform messages.
type Messenger interface {
	SendText(ctx context.Context, to, text string) error
	SendTypingIndicator(ctx context.Context, messageID string) error
}

// Notices sent directly to users.
const (
	AudioUnavailableNotice = "Voice messages are temporarily unavailable. Please send a text message."
	FailureNotice          = callback.FailureNotice
)

// Config configures a Processor.
type Config struct {
	ClientID    string
	OrgID       string
	CallbackURL string
	// ProgressURL is empty when progress updates are disabled.
	ProgressURL      string
	ProgressThrottle time.Duration
	Policy           message.Policy
	// TaskTimeout bounds the processing of one payload.
	TaskTimeout time.Duration
}

// FromGlobalConfig builds the relay configuration.
func FromGlobalConfig(cfg *config.Config) (Config, error) {
	if cfg == nil {
		return Config{}, fmt.Errorf("config is nil")
	}
	if cfg.Server.PublicURL == "" {
		return Config{}, fmt.Errorf("server.public_url is not configured")
	}

	rc := Config{
		ClientID:    cfg.Backend.ClientID,
		OrgID:       cfg.Backend.OrgID,
		CallbackURL: cfg.Server.PublicURL + callback.CompletionPath,
		Policy: message.Policy{
			Cutoff:      cfg.Messages.AgeCutoff,
			Audio:       message.AudioPolicy(cfg.Messages.AudioPolicy),
			SandboxUser: cfg.Platform.SandboxUser,
		},
		TaskTimeout: cfg.Server.TaskTimeout,
	}
	if cfg.Messages.ProgressOn() {
		rc.ProgressURL = cfg.Server.PublicURL + callback.ProgressPath
		rc.ProgressThrottle = cfg.Messages.ProgressThrottle
	}
	return rc, nil
}

// Relay is the webhook's payload sink.
type Relay struct {
	processor *Processor
	runner    *Runner
}

// New wires a processor to a runner.
func New(processor *Processor, runner *Runner) *Relay {
	return &Relay{processor: processor, runner: runner}
}

// Submit processes payload in the background and returns immediately.
func (r *Relay) Submit(payload message.Payload) {
	r.runner.Go("webhook", func(ctx context.Context) {
		r.processor.Process(ctx, payload)
	})
}

// Shutdown stops accepting payloads and waits for running ones.
func (r *Relay) Shutdown(ctx context.Context) error {
	return r.runner.Shutdown(ctx)
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
