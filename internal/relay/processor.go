package relay

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/mattjoyce/chatrelay/internal/backend"
	"github.com/mattjoyce/chatrelay/internal/log"
	"github.com/mattjoyce/chatrelay/internal/message"
)

// Processor handles the messages of one webhook payload.
type Processor struct {
	cfg        Config
	dispatcher Dispatcher
	messenger  Messenger
	logger     *slog.Logger
	now        func() time.Time
}

// NewProcessor creates a Processor.
func NewProcessor(cfg Config, dispatcher Dispatcher, messenger Messenger, logger *slog.Logger) *Processor {
	if cfg.Policy.Audio == "" {
		cfg.Policy.Audio = message.AudioNotify
	}
	return &Processor{
		cfg:        cfg,
		dispatcher: dispatcher,
		messenger:  messenger,
		logger:     loggerOrDefault(logger),
		now:        time.Now,
	}
}

// Process handles every message in payload sequentially, in sender order.
// Failures are reported to the user where appropriate and never abort the
// remaining messages.
func (p *Processor) Process(ctx context.Context, payload message.Payload) {
	for _, env := range payload.Messages() {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("payload processing interrupted", "error", err)
			return
		}

		msg, err := message.Normalize(env.Raw, env.Contacts)
		if err != nil {
			p.logger.Warn("dropping unparseable message", "error", err)
			continue
		}
		p.handle(ctx, msg)
	}
}

func (p *Processor) handle(ctx context.Context, msg message.IncomingMessage) {
	logger := log.WithUser(p.logger, msg.UserID).With("message_id", msg.MessageID, "type", string(msg.Type))

	decision := p.cfg.Policy.Admit(msg, p.now())
	switch decision {
	case message.Accept:
	case message.RejectMediaType:
		logger.Info("media type disabled, notifying user")
		p.typing(ctx, logger, msg)
		p.notify(ctx, logger, msg.UserID, AudioUnavailableNotice)
		return
	default:
		logger.Info("message not admitted", "reason", decision.String())
		return
	}

	p.typing(ctx, logger, msg)

	req, ok := p.buildRequest(msg)
	if !ok {
		logger.Info("skipping message without content")
		return
	}

	ack, err := p.dispatcher.Dispatch(ctx, req)
	if err != nil {
		var dispatchErr *backend.DispatchError
		if errors.As(err, &dispatchErr) {
			logger.Error("backend dispatch failed", "status", dispatchErr.StatusCode, "attempts", dispatchErr.Attempts, "error", err)
		} else {
			logger.Error("backend dispatch failed", "error", err)
		}
		p.notify(ctx, logger, msg.UserID, FailureNotice)
		return
	}
	logger.Info("message queued", "backend_message_id", ack.MessageID, "queue_position", ack.QueuePosition)
}

func (p *Processor) buildRequest(msg message.IncomingMessage) (backend.DispatchRequest, bool) {
	req := backend.DispatchRequest{
		ClientID:    p.cfg.ClientID,
		UserID:      msg.UserID,
		OrgID:       p.cfg.OrgID,
		CallbackURL: p.cfg.CallbackURL,
	}
	if p.cfg.ProgressURL != "" {
		req.ProgressCallbackURL = p.cfg.ProgressURL
		req.ProgressThrottleSeconds = p.cfg.ProgressThrottle.Seconds()
	}

	switch msg.Type {
	case message.TypeAudio:
		if msg.MediaID == "" {
			return req, false
		}
		req.MessageType = backend.MessageTypeAudio
		req.MediaID = msg.MediaID
	default:
		if strings.TrimSpace(msg.Text) == "" {
			return req, false
		}
		req.MessageType = backend.MessageTypeText
		req.Message = msg.Text
	}
	return req, true
}

func (p *Processor) typing(ctx context.Context, logger *slog.Logger, msg message.IncomingMessage) {
	if msg.MessageID == "" {
		return
	}
	if err := p.messenger.SendTypingIndicator(ctx, msg.MessageID); err != nil {
		logger.Warn("typing indicator failed", "error", err)
	}
}

func (p *Processor) notify(ctx context.Context, logger *slog.Logger, to, text string) {
	if err := p.messenger.SendText(ctx, to, text); err != nil {
		logger.Error("failed to notify user", "error", err)
	}
}
