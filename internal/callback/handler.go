package callback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tidwall/gjson"

	"github.com/mattjoyce/chatrelay/internal/auth"
	"github.com/mattjoyce/chatrelay/internal/chunk"
	"github.com/mattjoyce/chatrelay/internal/dedup"
	"github.com/mattjoyce/chatrelay/internal/log"
)

const maxCallbackBody = 1 << 20

// Paths the handler is mounted on.
const (
	CompletionPath = "/completion-callback"
	ProgressPath   = "/progress-callback"
)

// Handler serves the callback endpoints.
type Handler struct {
	cfg    Config
	store  dedup.Store
	sender Sender
	logger *slog.Logger
}

// New creates a callback Handler.
func New(cfg Config, store dedup.Store, sender Sender, logger *slog.Logger) *Handler {
	if cfg.ChunkSize < 1 {
		cfg.ChunkSize = chunk.DefaultSize
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 5 * time.Minute
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 6 * time.Hour
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{cfg: cfg, store: store, sender: sender, logger: logger}
}

// Mount registers the callback routes on r behind bearer authentication.
func (h *Handler) Mount(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireBearer(h.cfg.Token, h.logger))
		r.Post(CompletionPath, h.handleCompletion)
		r.Post(ProgressPath, h.handleProgress)
	})
}

func (h *Handler) handleCompletion(w http.ResponseWriter, r *http.Request) {
	var cb CompletionCallback
	if err := decodeBody(r, &cb); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	responses, err := validateCompletion(cb)
	if err != nil {
		h.logger.Warn("completion callback rejected", "error", err)
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	logger := h.logger.With("message_id", cb.MessageID, "user", log.Pseudonym(cb.UserID))

	claimed, err := h.store.Claim(r.Context(), cb.MessageID, h.cfg.Lease)
	if err != nil {
		logger.Error("dedup claim failed", "error", err)
		h.respondError(w, http.StatusServiceUnavailable, "temporarily unavailable")
		return
	}
	if !claimed {
		logger.Info("duplicate completion callback ignored")
		h.respondJSON(w, http.StatusOK, Response{Status: "OK", Duplicate: true})
		return
	}

	// Delivery continues if the engine disconnects.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.cfg.DeliveryTimeout)
	defer cancel()

	switch cb.Status {
	case StatusCompleted:
		sent, failed := h.deliver(ctx, cb.UserID, h.prepare(responses))
		logger.Info("completion delivered", "chunks_sent", sent, "chunks_failed", failed)
	case StatusError:
		logger.Warn("engine reported processing error", "error", cb.Error)
		if err := h.sender.SendText(ctx, cb.UserID, FailureNotice); err != nil {
			logger.Error("failed to send failure notice", "error", err)
		}
	}

	// Delivery may have used up ctx; marking the record must not share its deadline.
	completeCtx, cancelComplete := context.WithTimeout(context.WithoutCancel(r.Context()), completeTimeout)
	defer cancelComplete()
	if err := h.store.Complete(completeCtx, cb.MessageID, h.cfg.Retention); err != nil {
		logger.Error("dedup complete failed", "error", err)
	}
	h.respondJSON(w, http.StatusOK, Response{Status: "OK"})
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	var cb ProgressCallback
	if err := decodeBody(r, &cb); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateProgress(cb); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.cfg.DeliveryTimeout)
	defer cancel()

	sent, failed := h.deliver(ctx, cb.UserID, chunk.Split(cb.Text, h.cfg.ChunkSize))
	if failed > 0 {
		h.logger.Warn("progress update not fully delivered",
			"message_key", cb.MessageKey,
			"user", log.Pseudonym(cb.UserID),
			"chunks_sent", sent,
			"chunks_failed", failed,
		)
	}
	h.respondJSON(w, http.StatusOK, Response{Status: "OK"})
}

// prepare splits responses into sendable chunks, in order. Blank responses are dropped.
func (h *Handler) prepare(responses []string) []string {
	var out []string
	for _, resp := range responses {
		if strings.TrimSpace(resp) == "" {
			continue
		}
		out = append(out, chunk.Split(resp, h.cfg.ChunkSize)...)
	}
	if h.cfg.Combine {
		return chunk.Combine(out, h.cfg.ChunkSize)
	}
	return out
}

// deliver sends chunks sequentially. Blank chunks are skipped and a failed
// send does not stop the remaining ones.
func (h *Handler) deliver(ctx context.Context, userID string, chunks []string) (sent, failed int) {
	for _, c := range chunks {
		if strings.TrimSpace(c) == "" {
			continue
		}
		if err := h.sender.SendText(ctx, userID, c); err != nil {
			failed++
			h.logger.Error("failed to send message", "user", log.Pseudonym(userID), "error", err)
			continue
		}
		sent++
	}
	return sent, failed
}

func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody+1))
	if err != nil {
		return errors.New("failed to read request body")
	}
	if len(body) > maxCallbackBody {
		return errors.New("request body too large")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

func validateCompletion(cb CompletionCallback) ([]string, error) {
	if strings.TrimSpace(cb.MessageID) == "" {
		return nil, errors.New("message_id is required")
	}
	if strings.TrimSpace(cb.UserID) == "" {
		return nil, errors.New("user_id is required")
	}
	switch cb.Status {
	case StatusCompleted:
		if !gjson.ParseBytes(cb.Responses).IsArray() {
			return nil, errors.New("responses must be an array of strings")
		}
		var responses []string
		if err := json.Unmarshal(cb.Responses, &responses); err != nil {
			return nil, errors.New("responses must be an array of strings")
		}
		return responses, nil
	case StatusError:
		return nil, nil
	default:
		return nil, fmt.Errorf("status must be %q or %q", StatusCompleted, StatusError)
	}
}

func validateProgress(cb ProgressCallback) error {
	switch {
	case strings.TrimSpace(cb.UserID) == "":
		return errors.New("user_id is required")
	case strings.TrimSpace(cb.MessageKey) == "":
		return errors.New("message_key is required")
	case strings.TrimSpace(cb.Text) == "":
		return errors.New("text is required")
	}
	return nil
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (h *Handler) respondError(w http.ResponseWriter, status int, msg string) {
	h.respondJSON(w, status, ErrorResponse{Error: msg})
}
