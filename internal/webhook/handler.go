package webhook

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/chatrelay/internal/message"
)

// Handler serves the platform webhook endpoint.
type Handler struct {
	config Config
	sink   PayloadSink
	logger *slog.Logger
}

// New creates a webhook handler.
func New(config Config, sink PayloadSink, logger *slog.Logger) *Handler {
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = DefaultMaxBodySize
	}
	if len(config.Paths) == 0 {
		config.Paths = DefaultPaths
	}
	return &Handler{
		config: config,
		sink:   sink,
		logger: logger,
	}
}

// Mount registers the webhook routes on r.
func (h *Handler) Mount(r chi.Router) {
	for _, path := range h.config.Paths {
		r.Get(path, h.handleVerify)
		r.Post(path, h.handleEvent)
	}
}

// queryParam returns the hub-prefixed parameter, falling back to the bare name.
func queryParam(r *http.Request, name string) string {
	q := r.URL.Query()
	if v := q.Get("hub." + name); v != "" {
		return v
	}
	return q.Get(name)
}

// handleVerify answers the platform's subscription handshake.
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	mode := queryParam(r, "mode")
	token := queryParam(r, "verify_token")
	challenge := queryParam(r, "challenge")

	if mode != "subscribe" || h.config.VerifyToken == "" || !constantTimeEqual(h.config.VerifyToken, token) {
		h.logger.Warn("webhook verification failed", "mode", mode)
		w.WriteHeader(http.StatusForbidden)
		return
	}

	h.logger.Info("webhook verified")
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, challenge)
}

// handleEvent handles signed event deliveries.
func (h *Handler) handleEvent(w http.ResponseWriter, r *http.Request) {
	// Enforce body size limit
	body, err := io.ReadAll(io.LimitReader(r.Body, h.config.MaxBodySize+1))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if int64(len(body)) > h.config.MaxBodySize {
		h.respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	sig256 := firstHeader(r, HeaderSignature256, HeaderAltSignature256)
	sig1 := firstHeader(r, HeaderSignature1, HeaderAltSignature1)
	if !Verify(body, sig256, sig1, h.config.AppSecret) {
		h.logger.Warn("webhook signature verification failed",
			"path", r.URL.Path,
			"has_sha256", sig256 != "",
			"has_sha1", sig1 != "",
		)
		h.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if h.config.UserAgent != "" && strings.TrimSpace(r.UserAgent()) != h.config.UserAgent {
		h.logger.Warn("webhook user agent rejected", "path", r.URL.Path)
		h.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var payload message.Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.Warn("webhook payload is not valid JSON", "error", err)
		h.respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	h.sink.Submit(payload)

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "OK")
}

func firstHeader(r *http.Request, names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(r.Header.Get(name)); v != "" {
			return v
		}
	}
	return ""
}

// respondJSON sends a JSON response.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError sends a JSON error response.
func (h *Handler) respondError(w http.ResponseWriter, status int, msg string) {
	h.respondJSON(w, status, ErrorResponse{Error: msg})
}
