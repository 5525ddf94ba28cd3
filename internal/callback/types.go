// Package callback receives the engine's completion and progress callbacks
// and relays their text to users.
package callback

import (
	"context"
	"encoding/json"
	"time"
)

// Completion statuses.
const (
	StatusCompleted = "completed"
	StatusError     = "error"
)

// FailureNotice is sent to the user when the engine reports an error.
const FailureNotice = "Sorry, I encountered an error processing your message. Please try again."

// Sender delivers text to a user.
type Sender interface {
	SendText(ctx context.Context, to, text string) error
}

// CompletionCallback is the engine's final result for one message. The
// engine may deliver it more than once.
type CompletionCallback struct {
	MessageID        string          `json:"message_id"`
	UserID           string          `json:"user_id"`
	Status           string          `json:"status"`
	Responses        json.RawMessage `json:"responses,omitempty"`
	ResponseLanguage string          `json:"response_language,omitempty"`
	Error            string          `json:"error,omitempty"`
}

// ProgressCallback is an interim status update.
type ProgressCallback struct {
	UserID     string          `json:"user_id"`
	MessageKey string          `json:"message_key"`
	Text       string          `json:"text"`
	Timestamp  json.RawMessage `json:"timestamp,omitempty"`
}

// Response is the body returned to the engine.
type Response struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// ErrorResponse is the JSON body for rejected callbacks.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Config configures a Handler.
type Config struct {
	// Token is the bearer credential the engine presents.
	Token     string
	Lease     time.Duration
	Retention time.Duration
	ChunkSize int
	// Combine repacks the split chunks of all responses into as few messages as fit.
	Combine bool
	// DeliveryTimeout bounds sending one callback's messages.
	DeliveryTimeout time.Duration
}
