// Package backend is the client for the processing engine: asynchronous chat
// dispatch with busy-status retry, and user preference lookups.
package backend

import "time"

// Message types sent to the engine.
const (
	MessageTypeText  = "text"
	MessageTypeAudio = "audio"
)

// DispatchRequest is the body of an asynchronous chat request.
type DispatchRequest struct {
	ClientID                string  `json:"client_id"`
	UserID                  string  `json:"user_id"`
	OrgID                   string  `json:"org_id"`
	Message                 string  `json:"message"`
	MessageType             string  `json:"message_type"`
	CallbackURL             string  `json:"callback_url"`
	ProgressCallbackURL     string  `json:"progress_callback_url,omitempty"`
	ProgressThrottleSeconds float64 `json:"progress_throttle_seconds,omitempty"`
	MediaID                 string  `json:"media_id,omitempty"`
}

// QueuedAck is the engine's acknowledgement of an accepted request.
type QueuedAck struct {
	MessageID     string `json:"message_id"`
	QueuePosition int    `json:"queue_position"`
}

// Preferences are per-user settings stored by the engine.
type Preferences struct {
	ResponseLanguage *string `json:"response_language,omitempty"`
}

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string
	OrgID   string
	Timeout time.Duration
	Retry   RetryPolicy
}
