package webhook

import (
	"github.com/mattjoyce/chatrelay/internal/message"
)

// PayloadSink receives verified webhook payloads. Submit must not block on
// message processing; the HTTP response is written after it returns.
type PayloadSink interface {
	Submit(payload message.Payload)
}

// Config holds webhook endpoint configuration.
type Config struct {
	// Paths the endpoint is mounted on (GET for verification, POST for events).
	Paths []string

	// VerifyToken is compared against hub.verify_token during subscription.
	VerifyToken string

	// AppSecret is the HMAC key for the signature headers.
	AppSecret string

	// UserAgent is the exact User-Agent deliveries must carry (after trimming).
	// Empty disables the check.
	UserAgent string

	// MaxBodySize is the maximum allowed request body size in bytes (default: 1MB)
	MaxBodySize int64
}

// ErrorResponse is the JSON response for webhook errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Signature headers. The X-Signature variants are accepted from proxies that
// strip the "Hub" prefix.
const (
	HeaderSignature256       = "X-Hub-Signature-256"
	HeaderSignature1         = "X-Hub-Signature"
	HeaderAltSignature256    = "X-Signature-256"
	HeaderAltSignature1      = "X-Signature"
	DefaultMaxBodySize int64 = 1048576 // 1 MB
)

// DefaultPaths are the routes the platform webhook is served on.
var DefaultPaths = []string{"/meta-whatsapp", "/webhook"}
