// Package whatsapp sends outbound messages through the WhatsApp Cloud API.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Config configures a Client.
type Config struct {
	GraphBaseURL  string
	APIVersion    string
	PhoneNumberID string
	AccessToken   string
	Timeout       time.Duration
}

// Client sends text messages and typing indicators.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// SendError is returned when the platform rejects a send.
type SendError struct {
	Op         string
	StatusCode int
	Detail     string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("whatsapp %s: status %d: %s", e.Op, e.StatusCode, e.Detail)
}

// New creates a Client. A nil httpClient gets a default with cfg.Timeout.
func New(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	cfg.GraphBaseURL = strings.TrimRight(cfg.GraphBaseURL, "/")
	if cfg.APIVersion == "" {
		cfg.APIVersion = "v23.0"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, http: httpClient, logger: logger}
}

type textBody struct {
	Body string `json:"body"`
}

type textMessage struct {
	MessagingProduct string   `json:"messaging_product"`
	RecipientType    string   `json:"recipient_type"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type typingIndicator struct {
	Type string `json:"type"`
}

type readReceipt struct {
	MessagingProduct string          `json:"messaging_product"`
	Status           string          `json:"status"`
	MessageID        string          `json:"message_id"`
	TypingIndicator  typingIndicator `json:"typing_indicator"`
}

// SendText sends a plain text message to a user.
func (c *Client) SendText(ctx context.Context, to, text string) error {
	return c.post(ctx, "send text", textMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             textBody{Body: text},
	})
}

// SendTypingIndicator marks messageID as read and shows the typing indicator.
func (c *Client) SendTypingIndicator(ctx context.Context, messageID string) error {
	return c.post(ctx, "typing indicator", readReceipt{
		MessagingProduct: "whatsapp",
		Status:           "read",
		MessageID:        messageID,
		TypingIndicator:  typingIndicator{Type: "text"},
	})
}

func (c *Client) messagesURL() string {
	return fmt.Sprintf("%s/%s/%s/messages", c.cfg.GraphBaseURL, c.cfg.APIVersion, c.cfg.PhoneNumberID)
}

func (c *Client) post(ctx context.Context, op string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("whatsapp %s: encode: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.messagesURL(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("whatsapp %s: build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp %s: %w", op, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &SendError{Op: op, StatusCode: resp.StatusCode, Detail: strings.TrimSpace(string(detail))}
	}

	c.logger.Debug("whatsapp request sent", "op", op, "status", resp.StatusCode)
	return nil
}
