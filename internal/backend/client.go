package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	chatAsyncPath  = "/api/v1/chat/async"
	maxErrorDetail = 512
)

// Client talks to the engine's HTTP API.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
	newID func() string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client. Its Timeout is left untouched.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithSleep replaces the context-aware wait used between retries.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

// New creates a Client.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.Retry == (RetryPolicy{}) {
		cfg.Retry = DefaultRetryPolicy()
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
		sleep:  sleepContext,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dispatch enqueues a chat request with the engine. A 429 response is retried
// up to Retry.MaxRetries times, honoring Retry-After. Every attempt sends the
// same body and X-Request-ID. Errors are *DispatchError.
func (c *Client) Dispatch(ctx context.Context, req DispatchRequest) (*QueuedAck, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &DispatchError{Op: "dispatch", Err: fmt.Errorf("encode request: %w", err)}
	}
	requestID := c.newID()
	endpoint := c.cfg.BaseURL + chatAsyncPath
	logger := c.logger.With("request_id", requestID)

	attempts := 0
	for {
		attempts++
		resp, err := c.do(ctx, http.MethodPost, endpoint, body, requestID)
		if err != nil {
			return nil, &DispatchError{Op: "dispatch", Attempts: attempts, Err: err}
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			header := resp.Header.Get("Retry-After")
			drain(resp)

			retry := attempts - 1
			if retry >= c.cfg.Retry.MaxRetries {
				return nil, &DispatchError{Op: "dispatch", StatusCode: resp.StatusCode, Attempts: attempts, Err: ErrBusy}
			}
			delay, ok := retryAfter(header, c.now())
			if !ok {
				delay = c.cfg.Retry.Backoff(retry)
			}
			logger.Info("backend busy, retrying",
				"delay", delay.String(),
				"attempt", retry+1,
				"max_retries", c.cfg.Retry.MaxRetries,
			)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, &DispatchError{Op: "dispatch", StatusCode: resp.StatusCode, Attempts: attempts, Err: err}
			}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			detail := readDetail(resp)
			return nil, &DispatchError{
				Op:         "dispatch",
				StatusCode: resp.StatusCode,
				Attempts:   attempts,
				Err:        fmt.Errorf("unexpected status: %s", detail),
			}
		}

		var ack QueuedAck
		err = json.NewDecoder(resp.Body).Decode(&ack)
		drain(resp)
		if err != nil {
			return nil, &DispatchError{Op: "dispatch", StatusCode: resp.StatusCode, Attempts: attempts, Err: fmt.Errorf("decode ack: %w", err)}
		}
		logger.Debug("backend accepted message", "message_id", ack.MessageID, "queue_position", ack.QueuePosition)
		return &ack, nil
	}
}

// GetPreferences returns the user's stored preferences. A user unknown to the
// engine has empty preferences.
func (c *Client) GetPreferences(ctx context.Context, userID string) (*Preferences, error) {
	resp, err := c.do(ctx, http.MethodGet, c.preferencesURL(userID), nil, c.newID())
	if err != nil {
		return nil, &DispatchError{Op: "get preferences", Attempts: 1, Err: err}
	}
	defer drain(resp)

	if resp.StatusCode == http.StatusNotFound {
		return &Preferences{}, nil
	}
	return decodePreferences("get preferences", resp)
}

// UpdatePreferences replaces the user's preferences and returns the stored result.
func (c *Client) UpdatePreferences(ctx context.Context, userID string, prefs Preferences) (*Preferences, error) {
	body, err := json.Marshal(prefs)
	if err != nil {
		return nil, &DispatchError{Op: "update preferences", Err: fmt.Errorf("encode request: %w", err)}
	}
	resp, err := c.do(ctx, http.MethodPut, c.preferencesURL(userID), body, c.newID())
	if err != nil {
		return nil, &DispatchError{Op: "update preferences", Attempts: 1, Err: err}
	}
	defer drain(resp)
	return decodePreferences("update preferences", resp)
}

func (c *Client) preferencesURL(userID string) string {
	return fmt.Sprintf("%s/api/v1/orgs/%s/users/%s/preferences",
		c.cfg.BaseURL, url.PathEscape(c.cfg.OrgID), url.PathEscape(userID))
}

func decodePreferences(op string, resp *http.Response) (*Preferences, error) {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &DispatchError{Op: op, StatusCode: resp.StatusCode, Attempts: 1, Err: fmt.Errorf("unexpected status: %s", readDetail(resp))}
	}
	var prefs Preferences
	if err := json.NewDecoder(resp.Body).Decode(&prefs); err != nil && !errors.Is(err, io.EOF) {
		return nil, &DispatchError{Op: op, StatusCode: resp.StatusCode, Attempts: 1, Err: fmt.Errorf("decode preferences: %w", err)}
	}
	return &prefs, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, requestID string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, pathOnly(endpoint), err)
	}
	return resp, nil
}

// pathOnly drops scheme and host from endpoint.
func pathOnly(endpoint string) string {
	if u, err := url.Parse(endpoint); err == nil {
		return u.Path
	}
	return endpoint
}

func readDetail(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorDetail))
	drain(resp)
	detail := strings.TrimSpace(string(data))
	if detail == "" {
		return http.StatusText(resp.StatusCode)
	}
	return detail
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
