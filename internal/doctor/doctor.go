// Package doctor reviews a loaded chatrelay configuration for settings that
// are valid but risky in operation.
package doctor

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/mattjoyce/chatrelay/internal/config"
)

// MaxTextLength is the platform's limit for one text message body.
const MaxTextLength = 4096

const minSecretLength = 16

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor inspects a configuration that already passed config.Load.
type Doctor struct {
	cfg *config.Config
}

// New creates a Doctor for cfg.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateMessages(r)
	d.warnTransport(r)
	d.warnSecrets(r)
	d.warnDedup(r)
	d.warnTimeouts(r)
	d.warnPolicy(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateMessages(r *Result) {
	if d.cfg.Messages.ChunkSize > MaxTextLength {
		d.addError(r, "messages", "messages.chunk_size",
			fmt.Sprintf("chunk_size %d exceeds the platform text limit of %d", d.cfg.Messages.ChunkSize, MaxTextLength))
	}
}

// warnTransport flags plaintext URLs that leave the host.
func (d *Doctor) warnTransport(r *Result) {
	for _, u := range []struct{ field, value, why string }{
		{"server.public_url", d.cfg.Server.PublicURL, "the backend will post callbacks and their bearer token in plaintext"},
		{"backend.base_url", d.cfg.Backend.BaseURL, "the backend api key is sent in plaintext"},
	} {
		parsed, err := url.Parse(u.value)
		if err != nil || parsed.Scheme != "http" || isLoopback(parsed.Hostname()) {
			continue
		}
		d.addWarning(r, "transport", u.field, "URL is not https; "+u.why)
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (d *Doctor) warnSecrets(r *Result) {
	for _, s := range []struct{ field, value string }{
		{"callback.token", d.cfg.Callback.Token},
		{"platform.verify_token", d.cfg.Platform.VerifyToken},
	} {
		if len(s.value) < minSecretLength {
			d.addWarning(r, "secrets", s.field,
				fmt.Sprintf("value is shorter than %d characters", minSecretLength))
		}
	}
	if d.cfg.Service.LogPseudonymSecret == "" {
		d.addWarning(r, "secrets", "service.log_pseudonym_secret",
			"not set; user pseudonyms in logs are unkeyed and can be brute-forced from phone numbers")
	}
	if strings.TrimSpace(d.cfg.Platform.UserAgent) == "" {
		d.addWarning(r, "secrets", "platform.user_agent", "empty; the inbound User-Agent check is disabled")
	}
}

func (d *Doctor) warnDedup(r *Result) {
	dd := d.cfg.Dedup
	if dd.Driver == "memory" {
		d.addWarning(r, "dedup", "dedup.driver",
			"memory store is lost on restart and is not shared between instances")
	}
	if dd.Retention < dd.Lease {
		d.addWarning(r, "dedup", "dedup.retention",
			fmt.Sprintf("retention %s is shorter than lease %s", dd.Retention, dd.Lease))
	}
	if dd.PruneInterval > dd.Retention {
		d.addWarning(r, "dedup", "dedup.prune_interval",
			fmt.Sprintf("prune interval %s exceeds retention %s", dd.PruneInterval, dd.Retention))
	}
}

// warnTimeouts checks that a fully retried dispatch fits in one background task.
func (d *Doctor) warnTimeouts(r *Result) {
	b := d.cfg.Backend
	worst := time.Duration(b.MaxRetries+1) * b.Timeout
	delay := b.BaseDelay
	for i := 0; i < b.MaxRetries; i++ {
		worst += delay
		delay = time.Duration(float64(delay) * b.Multiplier)
	}
	if task := d.cfg.Server.TaskTimeout; task > 0 && task < worst {
		d.addWarning(r, "timeouts", "server.task_timeout",
			fmt.Sprintf("task_timeout %s is shorter than the worst-case dispatch with retries (%s)", task, worst.Round(time.Second)))
	}
}

func (d *Doctor) warnPolicy(r *Result) {
	if d.cfg.Platform.SandboxUser != "" {
		d.addWarning(r, "policy", "platform.sandbox_user",
			"sandbox mode: messages from every other sender are ignored")
	}
	if d.cfg.Messages.AgeCutoff == 0 {
		d.addWarning(r, "policy", "messages.age_cutoff", "zero disables the stale message check")
	}
	if d.cfg.Messages.AudioPolicy == "accept" {
		d.addWarning(r, "policy", "messages.audio_policy",
			"audio is forwarded by media id; the backend must fetch and transcribe it")
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// LoadFailure wraps a config.Load error as an invalid result.
func LoadFailure(err error) *Result {
	return &Result{
		Valid:  false,
		Errors: []Issue{{Category: "config", Message: err.Error()}},
	}
}
