package doctor

import (
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/chatrelay/internal/config"
)

func validConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Service.LogPseudonymSecret = "pseudonym-pepper-value"
	cfg.Server.PublicURL = "https://relay.example.com"
	cfg.Platform.VerifyToken = "verify-token-0123456789"
	cfg.Platform.AppSecret = "app-secret"
	cfg.Platform.AccessToken = "graph-token"
	cfg.Platform.PhoneNumberID = "100200"
	cfg.Backend.BaseURL = "https://engine.example.com"
	cfg.Backend.APIKey = "engine-key"
	cfg.Backend.OrgID = "org-1"
	cfg.Callback.Token = "callback-token-0123456789"
	cfg.Dedup.Driver = "sqlite"
	cfg.Dedup.SQLitePath = "/var/lib/chatrelay/dedup.db"
	return cfg
}

func hasIssue(issues []Issue, field string) bool {
	for _, i := range issues {
		if i.Field == field {
			return true
		}
	}
	return false
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()
	r := New(validConfig()).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", r.Warnings)
	}
}

func TestValidate_ChunkSizeOverPlatformLimit(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Messages.ChunkSize = MaxTextLength + 1

	r := New(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	if !hasIssue(r.Errors, "messages.chunk_size") {
		t.Fatalf("expected chunk_size error, got %v", r.Errors)
	}
}

func TestValidate_Warnings(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*config.Config)
		field  string
	}{
		{"memory dedup", func(c *config.Config) { c.Dedup.Driver = "memory" }, "dedup.driver"},
		{"plain public url", func(c *config.Config) { c.Server.PublicURL = "http://relay.example.com" }, "server.public_url"},
		{"plain backend url", func(c *config.Config) { c.Backend.BaseURL = "http://engine.example.com" }, "backend.base_url"},
		{"short callback token", func(c *config.Config) { c.Callback.Token = "abc" }, "callback.token"},
		{"short verify token", func(c *config.Config) { c.Platform.VerifyToken = "v" }, "platform.verify_token"},
		{"unkeyed pseudonyms", func(c *config.Config) { c.Service.LogPseudonymSecret = "" }, "service.log_pseudonym_secret"},
		{"no user agent check", func(c *config.Config) { c.Platform.UserAgent = " " }, "platform.user_agent"},
		{"retention below lease", func(c *config.Config) { c.Dedup.Retention = time.Minute }, "dedup.retention"},
		{"prune slower than retention", func(c *config.Config) { c.Dedup.PruneInterval = 12 * time.Hour }, "dedup.prune_interval"},
		{"task timeout too short", func(c *config.Config) { c.Server.TaskTimeout = time.Minute }, "server.task_timeout"},
		{"sandbox", func(c *config.Config) { c.Platform.SandboxUser = "15551234567" }, "platform.sandbox_user"},
		{"no age cutoff", func(c *config.Config) { c.Messages.AgeCutoff = 0 }, "messages.age_cutoff"},
		{"audio accepted", func(c *config.Config) { c.Messages.AudioPolicy = "accept" }, "messages.audio_policy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			r := New(cfg).Validate()
			if !r.Valid {
				t.Fatalf("warnings must not invalidate config, got errors: %v", r.Errors)
			}
			if !hasIssue(r.Warnings, tt.field) {
				t.Fatalf("expected warning on %s, got %v", tt.field, r.Warnings)
			}
		})
	}
}

func TestValidate_LoopbackHTTPIsFine(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Backend.BaseURL = "http://127.0.0.1:9000"
	cfg.Server.PublicURL = "http://localhost:8080"

	r := New(cfg).Validate()
	if hasIssue(r.Warnings, "backend.base_url") || hasIssue(r.Warnings, "server.public_url") {
		t.Fatalf("loopback URLs should not warn, got %v", r.Warnings)
	}
}

func TestFormatHuman(t *testing.T) {
	t.Parallel()
	r := &Result{
		Valid:    false,
		Errors:   []Issue{{Category: "messages", Field: "messages.chunk_size", Message: "too big"}},
		Warnings: []Issue{{Category: "dedup", Message: "volatile"}},
	}
	out := FormatHuman(r)
	for _, want := range []string{
		"Configuration invalid (1 error(s), 1 warning(s))",
		"ERROR [messages] messages.chunk_size: too big",
		"WARN  [dedup] volatile",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if got := FormatHuman(&Result{Valid: true}); got != "Configuration valid.\n" {
		t.Errorf("FormatHuman(valid) = %q", got)
	}
}

func TestFormatJSONAndLoadFailure(t *testing.T) {
	t.Parallel()
	out, err := FormatJSON(LoadFailure(errTest("boom")))
	if err != nil {
		t.Fatalf("FormatJSON: %v", err)
	}
	if !strings.Contains(out, `"valid": false`) || !strings.Contains(out, "boom") {
		t.Fatalf("unexpected JSON: %s", out)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
