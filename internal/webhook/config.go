package webhook

import (
	"fmt"

	"github.com/mattjoyce/chatrelay/internal/config"
)

// FromGlobalConfig converts the platform and server sections to webhook.Config.
func FromGlobalConfig(cfg *config.Config) (Config, error) {
	if cfg == nil {
		return Config{}, fmt.Errorf("config is nil")
	}
	if cfg.Platform.AppSecret == "" {
		return Config{}, fmt.Errorf("platform.app_secret is not configured")
	}

	maxBodySize, err := config.ParseMaxBodySize(cfg.Server.MaxBodySize)
	if err != nil {
		return Config{}, fmt.Errorf("invalid max_body_size %q: %w", cfg.Server.MaxBodySize, err)
	}

	return Config{
		Paths:       DefaultPaths,
		VerifyToken: cfg.Platform.VerifyToken,
		AppSecret:   cfg.Platform.AppSecret,
		UserAgent:   cfg.Platform.UserAgent,
		MaxBodySize: maxBodySize,
	}, nil
}
