package backend

import (
	"fmt"

	"github.com/mattjoyce/chatrelay/internal/config"
)

// FromGlobalConfig converts the backend section to backend.Config.
func FromGlobalConfig(cfg *config.Config) (Config, error) {
	if cfg == nil {
		return Config{}, fmt.Errorf("config is nil")
	}
	b := cfg.Backend
	if b.BaseURL == "" {
		return Config{}, fmt.Errorf("backend.base_url is not configured")
	}
	return Config{
		BaseURL: b.BaseURL,
		APIKey:  b.APIKey,
		OrgID:   b.OrgID,
		Timeout: b.Timeout,
		Retry: RetryPolicy{
			MaxRetries: b.MaxRetries,
			BaseDelay:  b.BaseDelay,
			Multiplier: b.Multiplier,
		},
	}, nil
}
