package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const redacted = "***"

// Redacted returns a copy of the configuration with secrets masked.
func (c *Config) Redacted() *Config {
	cp := *c
	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	mask(&cp.Service.LogPseudonymSecret)
	mask(&cp.Platform.VerifyToken)
	mask(&cp.Platform.AppSecret)
	mask(&cp.Platform.AccessToken)
	mask(&cp.Backend.APIKey)
	mask(&cp.Callback.Token)
	mask(&cp.Dedup.PostgresDSN)
	mask(&cp.Dedup.RedisPassword)
	return &cp
}

// GetPath retrieves a value from the configuration using a dot-notation path.
// Secrets are returned masked.
func (c *Config) GetPath(path string) (any, error) {
	data, err := yaml.Marshal(c.Redacted())
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return getValue(m, path)
}

func getValue(m map[string]any, path string) (any, error) {
	parts := strings.Split(path, ".")
	var current any = m

	for _, part := range parts {
		if part == "" {
			continue
		}

		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("path %q breaks at %q (not a map)", path, part)
		}

		val, exists := m[part]
		if !exists {
			return nil, fmt.Errorf("path %q: key %q not found", path, part)
		}
		current = val
	}

	return current, nil
}
