package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// DefaultMaxBodySize is used when server.max_body_size is unset.
const DefaultMaxBodySize int64 = 1 << 20

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables already present in the environment win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Load reads, interpolates, defaults, and validates the configuration file.
// If a .checksums manifest sits next to the file, the file must match it.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	if err := verifyConfigHash(absPath); err != nil {
		return nil, err
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}
	cfg = applyConfigDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Parse interpolates, defaults, and validates configuration from raw YAML.
func Parse(data []byte) (*Config, error) {
	cfg, err := parseConfig(data)
	if err != nil {
		return nil, err
	}
	cfg = applyConfigDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return parseConfig(data)
}

func parseConfig(data []byte) (*Config, error) {
	interpolated := interpolateEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &cfg, nil
}

func verifyConfigHash(path string) error {
	dir := filepath.Dir(path)
	checksums, err := LoadChecksums(dir)
	if err != nil {
		// No manifest means the file is not locked.
		return nil
	}

	basename := filepath.Base(path)
	expectedHash, ok := checksums.Hashes[basename]
	if !ok {
		return fmt.Errorf("config file %s has no hash in checksums at %s\n"+
			"Run: chatrelay config lock --config %s", basename, dir, path)
	}
	if err := VerifyFileHash(path, expectedHash); err != nil {
		return fmt.Errorf("config verification failed for %s: %w\n"+
			"If you edited this file intentionally, run: chatrelay config lock --config %s", path, err, path)
	}
	return nil
}

// applyConfigDefaults merges default values into config where not explicitly set.
// Secrets and deployment-specific identifiers have no defaults.
func applyConfigDefaults(cfg *Config) *Config {
	d := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = d.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = d.Service.LogLevel
	}
	cfg.Service.LogLevel = strings.ToLower(cfg.Service.LogLevel)
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = d.Service.LogFormat
	}

	if cfg.Server.Listen == "" {
		cfg.Server.Listen = d.Server.Listen
	}
	if cfg.Server.MaxBodySize == "" {
		cfg.Server.MaxBodySize = d.Server.MaxBodySize
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}
	if cfg.Server.TaskTimeout == 0 {
		cfg.Server.TaskTimeout = d.Server.TaskTimeout
	}
	cfg.Server.PublicURL = strings.TrimRight(cfg.Server.PublicURL, "/")

	if cfg.Platform.GraphBaseURL == "" {
		cfg.Platform.GraphBaseURL = d.Platform.GraphBaseURL
	}
	if cfg.Platform.APIVersion == "" {
		cfg.Platform.APIVersion = d.Platform.APIVersion
	}
	if cfg.Platform.UserAgent == "" {
		cfg.Platform.UserAgent = d.Platform.UserAgent
	}

	cfg.Backend.BaseURL = strings.TrimRight(cfg.Backend.BaseURL, "/")
	if cfg.Backend.ClientID == "" {
		cfg.Backend.ClientID = d.Backend.ClientID
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = d.Backend.Timeout
	}
	if cfg.Backend.MaxRetries == 0 {
		cfg.Backend.MaxRetries = d.Backend.MaxRetries
	}
	if cfg.Backend.BaseDelay == 0 {
		cfg.Backend.BaseDelay = d.Backend.BaseDelay
	}
	if cfg.Backend.Multiplier == 0 {
		cfg.Backend.Multiplier = d.Backend.Multiplier
	}

	if cfg.Messages.ChunkSize == 0 {
		cfg.Messages.ChunkSize = d.Messages.ChunkSize
	}
	if cfg.Messages.AgeCutoff == 0 {
		cfg.Messages.AgeCutoff = d.Messages.AgeCutoff
	}
	if cfg.Messages.ProgressThrottle == 0 {
		cfg.Messages.ProgressThrottle = d.Messages.ProgressThrottle
	}
	if cfg.Messages.AudioPolicy == "" {
		cfg.Messages.AudioPolicy = d.Messages.AudioPolicy
	}

	if cfg.Dedup.Driver == "" {
		cfg.Dedup.Driver = d.Dedup.Driver
	}
	if cfg.Dedup.Lease == 0 {
		cfg.Dedup.Lease = d.Dedup.Lease
	}
	if cfg.Dedup.Retention == 0 {
		cfg.Dedup.Retention = d.Dedup.Retention
	}
	if cfg.Dedup.PruneInterval == 0 {
		cfg.Dedup.PruneInterval = d.Dedup.PruneInterval
	}
	if cfg.Dedup.Driver == "sqlite" && cfg.Dedup.SQLitePath == "" {
		cfg.Dedup.SQLitePath = d.Dedup.SQLitePath
	}

	return cfg
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	required := []struct {
		path  string
		value string
	}{
		{"platform.verify_token", cfg.Platform.VerifyToken},
		{"platform.app_secret", cfg.Platform.AppSecret},
		{"platform.access_token", cfg.Platform.AccessToken},
		{"platform.phone_number_id", cfg.Platform.PhoneNumberID},
		{"backend.base_url", cfg.Backend.BaseURL},
		{"backend.api_key", cfg.Backend.APIKey},
		{"backend.org_id", cfg.Backend.OrgID},
		{"callback.token", cfg.Callback.Token},
		{"server.public_url", cfg.Server.PublicURL},
	}
	for _, r := range required {
		if err := checkResolved(r.path, r.value); err != nil {
			return err
		}
		if r.value == "" {
			return fmt.Errorf("%s is required", r.path)
		}
	}
	for _, opt := range []struct{ path, value string }{
		{"service.log_pseudonym_secret", cfg.Service.LogPseudonymSecret},
		{"dedup.postgres_dsn", cfg.Dedup.PostgresDSN},
		{"dedup.redis_password", cfg.Dedup.RedisPassword},
		{"platform.sandbox_user", cfg.Platform.SandboxUser},
	} {
		if err := checkResolved(opt.path, opt.value); err != nil {
			return err
		}
	}

	for _, u := range []struct{ path, value string }{
		{"backend.base_url", cfg.Backend.BaseURL},
		{"server.public_url", cfg.Server.PublicURL},
		{"platform.graph_base_url", cfg.Platform.GraphBaseURL},
	} {
		parsed, err := url.Parse(u.value)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return fmt.Errorf("%s must be an absolute http(s) URL (got %q)", u.path, u.value)
		}
	}

	if _, err := ParseMaxBodySize(cfg.Server.MaxBodySize); err != nil {
		return fmt.Errorf("server.max_body_size: %w", err)
	}
	if cfg.Server.ShutdownTimeout < 0 || cfg.Server.TaskTimeout < 0 {
		return fmt.Errorf("server timeouts must not be negative")
	}

	if cfg.Backend.MaxRetries < 0 {
		return fmt.Errorf("backend.max_retries must not be negative")
	}
	if cfg.Backend.BaseDelay < 0 {
		return fmt.Errorf("backend.base_delay must not be negative")
	}
	if cfg.Backend.Multiplier < 1 {
		return fmt.Errorf("backend.multiplier must be >= 1 (got %v)", cfg.Backend.Multiplier)
	}

	if cfg.Messages.ChunkSize < 1 {
		return fmt.Errorf("messages.chunk_size must be positive")
	}
	if cfg.Messages.AgeCutoff < 0 {
		return fmt.Errorf("messages.age_cutoff must not be negative")
	}
	switch cfg.Messages.AudioPolicy {
	case "notify", "ignore", "accept":
	default:
		return fmt.Errorf("messages.audio_policy must be one of: notify, ignore, accept (got %q)", cfg.Messages.AudioPolicy)
	}

	switch cfg.Dedup.Driver {
	case "memory":
	case "sqlite":
		if cfg.Dedup.SQLitePath == "" {
			return fmt.Errorf("dedup.sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if cfg.Dedup.PostgresDSN == "" {
			return fmt.Errorf("dedup.postgres_dsn is required for the postgres driver")
		}
	case "redis":
		if cfg.Dedup.RedisAddr == "" {
			return fmt.Errorf("dedup.redis_addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("dedup.driver must be one of: memory, sqlite, postgres, redis (got %q)", cfg.Dedup.Driver)
	}
	if cfg.Dedup.Lease <= 0 || cfg.Dedup.Retention <= 0 || cfg.Dedup.PruneInterval <= 0 {
		return fmt.Errorf("dedup.lease, dedup.retention and dedup.prune_interval must be positive")
	}

	return nil
}

// checkResolved rejects values still holding a ${VAR} placeholder.
func checkResolved(path, value string) error {
	if matches := envVarPattern.FindStringSubmatch(value); len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", path, matches[1])
	}
	return nil
}

// ParseMaxBodySize parses sizes like "1MB", "512KB" or "1048576".
// An empty string yields DefaultMaxBodySize.
func ParseMaxBodySize(raw string) (int64, error) {
	s := strings.TrimSpace(strings.ToUpper(raw))
	if s == "" {
		return DefaultMaxBodySize, nil
	}

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(s, "KB"):
		multiplier = 1 << 10
		s = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "MB"):
		multiplier = 1 << 20
		s = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "B"):
		s = strings.TrimSuffix(s, "B")
	}

	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid size %q", raw)
	}
	return n * multiplier, nil
}
