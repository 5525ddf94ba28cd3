package config

import "time"

// Config represents the complete chatrelay configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Server   ServerConfig   `yaml:"server"`
	Platform PlatformConfig `yaml:"platform"`
	Backend  BackendConfig  `yaml:"backend"`
	Callback CallbackConfig `yaml:"callback"`
	Messages MessagesConfig `yaml:"messages"`
	Dedup    DedupConfig    `yaml:"dedup"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	// LogPseudonymSecret keys the hash used to log user ids.
	LogPseudonymSecret string `yaml:"log_pseudonym_secret,omitempty"`
}

// ServerConfig defines the HTTP listener and background task limits.
type ServerConfig struct {
	Listen string `yaml:"listen"`
	// PublicURL is this gateway's externally reachable base URL. Callback URLs
	// handed to the backend are built from it.
	PublicURL       string        `yaml:"public_url"`
	MaxBodySize     string        `yaml:"max_body_size"` // e.g. "1MB", "1048576"
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	TaskTimeout     time.Duration `yaml:"task_timeout"`
}

// PlatformConfig defines the messaging platform (webhook sender and outbound API).
type PlatformConfig struct {
	VerifyToken   string `yaml:"verify_token"`
	AppSecret     string `yaml:"app_secret"`
	AccessToken   string `yaml:"access_token"`
	PhoneNumberID string `yaml:"phone_number_id"`
	GraphBaseURL  string `yaml:"graph_base_url"`
	APIVersion    string `yaml:"api_version"`
	// UserAgent is the exact User-Agent inbound webhook deliveries must carry.
	UserAgent string `yaml:"user_agent"`
	// SandboxUser restricts processing to a single test number when set.
	SandboxUser string `yaml:"sandbox_user,omitempty"`
}

// BackendConfig defines the processing backend connection.
type BackendConfig struct {
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	OrgID      string        `yaml:"org_id"`
	ClientID   string        `yaml:"client_id"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	Multiplier float64       `yaml:"multiplier"`
}

// CallbackConfig defines how the backend authenticates its callbacks.
type CallbackConfig struct {
	Token string `yaml:"token"`
}

// MessagesConfig defines message handling limits and policies.
type MessagesConfig struct {
	ChunkSize        int           `yaml:"chunk_size"`
	AgeCutoff        time.Duration `yaml:"age_cutoff"`
	ProgressEnabled  *bool         `yaml:"progress_enabled,omitempty"`
	ProgressThrottle time.Duration `yaml:"progress_throttle"`
	// AudioPolicy is one of notify, ignore, accept.
	AudioPolicy      string `yaml:"audio_policy"`
	CombineResponses bool   `yaml:"combine_responses"`
}

// ProgressOn reports whether progress callbacks are requested from the backend.
func (m MessagesConfig) ProgressOn() bool {
	return m.ProgressEnabled == nil || *m.ProgressEnabled
}

// DedupConfig defines the completion-callback deduplication store.
type DedupConfig struct {
	// Driver is one of memory, sqlite, postgres, redis.
	Driver        string        `yaml:"driver"`
	Lease         time.Duration `yaml:"lease"`
	Retention     time.Duration `yaml:"retention"`
	PruneInterval time.Duration `yaml:"prune_interval"`
	SQLitePath    string        `yaml:"sqlite_path,omitempty"`
	PostgresDSN   string        `yaml:"postgres_dsn,omitempty"`
	RedisAddr     string        `yaml:"redis_addr,omitempty"`
	RedisPassword string        `yaml:"redis_password,omitempty"`
	RedisDB       int           `yaml:"redis_db,omitempty"`
}

// Defaults returns a Config with defaults for every non-secret setting.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "chatrelay",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Server: ServerConfig{
			Listen:          "0.0.0.0:8080",
			MaxBodySize:     "1MB",
			ShutdownTimeout: 30 * time.Second,
			TaskTimeout:     15 * time.Minute,
		},
		Platform: PlatformConfig{
			GraphBaseURL: "https://graph.facebook.com",
			APIVersion:   "v23.0",
			UserAgent:    "facebookexternalua",
		},
		Backend: BackendConfig{
			ClientID:   "whatsapp",
			Timeout:    120 * time.Second,
			MaxRetries: 5,
			BaseDelay:  2 * time.Second,
			Multiplier: 1.5,
		},
		Messages: MessagesConfig{
			ChunkSize:        1500,
			AgeCutoff:        time.Hour,
			ProgressThrottle: 3 * time.Second,
			AudioPolicy:      "notify",
		},
		Dedup: DedupConfig{
			Driver:        "memory",
			Lease:         5 * time.Minute,
			Retention:     6 * time.Hour,
			PruneInterval: 10 * time.Minute,
			SQLitePath:    "./data/dedup.db",
		},
	}
}
