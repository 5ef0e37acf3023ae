package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config is the top-level application configuration loaded from TOML,
// environment variables and CLI flags (in that order, later wins).
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Storage StorageConfig `toml:"storage"`
	Logging LoggingConfig `toml:"logging"`
	Queue   QueueConfig   `toml:"queue"`
	Fetcher FetcherConfig `toml:"fetcher"`
	Claude  ClaudeConfig  `toml:"claude"`
	Gemini  GeminiConfig  `toml:"gemini"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port" validate:"gte=0,lte=65535"`
}

// StorageConfig holds badger database settings.
type StorageConfig struct {
	Path string `toml:"path" validate:"required"`
}

// LoggingConfig controls the arbor logger.
type LoggingConfig struct {
	Level  string   `toml:"level"`
	Output []string `toml:"output"`
}

// QueueConfig controls the queue loop, recovery and retention sweep.
type QueueConfig struct {
	PollInterval   string `toml:"poll_interval"`
	GuardTimeout   string `toml:"guard_timeout"`
	StaleThreshold string `toml:"stale_threshold"`
	MaxRetries     int    `toml:"max_retries" validate:"gte=0"`
	RetentionDays  int    `toml:"retention_days" validate:"gte=1"`
	SweepSchedule  string `toml:"sweep_schedule"`
}

// FetcherConfig controls the batch URL fetcher.
type FetcherConfig struct {
	Concurrency     int               `toml:"concurrency" validate:"gte=1,lte=50"`
	PerFetchTimeout string            `toml:"per_fetch_timeout"`
	MaxBodyBytes    int64             `toml:"max_body_bytes" validate:"gte=1"`
	UserAgent       string            `toml:"user_agent"`
	DomainDelay     string            `toml:"domain_delay"`
	DomainDelays    map[string]string `toml:"domain_delays"`
}

// ClaudeConfig holds Anthropic API settings for Q&A generation.
type ClaudeConfig struct {
	APIKey            string  `toml:"api_key"`
	Model             string  `toml:"model"`
	MaxTokens         int     `toml:"max_tokens"`
	Temperature       float32 `toml:"temperature"`
	Timeout           string  `toml:"timeout"`
	RequestsPerMinute int     `toml:"requests_per_minute"`
	MaxPairs          int     `toml:"max_pairs"`
}

// GeminiConfig holds Google API settings for embedding generation.
type GeminiConfig struct {
	APIKey         string `toml:"api_key"`
	EmbedModelName string `toml:"embed_model"`
	EmbedDimension int    `toml:"embed_dimension" validate:"gte=1"`
	Timeout        string `toml:"timeout"`
}

// DefaultConfig returns the built-in defaults, applied before any file,
// env or flag override.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8190,
		},
		Storage: StorageConfig{
			Path: "./data/colligo",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"console", "file"},
		},
		Queue: QueueConfig{
			PollInterval:   "5s",
			GuardTimeout:   "10m",
			StaleThreshold: "10m",
			MaxRetries:     3,
			RetentionDays:  30,
			SweepSchedule:  "0 3 * * *",
		},
		Fetcher: FetcherConfig{
			Concurrency:     5,
			PerFetchTimeout: "30s",
			MaxBodyBytes:    10 * 1024 * 1024,
			UserAgent:       "Colligo/1.0 (+https://github.com/ternarybob/colligo)",
			DomainDelay:     "500ms",
		},
		Claude: ClaudeConfig{
			Model:             "claude-sonnet-4-20250514",
			MaxTokens:         8192,
			Temperature:       0.3,
			Timeout:           "120s",
			RequestsPerMinute: 20,
			MaxPairs:          10,
		},
		Gemini: GeminiConfig{
			EmbedModelName: "gemini-embedding-001",
			EmbedDimension: 768,
			Timeout:        "60s",
		},
	}
}

// LoadFromFiles loads configuration with layered precedence:
// defaults -> config files (later files override earlier) -> environment.
// CLI flag overrides are applied separately via ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := DefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies COLLIGO_* environment variables over file values.
// API keys also honor the provider-native variable names.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("COLLIGO_SERVER_HOST"); v != "" {
		config.Server.Host = v
	}
	if v := os.Getenv("COLLIGO_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("COLLIGO_STORAGE_PATH"); v != "" {
		config.Storage.Path = v
	}
	if v := os.Getenv("COLLIGO_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("COLLIGO_CLAUDE_API_KEY"); v != "" {
		config.Claude.APIKey = v
	} else if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && config.Claude.APIKey == "" {
		config.Claude.APIKey = v
	}
	if v := os.Getenv("COLLIGO_GEMINI_API_KEY"); v != "" {
		config.Gemini.APIKey = v
	} else if v := os.Getenv("GOOGLE_API_KEY"); v != "" && config.Gemini.APIKey == "" {
		config.Gemini.APIKey = v
	}
}

// ApplyFlagOverrides applies command-line flag values (highest priority).
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks struct constraints and duration fields.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	durations := map[string]string{
		"queue.poll_interval":       c.Queue.PollInterval,
		"queue.guard_timeout":       c.Queue.GuardTimeout,
		"queue.stale_threshold":     c.Queue.StaleThreshold,
		"fetcher.per_fetch_timeout": c.Fetcher.PerFetchTimeout,
		"fetcher.domain_delay":      c.Fetcher.DomainDelay,
		"claude.timeout":            c.Claude.Timeout,
		"gemini.timeout":            c.Gemini.Timeout,
	}
	for name, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %q", name, value)
		}
	}

	return nil
}

// Duration parses a duration config value that Validate has already checked.
func Duration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}
