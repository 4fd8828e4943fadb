package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	LLM        LLMConfig        `yaml:"llm"`
	Limiter    LimiterConfig    `yaml:"limiter"`
	Generation GenerationConfig `yaml:"generation"`
	Runner     RunnerConfig     `yaml:"runner"`
	Log        LogConfig        `yaml:"log"`
	History    HistoryConfig    `yaml:"history"`
	DB         DBConfig         `yaml:"db"`
}

// LLMConfig holds settings for the generative-content provider.
type LLMConfig struct {
	Provider string `yaml:"provider"` // "gemini", "mock"
	Key      string `yaml:"key"`
	// Models maps (output type, mode, image) to a model identifier.
	// Keys are "<type>/<mode>" or "<type>/<mode>/image",
	// e.g. "manuscript/quality/image". Missing keys fall back to Default.
	Models  map[string]string `yaml:"models"`
	Default string            `yaml:"default_model"`
}

// LimiterConfig holds admission-control settings.
type LimiterConfig struct {
	Limit             int      `yaml:"limit"`
	Floor             int      `yaml:"floor"`
	MinInterval       Duration `yaml:"min_interval"`
	ThrottleThreshold int      `yaml:"throttle_threshold"`
}

// GenerationConfig holds per-call retry and timeout settings.
type GenerationConfig struct {
	Timeout    Duration `yaml:"timeout"`
	MaxRetries int      `yaml:"max_retries"`
	BackoffMin Duration `yaml:"backoff_min"`
	BackoffMax Duration `yaml:"backoff_max"`
}

// RunnerConfig holds job orchestration settings.
type RunnerConfig struct {
	Workers       int        `yaml:"workers"`
	JobRetries    int        `yaml:"job_retries"`
	RetryBackoff  []Duration `yaml:"retry_backoff"`
	RecheckProbes int        `yaml:"recheck_probes"`
	RecheckWait   Duration   `yaml:"recheck_wait"`
	PollInterval  Duration   `yaml:"poll_interval"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// HistoryConfig controls the prompt/response transcript log.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path string `yaml:"path"`
}

// DefaultConfig returns the configuration defaults.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider: "gemini",
			Models: map[string]string{
				"manuscript/quality":       "gemini-2.5-pro",
				"manuscript/quality/image": "gemini-2.5-pro",
				"manuscript/speed":         "gemini-2.5-flash",
				"manuscript/speed/image":   "gemini-2.5-flash",
				"short_review/quality":     "gemini-2.5-flash",
				"short_review/speed":       "gemini-2.5-flash",
			},
			Default: "gemini-2.5-flash",
		},
		Limiter: LimiterConfig{
			Limit:             8,
			Floor:             3,
			MinInterval:       Duration(500 * time.Millisecond),
			ThrottleThreshold: 3,
		},
		Generation: GenerationConfig{
			Timeout:    Duration(120 * time.Second),
			MaxRetries: 5,
			BackoffMin: Duration(1 * time.Second),
			BackoffMax: Duration(30 * time.Second),
		},
		Runner: RunnerConfig{
			Workers:    4,
			JobRetries: 4,
			RetryBackoff: []Duration{
				Duration(1 * time.Second),
				Duration(2 * time.Second),
				Duration(4 * time.Second),
				Duration(8 * time.Second),
			},
			RecheckProbes: 3,
			RecheckWait:   Duration(500 * time.Millisecond),
			PollInterval:  Duration(2 * time.Second),
		},
		Log: LogConfig{
			Path:  "logs/ghostwriter.log",
			Level: "INFO",
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    "logs/generation.log",
		},
		DB: DBConfig{
			Path: "data/ghostwriter.db",
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it is created with default values.
// Existing files are merged over defaults but never written back,
// to preserve user formatting and comments.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else {
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to save config file: %w", err)
		}
	}

	// Secrets come from the environment when not set in the file,
	// and are never written back to disk.
	if cfg.LLM.Key == "" {
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			cfg.LLM.Key = key
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks constraints that would otherwise surface mid-job.
func (c *Config) Validate() error {
	if c.Limiter.Limit < 1 {
		return fmt.Errorf("limiter.limit must be >= 1, got %d", c.Limiter.Limit)
	}
	if c.Limiter.Floor < 1 {
		return fmt.Errorf("limiter.floor must be >= 1, got %d", c.Limiter.Floor)
	}
	if c.Limiter.Floor > c.Limiter.Limit {
		return fmt.Errorf("limiter.floor (%d) must not exceed limiter.limit (%d)", c.Limiter.Floor, c.Limiter.Limit)
	}
	if c.Limiter.ThrottleThreshold < 1 {
		return fmt.Errorf("limiter.throttle_threshold must be >= 1, got %d", c.Limiter.ThrottleThreshold)
	}
	if c.Runner.Workers < 1 {
		return fmt.Errorf("runner.workers must be >= 1, got %d", c.Runner.Workers)
	}
	if c.Generation.MaxRetries < 0 {
		return fmt.Errorf("generation.max_retries must be >= 0, got %d", c.Generation.MaxRetries)
	}
	if c.LLM.Default == "" {
		return fmt.Errorf("llm.default_model must not be empty")
	}
	return nil
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Ghostwriter Configuration
# -------------------------
# Durations accept: ns, us, ms, s, m, h, d (day)
# The Gemini API key can also be supplied via GEMINI_API_KEY.

`)
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return Save(path, DefaultConfig())
}
