package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ghostwriter.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected config file to be created: %v", err)
	}
	if cfg.Limiter.Limit != 8 {
		t.Errorf("default limiter.limit = %d, want 8", cfg.Limiter.Limit)
	}
	if cfg.Generation.Timeout.Std() != 120*time.Second {
		t.Errorf("default generation.timeout = %v, want 120s", cfg.Generation.Timeout.Std())
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ghostwriter.yaml")

	content := `
limiter:
  limit: 5
  min_interval: 250ms
runner:
  workers: 2
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Limiter.Limit != 5 {
		t.Errorf("limiter.limit = %d, want 5", cfg.Limiter.Limit)
	}
	if cfg.Limiter.MinInterval.Std() != 250*time.Millisecond {
		t.Errorf("limiter.min_interval = %v, want 250ms", cfg.Limiter.MinInterval.Std())
	}
	if cfg.Runner.Workers != 2 {
		t.Errorf("runner.workers = %d, want 2", cfg.Runner.Workers)
	}
	// Untouched sections keep defaults.
	if cfg.Generation.MaxRetries != 5 {
		t.Errorf("generation.max_retries = %d, want default 5", cfg.Generation.MaxRetries)
	}
}

func TestLoadEnvKeyFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ghostwriter.yaml")
	t.Setenv("GEMINI_API_KEY", "env-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.LLM.Key != "env-key" {
		t.Errorf("llm.key = %q, want env fallback", cfg.LLM.Key)
	}

	// Key must not leak into the file on disk.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) == "" {
		t.Fatal("config file empty")
	}
	if strings.Contains(string(data), "env-key") {
		t.Error("API key was written to disk")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero limit", func(c *Config) { c.Limiter.Limit = 0 }, true},
		{"floor above limit", func(c *Config) { c.Limiter.Floor = 20 }, true},
		{"zero workers", func(c *Config) { c.Runner.Workers = 0 }, true},
		{"empty default model", func(c *Config) { c.LLM.Default = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"30s", 30 * time.Second},
		{"2m", 2 * time.Minute},
		{"1d", 24 * time.Hour},
		{"", 0},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		if err != nil {
			t.Errorf("ParseDuration(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
