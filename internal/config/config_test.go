package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Scaling.MinInstances != 5 || cfg.Scaling.MaxInstances != 20 {
		t.Errorf("unexpected instance bounds: %+v", cfg.Scaling)
	}
	if cfg.Scaling.HighThreshold != 80 || cfg.Scaling.LowThreshold != 30 {
		t.Errorf("unexpected thresholds: %+v", cfg.Scaling)
	}
	if cfg.Engine.BaseLatency != 700*time.Millisecond || cfg.Engine.OptimizedLatency != 400*time.Millisecond {
		t.Errorf("unexpected latencies: %+v", cfg.Engine)
	}
	if cfg.History.Capacity != 500 {
		t.Errorf("expected history capacity 500, got %d", cfg.History.Capacity)
	}
	if cfg.LoadTest.Iterations != 100 {
		t.Errorf("expected 100 load test iterations, got %d", cfg.LoadTest.Iterations)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Cache.Backend != "memory" {
		t.Errorf("expected memory backend, got %q", cfg.Cache.Backend)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	t.Setenv("TEST_REDIS_ADDR", "redis:6379")

	yamlData := `
cache:
  backend: redis
  redis_addr: ${TEST_REDIS_ADDR}
scaling:
  max_instances: 12
engine:
  optimized_latency: 250ms
  categories:
    - name: billing
      keywords: [invoice, refund]
      templates:
        - format: "Refund processed in %.0f days."
          params:
            - {min: 1, max: 5}
`
	path := filepath.Join(t.TempDir(), "chatbot.yaml")
	if err := os.WriteFile(path, []byte(yamlData), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Cache.Backend != "redis" {
		t.Errorf("expected redis backend, got %q", cfg.Cache.Backend)
	}
	if cfg.Cache.RedisAddr != "redis:6379" {
		t.Errorf("expected expanded redis addr, got %q", cfg.Cache.RedisAddr)
	}
	if cfg.Scaling.MaxInstances != 12 {
		t.Errorf("expected max instances 12, got %d", cfg.Scaling.MaxInstances)
	}
	// Untouched fields keep their defaults.
	if cfg.Scaling.MinInstances != 5 {
		t.Errorf("expected min instances 5, got %d", cfg.Scaling.MinInstances)
	}
	if cfg.Engine.OptimizedLatency != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %v", cfg.Engine.OptimizedLatency)
	}
	if len(cfg.Engine.Categories) != 1 || cfg.Engine.Categories[0].Name != "billing" {
		t.Fatalf("unexpected categories: %+v", cfg.Engine.Categories)
	}
	if got := cfg.Engine.Categories[0].Templates[0].Params[0].Max; got != 5 {
		t.Errorf("expected param max 5, got %v", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("AUDIT_DB", "/tmp/audit.db")
	t.Setenv("LOADTEST_ITERATIONS", "7")

	cfg := Default()
	cfg.ApplyEnv()

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %q", cfg.Server.Port)
	}
	if cfg.Cache.Backend != "redis" {
		t.Errorf("expected redis backend, got %q", cfg.Cache.Backend)
	}
	if cfg.Audit.DBPath != "/tmp/audit.db" {
		t.Errorf("unexpected audit path %q", cfg.Audit.DBPath)
	}
	if cfg.LoadTest.Iterations != 7 {
		t.Errorf("expected 7 iterations, got %d", cfg.LoadTest.Iterations)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"min above max", func(c *Config) { c.Scaling.MinInstances = 30 }, "exceeds max_instances"},
		{"inverted thresholds", func(c *Config) { c.Scaling.LowThreshold = 90 }, "thresholds"},
		{"unknown backend", func(c *Config) { c.Cache.Backend = "memcached" }, "unknown cache backend"},
		{"zero history", func(c *Config) { c.History.Capacity = 0 }, "history.capacity"},
		{"hit factor", func(c *Config) { c.Engine.CacheHitFactor = 1.5 }, "cache_hit_factor"},
		{"empty keywords", func(c *Config) {
			c.Engine.Categories = []CategoryConfig{{Name: "x"}}
		}, "keyword"},
		{"delays", func(c *Config) { c.LoadTest.MinDelay = time.Second; c.LoadTest.MaxDelay = time.Millisecond }, "min_delay"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadKeepsZeroJitter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatbot.yaml")
	if err := os.WriteFile(path, []byte("engine:\n  jitter: 0\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Engine.Jitter != 0 {
		t.Fatalf("expected explicit zero jitter to override the default, got %v", cfg.Engine.Jitter)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("zero jitter should validate: %v", err)
	}
	if Default().Engine.Jitter != 0.2 {
		t.Fatalf("expected default jitter 0.2, got %v", Default().Engine.Jitter)
	}
}
