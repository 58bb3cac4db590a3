package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Config holds all chatbot configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Engine   EngineConfig   `yaml:"engine"`
	Cache    CacheConfig    `yaml:"cache"`
	Scaling  ScalingConfig  `yaml:"scaling"`
	History  HistoryConfig  `yaml:"history"`
	LoadTest LoadTestConfig `yaml:"loadtest"`
	Audit    AuditConfig    `yaml:"audit"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port           string        `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
}

// LogConfig selects the zap preset and level.
type LogConfig struct {
	Env   string `yaml:"env"`
	Level string `yaml:"level"`
}

// EngineConfig controls the classifier-cache engine.
type EngineConfig struct {
	BaseLatency      time.Duration `yaml:"base_latency"`
	OptimizedLatency time.Duration `yaml:"optimized_latency"`
	// CacheHitFactor scales OptimizedLatency for cache hits.
	CacheHitFactor float64 `yaml:"cache_hit_factor"`
	// Jitter is the +/- fraction applied to uncached latencies.
	Jitter float64 `yaml:"jitter"`
	// Categories overrides the built-in keyword table. Order is match order.
	Categories []CategoryConfig `yaml:"categories"`
}

// CategoryConfig declares one keyword category.
type CategoryConfig struct {
	Name      string           `yaml:"name"`
	Keywords  []string         `yaml:"keywords"`
	Templates []TemplateConfig `yaml:"templates"`
}

// TemplateConfig is a response format string and the ranges its verbs are drawn from.
type TemplateConfig struct {
	Format string        `yaml:"format"`
	Params []ParamConfig `yaml:"params"`
}

// ParamConfig is a uniform range for one template verb.
type ParamConfig struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// CacheConfig selects the response cache backend.
type CacheConfig struct {
	Backend   string `yaml:"backend"` // "memory" or "redis"
	RedisAddr string `yaml:"redis_addr"`
	Prefix    string `yaml:"prefix"`
	// MaxEntries caps the memory backend with LRU eviction. 0 keeps it unbounded.
	MaxEntries int `yaml:"max_entries"`
}

// ScalingConfig holds the scaling controller bounds and thresholds.
type ScalingConfig struct {
	MinInstances     int     `yaml:"min_instances"`
	MaxInstances     int     `yaml:"max_instances"`
	InitialInstances int     `yaml:"initial_instances"`
	HighThreshold    float64 `yaml:"high_threshold"`
	LowThreshold     float64 `yaml:"low_threshold"`
	// MaxEvents caps the retained scaling history. 0 keeps it unbounded.
	MaxEvents int `yaml:"max_events"`
}

// HistoryConfig controls the coordinator's query history.
type HistoryConfig struct {
	Capacity int `yaml:"capacity"`
	// MaxLatencies caps the latency sample list. 0 keeps it unbounded.
	MaxLatencies int `yaml:"max_latencies"`
}

// LoadTestConfig controls the load generation driver.
type LoadTestConfig struct {
	Iterations int           `yaml:"iterations"`
	MinDelay   time.Duration `yaml:"min_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
}

// AuditConfig enables the SQLite audit log when DBPath is set.
type AuditConfig struct {
	DBPath string `yaml:"db_path"`
}

// Default returns a Config with the dashboard's static defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8080",
			RequestTimeout: 15 * time.Second,
			MaxBodyBytes:   64 * 1024,
		},
		Log: LogConfig{
			Env:   "production",
			Level: "info",
		},
		Engine: EngineConfig{
			BaseLatency:      700 * time.Millisecond,
			OptimizedLatency: 400 * time.Millisecond,
			CacheHitFactor:   0.3,
			Jitter:           0.2,
		},
		Cache: CacheConfig{
			Backend:   "memory",
			RedisAddr: "127.0.0.1:6379",
			Prefix:    "chatbot",
		},
		Scaling: ScalingConfig{
			MinInstances:     5,
			MaxInstances:     20,
			InitialInstances: 5,
			HighThreshold:    80,
			LowThreshold:     30,
		},
		History: HistoryConfig{
			Capacity: 500,
		},
		LoadTest: LoadTestConfig{
			Iterations: 100,
			MinDelay:   100 * time.Millisecond,
			MaxDelay:   500 * time.Millisecond,
		},
	}
}

// Load reads a YAML config file over the defaults and expands environment
// variables. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides selected fields from the environment.
func (c *Config) ApplyEnv() {
	c.Server.Port = getenv("PORT", c.Server.Port)
	c.Log.Env = getenv("ENV", c.Log.Env)
	c.Log.Level = getenv("LOG_LEVEL", c.Log.Level)
	c.Cache.Backend = getenv("CACHE_BACKEND", c.Cache.Backend)
	c.Cache.RedisAddr = getenv("REDIS_ADDR", c.Cache.RedisAddr)
	c.Audit.DBPath = getenv("AUDIT_DB", c.Audit.DBPath)

	if v := os.Getenv("LOADTEST_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.LoadTest.Iterations = n
		}
	}
}

// Validate rejects configurations the engine, controller or coordinator
// cannot run with.
func (c *Config) Validate() error {
	var err error

	if c.Server.Port == "" {
		err = multierr.Append(err, errors.New("server.port is required"))
	}

	e := c.Engine
	if e.BaseLatency <= 0 || e.OptimizedLatency <= 0 {
		err = multierr.Append(err, errors.New("engine latencies must be positive"))
	}
	if e.CacheHitFactor <= 0 || e.CacheHitFactor >= 1 {
		err = multierr.Append(err, fmt.Errorf("engine.cache_hit_factor must be in (0,1), got %v", e.CacheHitFactor))
	}
	if e.Jitter < 0 || e.Jitter >= 1 {
		err = multierr.Append(err, fmt.Errorf("engine.jitter must be in [0,1), got %v", e.Jitter))
	}
	for i, cat := range e.Categories {
		if cat.Name == "" {
			err = multierr.Append(err, fmt.Errorf("engine.categories[%d]: name is required", i))
		}
		if len(cat.Keywords) == 0 {
			err = multierr.Append(err, fmt.Errorf("engine.categories[%d]: at least one keyword is required", i))
		}
		for j, tmpl := range cat.Templates {
			for k, p := range tmpl.Params {
				if p.Min > p.Max {
					err = multierr.Append(err, fmt.Errorf("engine.categories[%d].templates[%d].params[%d]: min > max", i, j, k))
				}
			}
		}
	}

	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.RedisAddr == "" {
			err = multierr.Append(err, errors.New("cache.redis_addr is required for the redis backend"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("unknown cache backend %q", c.Cache.Backend))
	}
	if c.Cache.MaxEntries < 0 {
		err = multierr.Append(err, errors.New("cache.max_entries must not be negative"))
	}

	s := c.Scaling
	if s.MinInstances < 1 {
		err = multierr.Append(err, errors.New("scaling.min_instances must be at least 1"))
	}
	if s.MinInstances > s.MaxInstances {
		err = multierr.Append(err, fmt.Errorf("scaling.min_instances (%d) exceeds max_instances (%d)", s.MinInstances, s.MaxInstances))
	}
	if s.InitialInstances != 0 && (s.InitialInstances < s.MinInstances || s.InitialInstances > s.MaxInstances) {
		err = multierr.Append(err, fmt.Errorf("scaling.initial_instances %d outside [%d,%d]", s.InitialInstances, s.MinInstances, s.MaxInstances))
	}
	if s.LowThreshold < 0 || s.HighThreshold > 100 || s.LowThreshold >= s.HighThreshold {
		err = multierr.Append(err, fmt.Errorf("scaling thresholds must satisfy 0 <= low < high <= 100, got low=%v high=%v", s.LowThreshold, s.HighThreshold))
	}
	if s.MaxEvents < 0 {
		err = multierr.Append(err, errors.New("scaling.max_events must not be negative"))
	}

	if c.History.Capacity < 1 {
		err = multierr.Append(err, errors.New("history.capacity must be at least 1"))
	}
	if c.History.MaxLatencies < 0 {
		err = multierr.Append(err, errors.New("history.max_latencies must not be negative"))
	}

	if c.LoadTest.Iterations < 0 {
		err = multierr.Append(err, errors.New("loadtest.iterations must not be negative"))
	}
	if c.LoadTest.MinDelay < 0 || c.LoadTest.MinDelay > c.LoadTest.MaxDelay {
		err = multierr.Append(err, errors.New("loadtest delays must satisfy 0 <= min_delay <= max_delay"))
	}

	return err
}

// getenv returns the value of the environment variable key or def if not set.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
