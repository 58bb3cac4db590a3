package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"enterprise-chatbot/internal/audit"
	"enterprise-chatbot/internal/cache"
	"enterprise-chatbot/internal/config"
	"enterprise-chatbot/internal/coordinator"
	"enterprise-chatbot/internal/engine"
	"enterprise-chatbot/internal/loadtest"
	"enterprise-chatbot/internal/scaler"
)

// app is the wired service shared by serve and loadtest.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	redis    *redis.Client
	recorder *audit.Recorder

	engine      *engine.Engine
	scaler      *scaler.Controller
	coordinator *coordinator.Coordinator
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			err = multierr.Append(err, a.Close())
		}
	}()

	// ----- Redis client (only if needed) -----
	if cfg.Cache.Backend == "redis" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
	}

	// ----- Response cache -----
	respCache := cache.NewResponseCache(cache.Config{
		Backend:    cfg.Cache.Backend,
		Prefix:     cfg.Cache.Prefix,
		MaxEntries: cfg.Cache.MaxEntries,
	}, a.redis)

	// Fail fast if the backend is misconfigured
	if p, ok := respCache.(cache.Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return nil, fmt.Errorf("cache backend %s at %s: %w", cfg.Cache.Backend, cfg.Cache.RedisAddr, err)
		}
		logger.Info("redis connection established", zap.String("addr", cfg.Cache.RedisAddr))
	}
	respCache = cache.NewLoggingResponseCache(respCache, cfg.Cache.Backend)

	// ----- Engine -----
	engineOpts := []engine.Option{engine.WithLogger(logger)}
	if len(cfg.Engine.Categories) > 0 {
		table, err := buildTable(cfg.Engine.Categories)
		if err != nil {
			return nil, err
		}
		engineOpts = append(engineOpts, engine.WithTable(table))
	}
	a.engine, err = engine.New(engine.Config{
		BaseLatency:      cfg.Engine.BaseLatency,
		OptimizedLatency: cfg.Engine.OptimizedLatency,
		CacheHitFactor:   cfg.Engine.CacheHitFactor,
		Jitter:           cfg.Engine.Jitter,
	}, respCache, engineOpts...)
	if err != nil {
		return nil, err
	}

	// ----- Scaling controller -----
	a.scaler, err = scaler.New(scaler.Config{
		MinInstances:     cfg.Scaling.MinInstances,
		MaxInstances:     cfg.Scaling.MaxInstances,
		InitialInstances: cfg.Scaling.InitialInstances,
		HighThreshold:    cfg.Scaling.HighThreshold,
		LowThreshold:     cfg.Scaling.LowThreshold,
		MaxEvents:        cfg.Scaling.MaxEvents,
	}, logger)
	if err != nil {
		return nil, err
	}

	// ----- Audit log (optional) -----
	coordOpts := []coordinator.Option{coordinator.WithLogger(logger)}
	if cfg.Audit.DBPath != "" {
		a.recorder, err = audit.New(cfg.Audit.DBPath)
		if err != nil {
			return nil, err
		}
		coordOpts = append(coordOpts, coordinator.WithSink(a.recorder))
		logger.Info("audit log enabled", zap.String("db_path", cfg.Audit.DBPath))
	}

	// ----- Coordinator -----
	a.coordinator, err = coordinator.New(coordinator.Config{
		HistoryCapacity: cfg.History.Capacity,
		MaxLatencies:    cfg.History.MaxLatencies,
	}, a.engine, a.scaler, coordOpts...)
	if err != nil {
		return nil, err
	}

	return a, nil
}

func (a *app) loadTestConfig() loadtest.Config {
	return loadtest.Config{
		Iterations: a.cfg.LoadTest.Iterations,
		MinDelay:   a.cfg.LoadTest.MinDelay,
		MaxDelay:   a.cfg.LoadTest.MaxDelay,
	}
}

// Close releases the redis client and the audit database.
func (a *app) Close() error {
	var err error
	if a.redis != nil {
		err = multierr.Append(err, a.redis.Close())
	}
	if a.recorder != nil {
		err = multierr.Append(err, a.recorder.Close())
	}
	return err
}

func buildTable(categories []config.CategoryConfig) (*engine.Table, error) {
	specs := make([]engine.CategorySpec, 0, len(categories))
	for _, c := range categories {
		spec := engine.CategorySpec{
			Category: engine.Category(c.Name),
			Keywords: c.Keywords,
		}
		for _, t := range c.Templates {
			tmpl := engine.Template{Format: t.Format}
			for _, p := range t.Params {
				tmpl.Params = append(tmpl.Params, engine.Param{Min: p.Min, Max: p.Max})
			}
			spec.Templates = append(spec.Templates, tmpl)
		}
		specs = append(specs, spec)
	}

	table, err := engine.NewTable(specs, engine.DefaultGeneralTemplates())
	if err != nil {
		return nil, fmt.Errorf("engine categories: %w", err)
	}
	return table, nil
}
