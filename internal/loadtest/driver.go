package loadtest

import (
	"context"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"enterprise-chatbot/internal/engine"
)

// Handler is the query entry point the driver exercises.
type Handler interface {
	Handle(ctx context.Context, query string) engine.Result
}

type Config struct {
	Iterations int           // default: 100
	MinDelay   time.Duration // pause between calls, lower bound
	MaxDelay   time.Duration // pause between calls, upper bound
	Queries    []string      // cycled in order (default: engine.SampleQueries)
}

// WithDefaults returns a copy of Config with defaults applied.
func (c Config) WithDefaults() Config {
	if c.Iterations <= 0 {
		c.Iterations = 100
	}
	if c.MinDelay < 0 {
		c.MinDelay = 0
	}
	if c.MaxDelay < c.MinDelay {
		c.MaxDelay = c.MinDelay
	}
	if len(c.Queries) == 0 {
		c.Queries = engine.SampleQueries
	}
	return c
}

// Report summarizes one driver run.
type Report struct {
	StartedAt time.Time     `json:"started_at"`
	Requested int           `json:"requested"`
	Completed int           `json:"completed"`
	Optimized int           `json:"optimized"`
	CacheHits int           `json:"cache_hits"`
	Stopped   bool          `json:"stopped"`
	Elapsed   time.Duration `json:"elapsed_ns"`
}

// Driver issues Iterations calls to a Handler with a random pause between
// them.
type Driver struct {
	cfg       Config
	h         Handler
	logger    *zap.Logger
	completed atomic.Int64
}

func NewDriver(cfg Config, h Handler, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		cfg:    cfg.WithDefaults(),
		h:      h,
		logger: logger.Named("loadtest"),
	}
}

// Completed returns the number of calls finished so far.
func (d *Driver) Completed() int { return int(d.completed.Load()) }

// Run executes the load test. Cancelling ctx stops it before the next
// iteration; a query already in flight runs to completion.
func (d *Driver) Run(ctx context.Context) Report {
	rep := Report{StartedAt: time.Now(), Requested: d.cfg.Iterations}
	queryCtx := context.WithoutCancel(ctx)

	d.logger.Info("load_test_started",
		zap.Int("iterations", d.cfg.Iterations),
		zap.Duration("min_delay", d.cfg.MinDelay),
		zap.Duration("max_delay", d.cfg.MaxDelay),
	)

	for i := 0; i < d.cfg.Iterations; i++ {
		if ctx.Err() != nil {
			rep.Stopped = true
			break
		}

		res := d.h.Handle(queryCtx, d.cfg.Queries[i%len(d.cfg.Queries)])
		rep.Completed++
		d.completed.Add(1)
		if res.Optimized {
			rep.Optimized++
		}
		if res.CacheHit {
			rep.CacheHits++
		}

		if i < d.cfg.Iterations-1 && !d.pause(ctx) {
			rep.Stopped = true
			break
		}
	}

	rep.Elapsed = time.Since(rep.StartedAt)
	d.logger.Info("load_test_finished",
		zap.Int("completed", rep.Completed),
		zap.Int("optimized", rep.Optimized),
		zap.Bool("stopped", rep.Stopped),
		zap.Duration("elapsed", rep.Elapsed),
	)
	return rep
}

// pause waits a random delay and reports false if ctx ended first.
func (d *Driver) pause(ctx context.Context) bool {
	delay := d.cfg.MinDelay
	if span := d.cfg.MaxDelay - d.cfg.MinDelay; span > 0 {
		delay += rand.N(span + 1)
	}
	if delay <= 0 {
		return ctx.Err() == nil
	}

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
