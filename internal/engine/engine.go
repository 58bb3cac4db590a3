package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"enterprise-chatbot/internal/cache"
	"enterprise-chatbot/internal/metrics"
	"enterprise-chatbot/pkg/logging/logging"
)

// Result is the record produced for every processed query.
type Result struct {
	Response  string   `json:"response"`
	LatencyMs float64  `json:"latency_ms"`
	Optimized bool     `json:"optimized"`
	QueryID   string   `json:"query_id"`
	Category  Category `json:"category"`
	CacheHit  bool     `json:"cache_hit"`
}

// Rand is the randomness the engine draws latencies and template values from.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration)

type Config struct {
	BaseLatency      time.Duration // fallback path nominal latency (default: 700ms)
	OptimizedLatency time.Duration // category path nominal latency (default: 400ms)
	CacheHitFactor   float64       // cache hit latency = OptimizedLatency * factor (default: 0.3)
	Jitter           float64       // uniform +/- fraction on uncached latency, 0 = none (negative: DefaultJitter)
}

// DefaultJitter is the latency spread used when Jitter is left negative.
const DefaultJitter = 0.2

// WithDefaults returns a copy of Config with defaults applied.
func (c Config) WithDefaults() Config {
	if c.BaseLatency <= 0 {
		c.BaseLatency = 700 * time.Millisecond
	}
	if c.OptimizedLatency <= 0 {
		c.OptimizedLatency = 400 * time.Millisecond
	}
	if c.CacheHitFactor <= 0 {
		c.CacheHitFactor = 0.3
	}
	if c.Jitter < 0 {
		c.Jitter = DefaultJitter
	}
	return c
}

// Validate checks that a cache hit is always faster than any uncached
// optimized draw.
func (c Config) Validate() error {
	if c.Jitter >= 1 {
		return fmt.Errorf("jitter must be below 1, got %v", c.Jitter)
	}
	if c.CacheHitFactor >= 1-c.Jitter {
		return fmt.Errorf("cache hit factor %v must be below the lowest optimized draw %v", c.CacheHitFactor, 1-c.Jitter)
	}
	return nil
}

// Engine classifies queries, synthesizes templated responses and caches the
// category-matched ones. It owns its cache.
type Engine struct {
	cfg    Config
	table  *Table
	cache  cache.ResponseCache
	rnd    Rand
	sleep  Sleeper
	logger *zap.Logger
}

type Option func(*Engine)

// WithTable replaces the built-in keyword table.
func WithTable(t *Table) Option {
	return func(e *Engine) { e.table = t }
}

// WithRand makes latency and template draws come from r. r is guarded by a
// mutex so it does not need to be safe for concurrent use.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rnd = &lockedRand{r: r} }
}

// WithSleeper replaces the timer-based delay, mainly for tests.
func WithSleeper(s Sleeper) Option {
	return func(e *Engine) { e.sleep = s }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine over c.
func New(cfg Config, c cache.ResponseCache, opts ...Option) (*Engine, error) {
	if c == nil {
		return nil, errors.New("engine: cache is required")
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e := &Engine{
		cfg:    cfg,
		cache:  c,
		rnd:    globalRand{},
		sleep:  TimerSleep,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.table == nil {
		e.table = DefaultTable()
	}
	e.logger = e.logger.Named("engine")
	return e, nil
}

// CacheLen reports the number of cached responses.
func (e *Engine) CacheLen(ctx context.Context) (int, error) {
	return e.cache.Len(ctx)
}

// Process answers query. It never fails: cache errors are logged and treated
// as misses, and empty queries fall through to the general path. The
// simulated latency is spent before returning; no lock is held while
// waiting, so concurrent calls overlap.
func (e *Engine) Process(ctx context.Context, query string) Result {
	logger, ok := logging.Lookup(ctx)
	if !ok {
		logger = e.logger
	}

	res := Result{QueryID: uuid.NewString()}
	category, matched := e.table.Classify(query)
	res.Category = category

	cached, hit, err := e.cache.Get(ctx, query)
	if err != nil {
		// Cache is best-effort; log and treat as miss.
		logger.Warn("cache_get_error", zap.String("query_id", res.QueryID), zap.Error(err))
	}

	path := "base"
	var latency time.Duration
	switch {
	case hit:
		path = "cached"
		latency = time.Duration(math.Round(float64(e.cfg.OptimizedLatency) * e.cfg.CacheHitFactor))
		res.Response = cached
		res.Optimized = true
		res.CacheHit = true
	case matched:
		path = "optimized"
		latency = e.draw(e.cfg.OptimizedLatency)
		res.Optimized = true
	default:
		latency = e.draw(e.cfg.BaseLatency)
	}

	e.sleep(ctx, latency)
	res.LatencyMs = float64(latency) / float64(time.Millisecond)

	if !hit {
		res.Response = e.render(category, query)
		if matched {
			// The delay may have been cut short by ctx; the write still happens.
			if err := e.cache.Set(context.WithoutCancel(ctx), query, res.Response); err != nil {
				logger.Warn("cache_set_error", zap.String("query_id", res.QueryID), zap.Error(err))
			}
		}
	}

	metrics.QueriesTotal.WithLabelValues(string(res.Category), path).Inc()
	metrics.SimulatedLatencySeconds.WithLabelValues(path).Observe(latency.Seconds())

	logger.Info("cache_decision",
		zap.String("query_id", res.QueryID),
		zap.String("category", string(res.Category)),
		zap.String("path", path),
		zap.Bool("cache_hit", hit),
		zap.Bool("optimized", res.Optimized),
		zap.Float64("latency_ms", res.LatencyMs),
	)

	return res
}

// draw returns nominal scaled by a uniform factor in [1-jitter, 1+jitter].
func (e *Engine) draw(nominal time.Duration) time.Duration {
	f := 1 - e.cfg.Jitter + e.rnd.Float64()*2*e.cfg.Jitter
	return time.Duration(math.Round(float64(nominal) * f))
}

func (e *Engine) render(c Category, query string) string {
	templates := e.table.Templates(c)
	return templates[e.rnd.IntN(len(templates))].Render(query, e.rnd)
}

// TimerSleep blocks the calling goroutine for d or until ctx is done.
func TimerSleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }
func (globalRand) IntN(n int) int   { return rand.IntN(n) }

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}
