package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"enterprise-chatbot/internal/engine"
	"enterprise-chatbot/internal/metrics"
	"enterprise-chatbot/internal/scaler"
	"enterprise-chatbot/pkg/logging/logging"
)

// Processor answers a single query.
type Processor interface {
	Process(ctx context.Context, query string) engine.Result
}

// Monitor turns a load percentage into a scaling decision.
type Monitor interface {
	Monitor(load float64) scaler.Decision
}

// Sink receives a copy of every history record and committed scaling
// decision. It is never consulted for reads.
type Sink interface {
	RecordQuery(ctx context.Context, rec Record) error
	RecordScaling(ctx context.Context, d scaler.Decision) error
}

type Config struct {
	HistoryCapacity int     // default: 500
	MaxLatencies    int     // retained latency samples, 0 = unbounded
	BucketBoundary  float64 // ms splitting the optimized and baseline buckets (default: 400)
}

// Coordinator runs the per-query cycle: process, record, derive load,
// feed the scaling controller. It owns the query history and counters.
type Coordinator struct {
	cfg    Config
	engine Processor
	scaler Monitor
	sink   Sink
	now    func() time.Time
	logger *zap.Logger

	mu        sync.Mutex
	history   *History
	total     int
	optimized int
	latencies []float64
	load      float64
}

type Option func(*Coordinator)

func WithSink(s Sink) Option {
	return func(c *Coordinator) { c.sink = s }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New wires a coordinator around p and m.
func New(cfg Config, p Processor, m Monitor, opts ...Option) (*Coordinator, error) {
	if p == nil || m == nil {
		return nil, errors.New("coordinator: processor and monitor are required")
	}
	if cfg.HistoryCapacity <= 0 {
		cfg.HistoryCapacity = 500
	}
	if cfg.MaxLatencies < 0 {
		cfg.MaxLatencies = 0
	}
	if cfg.BucketBoundary <= 0 {
		cfg.BucketBoundary = 400
	}

	c := &Coordinator{
		cfg:     cfg,
		engine:  p,
		scaler:  m,
		now:     time.Now,
		logger:  zap.NewNop(),
		history: NewHistory(cfg.HistoryCapacity),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("coordinator")
	return c, nil
}

// Handle processes query and performs the bookkeeping. History order is
// completion order: a slow query finishing after a fast one is recorded
// after it.
func (c *Coordinator) Handle(ctx context.Context, query string) engine.Result {
	res := c.engine.Process(ctx, query)
	rec := Record{Timestamp: c.now(), Query: query, Result: res}

	c.mu.Lock()
	c.history.Push(rec)
	c.total++
	if res.Optimized {
		c.optimized++
	}
	c.latencies = append(c.latencies, res.LatencyMs)
	if c.cfg.MaxLatencies > 0 && len(c.latencies) > c.cfg.MaxLatencies {
		c.latencies = append(c.latencies[:0:0], c.latencies[len(c.latencies)-c.cfg.MaxLatencies:]...)
	}
	// Occupancy of the history, not a throughput measure: it climbs to 100
	// as the ring fills and stays there.
	load := float64(c.history.Len()) / float64(c.history.Cap()) * 100
	c.load = load
	decision := c.scaler.Monitor(load)
	c.mu.Unlock()

	metrics.LoadPercent.Set(load)

	if c.sink != nil {
		c.forward(ctx, rec, decision)
	}

	return res
}

func (c *Coordinator) forward(ctx context.Context, rec Record, d scaler.Decision) {
	logger, ok := logging.Lookup(ctx)
	if !ok {
		logger = c.logger
	}
	ctx = context.WithoutCancel(ctx)

	if err := c.sink.RecordQuery(ctx, rec); err != nil {
		logger.Warn("audit_record_query_failed", zap.String("query_id", rec.QueryID), zap.Error(err))
	}
	if d.Scaled() {
		if err := c.sink.RecordScaling(ctx, d); err != nil {
			logger.Warn("audit_record_scaling_failed", zap.String("decision", d.Text), zap.Error(err))
		}
	}
}

// History returns the newest limit records (all when limit <= 0), oldest first.
func (c *Coordinator) History(limit int) []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Snapshot(limit)
}

// Latencies returns a copy of the retained latency samples in ms.
func (c *Coordinator) Latencies() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]float64, len(c.latencies))
	copy(out, c.latencies)
	return out
}

// Load returns the last load percentage fed to the scaling controller.
func (c *Coordinator) Load() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load
}

// Stats aggregates the counters and latency samples.
type Stats struct {
	TotalQueries     int     `json:"total_queries"`
	OptimizedQueries int     `json:"optimized_queries"`
	OptimizationRate float64 `json:"optimization_rate"`
	AverageLatencyMs float64 `json:"average_latency_ms"`
	LatencySamples   int     `json:"latency_samples"`
	BucketBoundaryMs float64 `json:"bucket_boundary_ms"`
	OptimizedBucket  int     `json:"optimized_bucket"` // samples below the boundary
	BaselineBucket   int     `json:"baseline_bucket"`  // samples at or above it
	HistorySize      int     `json:"history_size"`
	HistoryCapacity  int     `json:"history_capacity"`
	Load             float64 `json:"load"`
}

func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		TotalQueries:     c.total,
		OptimizedQueries: c.optimized,
		LatencySamples:   len(c.latencies),
		BucketBoundaryMs: c.cfg.BucketBoundary,
		HistorySize:      c.history.Len(),
		HistoryCapacity:  c.history.Cap(),
		Load:             c.load,
	}
	if c.total > 0 {
		s.OptimizationRate = float64(c.optimized) / float64(c.total)
	}

	var sum float64
	for _, l := range c.latencies {
		sum += l
		if l < c.cfg.BucketBoundary {
			s.OptimizedBucket++
		} else {
			s.BaselineBucket++
		}
	}
	if len(c.latencies) > 0 {
		s.AverageLatencyMs = sum / float64(len(c.latencies))
	}
	return s
}
