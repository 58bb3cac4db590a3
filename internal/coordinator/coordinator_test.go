package coordinator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"enterprise-chatbot/internal/cache"
	"enterprise-chatbot/internal/engine"
	"enterprise-chatbot/internal/scaler"
)

func noSleep(context.Context, time.Duration) {}

func newStack(t *testing.T, cfg Config, opts ...Option) (*Coordinator, *scaler.Controller) {
	t.Helper()
	logger := zaptest.NewLogger(t)

	eng, err := engine.New(engine.Config{}, cache.NewMemoryResponseCache(0),
		engine.WithRand(rand.New(rand.NewPCG(5, 6))),
		engine.WithSleeper(noSleep),
	)
	if err != nil {
		t.Fatal(err)
	}
	ctrl, err := scaler.New(scaler.Config{}, logger)
	if err != nil {
		t.Fatal(err)
	}
	c, err := New(cfg, eng, ctrl, append([]Option{WithLogger(logger)}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return c, ctrl
}

func TestHandleRecordsHistoryAndCounters(t *testing.T) {
	c, _ := newStack(t, Config{})
	ctx := context.Background()

	first := c.Handle(ctx, "What's the Q3 sales forecast?")
	second := c.Handle(ctx, "What's the Q3 sales forecast?")
	third := c.Handle(ctx, "random unrelated text")

	if first.Category != engine.Sales || !first.Optimized {
		t.Fatalf("unexpected first result %+v", first)
	}
	if !second.CacheHit || second.LatencyMs != 120 {
		t.Fatalf("expected 120ms cache hit, got %+v", second)
	}
	if third.Category != engine.General || third.Optimized {
		t.Fatalf("unexpected third result %+v", third)
	}

	hist := c.History(0)
	if len(hist) != 3 {
		t.Fatalf("expected 3 history records, got %d", len(hist))
	}
	if hist[0].QueryID != first.QueryID || hist[2].Query != "random unrelated text" {
		t.Fatalf("unexpected history %+v", hist)
	}

	st := c.Stats()
	if st.TotalQueries != 3 || st.OptimizedQueries != 2 {
		t.Fatalf("unexpected counters %+v", st)
	}
	if st.LatencySamples != 3 || len(c.Latencies()) != 3 {
		t.Fatalf("expected 3 latency samples, got %d", st.LatencySamples)
	}
	// 120ms cache hit is below the 400ms boundary, the general query above.
	if st.OptimizedBucket < 1 || st.BaselineBucket < 1 || st.OptimizedBucket+st.BaselineBucket != 3 {
		t.Fatalf("unexpected buckets %+v", st)
	}
	wantAvg := (first.LatencyMs + second.LatencyMs + third.LatencyMs) / 3
	if st.AverageLatencyMs != wantAvg {
		t.Fatalf("expected average %v, got %v", wantAvg, st.AverageLatencyMs)
	}
	if math.Abs(st.Load-0.6) > 1e-9 {
		t.Fatalf("unexpected load %v", st.Load)
	}
}

func TestHandleFillsHistoryAndDrivesScaling(t *testing.T) {
	c, ctrl := newStack(t, Config{})
	ctx := context.Background()

	var firstID string
	for i := range 500 {
		res := c.Handle(ctx, fmt.Sprintf("distinct question %d", i))
		if i == 0 {
			firstID = res.QueryID
		}
	}

	if got := c.Load(); got != 100 {
		t.Fatalf("expected load 100 with a full history, got %v", got)
	}
	if ctrl.Current() != 20 {
		t.Fatalf("expected sustained load to reach max instances, got %d", ctrl.Current())
	}

	hist := c.History(0)
	if len(hist) != 500 || hist[0].QueryID != firstID {
		t.Fatalf("expected full history starting with the first query")
	}

	last := c.Handle(ctx, "one more")
	hist = c.History(0)
	if len(hist) != 500 {
		t.Fatalf("history exceeded capacity: %d", len(hist))
	}
	for _, r := range hist {
		if r.QueryID == firstID {
			t.Fatal("expected first record to be evicted")
		}
	}
	if hist[len(hist)-1].QueryID != last.QueryID {
		t.Fatal("expected newest record at the end")
	}
	if c.Load() != 100 {
		t.Fatalf("expected load to plateau at 100, got %v", c.Load())
	}
	if st := c.Stats(); st.TotalQueries != 501 {
		t.Fatalf("expected 501 total queries, got %d", st.TotalQueries)
	}
}

func TestMaxLatenciesCap(t *testing.T) {
	c, _ := newStack(t, Config{MaxLatencies: 4})
	for i := range 10 {
		c.Handle(context.Background(), fmt.Sprint(i))
	}
	if n := len(c.Latencies()); n != 4 {
		t.Fatalf("expected 4 retained latencies, got %d", n)
	}
	if st := c.Stats(); st.TotalQueries != 10 {
		t.Fatalf("cap must not affect counters, got %d", st.TotalQueries)
	}
}

type fakeProcessor struct {
	delay time.Duration
}

func (f fakeProcessor) Process(ctx context.Context, query string) engine.Result {
	time.Sleep(f.delay)
	return engine.Result{Response: "ok", QueryID: query, Category: engine.General, LatencyMs: 1}
}

type countingMonitor struct {
	mu    sync.Mutex
	loads []float64
}

func (m *countingMonitor) Monitor(load float64) scaler.Decision {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads = append(m.loads, load)
	return scaler.Decision{Instances: 5, Load: load}
}

func TestHandleConcurrentCallsLoseNoUpdates(t *testing.T) {
	mon := &countingMonitor{}
	c, err := New(Config{HistoryCapacity: 100}, fakeProcessor{delay: time.Millisecond}, mon)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Handle(context.Background(), fmt.Sprint(i))
		}()
	}
	wg.Wait()

	st := c.Stats()
	if st.TotalQueries != 50 || st.HistorySize != 50 {
		t.Fatalf("expected 50 queries recorded, got %+v", st)
	}
	if len(mon.loads) != 50 {
		t.Fatalf("expected 50 monitor calls, got %d", len(mon.loads))
	}
	// loads are computed under the coordinator lock, so they are strictly increasing
	for i := 1; i < len(mon.loads); i++ {
		if mon.loads[i] <= mon.loads[i-1] {
			t.Fatalf("load sequence not increasing at %d: %v", i, mon.loads)
		}
	}
}

type fakeSink struct {
	mu       sync.Mutex
	queries  []Record
	scalings []scaler.Decision
	err      error
}

func (s *fakeSink) RecordQuery(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, rec)
	return s.err
}

func (s *fakeSink) RecordScaling(_ context.Context, d scaler.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scalings = append(s.scalings, d)
	return s.err
}

func TestHandleForwardsToSink(t *testing.T) {
	sink := &fakeSink{}
	c, _ := newStack(t, Config{HistoryCapacity: 2}, WithSink(sink))

	c.Handle(context.Background(), "a") // load 50, no-op
	c.Handle(context.Background(), "b") // load 100, scale out

	if len(sink.queries) != 2 {
		t.Fatalf("expected 2 forwarded queries, got %d", len(sink.queries))
	}
	if len(sink.scalings) != 1 || sink.scalings[0].Text != "Scaling OUT from 5 to 7" {
		t.Fatalf("expected one forwarded scale out, got %+v", sink.scalings)
	}
}

func TestHandleIgnoresSinkErrors(t *testing.T) {
	sink := &fakeSink{err: errors.New("disk full")}
	c, _ := newStack(t, Config{}, WithSink(sink))

	res := c.Handle(context.Background(), "sales")
	if res.Response == "" {
		t.Fatal("expected a result despite sink errors")
	}
	if c.Stats().TotalQueries != 1 {
		t.Fatal("expected in-memory state to be updated")
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Config{}, nil, &countingMonitor{}); err == nil {
		t.Fatal("expected error without processor")
	}
}
