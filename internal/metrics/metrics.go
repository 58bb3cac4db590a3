package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Counter: queries handled, by category and path (optimized | base | cached).
	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbot_queries_total",
			Help: "Total number of queries handled by the engine.",
		},
		[]string{"category", "path"},
	)

	// Histogram: simulated processing latency reported per query, in seconds.
	SimulatedLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatbot_simulated_latency_seconds",
			Help:    "Simulated processing latency per query in seconds.",
			Buckets: []float64{0.05, 0.1, 0.15, 0.25, 0.35, 0.4, 0.5, 0.6, 0.75, 1},
		},
		[]string{"path"},
	)

	// Counter: response cache lookups by backend and result (hit | miss | error).
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbot_cache_lookups_total",
			Help: "Total number of response cache lookups.",
		},
		[]string{"backend", "result"},
	)

	CacheWriteErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbot_cache_write_errors_total",
			Help: "Total number of failed response cache writes.",
		},
		[]string{"backend"},
	)

	// Counter: entries removed by the memory backend's LRU cap.
	CacheEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbot_cache_evictions_total",
			Help: "Total number of response cache entries evicted by the size cap.",
		},
		[]string{"backend"},
	)

	CacheEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chatbot_cache_entries",
			Help: "Number of cached responses at last observation.",
		},
		[]string{"backend"},
	)

	// Gauge: instance count held by the scaling controller.
	CurrentInstances = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatbot_current_instances",
			Help: "Current number of instances chosen by the scaling controller.",
		},
	)

	// Counter: committed scaling transitions by direction (out | in).
	ScalingEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbot_scaling_events_total",
			Help: "Total number of committed scaling transitions.",
		},
		[]string{"direction"},
	)

	// Gauge: last load percentage fed to the scaling controller.
	LoadPercent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatbot_load_percent",
			Help: "History occupancy load proxy fed to the scaling controller.",
		},
	)

	// Histogram: gateway HTTP latency in seconds.
	HTTPLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatbot_http_latency_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method", "status_code"},
	)
)

// Register is called once in main() to register metrics.
func Register() {
	prometheus.MustRegister(
		QueriesTotal,
		SimulatedLatencySeconds,
		CacheLookupsTotal,
		CacheWriteErrorsTotal,
		CacheEvictionsTotal,
		CacheEntries,
		CurrentInstances,
		ScalingEventsTotal,
		LoadPercent,
		HTTPLatencySeconds,
	)
}

// Handler exposes the /metrics endpoint for Prometheus to scrape.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware measures HTTP latency for each request. Routes are labelled by
// their chi pattern so query strings and ids do not explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rec := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}

		HTTPLatencySeconds.
			WithLabelValues(route, r.Method, strconv.Itoa(rec.statusCode)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}
