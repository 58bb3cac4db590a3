package cache

import (
	"context"
	"time"

	"enterprise-chatbot/internal/metrics"
	"enterprise-chatbot/pkg/logging/logging"

	"go.uber.org/zap"
)

// LoggingResponseCache wraps a ResponseCache with logging + metrics.
type LoggingResponseCache struct {
	inner   ResponseCache
	backend string
}

// NewLoggingResponseCache returns a cache that logs and records metrics.
func NewLoggingResponseCache(inner ResponseCache, backend string) ResponseCache {
	return &LoggingResponseCache{inner: inner, backend: backend}
}

func (c *LoggingResponseCache) Get(ctx context.Context, query string) (string, bool, error) {
	start := time.Now()
	value, ok, err := c.inner.Get(ctx, query)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	result := "miss"
	if err != nil {
		result = "error"
	} else if ok {
		result = "hit"
	}
	metrics.CacheLookupsTotal.WithLabelValues(c.backend, result).Inc()

	fields := []zap.Field{
		zap.String("cache_backend", c.backend),
		zap.String("hash_key", BuildQueryKey(query).Hash),
		zap.String("cache_result", result), // hit | miss | error
		zap.Float64("latency_ms", latencyMs),
	}

	logger := logging.L(ctx)
	if err != nil {
		logger.Error("response_cache_get", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("response_cache_get", fields...)
	}

	return value, ok, err
}

func (c *LoggingResponseCache) Set(ctx context.Context, query, response string) error {
	start := time.Now()
	err := c.inner.Set(ctx, query, response)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	fields := []zap.Field{
		zap.String("cache_backend", c.backend),
		zap.String("hash_key", BuildQueryKey(query).Hash),
		zap.Float64("latency_ms", latencyMs),
	}

	logger := logging.L(ctx)
	if err != nil {
		metrics.CacheWriteErrorsTotal.WithLabelValues(c.backend).Inc()
		logger.Error("response_cache_set", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("response_cache_set", fields...)
	}

	return err
}

func (c *LoggingResponseCache) Len(ctx context.Context) (int, error) {
	n, err := c.inner.Len(ctx)
	if err != nil {
		logging.L(ctx).Warn("response_cache_len", zap.String("cache_backend", c.backend), zap.Error(err))
		return n, err
	}
	metrics.CacheEntries.WithLabelValues(c.backend).Set(float64(n))
	return n, nil
}
