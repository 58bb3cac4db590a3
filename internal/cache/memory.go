package cache

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"enterprise-chatbot/internal/metrics"
)

// MemoryResponseCache keeps responses in process memory.
// With maxEntries == 0 it is a plain map that never evicts and grows with
// every distinct category-matched query. A positive maxEntries switches to
// an LRU of that size.
type MemoryResponseCache struct {
	mu    sync.RWMutex
	items map[string]string

	lru *lru.Cache[string, string]
}

// create new in-memory cache
// maxEntries <= 0 disables eviction

func NewMemoryResponseCache(maxEntries int) *MemoryResponseCache {
	if maxEntries <= 0 {
		return &MemoryResponseCache{items: make(map[string]string)}
	}

	onEvict := func(string, string) {
		metrics.CacheEvictionsTotal.WithLabelValues("memory").Inc()
	}
	// NewWithEvict only fails for a non-positive size.
	l, err := lru.NewWithEvict[string, string](maxEntries, onEvict)
	if err != nil {
		panic(err)
	}
	return &MemoryResponseCache{lru: l}
}

// Get retrieves the response cached for query.
func (c *MemoryResponseCache) Get(_ context.Context, query string) (string, bool, error) {
	if c.lru != nil {
		v, ok := c.lru.Get(query)
		return v, ok, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[query]
	return v, ok, nil
}

// Set stores response under query, replacing any previous value.
func (c *MemoryResponseCache) Set(_ context.Context, query, response string) error {
	if c.lru != nil {
		c.lru.Add(query, response)
		return nil
	}

	c.mu.Lock()
	c.items[query] = response
	c.mu.Unlock()
	return nil
}

// Len returns the number of cached queries.
func (c *MemoryResponseCache) Len(_ context.Context) (int, error) {
	if c.lru != nil {
		return c.lru.Len(), nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items), nil
}
