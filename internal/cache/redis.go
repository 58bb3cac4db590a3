package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisResponseCache implements ResponseCache using Redis. Entries are
// written without expiry to match the memory backend.
type RedisResponseCache struct {
	client *redis.Client
	prefix string
}

type RedisConfig struct {
	Prefix string
}

// NewRedisResponseCache creates a Redis-backed cache.
func NewRedisResponseCache(client *redis.Client, config RedisConfig) *RedisResponseCache {
	return &RedisResponseCache{
		client: client,
		prefix: config.Prefix,
	}
}

// key builds the final Redis key with prefix.
func (c *RedisResponseCache) key(query string) string {
	k := BuildQueryKey(query).String()
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}

func (c *RedisResponseCache) pattern() string {
	if c.prefix == "" {
		return "exact:*"
	}
	return c.prefix + ":exact:*"
}

// Get retrieves a response from Redis.
// On Redis error, it returns ("", false, err) so caller can log and treat as miss.
func (c *RedisResponseCache) Get(ctx context.Context, query string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, fmt.Errorf("context error: %w", err)
	}

	res, err := c.client.Get(ctx, c.key(query)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get failed: %w", err)
	}

	return res, true, nil
}

// Set stores a response in Redis with no TTL.
func (c *RedisResponseCache) Set(ctx context.Context, query, response string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	if err := c.client.Set(ctx, c.key(query), response, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}

	return nil
}

// Len counts cached entries under the prefix with SCAN.
func (c *RedisResponseCache) Len(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("context error: %w", err)
	}

	n := 0
	iter := c.client.Scan(ctx, 0, c.pattern(), 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan failed: %w", err)
	}
	return n, nil
}

// Ping checks if Redis connection is healthy.
func (c *RedisResponseCache) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	return c.client.Ping(ctx).Err()
}
