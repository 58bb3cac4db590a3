package cache

import (
	"github.com/redis/go-redis/v9"
)

type Config struct {
	Backend    string
	Prefix     string
	MaxEntries int
}

func NewResponseCache(cfg Config, redisClient *redis.Client) ResponseCache {
	switch cfg.Backend {
	case "redis":
		return NewRedisResponseCache(redisClient, RedisConfig{
			Prefix: cfg.Prefix,
		})
	default:
		return NewMemoryResponseCache(cfg.MaxEntries)
	}
}
