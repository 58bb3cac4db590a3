package cache

import (
	"context"
)

// ResponseCache maps an exact raw query string to a previously synthesized
// response. Keys are not normalized: "Sales?" and "sales?" are different
// entries.
// Implemented by memory cache (dev, single replica) and Redis cache (shared).
type ResponseCache interface {
	Get(ctx context.Context, query string) (string, bool, error)
	Set(ctx context.Context, query, response string) error
	Len(ctx context.Context) (int, error)
}

// Pinger is implemented by backends that can check their connection.
type Pinger interface {
	Ping(ctx context.Context) error
}
