package out

import (
	"context"
	"time"
)

// Cache defines the outbound port for the L2 cache tier (§4.4). A nil Cache
// is valid and means the bridge runs with the in-process L1 tier only.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Scan lists keys matching pattern, for folder/summary cache invalidation.
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// DistributedWindow defines the outbound port for a shared sliding-window
// counter backing §4.3's distributed rate-limiter tier.
type DistributedWindow interface {
	// Incr records one admission at "now" and returns the count of
	// admissions within the trailing window.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}
