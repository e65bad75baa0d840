package providers

import (
	"context"
	"time"
)

// CacheProvider is the read-model cache behind the visit status endpoint.
type CacheProvider interface {
	// Get retrieves a value from cache. A miss returns (nil, nil).
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with the given TTL
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache
	Delete(ctx context.Context, key string) error
}
