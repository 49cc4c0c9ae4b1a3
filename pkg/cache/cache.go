// Package cache provides byte-level caches for partitions, tile results and
// stitched outputs.
//
// Four backends implement [Cache]:
//   - [NullCache] never stores anything (caching disabled)
//   - [MemoryCache] keeps entries in process memory
//   - [FileCache] stores entries under a directory (CLI default)
//   - [RedisCache] shares entries between processes and machines, so tile
//     results written by one worker can be reused by another
//
// Keys are produced by a [Keyer]. [ScopedKeyer] prefixes every key, which
// keeps different projects or tenants apart in a shared Redis instance.
package cache

import (
	"context"
	"time"
)

// Common TTLs.
const (
	// TTLResult is how long tile results stay reusable.
	TTLResult = 7 * 24 * time.Hour
	// TTLStitched is how long stitched outputs are kept.
	TTLStitched = 24 * time.Hour
	// TTLPartition is how long rendered partition layouts are kept. Layouts
	// depend only on geometry, so they never go stale.
	TTLPartition = 30 * 24 * time.Hour
)

// Cache stores opaque byte values by key.
type Cache interface {
	// Get returns the value and true on a hit, or nil and false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value. A ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes a value; deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases resources held by the cache.
	Close() error
}
