// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without adding hard dependencies
// on specific observability backends. Consumers can register hooks at startup
// to receive events about partitioning, tile execution, stitching, cache
// operations and API requests.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Allow registration of custom implementations at startup
//
// Hooks are registered by main, not by libraries, which avoids import cycles
// and keeps the core packages free of metrics frameworks.
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetJobHooks(&myJobHooks{})
//	    observability.SetCacheHooks(&myCacheHooks{})
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Job().OnTileStart(ctx, jobID, tileKey)
//	// ... read and apply ...
//	observability.Job().OnTileComplete(ctx, jobID, tileKey, duration, err)
//
// Hooks may be called concurrently from many tile workers.
package observability

import (
	"context"
	"sync/atomic"
	"time"
)

// =============================================================================
// Job Hooks
// =============================================================================

// JobHooks receives events from partitioning, tile execution and stitching.
type JobHooks interface {
	// OnPartition records that a new partition was built.
	OnPartition(ctx context.Context, key string, tiles int)

	// Tile events
	OnTileStart(ctx context.Context, jobID, tile string)
	OnTileComplete(ctx context.Context, jobID, tile string, duration time.Duration, err error)

	// Stitch events
	OnStitchStart(ctx context.Context, jobID, policy string, tiles int)
	OnStitchComplete(ctx context.Context, jobID, policy string, duration time.Duration, err error)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache operations.
type CacheHooks interface {
	// OnCacheHit records a cache hit.
	OnCacheHit(ctx context.Context, keyType string)

	// OnCacheMiss records a cache miss.
	OnCacheMiss(ctx context.Context, keyType string)

	// OnCacheSet records a cache write.
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// HTTP Hooks
// =============================================================================

// HTTPHooks receives events from the HTTP API server.
type HTTPHooks interface {
	// OnRequest records an incoming HTTP request.
	OnRequest(ctx context.Context, method, path string)

	// OnResponse records the response written for a request.
	OnResponse(ctx context.Context, method, path string, statusCode int, duration time.Duration)

	// OnError records a request that ended in an error response.
	OnError(ctx context.Context, method, path string, err error)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopJobHooks is a no-op implementation of JobHooks.
type NoopJobHooks struct{}

func (NoopJobHooks) OnPartition(context.Context, string, int)                               {}
func (NoopJobHooks) OnTileStart(context.Context, string, string)                            {}
func (NoopJobHooks) OnTileComplete(context.Context, string, string, time.Duration, error)   {}
func (NoopJobHooks) OnStitchStart(context.Context, string, string, int)                     {}
func (NoopJobHooks) OnStitchComplete(context.Context, string, string, time.Duration, error) {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// NoopHTTPHooks is a no-op implementation of HTTPHooks.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string)                      {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, int, time.Duration) {}
func (NoopHTTPHooks) OnError(context.Context, string, string, error)                 {}

// =============================================================================
// Global Hook Registry
// =============================================================================

// slot holds one registered hook set. Tile workers read it on every tile, so
// reads are a single atomic load.
type slot[T any] struct {
	p atomic.Pointer[T]
}

func (s *slot[T]) get(def T) T {
	if p := s.p.Load(); p != nil {
		return *p
	}
	return def
}

func (s *slot[T]) set(h T) { s.p.Store(&h) }

var (
	jobHooks   slot[JobHooks]
	cacheHooks slot[CacheHooks]
	httpHooks  slot[HTTPHooks]
)

// SetJobHooks registers job hooks. A nil h is ignored; use NoopJobHooks{}
// to unregister.
func SetJobHooks(h JobHooks) {
	if h != nil {
		jobHooks.set(h)
	}
}

// SetCacheHooks registers cache hooks. A nil h is ignored.
func SetCacheHooks(h CacheHooks) {
	if h != nil {
		cacheHooks.set(h)
	}
}

// SetHTTPHooks registers HTTP hooks. A nil h is ignored.
func SetHTTPHooks(h HTTPHooks) {
	if h != nil {
		httpHooks.set(h)
	}
}

// Job returns the registered job hooks.
func Job() JobHooks { return jobHooks.get(NoopJobHooks{}) }

// Cache returns the registered cache hooks.
func Cache() CacheHooks { return cacheHooks.get(NoopCacheHooks{}) }

// HTTP returns the registered HTTP hooks.
func HTTP() HTTPHooks { return httpHooks.get(NoopHTTPHooks{}) }

// Reset restores the no-op defaults. Tests use it to clean up.
func Reset() {
	jobHooks.p.Store(nil)
	cacheHooks.p.Store(nil)
	httpHooks.p.Store(nil)
}
