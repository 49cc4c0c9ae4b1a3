package tile

import (
	"context"
	"sync"

	"github.com/matzehuels/tilestitch/pkg/geometry"
	"github.com/matzehuels/tilestitch/pkg/observability"
)

// Registry caches partitions by geometry key.
// The zero value is not usable; use NewRegistry or Shared.
type Registry struct {
	mu    sync.Mutex
	parts map[string]*Partition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{parts: make(map[string]*Partition)}
}

var shared = NewRegistry()

// Shared returns the process-wide registry.
func Shared() *Registry { return shared }

// Get returns the cached partition for the geometry, building and caching it
// on first use. Build errors are not cached.
func (r *Registry) Get(ctx context.Context, shape, tileShape []int, overlap []float64, mode geometry.OverlapMode) (*Partition, error) {
	key := Key(shape, tileShape, overlap, mode)

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.parts[key]; ok {
		observability.Cache().OnCacheHit(ctx, "partition")
		return p, nil
	}
	observability.Cache().OnCacheMiss(ctx, "partition")

	p, err := Build(shape, tileShape, overlap, mode)
	if err != nil {
		return nil, err
	}
	r.parts[key] = p
	observability.Job().OnPartition(ctx, key, p.Len())
	return p, nil
}

// Lookup returns a cached partition without building.
func (r *Registry) Lookup(key string) (*Partition, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.parts[key]
	return p, ok
}

// Len returns the number of cached partitions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.parts)
}

// Clear drops every cached partition.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.parts)
}
