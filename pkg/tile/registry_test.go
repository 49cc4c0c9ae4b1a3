package tile

import (
	"context"
	"sync"
	"testing"

	"github.com/matzehuels/tilestitch/pkg/geometry"
)

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()

	p1, err := r.Get(ctx, []int{100, 100}, []int{60, 60}, []float64{20}, geometry.OverlapAbsolute)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	p2, _ := r.Get(ctx, []int{100, 100}, []int{60, 60}, []float64{20}, "")
	if p1 != p2 {
		t.Error("same geometry should return the cached partition")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}

	p3, _ := r.Get(ctx, []int{100, 100}, []int{60, 60}, []float64{10}, geometry.OverlapAbsolute)
	if p3 == p1 || r.Len() != 2 {
		t.Error("different overlap should build a new partition")
	}

	if _, ok := r.Lookup(p1.Key()); !ok {
		t.Error("Lookup() should find a cached key")
	}

	r.Clear()
	if r.Len() != 0 {
		t.Errorf("Len() after Clear = %d", r.Len())
	}
	p4, _ := r.Get(ctx, []int{100, 100}, []int{60, 60}, []float64{20}, geometry.OverlapAbsolute)
	if p4 == p1 {
		t.Error("Clear() should drop cached partitions")
	}
}

func TestRegistryErrorsNotCached(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get(context.Background(), []int{100}, []int{10}, []float64{10}, geometry.OverlapAbsolute); err == nil {
		t.Fatal("Get() should fail when tile <= overlap")
	}
	if r.Len() != 0 {
		t.Errorf("failed builds should not be cached, Len() = %d", r.Len())
	}
}

func TestRegistryConcurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	parts := make([]*Partition, 32)
	for i := range parts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			parts[i], _ = r.Get(context.Background(), []int{512, 512}, []int{128, 128}, []float64{16}, geometry.OverlapAbsolute)
		}()
	}
	wg.Wait()
	for _, p := range parts {
		if p != parts[0] {
			t.Fatal("concurrent Get() should share one partition")
		}
	}
}
