package pipeline

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"

	"github.com/matzehuels/tilestitch/pkg/cache"
	"github.com/matzehuels/tilestitch/pkg/config"
	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/job"
	"github.com/matzehuels/tilestitch/pkg/ndarray"
	"github.com/matzehuels/tilestitch/pkg/source"
	"github.com/matzehuels/tilestitch/pkg/stitch"
	"github.com/matzehuels/tilestitch/pkg/tile"
)

type countingFunc struct {
	calls atomic.Int32
	fail  tile.Index
}

func (f *countingFunc) Apply(_ context.Context, data *ndarray.Array, t tile.Tile) (tile.Value, error) {
	f.calls.Add(1)
	if f.fail != nil && t.Index.Equal(f.fail) {
		return tile.Value{}, stderrors.New("boom")
	}
	return tile.ArrayValue(data), nil
}

func testImage() *ndarray.Array {
	a := ndarray.New(ndarray.Uint8, 100, 100)
	for i := range a.Data() {
		a.Data()[i] = float64(i % 200)
	}
	return a
}

func newTestRunner() *Runner {
	r := NewRunner(cache.NewMemoryCache(), nil, nil)
	r.Partitions = tile.NewRegistry()
	return r
}

func testOptions(img *ndarray.Array, fn job.Func) Options {
	return Options{
		Job:      config.Job{TileShape: []int{60, 60}, Overlap: []float64{20}},
		Source:   source.FromArray(img),
		Func:     fn,
		SourceID: "memory://test",
		FuncName: "identity",
	}
}

func TestOptionsValidate(t *testing.T) {
	img := testImage()
	tests := []struct {
		name string
		opts Options
		code errors.Code
	}{
		{"valid", testOptions(img, &countingFunc{}), ""},
		{"no source", Options{Job: config.Job{TileShape: []int{8}}, Func: &countingFunc{}}, errors.ErrCodeInvalidInput},
		{"no func", Options{Job: config.Job{TileShape: []int{8}}, Source: source.FromArray(img)}, errors.ErrCodeInvalidInput},
		{"bad geometry", Options{Job: config.Job{TileShape: []int{0}}}, errors.ErrCodeInvalidTileSpec},
		{"bad func name", Options{Job: config.Job{TileShape: []int{8}}, Source: source.FromArray(img), Func: &countingFunc{}, FuncName: "Blur!"}, errors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.ValidateAndSetDefaults()
			if tt.code == "" {
				if err != nil {
					t.Fatalf("ValidateAndSetDefaults() = %v", err)
				}
				if tt.opts.Logger == nil {
					t.Error("Logger default not set")
				}
				return
			}
			if !errors.Is(err, tt.code) {
				t.Errorf("ValidateAndSetDefaults() = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestOptionsValidateAndSetDefaultsIdempotent(t *testing.T) {
	opts := testOptions(testImage(), &countingFunc{})
	if err := opts.ValidateAndSetDefaults(); err != nil {
		t.Fatal(err)
	}
	logger := opts.Logger
	if err := opts.ValidateAndSetDefaults(); err != nil {
		t.Fatal(err)
	}
	if opts.Logger != logger {
		t.Error("second call replaced the logger")
	}
}

func TestFingerprint(t *testing.T) {
	a := testOptions(testImage(), nil)
	b := testOptions(testImage(), nil)
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("equal options have different fingerprints")
	}
	b.Job.Overlap = []float64{10}
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("overlap does not change the fingerprint")
	}
	c := testOptions(testImage(), nil)
	c.Job.Blend = "linear"
	if a.Fingerprint() != c.Fingerprint() {
		t.Error("stitch options must not change the tile fingerprint")
	}
}

func TestExecute(t *testing.T) {
	img := testImage()
	fn := &countingFunc{}
	r := newTestRunner()

	res, err := r.Execute(context.Background(), testOptions(img, fn))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Stitched.Value.Array.Equal(img) {
		t.Error("stitched output differs from the input")
	}
	if res.Stats.TileCount != 4 || res.Stats.Computed != 4 || res.Seq != 1 {
		t.Errorf("stats = %+v seq = %d", res.Stats, res.Seq)
	}
	if res.Stitched.Policy != stitch.PolicyArrayBlend {
		t.Errorf("policy = %s", res.Stitched.Policy)
	}

	// Same job again: the stitched output comes from the cache.
	again, err := r.Execute(context.Background(), testOptions(img, fn))
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if !again.CacheInfo.StitchHit || !again.CacheInfo.PartitionHit || fn.calls.Load() != 4 {
		t.Errorf("cache info = %+v, calls = %d", again.CacheInfo, fn.calls.Load())
	}
	if !again.Stitched.Value.Array.Equal(img) {
		t.Error("cached stitched output differs from the input")
	}
	if again.Seq != 2 {
		t.Errorf("second job seq = %d, want 2", again.Seq)
	}

	// A different blend reuses the stored tiles.
	opts := testOptions(img, fn)
	opts.Job.Blend = "linear"
	linear, err := r.Execute(context.Background(), opts)
	if err != nil {
		t.Fatalf("linear Execute: %v", err)
	}
	if linear.Stats.Reused != 4 || fn.calls.Load() != 4 {
		t.Errorf("reused = %d, calls = %d", linear.Stats.Reused, fn.calls.Load())
	}

	jobs := r.Jobs(res.Partition.Key())
	if len(jobs) != 3 || jobs[0].Status != StatusDone || jobs[2].Seq != 3 {
		t.Errorf("job log = %+v", jobs)
	}
}

func TestExecuteRefresh(t *testing.T) {
	img := testImage()
	fn := &countingFunc{}
	r := newTestRunner()
	if _, err := r.Execute(context.Background(), testOptions(img, fn)); err != nil {
		t.Fatal(err)
	}
	opts := testOptions(img, fn)
	opts.Refresh = true
	res, err := r.Execute(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if res.CacheInfo.StitchHit || res.Stats.Computed != 4 || fn.calls.Load() != 8 {
		t.Errorf("refresh: %+v, calls = %d", res.Stats, fn.calls.Load())
	}
}

func TestExecuteTileFailure(t *testing.T) {
	img := testImage()
	fn := &countingFunc{fail: tile.Index{0, 1}}
	r := newTestRunner()

	res, err := r.Execute(context.Background(), testOptions(img, fn))
	if !errors.Is(err, errors.ErrCodeTileComputation) {
		t.Fatalf("Execute() error = %v, want TILE_COMPUTATION", err)
	}
	tce, ok := errors.AsTileComputation(err)
	if !ok || len(tce.Failures) != 1 {
		t.Fatalf("failures = %+v", tce)
	}
	if res == nil || res.Stitched != nil || len(res.Tiles.Results) != 3 || res.Stats.Failed != 1 {
		t.Fatalf("partial result = %+v", res)
	}

	// Fixing the function recomputes only the failed tile.
	fn.fail = nil
	fn.calls.Store(0)
	res, err = r.Execute(context.Background(), testOptions(img, fn))
	if err != nil {
		t.Fatalf("retry Execute: %v", err)
	}
	if fn.calls.Load() != 1 || res.Stats.Reused != 3 {
		t.Errorf("calls = %d, reused = %d", fn.calls.Load(), res.Stats.Reused)
	}
	if jobs := r.Jobs(res.Partition.Key()); jobs[0].Status != StatusFailed || jobs[1].Status != StatusDone {
		t.Errorf("job log = %+v", jobs)
	}
}

func TestExecuteCancelled(t *testing.T) {
	r := newTestRunner()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := r.Execute(ctx, testOptions(testImage(), &countingFunc{}))
	if !stderrors.Is(err, context.Canceled) || res != nil {
		t.Fatalf("Execute(cancelled) = %v, %v", res, err)
	}
}

func TestExecuteUnknownPolicy(t *testing.T) {
	fn := &countingFunc{}
	opts := testOptions(testImage(), fn)
	opts.Job.Policy = "median"
	_, err := newTestRunner().Execute(context.Background(), opts)
	if !errors.Is(err, errors.ErrCodeInvalidConfig) || fn.calls.Load() != 0 {
		t.Errorf("Execute() = %v, calls = %d", err, fn.calls.Load())
	}
}

func TestPlan(t *testing.T) {
	r := newTestRunner()
	opts := Options{Job: config.Job{TileShape: []int{60, 60}, Overlap: []float64{20}}}
	p, err := r.Plan(context.Background(), []int{100, 100}, opts)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if p.Len() != 4 || r.Partitions.Len() != 1 {
		t.Errorf("tiles = %d, registry = %d", p.Len(), r.Partitions.Len())
	}
	if _, err := r.Plan(context.Background(), []int{100, 100}, Options{Job: config.Job{TileShape: []int{60}, Overlap: []float64{60}}}); !errors.Is(err, errors.ErrCodeInvalidTileSpec) {
		t.Errorf("Plan(bad) = %v", err)
	}
}
