package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/tilestitch/pkg/cache"
	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/job"
	"github.com/matzehuels/tilestitch/pkg/stitch"
	"github.com/matzehuels/tilestitch/pkg/tile"
)

// Runner encapsulates pipeline execution with caching.
// Both CLI and API use this to avoid duplicating caching logic.
//
// Apart from the cache and the job log the Runner keeps no state between
// runs. Multiple goroutines can safely use the same Runner with different
// options.
type Runner struct {
	Partitions *tile.Registry
	Cache      cache.Cache
	Keyer      cache.Keyer
	Logger     *log.Logger

	// Backend runs tile units. Nil means a LocalBackend sized by the job's
	// concurrency option.
	Backend job.Backend

	Engine *stitch.Engine

	mu   sync.Mutex
	jobs map[string][]JobRecord // partition key -> jobs in start order
}

// JobRecord is one entry of the job log kept per partition.
type JobRecord struct {
	ID        string    `json:"id"`
	Seq       int       `json:"seq"`
	Partition string    `json:"partition"`
	Started   time.Time `json:"started"`
	Status    string    `json:"status"`
}

// Job statuses.
const (
	StatusRunning   = "running"
	StatusDone      = "done"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Partitions: tile.Shared(),
		Cache:      c,
		Keyer:      keyer,
		Logger:     logger,
		Engine:     stitch.NewEngine(),
		jobs:       make(map[string][]JobRecord),
	}
}

// Plan builds (or fetches) the partition for a source of the given shape.
func (r *Runner) Plan(ctx context.Context, shape []int, opts Options) (*tile.Partition, error) {
	p, _, err := r.plan(ctx, shape, opts)
	return p, err
}

func (r *Runner) plan(ctx context.Context, shape []int, opts Options) (*tile.Partition, bool, error) {
	if err := opts.ValidateForPlan(); err != nil {
		return nil, false, err
	}
	key := tile.Key(shape, opts.Job.TileShape, opts.Job.Overlap, opts.Job.Mode())
	_, hit := r.Partitions.Lookup(key)
	p, err := r.Partitions.Get(ctx, shape, opts.Job.TileShape, opts.Job.Overlap, opts.Job.Mode())
	if err != nil {
		return nil, false, err
	}
	return p, hit, nil
}

// Execute runs the complete partition → run → stitch pipeline with caching.
//
// When some tiles fail, Execute returns the partial Result (Tiles set,
// Stitched nil) together with an error wrapping *errors.TileComputationError.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	logger := r.Logger

	sc := opts.Job.StitchConfig()
	if sc.Policy != "" {
		if _, ok := r.Engine.Policy(sc.Policy); !ok {
			return nil, fmt.Errorf("invalid options: %w",
				errors.New(errors.ErrCodeInvalidConfig, "unknown stitch policy %q (have %v)", sc.Policy, r.Engine.Policies()))
		}
	}

	// Stage 1: Partition
	start := time.Now()
	p, partHit, err := r.plan(ctx, opts.Source.Shape(), opts)
	if err != nil {
		return nil, fmt.Errorf("partition: %w", err)
	}
	result := &Result{Partition: p}
	result.Stats.PartitionTime = time.Since(start)
	result.Stats.TileCount = p.Len()
	result.CacheInfo.PartitionHit = partHit

	logger.Info("partitioned",
		"grid", p.Grid(),
		"tiles", p.Len(),
		"duration", result.Stats.PartitionTime)

	var jobOpts []job.Option
	id := uuid.New()
	jobOpts = append(jobOpts, job.WithID(id), job.WithLogger(logger))
	fp := opts.Fingerprint()
	if opts.Reusable() {
		var store job.ResultStore = job.NewCacheStore(r.Cache, r.Keyer)
		if opts.Refresh {
			store = writeOnly{store}
		}
		jobOpts = append(jobOpts, job.WithStore(store, fp))
	}

	rec := r.startJob(id, p)
	result.JobID, result.Seq = rec.ID, rec.Seq
	sc.JobID = rec.ID

	// A stitched output is only as good as the tiles it came from, so the
	// cache is consulted only when tile results are reusable too.
	stitchKey := r.Keyer.StitchKey(fp, opts.StitchKeyOpts())
	if opts.Reusable() && !opts.Refresh {
		if s, ok := r.cachedStitch(ctx, stitchKey); ok {
			result.Stitched = s
			result.CacheInfo.StitchHit = true
			r.finishJob(rec, StatusDone)
			logger.Info("stitched output from cache", "job", rec.ID)
			return result, nil
		}
	}

	// Stage 2: Run
	g, err := job.New(p, opts.Source, opts.Func, opts.Job.JobConfig(), jobOpts...)
	if err != nil {
		r.finishJob(rec, StatusFailed)
		return nil, fmt.Errorf("run: %w", err)
	}
	start = time.Now()
	tiles, err := g.Run(ctx, r.backend(opts))
	result.Stats.RunTime = time.Since(start)
	if tiles != nil {
		result.Tiles = tiles
		result.Stats.Reused = tiles.Reused
		result.Stats.Computed = tiles.Computed
		result.Stats.Failed = len(tiles.Failures)
	}
	if err != nil {
		if ctx.Err() != nil {
			r.finishJob(rec, StatusCancelled)
			return nil, err
		}
		r.finishJob(rec, StatusFailed)
		logger.Error("tiles failed", "job", rec.ID, "failed", result.Stats.Failed, "ok", result.Stats.Computed+result.Stats.Reused)
		return result, fmt.Errorf("run: %w", err)
	}

	logger.Info("ran tiles",
		"job", rec.ID,
		"computed", result.Stats.Computed,
		"reused", result.Stats.Reused,
		"duration", result.Stats.RunTime)

	// Stage 3: Stitch
	start = time.Now()
	s, err := r.Engine.Stitch(ctx, p, tiles.Results, sc)
	if err != nil {
		r.finishJob(rec, StatusFailed)
		return result, fmt.Errorf("stitch: %w", err)
	}
	result.Stitched = s
	result.Stats.StitchTime = time.Since(start)

	if opts.Reusable() && s.Policy != stitch.PolicyPassthrough {
		if data, err := json.Marshal(s); err == nil {
			_ = r.Cache.Set(ctx, stitchKey, data, cache.TTLStitched)
		}
	}
	r.finishJob(rec, StatusDone)

	logger.Info("stitched",
		"job", rec.ID,
		"policy", s.Policy,
		"duration", result.Stats.StitchTime)

	return result, nil
}

func (r *Runner) backend(opts Options) job.Backend {
	if r.Backend != nil {
		return r.Backend
	}
	b := job.NewLocalBackend(opts.Job.Concurrency)
	b.Retries = opts.Job.Retries
	b.Logger = r.Logger
	return b
}

func (r *Runner) cachedStitch(ctx context.Context, key string) (*stitch.Stitched, bool) {
	data, hit, err := r.Cache.Get(ctx, key)
	if err != nil || !hit {
		return nil, false
	}
	var s stitch.Stitched
	if err := json.Unmarshal(data, &s); err != nil {
		r.Logger.Debug("discarding unreadable stitched output", "key", key, "err", err)
		return nil, false
	}
	return &s, true
}

func (r *Runner) startJob(id uuid.UUID, p *tile.Partition) JobRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.jobs == nil {
		r.jobs = make(map[string][]JobRecord)
	}
	key := p.Key()
	rec := JobRecord{
		ID:        id.String(),
		Seq:       len(r.jobs[key]) + 1,
		Partition: key,
		Started:   time.Now(),
		Status:    StatusRunning,
	}
	r.jobs[key] = append(r.jobs[key], rec)
	return rec
}

func (r *Runner) finishJob(rec JobRecord, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.jobs[rec.Partition]
	if i := rec.Seq - 1; i >= 0 && i < len(entries) {
		entries[i].Status = status
	}
}

// Jobs returns the job log of a partition, oldest first.
func (r *Runner) Jobs(partitionKey string) []JobRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]JobRecord(nil), r.jobs[partitionKey]...)
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

// writeOnly saves tile results but never serves them.
type writeOnly struct{ job.ResultStore }

func (writeOnly) Load(context.Context, string, string) (tile.Value, bool, error) {
	return tile.Value{}, false, nil
}
