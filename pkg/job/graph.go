package job

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/tilestitch/pkg/dag"
	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/ndarray"
	"github.com/matzehuels/tilestitch/pkg/observability"
	"github.com/matzehuels/tilestitch/pkg/source"
	"github.com/matzehuels/tilestitch/pkg/tile"
)

// Graph is the task graph of one job: a read and an apply task per tile.
// Build it with New and execute it with Run.
type Graph struct {
	id          uuid.UUID
	part        *tile.Partition
	lazy        *source.Lazy
	fn          Func
	cfg         Config
	plan        *dag.DAG
	store       ResultStore
	fingerprint string
	logger      *log.Logger

	mu      sync.Mutex
	done    bool
	results *Results
	err     error
}

// Option configures a Graph.
type Option func(*Graph)

// WithStore enables tile reuse: tiles found in store under fingerprint are
// not recomputed, and successful tiles are saved.
func WithStore(store ResultStore, fingerprint string) Option {
	return func(g *Graph) {
		g.store = store
		g.fingerprint = fingerprint
	}
}

// WithLogger sets the logger used for per-job diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(g *Graph) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithID overrides the generated job ID.
func WithID(id uuid.UUID) Option {
	return func(g *Graph) { g.id = id }
}

// New builds the task graph for applying fn to every tile of p read from src.
// Nothing is read until Run.
func New(p *tile.Partition, src source.Source, fn Func, cfg Config, opts ...Option) (*Graph, error) {
	if p == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "partition is nil")
	}
	if fn == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "tile function is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	lazy, err := source.NewLazy(src, p)
	if err != nil {
		return nil, err
	}

	g := &Graph{
		id:     uuid.New(),
		part:   p,
		lazy:   lazy,
		fn:     fn,
		cfg:    cfg,
		logger: log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.plan, err = g.buildPlan(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "build task graph")
	}
	return g, nil
}

// ID returns the job identifier.
func (g *Graph) ID() uuid.UUID { return g.id }

// Partition returns the partition the job runs over.
func (g *Graph) Partition() *tile.Partition { return g.part }

// Config returns the job configuration.
func (g *Graph) Config() Config { return g.cfg }

// Plan returns the task graph: one read node per tile in stage 0 and one apply
// node per tile in stage 1, joined by a single edge.
func (g *Graph) Plan() *dag.DAG { return g.plan }

func readID(t tile.Tile) string  { return StageRead + ":" + t.Key() }
func applyID(t tile.Tile) string { return StageApply + ":" + t.Key() }

func (g *Graph) buildPlan() (*dag.DAG, error) {
	d := dag.New(dag.Metadata{"job": g.id.String(), "partition": g.part.Key()})
	for _, t := range g.part.Tiles() {
		box := g.part.ReadBox(t).String()
		if err := d.AddNode(dag.Node{ID: readID(t), Stage: 0, Meta: dag.Metadata{
			"tile": t.Key(), "box": box, "stage": StageRead,
		}}); err != nil {
			return nil, err
		}
		if err := d.AddNode(dag.Node{ID: applyID(t), Stage: 1, Meta: dag.Metadata{
			"tile": t.Key(), "box": box, "stage": StageApply,
		}}); err != nil {
			return nil, err
		}
		if err := d.AddEdge(dag.Edge{From: readID(t), To: applyID(t)}); err != nil {
			return nil, err
		}
	}
	return d, d.Validate()
}

// Units returns the schedulable units for every tile, batched when the
// config asks for it. Custom backends may execute them directly.
func (g *Graph) Units() []Unit {
	return g.units(g.part.Tiles())
}

func (g *Graph) units(tiles []tile.Tile) []Unit {
	size := g.cfg.batchSize()
	units := make([]Unit, 0, (len(tiles)+size-1)/size)
	for start := 0; start < len(tiles); start += size {
		batch := tiles[start:min(start+size, len(tiles))]
		key := batch[0].Key()
		if size > 1 {
			key = fmt.Sprintf("batch:%s+%d", key, len(batch))
		}
		units = append(units, Unit{
			Key:   key,
			Tiles: batch,
			Run:   func(ctx context.Context) ([]tile.Value, error) { return g.runTiles(ctx, batch) },
		})
	}
	return units
}

// runTiles reads and applies every tile of a unit. One failing tile does not
// stop the others: the returned values hold the successes and, when any tile
// failed, the error is a *tileErrors with one entry per tile.
func (g *Graph) runTiles(ctx context.Context, tiles []tile.Tile) ([]tile.Value, error) {
	jobID := g.id.String()
	start := time.Now()
	for _, t := range tiles {
		observability.Job().OnTileStart(ctx, jobID, t.Key())
	}

	vals := make([]tile.Value, len(tiles))
	errs := make([]error, len(tiles))
	defer func() {
		for i, t := range tiles {
			observability.Job().OnTileComplete(ctx, jobID, t.Key(), time.Since(start), errs[i])
		}
	}()

	data := make([]*ndarray.Array, len(tiles))
	var ok []int
	for i, t := range tiles {
		arr, err := g.lazy.Read(ctx, t)
		if err != nil {
			errs[i] = &stageError{stage: StageRead, err: err}
			continue
		}
		data[i] = arr
		ok = append(ok, i)
	}

	if bf, isBatch := g.fn.(BatchFunc); isBatch && len(ok) > 1 {
		g.applyBatch(ctx, bf, tiles, data, ok, vals, errs)
	} else {
		for _, i := range ok {
			v, err := g.applyOne(ctx, data[i], tiles[i])
			if err != nil {
				errs[i] = &stageError{stage: StageApply, err: err}
				continue
			}
			vals[i] = v
		}
	}

	for _, err := range errs {
		if err != nil {
			return vals, &tileErrors{errs: errs}
		}
	}
	return vals, nil
}

// applyOne calls the function on one tile. A panic fails only that tile.
func (g *Graph) applyOne(ctx context.Context, data *ndarray.Array, t tile.Tile) (v tile.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in tile %s: %v", t.Index, r)
		}
	}()
	return g.fn.Apply(ctx, data, t.Clone())
}

func (g *Graph) applyBatch(ctx context.Context, bf BatchFunc, tiles []tile.Tile, data []*ndarray.Array, ok []int, vals []tile.Value, errs []error) {
	batchData := make([]*ndarray.Array, len(ok))
	batchTiles := make([]tile.Tile, len(ok))
	for j, i := range ok {
		batchData[j] = data[i]
		batchTiles[j] = tiles[i].Clone()
	}
	out, err := bf.ApplyBatch(ctx, batchData, batchTiles)
	if err == nil && len(out) != len(ok) {
		err = fmt.Errorf("batch returned %d values for %d tiles", len(out), len(ok))
	}
	for j, i := range ok {
		if err != nil {
			errs[i] = &stageError{stage: StageApply, err: err}
			continue
		}
		vals[i] = out[j]
	}
}

// Run executes the graph on b (a LocalBackend when nil). Every tile is
// attempted. When some fail, Run returns the partial results together with a
// *errors.TileComputationError. A completed run is memoized; a cancelled run
// is not, and returns the context error.
func (g *Graph) Run(ctx context.Context, b Backend) (*Results, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done {
		return g.results, g.err
	}
	if b == nil {
		lb := NewLocalBackend(0)
		lb.Retries = g.cfg.Retries
		lb.Logger = g.logger
		b = lb
	}

	res := &Results{JobID: g.id.String(), Partition: g.part}
	pending := g.loadStored(ctx, res)

	var failures []errors.TileFailure
	if len(pending) > 0 {
		units := g.units(pending)
		outcomes, err := b.Execute(ctx, units)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "backend")
		}
		for _, u := range units {
			failures = append(failures, g.collect(ctx, u, outcomes, res)...)
		}
	}

	tile.SortResults(res.Results)
	g.results = res
	if tce := errors.NewTileComputationError(failures); tce != nil {
		res.Failures = tce.Failures
		g.err = tce
		g.logger.Warn("job finished with failures", "job", res.JobID, "failed", len(tce.Failures), "ok", len(res.Results))
	} else {
		g.logger.Info("job finished", "job", res.JobID, "computed", res.Computed, "reused", res.Reused)
	}
	g.done = true
	return g.results, g.err
}

func (g *Graph) loadStored(ctx context.Context, res *Results) []tile.Tile {
	tiles := g.part.Tiles()
	if g.store == nil {
		return tiles
	}
	var pending []tile.Tile
	for _, t := range tiles {
		v, ok, err := g.store.Load(ctx, g.fingerprint, t.Key())
		if err != nil {
			g.logger.Warn("result store load failed", "tile", t.Key(), "err", err)
		}
		if !ok || v.ValidateRank(len(t.Index)) != nil {
			pending = append(pending, t)
			continue
		}
		res.Results = append(res.Results, tile.Result{Tile: t, Value: v})
		res.Reused++
	}
	return pending
}

func (g *Graph) collect(ctx context.Context, u Unit, outcomes map[string]Outcome, res *Results) []errors.TileFailure {
	out, ok := outcomes[u.Key]
	var perTile *tileErrors
	switch {
	case !ok:
		return failAll(u.Tiles, StageRead, errors.New(errors.ErrCodeInternal, "unit %s was not executed", u.Key))
	case out.Err != nil && !errors.As(out.Err, &perTile):
		return failAll(u.Tiles, stageOf(out.Err), unwrapStage(out.Err))
	case len(out.Values) != len(u.Tiles):
		return failAll(u.Tiles, StageApply, fmt.Errorf("unit %s returned %d values for %d tiles", u.Key, len(out.Values), len(u.Tiles)))
	case perTile != nil && len(perTile.errs) != len(u.Tiles):
		return failAll(u.Tiles, StageApply, perTile)
	}

	var failures []errors.TileFailure
	for i, t := range u.Tiles {
		if perTile != nil && perTile.errs[i] != nil {
			failures = append(failures, failure(t, stageOf(perTile.errs[i]), unwrapStage(perTile.errs[i])))
			continue
		}
		v := out.Values[i]
		if err := v.ValidateRank(len(t.Index)); err != nil {
			failures = append(failures, failure(t, StageApply, err))
			continue
		}
		res.Results = append(res.Results, tile.Result{Tile: t, Value: v})
		res.Computed++
		if g.store != nil {
			if err := g.store.Save(ctx, g.fingerprint, t.Key(), v); err != nil {
				g.logger.Warn("result store save failed", "tile", t.Key(), "err", err)
			}
		}
	}
	return failures
}

func stageOf(err error) string {
	var se *stageError
	if errors.As(err, &se) {
		return se.stage
	}
	return StageApply
}

func unwrapStage(err error) error {
	var se *stageError
	if errors.As(err, &se) {
		return se.err
	}
	return err
}

func failure(t tile.Tile, stage string, err error) errors.TileFailure {
	return errors.TileFailure{
		Index: []int(t.Index),
		Lo:    t.Box.Lo(),
		Hi:    t.Box.Hi(),
		Stage: stage,
		Cause: err,
	}
}

func failAll(tiles []tile.Tile, stage string, err error) []errors.TileFailure {
	out := make([]errors.TileFailure, len(tiles))
	for i, t := range tiles {
		out[i] = failure(t, stage, err)
	}
	return out
}

// Results holds the outcome of a run, ordered row-major by tile index.
type Results struct {
	JobID     string
	Partition *tile.Partition
	Results   []tile.Result
	Failures  []errors.TileFailure
	Reused    int // Tiles loaded from the result store
	Computed  int // Tiles computed in this run
}

// Get returns the result for a tile index.
func (r *Results) Get(idx tile.Index) (tile.Result, bool) {
	for _, res := range r.Results {
		if res.Tile.Index.Equal(idx) {
			return res, true
		}
	}
	return tile.Result{}, false
}

// Complete reports whether every tile of the partition has a result.
func (r *Results) Complete() bool {
	return r.Partition != nil && len(r.Results) == r.Partition.Len()
}

// Failed returns the indices of tiles that failed.
func (r *Results) Failed() []tile.Index {
	out := make([]tile.Index, len(r.Failures))
	for i, f := range r.Failures {
		out[i] = tile.Index(f.Index)
	}
	return out
}
