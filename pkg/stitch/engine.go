package stitch

import (
	"context"
	"sync"
	"time"

	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/observability"
	"github.com/matzehuels/tilestitch/pkg/tile"
)

// Engine holds the registered policies and dispatches result sets to them.
type Engine struct {
	mu       sync.RWMutex
	policies []Policy
}

// NewEngine returns an engine with the built-in policies registered.
func NewEngine() *Engine {
	e := &Engine{}
	e.Register(ArrayBlend{})
	e.Register(ObjectMerge{})
	e.Register(CoordinateMerge{})
	e.Register(Passthrough{})
	e.Register(LabelMerge{})
	return e
}

// Register adds a policy. A policy with the same name replaces the existing
// one; otherwise the new policy is consulted after those already registered.
func (e *Engine) Register(p Policy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, q := range e.policies {
		if q.Name() == p.Name() {
			e.policies[i] = p
			return
		}
	}
	e.policies = append(e.policies, p)
}

// Policies returns the registered policy names in lookup order.
func (e *Engine) Policies() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, len(e.policies))
	for i, p := range e.policies {
		names[i] = p.Name()
	}
	return names
}

// Policy looks up a policy by name.
func (e *Engine) Policy(name string) (Policy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, p := range e.policies {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

func (e *Engine) forKind(k tile.Kind) (Policy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, p := range e.policies {
		if p.Accepts(k) {
			return p, true
		}
	}
	return nil, false
}

// Stitch verifies that results cover p exactly, picks a policy and combines
// the results. Each result is placed by the partition's own tile for its
// index, whatever geometry the result carries. The input slice is not
// modified.
func (e *Engine) Stitch(ctx context.Context, p *tile.Partition, results []tile.Result, cfg Config) (out *Stitched, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := p.VerifyComplete(results); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sorted := make([]tile.Result, len(results))
	for i, r := range results {
		t, _ := p.Tile(r.Tile.Index)
		if err := r.Value.ValidateRank(len(t.Index)); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "tile %s", t.Index)
		}
		sorted[i] = tile.Result{Tile: t, Value: r.Value}
	}
	tile.SortResults(sorted)

	pol, err := e.choose(sorted, cfg.Policy)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	observability.Job().OnStitchStart(ctx, cfg.JobID, pol.Name(), len(sorted))
	defer func() {
		observability.Job().OnStitchComplete(ctx, cfg.JobID, pol.Name(), time.Since(start), err)
	}()

	out, err = pol.Combine(ctx, p, sorted, cfg)
	if err != nil {
		return nil, err
	}
	out.Policy = pol.Name()
	return out, nil
}

func (e *Engine) choose(results []tile.Result, name string) (Policy, error) {
	if name != "" {
		pol, ok := e.Policy(name)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidConfig, "unknown stitch policy %q", name)
		}
		for _, r := range results {
			if !pol.Accepts(r.Value.Kind) {
				return nil, errors.New(errors.ErrCodeUnsupportedOutputType,
					"policy %s does not accept %s output (tile %s)", name, r.Value.Kind, r.Tile.Index)
			}
		}
		return pol, nil
	}

	k, err := tile.CommonKind(results)
	if err != nil {
		return nil, err
	}
	pol, ok := e.forKind(k)
	if !ok {
		return nil, errors.New(errors.ErrCodeUnsupportedOutputType, "no stitch policy accepts %s output", k)
	}
	return pol, nil
}

// Default is the engine used by package-level Stitch.
var Default = NewEngine()

// Stitch combines results with the default engine.
func Stitch(ctx context.Context, p *tile.Partition, results []tile.Result, cfg Config) (*Stitched, error) {
	return Default.Stitch(ctx, p, results, cfg)
}
