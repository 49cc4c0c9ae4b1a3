package job

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/semaphore"

	"github.com/matzehuels/tilestitch/pkg/tile"
)

// Unit is one schedulable piece of work: the read and apply tasks of one
// tile, or of a batch of tiles when batching is enabled.
type Unit struct {
	Key   string      // Caller-chosen key; outcomes are returned under it
	Tiles []tile.Tile // Tiles covered by the unit
	Run   func(ctx context.Context) ([]tile.Value, error)
}

// Outcome is the result of executing a unit.
type Outcome struct {
	// Values holds one value per tile. When only some tiles failed, Err
	// names them and Values still carries the others.
	Values   []tile.Value
	Err      error
	Attempts int
	Duration time.Duration
}

// Backend executes units. Implementations may run units in any order and
// more than once; they must return an outcome for every unit they started
// and must stop starting units once ctx is cancelled, returning ctx.Err().
type Backend interface {
	Execute(ctx context.Context, units []Unit) (map[string]Outcome, error)
}

// Default LocalBackend settings.
const (
	DefaultRetryDelay = 100 * time.Millisecond
)

// LocalBackend runs units on a bounded pool of goroutines in this process.
type LocalBackend struct {
	// Concurrency bounds the number of units in flight. <= 0 uses GOMAXPROCS.
	Concurrency int
	// Retries is how many extra attempts a unit gets for Retryable errors.
	Retries int
	// RetryDelay is the first backoff delay; it doubles per attempt.
	RetryDelay time.Duration
	// Logger receives per-unit debug logs. Nil discards them.
	Logger *log.Logger
}

// NewLocalBackend creates a local backend with the given concurrency.
func NewLocalBackend(concurrency int) *LocalBackend {
	return &LocalBackend{Concurrency: concurrency, RetryDelay: DefaultRetryDelay}
}

// Execute runs every unit, at most Concurrency at a time. Panics inside a
// unit become that unit's error.
func (b *LocalBackend) Execute(ctx context.Context, units []Unit) (map[string]Outcome, error) {
	n := b.Concurrency
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	sem := semaphore.NewWeighted(int64(n))

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		outcomes = make(map[string]Outcome, len(units))
	)
	for _, u := range units {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			out := b.run(ctx, u)
			mu.Lock()
			outcomes[u.Key] = out
			mu.Unlock()
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}

func (b *LocalBackend) run(ctx context.Context, u Unit) Outcome {
	start := time.Now()
	delay := b.RetryDelay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}

	var out Outcome
	err := RetryWithBackoff(ctx, b.Retries+1, delay, func() error {
		out.Attempts++
		vals, err := safeRun(ctx, u)
		out.Values = vals
		if err != nil {
			if b.Logger != nil && IsRetryable(err) {
				b.Logger.Debug("unit failed, retrying", "unit", u.Key, "attempt", out.Attempts, "err", err)
			}
			return err
		}
		return nil
	})
	out.Err = err
	out.Duration = time.Since(start)
	if b.Logger != nil {
		b.Logger.Debug("unit done", "unit", u.Key, "attempts", out.Attempts, "duration", out.Duration, "err", err)
	}
	return out
}

func safeRun(ctx context.Context, u Unit) (vals []tile.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in unit %s: %v", u.Key, r)
		}
	}()
	return u.Run(ctx)
}

var _ Backend = (*LocalBackend)(nil)
