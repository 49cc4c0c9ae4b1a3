// Package cli implements the tilestitch command-line interface.
//
// The CLI wires the library packages together: it opens sources, picks a
// built-in tile function, loads job files and hands everything to a
// [pipeline.Runner]. Commands:
//   - partition: print the tile layout for an image or shape
//   - run: partition, compute and stitch, writing PNG or JSON output
//   - graph: export the job task graph as DOT or SVG
//   - overlay: draw tile boxes and seams over an image
//   - funcs: list the built-in tile functions
//   - cache: inspect and clear the tile result cache
//   - serve: start the HTTP API
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging. The logger
// travels through context.Context so library calls made on behalf of a
// command log with the same settings.
//
// [pipeline.Runner]: github.com/matzehuels/tilestitch/pkg/pipeline.Runner
package cli

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// newLogger creates a logger writing to w at the given level, with
// "HH:MM:SS.ms" timestamps.
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// progress logs how long a step took. Not safe for concurrent use.
type progress struct {
	logger *log.Logger
	start  time.Time
}

func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs msg with the elapsed time, e.g. "Stitched 16 tiles (1.234s)".
// keyvals are passed through as structured fields.
func (p *progress) done(msg string, keyvals ...any) {
	keyvals = append(keyvals, "elapsed", time.Since(p.start).Round(time.Millisecond))
	p.logger.Info(msg, keyvals...)
}

type ctxKey int

const loggerKey ctxKey = 0

func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// loggerFromContext returns the logger attached to ctx, or log.Default().
func loggerFromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.Default()
}
