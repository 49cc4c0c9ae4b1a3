package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/matzehuels/tilestitch/internal/funcs"
	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/observability"
	"github.com/matzehuels/tilestitch/pkg/pipeline"
	"github.com/matzehuels/tilestitch/pkg/sink"
	"github.com/matzehuels/tilestitch/pkg/stitch"
	"github.com/matzehuels/tilestitch/pkg/tile"
)

// runOpts holds the flags of the run command that are not part of the job.
type runOpts struct {
	fn       string
	params   []string
	output   string
	maxSide  int
	refresh  bool
	progress bool

	mongoURI  string
	mongoDB   string
	mongoColl string
}

// runCommand partitions an input, runs a built-in function on every tile and
// stitches the results.
func (c *CLI) runCommand() *cobra.Command {
	var (
		jf jobFlags
		in inputFlags
		cf cacheFlags
		ro = runOpts{fn: "identity", mongoDB: appName, mongoColl: "detections"}
	)

	cmd := &cobra.Command{
		Use:   "run <input>",
		Short: "Run a tile function over an image and stitch the results",
		Example: `  tilestitch run scan.png --func blur --param radius=3 --tile 512 --overlap 32 --blend linear -o blurred.png
  tilestitch run scan.png --func blobs --overlap 64 -o blobs.json
  tilestitch run volume.raw --raw-shape 3x4096x4096 --dtype uint16 --config job.toml --progress`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runRun(cmd, args[0], &jf, in, cf, ro)
		},
	}

	jf.register(cmd, true)
	in.register(cmd)
	cf.register(cmd)
	cmd.Flags().StringVarP(&ro.fn, "func", "f", ro.fn, "tile function (see 'tilestitch funcs')")
	cmd.Flags().StringArrayVarP(&ro.params, "param", "p", nil, "function parameter key=value (repeatable)")
	cmd.Flags().StringVarP(&ro.output, "output", "o", "", "output file: .json for any result, an image extension for arrays")
	cmd.Flags().IntVar(&ro.maxSide, "max-side", 0, "downsize image output to at most this many pixels per side")
	cmd.Flags().BoolVar(&ro.refresh, "refresh", false, "recompute every tile, overwriting cached results")
	cmd.Flags().BoolVar(&ro.progress, "progress", false, "show a live tile grid")
	cmd.Flags().StringVar(&ro.mongoURI, "mongo", os.Getenv("TILESTITCH_MONGO_URI"), "also write objects/points to MongoDB at this URI")
	cmd.Flags().StringVar(&ro.mongoDB, "mongo-db", ro.mongoDB, "MongoDB database")
	cmd.Flags().StringVar(&ro.mongoColl, "mongo-collection", ro.mongoColl, "MongoDB collection")

	return cmd
}

func (c *CLI) runRun(cmd *cobra.Command, input string, jf *jobFlags, in inputFlags, cf cacheFlags, ro runOpts) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)
	out := cmd.OutOrStdout()

	src, closer, err := in.open(input)
	if err != nil {
		return err
	}
	defer closer.Close()

	j, err := jf.job(cmd, min(len(src.Shape()), 2))
	if err != nil {
		return err
	}
	params, err := funcs.ParseParams(ro.params)
	if err != nil {
		return err
	}
	fn, err := funcs.New(ro.fn, params)
	if err != nil {
		return err
	}

	runner, err := c.newRunner(ctx, cf)
	if err != nil {
		return err
	}
	defer runner.Close()

	opts := pipeline.Options{
		Job:        j,
		SourceID:   sourceID(input),
		FuncName:   ro.fn,
		FuncParams: params,
		Refresh:    ro.refresh,
		Source:     src,
		Func:       fn,
		Logger:     logger,
	}

	prog := newProgress(logger)
	var result *pipeline.Result
	if ro.progress {
		result, err = executeWithProgress(ctx, runner, opts)
	} else {
		result, err = executeWithSpinner(ctx, cmd.ErrOrStderr(), runner, opts)
	}
	if err != nil {
		if tce, ok := errors.AsTileComputation(err); ok && result != nil {
			printError(out, "%d of %d tiles failed", len(tce.Failures), result.Stats.TileCount)
			for _, f := range tce.Failures {
				printDetail(out, "%s", f.Error())
			}
			printNextStep(out, "Fix the failing tiles and re-run (finished tiles are reused)", "tilestitch run "+input)
		}
		return err
	}
	prog.done("Finished", "job", result.JobID, "tiles", result.Stats.TileCount)

	printSuccess(out, "Stitched %s output with %s", result.Stitched.Value.Kind, result.Stitched.Policy)
	printRunStats(out, result.Stats, result.CacheInfo)
	printDetail(out, "%s", describeStitched(result.Stitched))

	if ro.output != "" {
		if err := writeOutput(ro.output, result, ro.maxSide); err != nil {
			return err
		}
		printFile(out, ro.output)
	}
	if ro.mongoURI != "" {
		n, err := writeMongo(ctx, ro, result)
		if err != nil {
			return err
		}
		printInfo(out, "Wrote %d documents to %s.%s", n, ro.mongoDB, ro.mongoColl)
	}
	return nil
}

// sourceID identifies an input file for result reuse. The modification time
// and size are part of it, so editing the file invalidates stored tiles.
func sourceID(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	st, err := os.Stat(abs)
	if err != nil {
		return abs
	}
	return fmt.Sprintf("%s@%d:%d", abs, st.Size(), st.ModTime().UnixNano())
}

func executeWithSpinner(ctx context.Context, w io.Writer, r *pipeline.Runner, opts pipeline.Options) (*pipeline.Result, error) {
	spin := newSpinner(ctx, w, "Computing tiles")
	total := 0
	if p, err := r.Plan(ctx, opts.Source.Shape(), opts); err == nil {
		total = p.Len()
	}
	observability.SetJobHooks(&spinnerHooks{spin: spin, total: total})
	defer observability.SetJobHooks(observability.NoopJobHooks{})

	spin.Start()
	defer spin.Stop()
	return r.Execute(ctx, opts)
}

func executeWithProgress(ctx context.Context, r *pipeline.Runner, opts pipeline.Options) (*pipeline.Result, error) {
	p, err := r.Plan(ctx, opts.Source.Shape(), opts)
	if err != nil {
		return nil, fmt.Errorf("partition: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(newProgressModel(p, cancel), tea.WithOutput(os.Stderr))
	observability.SetJobHooks(&progressHooks{send: program.Send})
	defer observability.SetJobHooks(observability.NoopJobHooks{})

	type outcome struct {
		res *pipeline.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := r.Execute(ctx, opts)
		program.Send(runFinishedMsg{err: err})
		done <- outcome{res, err}
	}()

	if _, err := program.Run(); err != nil {
		cancel()
		<-done
		return nil, err
	}
	o := <-done
	return o.res, o.err
}

func writeOutput(path string, res *pipeline.Result, maxSide int) error {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err := sink.RenderJSON(res.Stitched,
			sink.WithJSONPartition(res.Partition),
			sink.WithJSONJob(res.JobID),
			sink.WithJSONIndent())
		if err != nil {
			return err
		}
		return os.WriteFile(path, data, 0o644)
	}
	if res.Stitched.Value.Kind != tile.KindArray {
		return errors.New(errors.ErrCodeUnsupportedOutputType, "%s output cannot be written as an image, use .json", res.Stitched.Value.Kind)
	}
	return sink.SaveImage(path, res.Stitched.Value.Array, sink.WithMaxSide(maxSide))
}

func writeMongo(ctx context.Context, ro runOpts, res *pipeline.Result) (int, error) {
	m, err := sink.NewMongo(ctx, ro.mongoURI, ro.mongoDB, ro.mongoColl)
	if err != nil {
		return 0, err
	}
	defer m.Close(context.WithoutCancel(ctx))
	return m.Write(ctx, res.JobID, res.Stitched)
}

// describeStitched summarizes a stitched result in one line.
func describeStitched(s *stitch.Stitched) string {
	v := s.Value
	if s.Policy == stitch.PolicyPassthrough {
		return fmt.Sprintf("%d tile results", len(s.Results))
	}
	switch v.Kind {
	case tile.KindArray:
		return fmt.Sprintf("array %v %s", v.Array.Shape(), v.Array.DType())
	case tile.KindObjects:
		return fmt.Sprintf("%d objects", len(v.Objects))
	case tile.KindCoords:
		return fmt.Sprintf("%d points", len(v.Points))
	case tile.KindScalar:
		return fmt.Sprintf("scalar %g", v.Scalar)
	}
	return v.Kind.String()
}
