package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/tilestitch/internal/funcs"
	"github.com/matzehuels/tilestitch/pkg/dag"
	"github.com/matzehuels/tilestitch/pkg/job"
	"github.com/matzehuels/tilestitch/pkg/pipeline"
)

// graphCommand exports the task graph a run would execute.
func (c *CLI) graphCommand() *cobra.Command {
	var (
		jf       jobFlags
		in       inputFlags
		output   string
		detailed bool
	)

	cmd := &cobra.Command{
		Use:   "graph <input>",
		Short: "Export the job task graph as DOT or SVG",
		Long: `Export the task graph of a job: one read and one apply task per tile,
with an edge from each read to its apply. The format follows the output
extension (.dot or .svg); without -o the DOT source is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			src, closer, err := in.open(args[0])
			if err != nil {
				return err
			}
			defer closer.Close()

			j, err := jf.job(cmd, min(len(src.Shape()), 2))
			if err != nil {
				return err
			}
			runner := pipeline.NewRunner(nil, nil, loggerFromContext(ctx))
			p, err := runner.Plan(ctx, src.Shape(), pipeline.Options{Job: j})
			if err != nil {
				return err
			}
			fn, err := funcs.New("identity", nil)
			if err != nil {
				return err
			}
			g, err := job.New(p, src, fn, j.JobConfig())
			if err != nil {
				return err
			}

			dot := dag.ToDOT(g.Plan(), dag.DOTOptions{
				Detailed:   detailed,
				StageNames: map[int]string{0: job.StageRead, 1: job.StageApply},
			})

			switch strings.ToLower(filepath.Ext(output)) {
			case "":
				_, err := fmt.Fprint(cmd.OutOrStdout(), dot)
				return err
			case ".dot", ".gv":
				if err := os.WriteFile(output, []byte(dot), 0o644); err != nil {
					return err
				}
			case ".svg":
				svg, err := dag.RenderSVG(ctx, dot)
				if err != nil {
					return fmt.Errorf("render svg: %w", err)
				}
				if err := os.WriteFile(output, svg, 0o644); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unsupported graph format %q (want .dot or .svg)", filepath.Ext(output))
			}
			printSuccess(cmd.OutOrStdout(), "Task graph with %d nodes, %d edges", g.Plan().NodeCount(), g.Plan().EdgeCount())
			printFile(cmd.OutOrStdout(), output)
			return nil
		},
	}

	jf.register(cmd, false)
	in.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (.dot or .svg)")
	cmd.Flags().BoolVar(&detailed, "detailed", false, "include tile boxes in node labels")

	return cmd
}
