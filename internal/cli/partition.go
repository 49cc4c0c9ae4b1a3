package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/tilestitch/pkg/pipeline"
	"github.com/matzehuels/tilestitch/pkg/sink"
)

// partitionCommand prints the tile layout for an input file or a bare shape.
func (c *CLI) partitionCommand() *cobra.Command {
	var (
		jf       jobFlags
		in       inputFlags
		shapeStr string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "partition [input]",
		Short: "Show how an image would be cut into tiles",
		Example: `  tilestitch partition scan.png --tile 512x512 --overlap 32
  tilestitch partition --shape 3x10000x8000 --tile 1024 --overlap 0.1 --overlap-mode fraction --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var shape []int
			switch {
			case shapeStr != "":
				s, err := parseShape(shapeStr)
				if err != nil {
					return fmt.Errorf("--shape: %w", err)
				}
				shape = s
			case len(args) == 1:
				src, closer, err := in.open(args[0])
				if err != nil {
					return err
				}
				defer closer.Close()
				shape = src.Shape()
			default:
				return fmt.Errorf("need an input file or --shape")
			}

			j, err := jf.job(cmd, min(len(shape), 2))
			if err != nil {
				return err
			}
			runner := pipeline.NewRunner(nil, nil, loggerFromContext(cmd.Context()))
			p, err := runner.Plan(cmd.Context(), shape, pipeline.Options{Job: j})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				data, err := sink.RenderPartitionJSON(p, true)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, string(data))
				return err
			}

			fmt.Fprintln(out, StyleTitle.Render("Partition"))
			printKeyValue(out, "shape", fmt.Sprint(p.Shape()))
			printKeyValue(out, "tile", fmt.Sprint(p.TileShape()))
			printKeyValue(out, "overlap", fmt.Sprint(p.OverlapSizes()))
			printKeyValue(out, "grid", fmt.Sprint(p.Grid()))
			printKeyValue(out, "tiles", StyleNumber.Render(fmt.Sprint(p.Len())))
			printKeyValue(out, "key", p.Key())
			fmt.Fprintln(out, partitionTable(p))
			return nil
		},
	}

	jf.register(cmd, false)
	in.register(cmd)
	cmd.Flags().StringVar(&shapeStr, "shape", "", "plan for a shape instead of a file, e.g. 4096x4096")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the layout as JSON")

	return cmd
}
