package cli

import (
	"fmt"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	"github.com/matzehuels/tilestitch/pkg/pipeline"
	"github.com/matzehuels/tilestitch/pkg/sink"
	"github.com/matzehuels/tilestitch/pkg/source"
)

// overlayCommand draws the partition of an image over the image itself.
func (c *CLI) overlayCommand() *cobra.Command {
	var (
		jf     jobFlags
		output string
		fill   float64
		seams  bool
	)

	cmd := &cobra.Command{
		Use:   "overlay <image>",
		Short: "Draw tile boxes and seams over an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			src, err := source.OpenImage(args[0], source.Gray)
			if err != nil {
				return err
			}
			j, err := jf.job(cmd, 2)
			if err != nil {
				return err
			}
			runner := pipeline.NewRunner(nil, nil, loggerFromContext(ctx))
			p, err := runner.Plan(ctx, src.Shape(), pipeline.Options{Job: j})
			if err != nil {
				return err
			}

			opts := []sink.OverlayOption{sink.WithFill(fill)}
			if !seams {
				opts = append(opts, sink.WithoutSeams())
			}
			img, err := sink.RenderOverlay(src.Image(), p, opts...)
			if err != nil {
				return err
			}
			if output == "" {
				output = "overlay.png"
			}
			if err := imaging.Save(img, output); err != nil {
				return fmt.Errorf("save %s: %w", output, err)
			}
			printSuccess(cmd.OutOrStdout(), "Drew %d tiles", p.Len())
			printFile(cmd.OutOrStdout(), output)
			return nil
		},
	}

	jf.register(cmd, false)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output image (default overlay.png)")
	cmd.Flags().Float64Var(&fill, "fill", 0.25, "tile tint opacity in [0,1]")
	cmd.Flags().BoolVar(&seams, "seams", true, "draw ownership seams")

	return cmd
}
