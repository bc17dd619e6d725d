package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cyclegc/pkg/scenario"
)

type dotOpts struct {
	output        string
	format        string
	hideReclaimed bool
}

func newDotCmd() *cobra.Command {
	var opts dotOpts

	cmd := &cobra.Command{
		Use:   "dot <script>",
		Short: "Render the heap topology after a script",
		Long: `Dot runs a script and renders the collector's topology as it stands at
the end. Rooted objects are drawn as boxes with their root count, edges are
labelled with slot names and reclaimed objects are greyed out.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDot(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "output format: dot or svg (default from config)")
	cmd.Flags().BoolVar(&opts.hideReclaimed, "hide-reclaimed", false, "omit reclaimed objects")
	return cmd
}

func runDot(cmd *cobra.Command, path string, opts dotOpts) error {
	ctx := cmd.Context()
	cfg := configFromContext(ctx)

	format := opts.format
	if format == "" {
		format = cfg.Render.Format
	}
	if format != "dot" && format != "svg" {
		return fmt.Errorf("unknown format %q (want dot or svg)", format)
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	s := newSession(ctx, cmd.ErrOrStderr(), nil, "")
	if err := s.interp.Run(ctx, string(src)); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	dot := s.interp.ToDOT(scenario.DOTOptions{
		ShowReclaimed: cfg.Render.ShowReclaimed && !opts.hideReclaimed,
	})
	data := []byte(dot)
	if format == "svg" {
		prog := newProgress(s.logger, s.c)
		if data, err = scenario.RenderSVG(ctx, dot); err != nil {
			return err
		}
		prog.done("Rendered SVG")
	}

	if opts.output == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(opts.output, data, 0o644); err != nil {
		return err
	}
	printFile(cmd.ErrOrStderr(), opts.output)
	return nil
}
