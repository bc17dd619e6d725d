package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"cyclegc/pkg/scenario"
)

func newRunCmd() *cobra.Command {
	var metricsFile string

	cmd := &cobra.Command{
		Use:   "run <script>...",
		Short: "Run scenario scripts and check their expectations",
		Long: `Run executes each script against a fresh collector. Every (collect) form
prints a pass summary; any failed expect-* form or protocol violation fails
the script. The command fails if any script failed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configFromContext(cmd.Context())
			if metricsFile == "" {
				metricsFile = cfg.Metrics.Textfile
			}
			return runScripts(cmd.Context(), cmd.OutOrStdout(), args, metricsFile)
		},
	}

	cmd.Flags().StringVar(&metricsFile, "metrics-textfile", "", "write Prometheus metrics to this file after the run")
	return cmd
}

func runScripts(ctx context.Context, out io.Writer, paths []string, metricsFile string) error {
	logger := loggerFromContext(ctx)
	reg := prometheus.NewRegistry()

	failed := 0
	for i, path := range paths {
		suffix := ""
		if len(paths) > 1 {
			suffix = strconv.Itoa(i + 1)
		}
		if err := runScript(ctx, out, path, reg, suffix); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			printError(out, "%s", err)
			failed++
		}
	}

	if err := writeMetrics(logger, metricsFile, reg); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scripts failed", failed, len(paths))
	}
	return nil
}

func runScript(ctx context.Context, out io.Writer, path string, reg prometheus.Registerer, suffix string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	s := newSession(ctx, out, reg, suffix)
	prog := newProgress(s.logger, s.c)
	printInfo(out, "%s %s", StyleTitle.Render(path), StyleDim.Render("collector "+s.c.Name()))

	runErr := s.interp.Run(ctx, string(src))
	s.sample()
	printStats(out, s.c.Stats())
	if runErr != nil {
		return fmt.Errorf("%s: %w", path, runErr)
	}
	printSuccess(out, "%s: %d passes, all expectations met", path, len(s.interp.Results()))
	prog.done(fmt.Sprintf("Ran %s", path))
	return nil
}

func newCommandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List the scenario script commands",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, usage := range scenario.Commands() {
				printDetail(cmd.OutOrStdout(), "%s", usage)
			}
		},
	}
}
