package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/qfile/internal/filter"
	"github.com/roach88/qfile/internal/qfile"
)

// NormalizeOptions holds flags for the normalize command.
type NormalizeOptions struct {
	*RootOptions
	Config string
	Output string
}

// NewNormalizeCommand creates the normalize command. It applies the
// transcript filter pipeline to a single file, which is useful when
// inspecting why a baseline comparison diverged.
func NewNormalizeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &NormalizeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "normalize <transcript>",
		Short: "Normalize a raw transcript",
		Long: `Apply the transcript filter pipeline to a file and print the result.

The pipeline masks run-specific values (paths, timestamps, query IDs, the
OS user) with fixed placeholders, exactly as the run command does before
comparing against a baseline.

Examples:
  qfile normalize --config harness.yaml output/join1.q.raw
  qfile normalize --config harness.yaml output/join1.q.raw -o join1.q.out`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNormalize(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "path to harness config YAML (required)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write result to file instead of stdout")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runNormalize(opts *NormalizeOptions, path string, cmd *cobra.Command) error {
	cfg, err := qfile.LoadConfig(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read transcript", err)
	}

	ctx := filter.CurrentContext()
	ctx.ScratchDir = cfg.ScratchDir
	ctx.WarehouseDir = cfg.WarehouseDir
	ctx.ExpectedDir = cfg.ExpectedDir
	ctx.OutputDir = cfg.OutputDir
	ctx.QFileDir = cfg.QFileDir
	ctx.RootDir = cfg.RootDir

	filtered := filter.NewTranscriptFilter(ctx).Filter(string(raw))

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, []byte(filtered), 0o644); err != nil {
			return WrapExitError(ExitCommandError, "failed to write output", err)
		}
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), filtered)
	return nil
}
