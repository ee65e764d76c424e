package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/qfile/internal/qfile"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Config    string
	Overwrite bool
	Filter    string
}

// RunSummary holds the overall result of a run invocation.
type RunSummary struct {
	Tests  []qfile.Result `json:"tests"`
	Passed int            `json:"passed"`
	Failed int            `json:"failed"`
	Total  int            `json:"total"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [test names...]",
		Short: "Run golden-file tests",
		Long: `Run query scripts through the shell client and compare the
normalized transcripts against stored baselines.

With no test names, every script in the configured qfile directory runs.
A test without a baseline accepts its output as the new baseline; pass
--overwrite to re-accept baselines for tests that already have one.

Exit codes:
  0 - All tests passed
  1 - One or more tests failed
  2 - Command error (bad config, missing directories, etc.)

Examples:
  qfile run --config harness.yaml
  qfile run --config harness.yaml join1.q join2.q
  qfile run --config harness.yaml --filter "join*" --overwrite`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "path to harness config YAML (required)")
	cmd.Flags().BoolVar(&opts.Overwrite, "overwrite", false, "accept current output as the new baseline")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter tests by glob pattern")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runTests(opts *RunOptions, names []string, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))

	cfg, err := qfile.LoadConfig(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	if len(names) == 0 {
		names, err = findTests(cfg.QFileDir, opts.Filter)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list tests", err)
		}
	}
	if len(names) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No tests found.")
		return nil
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return WrapExitError(ExitCommandError, "failed to create output directory", err)
	}
	if cfg.ScratchDir != "" {
		if err := os.MkdirAll(cfg.ScratchDir, 0o755); err != nil {
			return WrapExitError(ExitCommandError, "failed to create scratch directory", err)
		}
	}

	summary := RunSummary{Total: len(names)}
	for _, name := range names {
		result := runOne(cfg, name, opts, logger, cmd)
		summary.Tests = append(summary.Tests, result)
		if result.Pass() {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}

	if opts.Format == "json" {
		return outputRunJSON(cmd, summary)
	}
	return outputRunText(cmd, summary)
}

// runOne drives one test through run, then either comparison or baseline
// acceptance. Pass/fail policy lives here, not in the QFile core.
func runOne(cfg *qfile.Config, name string, opts *RunOptions, logger *slog.Logger, cmd *cobra.Command) qfile.Result {
	w := cmd.OutOrStdout()
	q := qfile.New(cfg, logger).SetName(name)

	result := qfile.Result{Name: name, RanOK: true}
	if err := q.Run(); err != nil {
		logger.Error("test run failed", "test", name, "error", err)
		result.RanOK = false
		printVerdict(w, opts, name, "run error: "+err.Error(), false)
		return result
	}
	result.RanOK = !q.HasErrors()

	if !q.HasExpectedResults() || opts.Overwrite {
		if err := q.OverwriteResults(); err != nil {
			logger.Error("failed to accept baseline", "test", name, "error", err)
			result.Match = false
			printVerdict(w, opts, name, "baseline error: "+err.Error(), false)
			return result
		}
		result.NewBaseline = true
	}

	match, err := q.CompareResults()
	if err != nil {
		logger.Error("comparison failed", "test", name, "error", err)
		result.Match = false
		printVerdict(w, opts, name, "compare error: "+err.Error(), false)
		return result
	}
	result.Match = match

	switch {
	case !result.RanOK:
		printVerdict(w, opts, name, "script execution failed", false)
	case !result.Match:
		printVerdict(w, opts, name, "baseline mismatch", false)
	case result.NewBaseline:
		printVerdict(w, opts, name, "baseline accepted", true)
	default:
		printVerdict(w, opts, name, "", true)
	}
	return result
}

func printVerdict(w io.Writer, opts *RunOptions, name, note string, pass bool) {
	if opts.Format == "json" {
		return
	}
	mark := "✓"
	if !pass {
		mark = "✗"
	}
	if note != "" {
		fmt.Fprintf(w, "%s %s (%s)\n", mark, name, note)
		return
	}
	fmt.Fprintf(w, "%s %s\n", mark, name)
}

// findTests lists script files in the qfile directory, optionally
// filtered by a glob pattern on the file name.
func findTests(dir, pattern string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if pattern != "" {
			matched, err := filepath.Match(pattern, e.Name())
			if err != nil {
				return nil, fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				continue
			}
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// outputRunJSON outputs the run summary as JSON.
func outputRunJSON(cmd *cobra.Command, summary RunSummary) error {
	status := "ok"
	response := CLIResponse{Status: status, Data: summary}
	if summary.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_TEST_FAILED",
			Message: fmt.Sprintf("%d test(s) failed", summary.Failed),
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if summary.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d test(s) failed", summary.Failed))
	}
	return nil
}

// outputRunText outputs the run summary as text.
func outputRunText(cmd *cobra.Command, summary RunSummary) error {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", summary.Passed, summary.Failed, summary.Total)

	if summary.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d test(s) failed", summary.Failed))
	}

	fmt.Fprintln(w, "✓ All tests passed")
	return nil
}
