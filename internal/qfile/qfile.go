package qfile

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/qfile/internal/diffexec"
	"github.com/roach88/qfile/internal/filter"
	"github.com/roach88/qfile/internal/shell"
)

// RunnerFactory opens a query-shell client for one test session. The
// verbose client trace is written to trace for the life of the session.
type RunnerFactory func(trace io.Writer) (shell.Runner, error)

// QFile orchestrates one golden-file test: it derives the script, output
// and baseline paths from a test name, drives a session through the fixed
// lifecycle, normalizes the recorded transcript and compares it against
// the stored baseline.
//
// The lifecycle is strictly sequential: connect, setup, execute, teardown,
// filter. Cleanup (quit the session, close the trace stream, rename a
// failed raw transcript to .error) runs on every exit path, including
// failures in any earlier phase.
type QFile struct {
	cfg    *Config
	logger *slog.Logger

	name     string
	testname string

	qPath        string
	rawPath      string
	outPath      string
	expectedPath string
	tracePath    string

	newRunner RunnerFactory
	filterCtx func() filter.Context

	session *shell.Session
	runner  shell.Runner
	trace   *os.File

	hasErrors bool
}

// New creates a QFile driver for the given harness config. The default
// client is the embedded SQLite shell; tests inject their own via
// SetRunnerFactory. Call SetName before Run.
func New(cfg *Config, logger *slog.Logger) *QFile {
	if logger == nil {
		logger = slog.Default()
	}
	q := &QFile{cfg: cfg, logger: logger}
	q.newRunner = func(trace io.Writer) (shell.Runner, error) {
		return shell.NewSQLiteRunner(cfg.ScratchDir, trace, nil, logger), nil
	}
	q.filterCtx = func() filter.Context {
		ctx := filter.CurrentContext()
		ctx.ScratchDir = cfg.ScratchDir
		ctx.WarehouseDir = cfg.WarehouseDir
		ctx.ExpectedDir = cfg.ExpectedDir
		ctx.OutputDir = cfg.OutputDir
		ctx.QFileDir = cfg.QFileDir
		ctx.RootDir = cfg.RootDir
		return ctx
	}
	return q
}

// SetName sets the script name and re-derives every path atomically.
func (q *QFile) SetName(name string) *QFile {
	q.name = name
	q.testname, _, _ = strings.Cut(name, ".")
	q.qPath = filepath.Join(q.cfg.QFileDir, name)
	q.rawPath = filepath.Join(q.cfg.OutputDir, name+".raw")
	q.outPath = filepath.Join(q.cfg.OutputDir, name+".out")
	q.expectedPath = filepath.Join(q.cfg.ExpectedDir, name+".out")
	q.tracePath = filepath.Join(q.cfg.OutputDir, name+".beeline")
	return q
}

// SetRunnerFactory replaces the client used for the session.
func (q *QFile) SetRunnerFactory(f RunnerFactory) *QFile {
	q.newRunner = f
	return q
}

// SetFilterContext pins the normalization context to a fixed value so the
// filter pipeline is reproducible in tests.
func (q *QFile) SetFilterContext(ctx filter.Context) *QFile {
	q.filterCtx = func() filter.Context { return ctx }
	return q
}

// Name returns the script name.
func (q *QFile) Name() string { return q.name }

// OutputPath returns the normalized transcript path.
func (q *QFile) OutputPath() string { return q.outPath }

// HasErrors reports whether the last run's script execution failed.
func (q *QFile) HasErrors() bool { return q.hasErrors }

// Run executes the full test lifecycle. Errors from any phase propagate
// to the caller after cleanup has run. A script failure is bookkept in
// HasErrors, not returned as an error: the run completed, the script
// did not.
func (q *QFile) Run() (err error) {
	q.hasErrors = false
	defer q.cleanup()

	if err := q.openSession(); err != nil {
		return err
	}
	if err := q.session.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if err := q.session.SetUp(q.testname, q.cfg.TestDataDir, q.cfg.TestScriptDir, q.cfg.InitScript); err != nil {
		return fmt.Errorf("setup: %w", err)
	}

	failed, err := q.session.Execute(q.qPath, q.rawPath)
	if err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	q.hasErrors = failed

	if err := q.session.TearDown(q.testname, q.cfg.TestScriptDir, q.cfg.CleanupScript); err != nil {
		return fmt.Errorf("teardown: %w", err)
	}
	if err := q.filterResults(); err != nil {
		return fmt.Errorf("filter results: %w", err)
	}
	return nil
}

func (q *QFile) openSession() error {
	trace, err := os.Create(q.tracePath)
	if err != nil {
		return fmt.Errorf("open trace file: %w", err)
	}
	q.trace = trace

	runner, err := q.newRunner(trace)
	if err != nil {
		trace.Close()
		q.trace = nil
		return fmt.Errorf("open client: %w", err)
	}
	q.runner = runner
	q.session = shell.NewSession(runner, shell.Credentials{
		Username: q.cfg.Username,
		Password: q.cfg.Password,
		URL:      q.cfg.URL,
		Driver:   q.cfg.Driver,
	}, q.logger)
	return nil
}

// filterResults rebuilds the filter pipeline for this run and writes the
// normalized transcript next to the raw one.
func (q *QFile) filterResults() error {
	raw, err := os.ReadFile(q.rawPath)
	if err != nil {
		return fmt.Errorf("read raw transcript: %w", err)
	}
	set := filter.NewTranscriptFilter(q.filterCtx())
	if err := os.WriteFile(q.outPath, []byte(set.Filter(string(raw))), 0o644); err != nil {
		return fmt.Errorf("write filtered transcript: %w", err)
	}
	return nil
}

// cleanup tears the session down from whatever state the run reached.
// It tolerates a session or trace stream that was never opened, and a
// failed rename is logged rather than propagated so it cannot mask the
// original test failure.
func (q *QFile) cleanup() {
	if q.session != nil {
		if err := q.session.Quit(); err != nil {
			q.logger.Error("failed to quit session", "error", err)
		}
		q.session = nil
	}
	if q.runner != nil {
		if err := q.runner.Close(); err != nil {
			q.logger.Error("failed to close client", "error", err)
		}
		q.runner = nil
	}
	if q.trace != nil {
		if err := q.trace.Close(); err != nil {
			q.logger.Error("failed to close trace stream", "error", err)
		}
		q.trace = nil
	}
	if q.hasErrors {
		errPath := q.rawPath + ".error"
		if err := os.Rename(q.rawPath, errPath); err != nil {
			q.logger.Error("failed to move raw transcript", "from", q.rawPath, "to", errPath, "error", err)
		}
	}
}

// HasExpectedResults reports whether a baseline exists for this test.
// False usually means the test is new and the caller should accept the
// normalized output as the baseline.
func (q *QFile) HasExpectedResults() bool {
	_, err := os.Stat(q.expectedPath)
	return err == nil
}

// CompareResults diffs the baseline against the normalized output. A
// missing baseline is reported and counts as a mismatch, not a fault.
func (q *QFile) CompareResults() (bool, error) {
	match, err := diffexec.Compare(q.expectedPath, q.outPath)
	if err != nil {
		if errors.Is(err, diffexec.ErrMissingExpected) {
			q.logger.Error("expected results file does not exist", "path", q.expectedPath)
			return false, nil
		}
		return false, err
	}
	return match, nil
}

// OverwriteResults accepts the normalized output as the new baseline,
// replacing any existing one.
func (q *QFile) OverwriteResults() error {
	if err := os.Remove(q.expectedPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove old baseline: %w", err)
	}
	if err := os.MkdirAll(q.cfg.ExpectedDir, 0o755); err != nil {
		return fmt.Errorf("create expected directory: %w", err)
	}
	data, err := os.ReadFile(q.outPath)
	if err != nil {
		return fmt.Errorf("read filtered transcript: %w", err)
	}
	if err := os.WriteFile(q.expectedPath, data, 0o644); err != nil {
		return fmt.Errorf("write baseline: %w", err)
	}
	return nil
}
