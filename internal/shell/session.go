package shell

import (
	"fmt"
	"log/slog"
	"path/filepath"
)

// Credentials identify the query-shell connection for one session.
type Credentials struct {
	Username string
	Password string
	URL      string
	Driver   string
}

// Session drives one query-shell connection through the fixed batch
// sequence of a single test: connect, setup, execute, teardown, quit.
// Batches run in program order against the exclusively-owned connection;
// the session never interleaves batches from different phases.
type Session struct {
	runner Runner
	creds  Credentials
	logger *slog.Logger
}

// NewSession wraps a runner with the batch sequences of one test session.
func NewSession(runner Runner, creds Credentials, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{runner: runner, creds: creds, logger: logger}
}

// Connect issues the connect batch: session options first, then the
// connect directive. Verbose output, nested errors and warnings on,
// elapsed-time display off, unlimited row width.
func (s *Session) Connect() error {
	_, err := s.runner.Run([]string{
		"!set verbose true",
		"!set shownestederrs true",
		"!set showwarnings true",
		"!set showelapsedtime false",
		"!set maxwidth -1",
		fmt.Sprintf("!connect %s %s %s %s", s.creds.URL, s.creds.Username, s.creds.Password, s.creds.Driver),
	})
	return err
}

// SetUp issues the setup batch: move to the default namespace, list
// objects as a diagnostic, recreate a namespace named after the test,
// publish the data and script directories as context variables, then run
// the shared init script.
func (s *Session) SetUp(testname, dataDir, scriptDir, initScript string) error {
	_, err := s.runner.Run([]string{
		"USE default;",
		"SHOW TABLES;",
		"DROP DATABASE IF EXISTS `" + testname + "` CASCADE;",
		"CREATE DATABASE `" + testname + "`;",
		"USE `" + testname + "`;",
		"set test.data.dir=" + dataDir + ";",
		"set test.script.dir=" + scriptDir + ";",
		"!run " + filepath.Join(scriptDir, initScript),
	})
	return err
}

// Execute records a transcript of the test script to rawPath and reports
// whether the script run failed. The script runs in its own single-command
// batch so its status is observable; only the explicit error sentinel
// flips failed to true.
func (s *Session) Execute(scriptPath, rawPath string) (failed bool, err error) {
	if _, err := s.runner.Run([]string{
		"!set outputformat csv",
		"!record " + rawPath,
	}); err != nil {
		return false, err
	}

	status, err := s.runner.Run([]string{"!run " + scriptPath})
	if err != nil {
		return false, err
	}
	if Failed(status) {
		failed = true
		s.logger.Error("script execution failed", "script", scriptPath, "status", status)
	}

	if _, err := s.runner.Run([]string{"!record"}); err != nil {
		return failed, err
	}
	return failed, nil
}

// TearDown restores tabular output, drops the test namespace and runs the
// shared cleanup script.
func (s *Session) TearDown(testname, scriptDir, cleanupScript string) error {
	_, err := s.runner.Run([]string{
		"!set outputformat table",
		"USE default;",
		"DROP DATABASE IF EXISTS `" + testname + "` CASCADE;",
		"!run " + filepath.Join(scriptDir, cleanupScript),
	})
	return err
}

// Quit disconnects cleanly.
func (s *Session) Quit() error {
	_, err := s.runner.Run([]string{"!quit"})
	return err
}
