package shell

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner records every batch and replays scripted statuses.
type fakeRunner struct {
	batches  [][]string
	statuses []int
	err      error
	closed   bool
}

func (f *fakeRunner) Run(commands []string) (int, error) {
	f.batches = append(f.batches, commands)
	if f.err != nil {
		return StatusError, f.err
	}
	if len(f.statuses) == 0 {
		return StatusSuccess, nil
	}
	st := f.statuses[0]
	f.statuses = f.statuses[1:]
	return st, nil
}

func (f *fakeRunner) Close() error {
	f.closed = true
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFailedOnlyOnErrorSentinel(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   bool
	}{
		{"success", StatusSuccess, false},
		{"error", StatusError, true},
		{"noop", StatusNoOp, false},
		{"unknown", StatusUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Failed(tt.status))
		})
	}
}

func TestSessionConnectBatch(t *testing.T) {
	f := &fakeRunner{}
	s := NewSession(f, Credentials{
		Username: "user", Password: "pass", URL: "db.sqlite", Driver: "sqlite3",
	}, discardLogger())

	require.NoError(t, s.Connect())
	require.Len(t, f.batches, 1)
	assert.Equal(t, []string{
		"!set verbose true",
		"!set shownestederrs true",
		"!set showwarnings true",
		"!set showelapsedtime false",
		"!set maxwidth -1",
		"!connect db.sqlite user pass sqlite3",
	}, f.batches[0])
}

func TestSessionSetUpBatch(t *testing.T) {
	f := &fakeRunner{}
	s := NewSession(f, Credentials{}, discardLogger())

	require.NoError(t, s.SetUp("join1", "/data", "/scripts", "init.sql"))
	require.Len(t, f.batches, 1)
	assert.Equal(t, []string{
		"USE default;",
		"SHOW TABLES;",
		"DROP DATABASE IF EXISTS `join1` CASCADE;",
		"CREATE DATABASE `join1`;",
		"USE `join1`;",
		"set test.data.dir=/data;",
		"set test.script.dir=/scripts;",
		"!run /scripts/init.sql",
	}, f.batches[0])
}

func TestSessionExecuteRecordsAndReportsStatus(t *testing.T) {
	f := &fakeRunner{statuses: []int{StatusSuccess, StatusSuccess, StatusSuccess}}
	s := NewSession(f, Credentials{}, discardLogger())

	failed, err := s.Execute("/q/join1.q", "/out/join1.q.raw")
	require.NoError(t, err)
	assert.False(t, failed)

	require.Len(t, f.batches, 3)
	assert.Equal(t, []string{"!set outputformat csv", "!record /out/join1.q.raw"}, f.batches[0])
	assert.Equal(t, []string{"!run /q/join1.q"}, f.batches[1])
	assert.Equal(t, []string{"!record"}, f.batches[2])
}

func TestSessionExecuteStatusMapping(t *testing.T) {
	// Only the explicit error sentinel flips the run to failed. A no-op
	// or unknown status from the script batch still counts as success.
	tests := []struct {
		name       string
		status     int
		wantFailed bool
	}{
		{"success", StatusSuccess, false},
		{"error sentinel", StatusError, true},
		{"noop", StatusNoOp, false},
		{"unknown", StatusUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeRunner{statuses: []int{StatusSuccess, tt.status, StatusSuccess}}
			s := NewSession(f, Credentials{}, discardLogger())

			failed, err := s.Execute("x.q", "x.raw")
			require.NoError(t, err)
			assert.Equal(t, tt.wantFailed, failed)
			// Recording stops even when the script failed.
			assert.Equal(t, []string{"!record"}, f.batches[len(f.batches)-1])
		})
	}
}

func TestSessionExecutePropagatesInfraError(t *testing.T) {
	f := &fakeRunner{err: errors.New("connection lost")}
	s := NewSession(f, Credentials{}, discardLogger())

	_, err := s.Execute("x.q", "x.raw")
	require.Error(t, err)
}

func TestSessionTearDownBatch(t *testing.T) {
	f := &fakeRunner{}
	s := NewSession(f, Credentials{}, discardLogger())

	require.NoError(t, s.TearDown("join1", "/scripts", "cleanup.sql"))
	require.Len(t, f.batches, 1)
	assert.Equal(t, []string{
		"!set outputformat table",
		"USE default;",
		"DROP DATABASE IF EXISTS `join1` CASCADE;",
		"!run /scripts/cleanup.sql",
	}, f.batches[0])
}

func TestSessionQuit(t *testing.T) {
	f := &fakeRunner{}
	s := NewSession(f, Credentials{}, discardLogger())

	require.NoError(t, s.Quit())
	require.Len(t, f.batches, 1)
	assert.Equal(t, []string{"!quit"}, f.batches[0])
}
