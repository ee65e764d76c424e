package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// harnessFixture lays out a full harness directory tree with one test
// script and returns the config path.
func harnessFixture(t *testing.T) (configPath, root string) {
	t.Helper()
	root = t.TempDir()

	dirs := map[string]string{
		"queries":   filepath.Join(root, "queries"),
		"output":    filepath.Join(root, "output"),
		"expected":  filepath.Join(root, "expected"),
		"scratch":   filepath.Join(root, "scratch"),
		"warehouse": filepath.Join(root, "warehouse"),
		"data":      filepath.Join(root, "data"),
		"scripts":   filepath.Join(root, "scripts"),
	}
	for _, dir := range dirs {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}

	require.NoError(t, os.WriteFile(filepath.Join(dirs["scripts"], "init.sql"),
		[]byte("CREATE TABLE IF NOT EXISTS settings (k TEXT, v TEXT);\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dirs["scripts"], "cleanup.sql"),
		[]byte("DROP TABLE IF EXISTS settings;\n"), 0o644))

	script := "DROP TABLE IF EXISTS t1;\n" +
		"CREATE TABLE t1 (a INTEGER, b TEXT);\n" +
		"INSERT INTO t1 VALUES (1, 'x'), (2, 'y');\n" +
		"SELECT a, b FROM t1 ORDER BY a;\n"
	require.NoError(t, os.WriteFile(filepath.Join(dirs["queries"], "join1.q"), []byte(script), 0o644))

	config := fmt.Sprintf(`
username: user
password: pass
url: %q
driver: sqlite3
root_dir: %q
qfile_dir: %q
output_dir: %q
expected_dir: %q
scratch_dir: %q
warehouse_dir: %q
test_data_dir: %q
test_script_dir: %q
init_script: init.sql
cleanup_script: cleanup.sql
`, filepath.Join(root, "main.db"), root, dirs["queries"], dirs["output"],
		dirs["expected"], dirs["scratch"], dirs["warehouse"], dirs["data"], dirs["scripts"])

	configPath = filepath.Join(root, "harness.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0o644))
	return configPath, root
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRunAcceptsNewBaselineThenPasses(t *testing.T) {
	configPath, root := harnessFixture(t)

	// First run: no baseline exists, the output is accepted as one.
	out, err := execute(t, "run", "--config", configPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, "baseline accepted")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
	assert.FileExists(t, filepath.Join(root, "expected", "join1.q.out"))

	// Second run: deterministic output matches the accepted baseline.
	out, err = execute(t, "run", "--config", configPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ join1.q")
	assert.Contains(t, out, "All tests passed")
}

func TestRunReportsBaselineMismatch(t *testing.T) {
	configPath, root := harnessFixture(t)

	out, err := execute(t, "run", "--config", configPath)
	require.NoError(t, err, out)

	// Corrupt the baseline; the next run must fail with exit code 1.
	require.NoError(t, os.WriteFile(filepath.Join(root, "expected", "join1.q.out"),
		[]byte("stale baseline\n"), 0o644))

	out, err = execute(t, "run", "--config", configPath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "baseline mismatch")
	assert.Contains(t, out, "Test Summary: 0 passed, 1 failed, 1 total")
}

func TestRunOverwriteRefreshesBaseline(t *testing.T) {
	configPath, root := harnessFixture(t)

	out, err := execute(t, "run", "--config", configPath)
	require.NoError(t, err, out)

	baseline := filepath.Join(root, "expected", "join1.q.out")
	require.NoError(t, os.WriteFile(baseline, []byte("stale baseline\n"), 0o644))

	out, err = execute(t, "run", "--config", configPath, "--overwrite")
	require.NoError(t, err, out)
	assert.Contains(t, out, "baseline accepted")

	data, err := os.ReadFile(baseline)
	require.NoError(t, err)
	assert.NotEqual(t, "stale baseline\n", string(data))
}

func TestRunFilterSelectsTests(t *testing.T) {
	configPath, _ := harnessFixture(t)

	out, err := execute(t, "run", "--config", configPath, "--filter", "nomatch*")
	require.NoError(t, err, out)
	assert.Contains(t, out, "No tests found.")
}

func TestRunScriptFailureLeavesErrorArtifact(t *testing.T) {
	configPath, root := harnessFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "queries", "bad.q"),
		[]byte("SELECT * FROM table_that_does_not_exist;\n"), 0o644))

	out, err := execute(t, "run", "--config", configPath, "bad.q")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "script execution failed")
	assert.FileExists(t, filepath.Join(root, "output", "bad.q.raw.error"))
	assert.NoFileExists(t, filepath.Join(root, "output", "bad.q.raw"))
}

func TestRunJSONOutput(t *testing.T) {
	configPath, _ := harnessFixture(t)

	out, err := execute(t, "run", "--config", configPath, "--format", "json")
	require.NoError(t, err, out)
	assert.Contains(t, out, `"status": "ok"`)
	assert.Contains(t, out, `"name": "join1.q"`)
	assert.Contains(t, out, `"new_baseline": true`)
}

func TestRunMissingConfig(t *testing.T) {
	_, err := execute(t, "run", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
