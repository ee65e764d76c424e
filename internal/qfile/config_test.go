package qfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "harness.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validConfig = `
username: user
password: pass
url: ":memory:"
driver: sqlite3
root_dir: /build
qfile_dir: /build/queries
output_dir: /build/output
expected_dir: /build/expected
scratch_dir: /tmp/scratch
warehouse_dir: /data/warehouse
test_data_dir: /build/data
test_script_dir: /build/scripts
init_script: init.sql
cleanup_script: cleanup.sql
`

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "user", cfg.Username)
	assert.Equal(t, "sqlite3", cfg.Driver)
	assert.Equal(t, "/build/queries", cfg.QFileDir)
	assert.Equal(t, "/tmp/scratch", cfg.ScratchDir)
	assert.Equal(t, "init.sql", cfg.InitScript)
}

func TestLoadConfigUnknownFieldRejected(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, validConfig+"qfiles_dir: /typo\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadConfigMissingRequiredField(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "username: user\nqfile_dir: /q\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required field")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
