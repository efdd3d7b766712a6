package commands

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type result struct {
	stdout string
	stderr string
	err    error
}

// writeConfig writes a config file rooted in a temp dir for one test. extra
// is appended verbatim as top-level YAML.
func writeConfig(t *testing.T, extra string) (string, string) {
	t.Helper()
	return writeConfigTier(t, "HIGH", extra)
}

func writeConfigTier(t *testing.T, tier, extra string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	body := fmt.Sprintf(`log:
  level: error
pipeline:
  work_dir: %q
  output_dir: %q
queue:
  poll_interval: 10ms
hardware:
  tier: %s
  cpu_cores: 8
  memory_gb: 16
cache:
  backend: memory
%s`, filepath.Join(dir, "work"), filepath.Join(dir, "out"), tier, extra)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path, dir
}

func execute(args ...string) result {
	cmd := NewCommand()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func sourceFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "intro.mov")
	require.NoError(t, os.WriteFile(path, []byte("frames"), 0o644))
	return path
}
