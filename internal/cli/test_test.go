package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scenariosDir = filepath.Join("testdata", "scenarios")

// writeScenarioDir lays out <tmp>/scenarios/<name>.yaml pointing at an
// absolute form path and returns the scenario file.
func writeScenarioDir(t *testing.T, name, body string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "scenarios")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	form, err := filepath.Abs(formPath("chain"))
	require.NoError(t, err)
	path := filepath.Join(dir, name+".yaml")
	content := "name: " + name + "\ndescription: test\nform: " + form + "\n" + body
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestTest_AllPass(t *testing.T) {
	out, err := execute(t, "test", scenariosDir)
	require.NoError(t, err)

	assert.Contains(t, out, "✓ chain_update")
	assert.Contains(t, out, "✓ cycle_rejected")
	assert.Contains(t, out, "Test Summary: 2 passed, 0 failed, 2 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTest_JSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "test", scenariosDir)
	require.NoError(t, err)

	resp, result := decodeResponse[TestResult](t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Passed)
	for _, s := range result.Scenarios {
		assert.True(t, s.Pass, s.Name)
	}
}

func TestTest_SingleFileAndFilter(t *testing.T) {
	out, err := execute(t, "test", filepath.Join(scenariosDir, "chain_update.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")

	out, err = execute(t, "test", scenariosDir, "--filter", "cycle_*")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ cycle_rejected")
	assert.NotContains(t, out, "chain_update")

	out, err = execute(t, "test", scenariosDir, "--filter", "nomatch*")
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTest_FailingScenario(t *testing.T) {
	path := writeScenarioDir(t, "wrong_value", `initial:
  /data/c: { value: "41" }
`)

	out, err := execute(t, "test", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong_value")
	assert.Contains(t, out, `expected "41", got "40"`)
}

func TestTest_FailingScenarioJSON(t *testing.T) {
	path := writeScenarioDir(t, "wrong_value", `initial:
  /data/c: { value: "41" }
`)

	out, err := execute(t, "--format", "json", "test", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp, result := decodeResponse[TestResult](t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
	assert.Equal(t, 1, result.Failed)
}

func TestTest_MalformedScenario(t *testing.T) {
	path := writeScenarioDir(t, "typo", "stepz: []\n")

	out, err := execute(t, "test", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "failed to load scenario")
}

func TestTest_UpdateGolden(t *testing.T) {
	path := writeScenarioDir(t, "set_a", `steps:
  - set: { ref: /data/a, value: "1" }
    expect:
      /data/c: { value: "20" }
`)
	golden := filepath.Join(filepath.Dir(filepath.Dir(path)), "golden", "set_a.golden")

	out, err := execute(t, "test", path, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ set_a (golden updated)")
	require.FileExists(t, golden)

	// The regenerated golden matches a fresh run.
	_, err = execute(t, "test", path)
	require.NoError(t, err)

	// A tampered golden fails the run.
	require.NoError(t, os.WriteFile(golden, []byte("{}"), 0o644))
	out, err = execute(t, "test", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTest_CommandErrors(t *testing.T) {
	_, err := execute(t, "test", filepath.Join("testdata", "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "test", scenariosDir, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "test")
	require.Error(t, err)
}

func TestGoldenFilePath(t *testing.T) {
	got := goldenFilePath(filepath.Join("testdata", "scenarios", "chain_update.yaml"), "chain_update")
	assert.Equal(t, filepath.Join("testdata", "golden", "chain_update.golden"), got)
}
