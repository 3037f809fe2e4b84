package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yile-Xu/penn-world-tables/internal/cli/config"
)

// execute runs the root command with args inside the given directory.
func execute(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	config.ResetConfig()

	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })

	cmd := NewRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return buf.String(), err
}

// initProject scaffolds a project with `pwtgen init` and returns its dir.
func initProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	_, err := execute(t, dir, "init")
	require.NoError(t, err)
	return dir
}

func TestRootCmd_Version(t *testing.T) {
	out, err := execute(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "pwtgen v")
}

func TestRootCmd_FullBuild(t *testing.T) {
	dir := initProject(t)

	out, err := execute(t, dir, "run")
	require.NoError(t, err)
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "Panel written to")

	if _, err := os.Stat(filepath.Join(dir, "panel.csv")); err != nil {
		t.Fatalf("expected panel output: %v", err)
	}
	content, err := os.ReadFile(filepath.Join(dir, "panel.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "country_code,year,variable_code,value,is_missing")
	assert.Contains(t, string(content), "rgdp_pc")
	// Reserved series never reach the panel.
	assert.NotContains(t, string(content), ",xr,")
	assert.NotContains(t, string(content), ",pl,")
}

func TestRootCmd_RunSelect(t *testing.T) {
	dir := initProject(t)

	out, err := execute(t, dir, "run", "--select", "rgdp_usd", "--downstream")
	require.NoError(t, err)
	assert.Contains(t, out, "selected rules (+ downstream)")
}

func TestRootCmd_RulesList(t *testing.T) {
	dir := initProject(t)

	out, err := execute(t, dir, "rules", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "rgdp_usd")
	assert.Contains(t, out, "tfp_residual")
	assert.Contains(t, out, "(4 rules)")
}

func TestRootCmd_RulesValidate(t *testing.T) {
	dir := initProject(t)

	out, err := execute(t, dir, "rules", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Rules OK")
}

func TestRootCmd_Graph(t *testing.T) {
	dir := initProject(t)

	out, err := execute(t, dir, "graph")
	require.NoError(t, err)
	assert.Contains(t, out, "Level 0:")
	assert.Contains(t, out, "rgdp_usd")

	out, err = execute(t, dir, "graph", "--format", "dot")
	require.NoError(t, err)
	assert.Contains(t, out, "digraph derivation")
	assert.Contains(t, out, `"rgdp_usd" -> "rgdp_pc"`)
}

func TestRootCmd_Runs(t *testing.T) {
	dir := initProject(t)

	out, err := execute(t, dir, "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded")

	_, err = execute(t, dir, "run")
	require.NoError(t, err)

	out, err = execute(t, dir, "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "completed")
}

func TestRootCmd_FlagOverridesConfig(t *testing.T) {
	dir := initProject(t)
	altRules := filepath.Join(dir, "alt-rules.yaml")
	require.NoError(t, os.WriteFile(altRules, []byte(`rules:
  - output: only_one
    inputs: [pop]
    transform: sum
`), 0o644))

	out, err := execute(t, dir, "rules", "list", "--rules", altRules)
	require.NoError(t, err)
	assert.Contains(t, out, "only_one")
	assert.Contains(t, out, "(1 rules)")
}
