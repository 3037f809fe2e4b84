package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yile-Xu/penn-world-tables/internal/testutil"
	"github.com/Yile-Xu/penn-world-tables/pkg/core"
)

const testSources = `country_code,year,variable_code,value,unit
USA,2010,gdp_nominal,150,bil_lcu
USA,2010,pop,310,mil_persons
USA,2010,xr,1.0,rate
USA,2010,pl,1.5,index
KOR,2010,gdp_nominal,1300,bil_lcu
KOR,2010,pop,50,mil_persons
KOR,2010,xr,1150,rate
KOR,2010,pl,0.8,index
`

const testRules = `rules:
  - output: gdp_real_usd
    inputs: [gdp_nominal]
    transform: scale
    params:
      factor: 1.0
  - output: gdp_pc
    inputs: [gdp_real_usd, pop]
    transform: ratio
`

func writeProject(t *testing.T, sources, rules string) Config {
	t.Helper()
	dir := t.TempDir()

	sourcesDir := filepath.Join(dir, "sources")
	require.NoError(t, os.Mkdir(sourcesDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sourcesDir, "pwt.csv"), []byte(sources), 0o644))

	rulesFile := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(rulesFile, []byte(rules), 0o644))

	return Config{
		SourcesDir:    sourcesDir,
		RulesFile:     rulesFile,
		OutputFile:    filepath.Join(dir, "panel.csv"),
		StatePath:     filepath.Join(dir, "state.db"),
		ReferenceYear: 2017,
		BaseCurrency:  "USD",
	}
}

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	cfg.Logger = testutil.NewTestLogger(t)
	engine, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine
}

func TestEngine_Run(t *testing.T) {
	cfg := writeProject(t, testSources, testRules)
	engine := newTestEngine(t, cfg)

	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	require.NotNil(t, result.Run)
	assert.Equal(t, core.RunStatusCompleted, result.Run.Status)
	assert.Equal(t, 8, result.Run.Stats.RawObservations)
	assert.NotNil(t, result.Run.CompletedAt)

	// 2 countries x 1 year x 4 variables (gdp_nominal, gdp_real_usd,
	// gdp_pc, pop); xr and pl never reach the panel.
	require.NotNil(t, result.Panel)
	assert.Equal(t, []string{"gdp_nominal", "gdp_pc", "gdp_real_usd", "pop"}, result.Panel.Variables())
	assert.Equal(t, 8, result.Panel.Size())

	// USA: 150e9 LCU / (xr 1.0 * pl 1.5) = 100e9 USD, scaled by 1.0.
	v, ok := result.Panel.Get("USA", 2010, "gdp_real_usd")
	require.True(t, ok)
	assert.InDelta(t, 100e9, v.Value, 1e-3)

	if _, err := os.Stat(cfg.OutputFile); err != nil {
		t.Errorf("expected panel output file: %v", err)
	}
	if _, err := os.Stat(DiagnosticsPath(cfg.OutputFile)); err != nil {
		t.Errorf("expected diagnostics output file: %v", err)
	}

	// The run and its diagnostics are persisted.
	runs, err := engine.Store().ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, result.Run.ID, runs[0].ID)
}

func TestEngine_RunIdempotent(t *testing.T) {
	cfg := writeProject(t, testSources, testRules)
	engine := newTestEngine(t, cfg)

	_, err := engine.Run(context.Background())
	require.NoError(t, err)
	first, err := os.ReadFile(cfg.OutputFile)
	require.NoError(t, err)

	_, err = engine.Run(context.Background())
	require.NoError(t, err)
	second, err := os.ReadFile(cfg.OutputFile)
	require.NoError(t, err)

	assert.Equal(t, first, second, "identical inputs must produce byte-identical panels")
}

func TestEngine_RunCycleFails(t *testing.T) {
	cyclic := `rules:
  - output: a
    inputs: [b]
    transform: sum
  - output: b
    inputs: [a]
    transform: sum
`
	cfg := writeProject(t, testSources, cyclic)
	engine := newTestEngine(t, cfg)

	result, err := engine.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")

	require.NotNil(t, result.Run)
	assert.Equal(t, core.RunStatusFailed, result.Run.Status)
	assert.NotEmpty(t, result.Run.Error)
	assert.Nil(t, result.Panel)
}

func TestEngine_RunSelected(t *testing.T) {
	cfg := writeProject(t, testSources, testRules)
	engine := newTestEngine(t, cfg)

	result, err := engine.RunSelected(context.Background(), []string{"gdp_real_usd"}, false)
	require.NoError(t, err)

	// Only the selected rule runs; gdp_pc never derives.
	_, ok := result.Panel.Get("USA", 2010, "gdp_pc")
	assert.False(t, ok)
	v, ok := result.Panel.Get("USA", 2010, "gdp_real_usd")
	require.True(t, ok)
	assert.False(t, v.Missing)
}

func TestEngine_RunSelectedDownstream(t *testing.T) {
	cfg := writeProject(t, testSources, testRules)
	engine := newTestEngine(t, cfg)

	result, err := engine.RunSelected(context.Background(), []string{"gdp_real_usd"}, true)
	require.NoError(t, err)

	v, ok := result.Panel.Get("USA", 2010, "gdp_pc")
	require.True(t, ok)
	assert.False(t, v.Missing)
}

func TestEngine_RunSelectedUnknown(t *testing.T) {
	cfg := writeProject(t, testSources, testRules)
	engine := newTestEngine(t, cfg)

	_, err := engine.RunSelected(context.Background(), []string{"nope"}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no rule produces")
}

func TestEngine_BuildGraph(t *testing.T) {
	cfg := writeProject(t, testSources, testRules)
	engine := newTestEngine(t, cfg)

	graph, err := engine.BuildGraph()
	require.NoError(t, err)
	assert.Equal(t, 2, graph.Len())
}

func TestDiagnosticsPath(t *testing.T) {
	assert.Equal(t, "out/panel.diagnostics.csv", DiagnosticsPath("out/panel.csv"))
	assert.Equal(t, "panel.diagnostics", DiagnosticsPath("panel"))
}
