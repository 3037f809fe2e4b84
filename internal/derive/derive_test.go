package derive

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yile-Xu/penn-world-tables/internal/dag"
	"github.com/Yile-Xu/penn-world-tables/internal/rules"
	"github.com/Yile-Xu/penn-world-tables/pkg/core"
)

func engine(t *testing.T) *Engine {
	t.Helper()
	return New(rules.NewRegistry(), nil, 1)
}

func parseRules(t *testing.T, yaml string) []*core.Rule {
	t.Helper()
	ruleSet, err := rules.Parse([]byte(yaml), rules.NewRegistry())
	require.NoError(t, err)
	return ruleSet
}

func norm(country string, year int, variable string, value float64) core.NormalizedObservation {
	return core.NormalizedObservation{
		Country: country, Year: year, Variable: variable, Value: value,
		Basis: core.Basis{Currency: "USD", ReferenceYear: 2017},
	}
}

func base(vars ...string) map[string]bool {
	m := make(map[string]bool, len(vars))
	for _, v := range vars {
		m[v] = true
	}
	return m
}

func TestBuildGraph_UnknownInput(t *testing.T) {
	ruleSet := parseRules(t, `
rules:
  - output: a
    inputs: [nonexistent, x]
    transform: ratio
`)

	_, err := engine(t).BuildGraph(ruleSet, base("x"))
	var uerr *UnknownVariableError
	require.True(t, errors.As(err, &uerr), "expected UnknownVariableError, got %v", err)
	assert.Equal(t, "nonexistent", uerr.Input)
}

func TestBuildGraph_CycleFatal(t *testing.T) {
	ruleSet := parseRules(t, `
rules:
  - output: a
    inputs: [b, x]
    transform: ratio
  - output: b
    inputs: [a, x]
    transform: ratio
`)

	_, err := engine(t).BuildGraph(ruleSet, base("x"))
	var cerr *dag.CycleError
	require.True(t, errors.As(err, &cerr), "expected CycleError, got %v", err)
}

func TestDerive_ScenarioRealGDP(t *testing.T) {
	// gdp_real_usd = gdp_nominal_lcu / xr / pl with all inputs present.
	ruleSet := parseRules(t, `
rules:
  - output: gdp_real_usd
    inputs: [gdp_nominal_lcu, xr, pl]
    transform: deflate
`)
	observations := []core.NormalizedObservation{
		norm("USA", 2010, "gdp_nominal_lcu", 100),
		norm("USA", 2010, "xr", 1.0),
		norm("USA", 2010, "pl", 1.0),
	}

	e := engine(t)
	graph, err := e.BuildGraph(ruleSet, base("gdp_nominal_lcu", "xr", "pl"))
	require.NoError(t, err)

	derived, diags, err := e.Derive(context.Background(), graph, observations)
	require.NoError(t, err)
	assert.Empty(t, diags)
	require.Len(t, derived, 1)

	assert.Equal(t, core.DerivedObservation{
		Country: "USA", Year: 2010, Variable: "gdp_real_usd", Value: 100.0,
	}, derived[0])
}

func TestDerive_MissingInputPropagates(t *testing.T) {
	// xr absent for 2010: gdp_real_usd is missing, and so is the dependent
	// gdp_pc even though pop is present.
	ruleSet := parseRules(t, `
rules:
  - output: gdp_real_usd
    inputs: [gdp_nominal_lcu, xr, pl]
    transform: deflate
  - output: gdp_pc
    inputs: [gdp_real_usd, pop]
    transform: ratio
`)
	observations := []core.NormalizedObservation{
		norm("USA", 2010, "gdp_nominal_lcu", 100),
		norm("USA", 2010, "pl", 1.0),
		norm("USA", 2010, "pop", 300),
	}

	e := engine(t)
	graph, err := e.BuildGraph(ruleSet, base("gdp_nominal_lcu", "xr", "pl", "pop"))
	require.NoError(t, err)

	derived, diags, err := e.Derive(context.Background(), graph, observations)
	require.NoError(t, err)

	require.Len(t, derived, 2)
	byVar := make(map[string]core.DerivedObservation)
	for _, d := range derived {
		byVar[d.Variable] = d
	}
	assert.True(t, byVar["gdp_real_usd"].Missing)
	assert.True(t, byVar["gdp_pc"].Missing)

	require.Len(t, diags, 2)
	assert.Contains(t, diags[0].Reason, "missing derivation input: xr")
	assert.Contains(t, diags[1].Reason, "missing derivation input: gdp_real_usd")
}

func TestDerive_TransformErrorMarksMissing(t *testing.T) {
	ruleSet := parseRules(t, `
rules:
  - output: per_capita
    inputs: [gdp, pop]
    transform: ratio
`)
	observations := []core.NormalizedObservation{
		norm("USA", 2010, "gdp", 100),
		norm("USA", 2010, "pop", 0),
	}

	e := engine(t)
	graph, err := e.BuildGraph(ruleSet, base("gdp", "pop"))
	require.NoError(t, err)

	derived, diags, err := e.Derive(context.Background(), graph, observations)
	require.NoError(t, err)
	require.Len(t, derived, 1)
	assert.True(t, derived[0].Missing)
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Reason, `transform "ratio" failed`)
}

func TestDerive_Deterministic(t *testing.T) {
	ruleSet := parseRules(t, `
rules:
  - output: z_first
    inputs: [gdp, pop]
    transform: ratio
  - output: a_second
    inputs: [gdp, pop]
    transform: product
`)
	observations := []core.NormalizedObservation{
		norm("USA", 2010, "gdp", 100),
		norm("USA", 2010, "pop", 4),
		norm("KOR", 2010, "gdp", 80),
		norm("KOR", 2010, "pop", 2),
		norm("KOR", 2011, "gdp", 90),
		norm("KOR", 2011, "pop", 2),
	}

	run := func(workers int) ([]core.DerivedObservation, core.Diagnostics) {
		e := New(rules.NewRegistry(), nil, workers)
		graph, err := e.BuildGraph(ruleSet, base("gdp", "pop"))
		require.NoError(t, err)
		derived, diags, err := e.Derive(context.Background(), graph, observations)
		require.NoError(t, err)
		return derived, diags
	}

	d1, g1 := run(1)
	d2, g2 := run(4)
	assert.True(t, reflect.DeepEqual(d1, d2), "derivations differ across worker counts")
	assert.True(t, reflect.DeepEqual(g1, g2), "diagnostics differ across worker counts")

	// Countries in sorted order, rules in declaration order within a cell.
	assert.Equal(t, "KOR", d1[0].Country)
	assert.Equal(t, "z_first", d1[0].Variable)
	assert.Equal(t, "a_second", d1[1].Variable)
}

func TestDerive_ChainedRules(t *testing.T) {
	ruleSet := parseRules(t, `
rules:
  - output: c
    inputs: [b, x]
    transform: product
  - output: b
    inputs: [a, x]
    transform: product
  - output: a
    inputs: [x, x2]
    transform: product
`)
	observations := []core.NormalizedObservation{
		norm("USA", 2010, "x", 2),
		norm("USA", 2010, "x2", 3),
	}

	e := engine(t)
	graph, err := e.BuildGraph(ruleSet, base("x", "x2"))
	require.NoError(t, err)

	derived, diags, err := e.Derive(context.Background(), graph, observations)
	require.NoError(t, err)
	assert.Empty(t, diags)

	byVar := make(map[string]float64)
	for _, d := range derived {
		require.False(t, d.Missing)
		byVar[d.Variable] = d.Value
	}
	assert.Equal(t, 6.0, byVar["a"])   // 2*3
	assert.Equal(t, 12.0, byVar["b"])  // 6*2
	assert.Equal(t, 24.0, byVar["c"])  // 12*2
}

func TestDerive_YearRangeGapsAreMissing(t *testing.T) {
	// Observations for 2010 and 2012 imply a 2011 cell that must be
	// attempted and marked missing.
	ruleSet := parseRules(t, `
rules:
  - output: pc
    inputs: [gdp, pop]
    transform: ratio
`)
	observations := []core.NormalizedObservation{
		norm("USA", 2010, "gdp", 100),
		norm("USA", 2010, "pop", 4),
		norm("USA", 2012, "gdp", 120),
		norm("USA", 2012, "pop", 4),
	}

	e := engine(t)
	graph, err := e.BuildGraph(ruleSet, base("gdp", "pop"))
	require.NoError(t, err)

	derived, _, err := e.Derive(context.Background(), graph, observations)
	require.NoError(t, err)
	require.Len(t, derived, 3)

	byYear := make(map[int]core.DerivedObservation)
	for _, d := range derived {
		byYear[d.Year] = d
	}
	assert.False(t, byYear[2010].Missing)
	assert.True(t, byYear[2011].Missing)
	assert.False(t, byYear[2012].Missing)
}
