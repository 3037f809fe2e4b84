// Package derive computes derived indicators from normalized observations by
// executing a declared rule graph in dependency order. The engine is a pure
// function of its inputs: identical observations and rules always produce
// identical derived records and diagnostics.
package derive

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Yile-Xu/penn-world-tables/internal/dag"
	"github.com/Yile-Xu/penn-world-tables/internal/rules"
	"github.com/Yile-Xu/penn-world-tables/pkg/core"
)

// UnknownVariableError reports a rule input that is neither produced by
// another rule nor present in the observed data. Fatal: the graph is
// malformed.
type UnknownVariableError struct {
	Rule  string
	Input string
}

func (e *UnknownVariableError) Error() string {
	return fmt.Sprintf("rule %q references unknown variable %q", e.Rule, e.Input)
}

// Engine executes derivation rule graphs.
type Engine struct {
	registry *rules.Registry
	logger   *slog.Logger
	workers  int
}

// New creates an engine. workers bounds the number of country partitions
// derived concurrently; zero means GOMAXPROCS. A nil logger discards output.
func New(registry *rules.Registry, logger *slog.Logger, workers int) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Engine{registry: registry, logger: logger, workers: workers}
}

// BuildGraph constructs and validates the dependency graph for a rule set
// against the set of base variables observed in the data. Unknown input
// references and cycles are fatal; no computation happens on a malformed
// graph.
func (e *Engine) BuildGraph(ruleSet []*core.Rule, baseVariables map[string]bool) (*dag.Graph, error) {
	graph := dag.New()
	for _, rule := range ruleSet {
		if err := graph.AddRule(rule); err != nil {
			return nil, err
		}
	}

	for _, rule := range ruleSet {
		for _, input := range rule.Inputs {
			if _, produced := graph.Rule(input); produced {
				if err := graph.AddEdge(input, rule.Output); err != nil {
					return nil, err
				}
				continue
			}
			if !baseVariables[input] {
				return nil, &UnknownVariableError{Rule: rule.Output, Input: input}
			}
		}
	}

	if err := graph.CheckAcyclic(); err != nil {
		return nil, err
	}
	return graph, nil
}

// countryResult holds one country partition's output, merged in country
// order after all partitions finish so results are deterministic.
type countryResult struct {
	derived []core.DerivedObservation
	diags   core.Diagnostics
}

// Derive computes every rule in the graph for every observed country and
// every year in the observed range. A cell is computed only when all its
// inputs are present; otherwise it is marked missing, with a diagnostic, and
// the marker propagates to dependent rules. Country partitions run in
// parallel; rules never cross country boundaries.
func (e *Engine) Derive(ctx context.Context, graph *dag.Graph, normalized []core.NormalizedObservation) ([]core.DerivedObservation, core.Diagnostics, error) {
	sorted, err := graph.TopologicalSort()
	if err != nil {
		return nil, nil, err
	}

	transforms := make(map[string]rules.Transform, len(sorted))
	for _, rule := range sorted {
		t, err := e.registry.Resolve(rule)
		if err != nil {
			return nil, nil, err
		}
		transforms[rule.Output] = t
	}

	values := indexObservations(normalized)
	countries := sortedCountries(values)
	years := observedYearRange(normalized)

	e.logger.Debug("starting derivation",
		"rules", len(sorted), "countries", len(countries), "years", len(years), "workers", e.workers)

	results := make([]countryResult, len(countries))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, country := range countries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = e.deriveCountry(country, years, sorted, transforms, values[country])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var derived []core.DerivedObservation
	var diags core.Diagnostics
	for _, r := range results {
		derived = append(derived, r.derived...)
		diags = append(diags, r.diags...)
	}
	return derived, diags, nil
}

// deriveCountry runs the sorted rules over one country's cells.
func (e *Engine) deriveCountry(
	country string,
	years []int,
	sorted []*core.Rule,
	transforms map[string]rules.Transform,
	observed map[int]map[string]float64,
) countryResult {
	var result countryResult

	// computed holds this country's derived values; missing cells are
	// recorded so dependents see them as absent, not as zero.
	computed := make(map[int]map[string]float64, len(years))
	for _, year := range years {
		computed[year] = make(map[string]float64)
	}

	for _, year := range years {
		for _, rule := range sorted {
			inputs := make(map[string]float64, len(rule.Inputs))
			var absent []string

			for _, in := range rule.Inputs {
				if v, ok := observed[year][in]; ok {
					inputs[in] = v
					continue
				}
				if v, ok := computed[year][in]; ok {
					inputs[in] = v
					continue
				}
				absent = append(absent, in)
			}

			if len(absent) > 0 {
				sort.Strings(absent)
				result.diags = append(result.diags, core.Diagnostic{
					Stage:    core.StageDerive,
					Severity: core.SeverityError,
					Country:  country,
					Year:     year,
					Variable: rule.Output,
					Reason:   fmt.Sprintf("missing derivation input: %s", strings.Join(absent, ", ")),
				})
				result.derived = append(result.derived, core.DerivedObservation{
					Country: country, Year: year, Variable: rule.Output, Missing: true,
				})
				continue
			}

			value, err := transforms[rule.Output].Apply(inputs)
			if err != nil {
				result.diags = append(result.diags, core.Diagnostic{
					Stage:    core.StageDerive,
					Severity: core.SeverityError,
					Country:  country,
					Year:     year,
					Variable: rule.Output,
					Reason:   fmt.Sprintf("transform %q failed: %v", rule.Transform, err),
				})
				result.derived = append(result.derived, core.DerivedObservation{
					Country: country, Year: year, Variable: rule.Output, Missing: true,
				})
				continue
			}

			computed[year][rule.Output] = value
			result.derived = append(result.derived, core.DerivedObservation{
				Country: country, Year: year, Variable: rule.Output, Value: value,
			})
		}
	}

	return result
}

// indexObservations builds country -> year -> variable -> value.
func indexObservations(normalized []core.NormalizedObservation) map[string]map[int]map[string]float64 {
	values := make(map[string]map[int]map[string]float64)
	for _, o := range normalized {
		byYear, ok := values[o.Country]
		if !ok {
			byYear = make(map[int]map[string]float64)
			values[o.Country] = byYear
		}
		byVar, ok := byYear[o.Year]
		if !ok {
			byVar = make(map[string]float64)
			byYear[o.Year] = byVar
		}
		byVar[o.Variable] = o.Value
	}
	return values
}

func sortedCountries(values map[string]map[int]map[string]float64) []string {
	countries := make([]string, 0, len(values))
	for c := range values {
		countries = append(countries, c)
	}
	sort.Strings(countries)
	return countries
}

// observedYearRange returns every year from the earliest to the latest
// observation, inclusive, matching the panel's year axis.
func observedYearRange(normalized []core.NormalizedObservation) []int {
	if len(normalized) == 0 {
		return nil
	}
	min, max := normalized[0].Year, normalized[0].Year
	for _, o := range normalized {
		if o.Year < min {
			min = o.Year
		}
		if o.Year > max {
			max = o.Year
		}
	}
	years := make([]int, 0, max-min+1)
	for y := min; y <= max; y++ {
		years = append(years, y)
	}
	return years
}
