// Package pipeline orchestrates the four dataset-construction stages: load
// raw observations, normalize units and currency, derive variables over the
// rule graph, and assemble the output panel. Every run is recorded in the
// state store together with its diagnostics stream.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/Yile-Xu/penn-world-tables/internal/dag"
	"github.com/Yile-Xu/penn-world-tables/internal/derive"
	"github.com/Yile-Xu/penn-world-tables/internal/loader"
	"github.com/Yile-Xu/penn-world-tables/internal/normalize"
	"github.com/Yile-Xu/penn-world-tables/internal/panel"
	"github.com/Yile-Xu/penn-world-tables/internal/rules"
	"github.com/Yile-Xu/penn-world-tables/internal/state"
	"github.com/Yile-Xu/penn-world-tables/pkg/core"
)

// Config holds pipeline configuration.
type Config struct {
	// SourcesDir is the directory holding raw observation files.
	SourcesDir string
	// RulesFile is the path to the derivation rules file.
	RulesFile string
	// OutputFile is the path the panel is written to.
	OutputFile string
	// StatePath is the path to the SQLite state database.
	StatePath string
	// Environment is the current environment (dev, staging, prod).
	Environment string
	// ReferenceYear anchors price deflation.
	ReferenceYear int
	// BaseCurrency is the currency all monetary series are converted to.
	BaseCurrency string
	// ExchangeRateCode is the reserved exchange-rate series code.
	ExchangeRateCode string
	// DeflatorCode is the reserved price-level series code.
	DeflatorCode string
	// Concurrency bounds per-country derivation workers (0 = GOMAXPROCS).
	Concurrency int
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// Result is the outcome of one pipeline run.
type Result struct {
	Run         *core.Run
	Panel       *core.Panel
	Diagnostics core.Diagnostics
}

// Engine wires the pipeline stages together.
type Engine struct {
	cfg      Config
	logger   *slog.Logger
	store    core.Store
	registry *rules.Registry
}

// New creates a pipeline engine and opens its state store.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Environment == "" {
		cfg.Environment = "dev"
	}

	logger.Debug("initializing pipeline",
		"sources_dir", cfg.SourcesDir, "rules_file", cfg.RulesFile, "environment", cfg.Environment)

	store := state.NewSQLiteStore(logger)
	if err := store.Open(cfg.StatePath); err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate state store: %w", err)
	}

	return &Engine{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		registry: rules.NewRegistry(),
	}, nil
}

// Close releases the state store.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Store exposes the run-history store.
func (e *Engine) Store() core.Store {
	return e.store
}

// LoadRules parses and validates the configured rules file.
func (e *Engine) LoadRules() ([]*core.Rule, error) {
	return rules.Load(e.cfg.RulesFile, e.registry)
}

// BuildGraph loads the rules and sources and builds the validated
// derivation graph.
func (e *Engine) BuildGraph() (*dag.Graph, error) {
	ruleSet, err := e.LoadRules()
	if err != nil {
		return nil, err
	}

	raw, _, err := loader.New(e.logger).LoadDir(e.cfg.SourcesDir)
	if err != nil {
		return nil, err
	}

	return derive.New(e.registry, e.logger, e.cfg.Concurrency).BuildGraph(ruleSet, baseVariables(raw))
}

// Run executes the full pipeline.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	return e.run(ctx, nil, false)
}

// RunSelected executes only the named rule outputs, optionally including
// their downstream dependents. Base observations are still loaded in full.
func (e *Engine) RunSelected(ctx context.Context, selected []string, includeDownstream bool) (*Result, error) {
	return e.run(ctx, selected, includeDownstream)
}

func (e *Engine) run(ctx context.Context, selected []string, includeDownstream bool) (*Result, error) {
	e.logger.Info("starting run", "environment", e.cfg.Environment)

	run, err := e.store.CreateRun(e.cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	e.logger.Debug("created run", "run_id", run.ID)

	result, runErr := e.execute(ctx, selected, includeDownstream)
	if runErr != nil {
		e.logger.Info("run failed", "run_id", run.ID, "error", runErr.Error())
		_ = e.store.CompleteRun(run.ID, core.RunStatusFailed, core.RunStats{}, runErr.Error())
		run, _ = e.store.GetRun(run.ID)
		return &Result{Run: run}, runErr
	}

	if err := e.store.RecordDiagnostics(run.ID, result.Diagnostics); err != nil {
		e.logger.Warn("failed to record diagnostics", "run_id", run.ID, "error", err)
	}
	_ = e.store.CompleteRun(run.ID, core.RunStatusCompleted, result.stats, "")

	e.logger.Info("run completed", "run_id", run.ID,
		"panel_cells", result.stats.PanelCells, "diagnostics", result.stats.DiagnosticsCount)

	run, _ = e.store.GetRun(run.ID)
	return &Result{Run: run, Panel: result.panel, Diagnostics: result.Diagnostics}, nil
}

type executeResult struct {
	panel       *core.Panel
	Diagnostics core.Diagnostics
	stats       core.RunStats
}

func (e *Engine) execute(ctx context.Context, selected []string, includeDownstream bool) (*executeResult, error) {
	ruleSet, err := e.LoadRules()
	if err != nil {
		return nil, err
	}

	raw, loadDiags, err := loader.New(e.logger).LoadDir(e.cfg.SourcesDir)
	if err != nil {
		return nil, err
	}

	normalized, normDiags, err := normalize.New(normalize.Config{
		BaseCurrency:     e.cfg.BaseCurrency,
		ReferenceYear:    e.cfg.ReferenceYear,
		ExchangeRateCode: e.cfg.ExchangeRateCode,
		DeflatorCode:     e.cfg.DeflatorCode,
	}, e.logger).Normalize(raw)
	if err != nil {
		return nil, err
	}

	eng := derive.New(e.registry, e.logger, e.cfg.Concurrency)
	graph, err := eng.BuildGraph(ruleSet, baseVariables(raw))
	if err != nil {
		return nil, err
	}

	if len(selected) > 0 {
		affected := selected
		if includeDownstream {
			affected = graph.Downstream(selected)
		}
		for _, v := range selected {
			if _, ok := graph.Rule(v); !ok {
				return nil, fmt.Errorf("no rule produces variable %q", v)
			}
		}
		graph = graph.Subgraph(affected)
		e.logger.Debug("running subgraph", "variables", affected)
	}

	derived, deriveDiags, err := eng.Derive(ctx, graph, normalized)
	if err != nil {
		return nil, err
	}

	reserved := e.reservedCodes()
	p, asmDiags := panel.New(reserved, e.logger).Assemble(normalized, derived)

	diags := make(core.Diagnostics, 0, len(loadDiags)+len(normDiags)+len(deriveDiags)+len(asmDiags))
	diags = append(diags, loadDiags...)
	diags = append(diags, normDiags...)
	diags = append(diags, deriveDiags...)
	diags = append(diags, asmDiags...)

	if e.cfg.OutputFile != "" {
		if err := panel.WritePanelFile(e.cfg.OutputFile, p); err != nil {
			return nil, err
		}
		if err := panel.WriteDiagnosticsFile(DiagnosticsPath(e.cfg.OutputFile), diags); err != nil {
			return nil, err
		}
	}

	return &executeResult{
		panel:       p,
		Diagnostics: diags,
		stats: core.RunStats{
			RawObservations:  len(raw),
			DerivedCells:     len(derived),
			PanelCells:       p.Size(),
			DiagnosticsCount: len(diags),
		},
	}, nil
}

func (e *Engine) reservedCodes() []string {
	xr, pl := e.cfg.ExchangeRateCode, e.cfg.DeflatorCode
	if xr == "" {
		xr = "xr"
	}
	if pl == "" {
		pl = "pl"
	}
	return []string{xr, pl}
}

// DiagnosticsPath returns the diagnostics file path for a panel output path:
// panel.csv becomes panel.diagnostics.csv.
func DiagnosticsPath(outputFile string) string {
	ext := filepath.Ext(outputFile)
	return strings.TrimSuffix(outputFile, ext) + ".diagnostics" + ext
}

func baseVariables(raw []core.RawObservation) map[string]bool {
	base := make(map[string]bool)
	for _, o := range raw {
		base[o.Variable] = true
	}
	return base
}
