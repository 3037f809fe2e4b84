// Package commands implements the pwtgen subcommands.
package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Yile-Xu/penn-world-tables/internal/cli/config"
	"github.com/Yile-Xu/penn-world-tables/internal/pipeline"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg    *config.Config
	Logger *slog.Logger
	Engine *pipeline.Engine
}

// NewCommandContext creates a CommandContext with a pipeline engine.
// Returns the context and a cleanup function that must be called
// (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())

	eng, err := createEngine(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		_ = eng.Close()
	}

	return &CommandContext{Cfg: cfg, Logger: logger, Engine: eng}, cleanup, nil
}

// getConfig returns the current configuration, falling back to defaults
// when no config has been loaded (e.g. in direct command tests).
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	return &config.Config{
		SourcesDir:    config.DefaultSourcesDir,
		RulesFile:     config.DefaultRulesFile,
		OutputFile:    config.DefaultOutputFile,
		StatePath:     config.DefaultStateFile,
		Environment:   config.DefaultEnv,
		ReferenceYear: config.DefaultReferenceYear,
		BaseCurrency:  config.DefaultBaseCurrency,
		Reserved: config.ReservedConfig{
			ExchangeRate: config.DefaultExchangeRateCode,
			Deflator:     config.DefaultDeflatorCode,
		},
	}
}

// createEngine creates a pipeline engine from the current configuration.
func createEngine(cfg *config.Config, logger *slog.Logger) (*pipeline.Engine, error) {
	// Ensure state and output directories exist
	for _, path := range []string{cfg.StatePath, cfg.OutputFile} {
		dir := filepath.Dir(path)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}

	return pipeline.New(pipeline.Config{
		SourcesDir:       cfg.SourcesDir,
		RulesFile:        cfg.RulesFile,
		OutputFile:       cfg.OutputFile,
		StatePath:        cfg.StatePath,
		Environment:      cfg.Environment,
		ReferenceYear:    cfg.ReferenceYear,
		BaseCurrency:     cfg.BaseCurrency,
		ExchangeRateCode: cfg.Reserved.ExchangeRate,
		DeflatorCode:     cfg.Reserved.Deflator,
		Concurrency:      cfg.Concurrency,
		Logger:           logger,
	})
}
