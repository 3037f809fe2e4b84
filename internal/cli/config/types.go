// Package config provides configuration management for the pwtgen CLI.
//
// Configuration is layered: defaults, then the project config file
// (pwtgen.yaml), then PWTGEN_-prefixed environment variables, then CLI
// flags. Later layers win.
package config

// Config holds all CLI configuration options.
type Config struct {
	SourcesDir    string         `koanf:"sources_dir"`
	RulesFile     string         `koanf:"rules_file"`
	OutputFile    string         `koanf:"output_file"`
	StatePath     string         `koanf:"state_path"`
	Environment   string         `koanf:"environment"`
	ReferenceYear int            `koanf:"reference_year"`
	BaseCurrency  string         `koanf:"base_currency"`
	Concurrency   int            `koanf:"concurrency"`
	Verbose       bool           `koanf:"verbose"`
	Reserved      ReservedConfig `koanf:"reserved"`
}

// ReservedConfig names the series consumed by unit normalization.
type ReservedConfig struct {
	ExchangeRate string `koanf:"exchange_rate"`
	Deflator     string `koanf:"deflator"`
}

// Default configuration values.
const (
	DefaultSourcesDir       = "sources"
	DefaultRulesFile        = "rules.yaml"
	DefaultOutputFile       = "panel.csv"
	DefaultStateFile        = ".pwtgen/state.db"
	DefaultEnv              = "dev"
	DefaultReferenceYear    = 2017
	DefaultBaseCurrency     = "USD"
	DefaultExchangeRateCode = "xr"
	DefaultDeflatorCode     = "pl"
)
