// Package normalize converts heterogeneous raw observations into a common
// real currency basis using exchange-rate and price-deflator series carried
// in the raw data under reserved variable codes.
package normalize

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Yile-Xu/penn-world-tables/pkg/core"
)

// Default reserved variable codes for the auxiliary series.
const (
	DefaultExchangeRateCode = "xr"
	DefaultDeflatorCode     = "pl"
)

// Config declares the common basis and the reserved series codes.
type Config struct {
	// BaseCurrency is the common currency code (e.g., "USD")
	BaseCurrency string
	// ReferenceYear is the constant-price reference year
	ReferenceYear int
	// ExchangeRateCode is the reserved variable code of the exchange-rate
	// series (LCU per unit of base currency)
	ExchangeRateCode string
	// DeflatorCode is the reserved variable code of the price-deflator series
	DeflatorCode string
}

func (c Config) withDefaults() Config {
	if c.ExchangeRateCode == "" {
		c.ExchangeRateCode = DefaultExchangeRateCode
	}
	if c.DeflatorCode == "" {
		c.DeflatorCode = DefaultDeflatorCode
	}
	return c
}

// AlreadyNormalizedError is returned when the normalizer is handed
// observations that already carry the normalized basis tag. Applying the
// normalization twice would silently corrupt values, so it is refused.
type AlreadyNormalizedError struct {
	Country  string
	Year     int
	Variable string
	Unit     string
}

func (e *AlreadyNormalizedError) Error() string {
	return fmt.Sprintf("observation %s/%d/%s is already normalized (unit %q)",
		e.Country, e.Year, e.Variable, e.Unit)
}

// unitClass groups units by the normalization they require.
type unitClass int

const (
	classMonetary unitClass = iota
	classCount
	classDimensionless
)

type unitSpec struct {
	class unitClass
	scale float64
}

// unitTable maps declared raw units to their class and magnitude scale.
var unitTable = map[string]unitSpec{
	"lcu":              {classMonetary, 1},
	"thousand_lcu":     {classMonetary, 1e3},
	"mil_lcu":          {classMonetary, 1e6},
	"bil_lcu":          {classMonetary, 1e9},
	"persons":          {classCount, 1},
	"thousand_persons": {classCount, 1e3},
	"mil_persons":      {classCount, 1e6},
	"index":            {classDimensionless, 1},
	"share":            {classDimensionless, 1},
	"rate":             {classDimensionless, 1},
	"ratio":            {classDimensionless, 1},
}

// Normalizer converts raw observations to the common basis.
type Normalizer struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a normalizer. A nil logger discards output.
func New(cfg Config, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Normalizer{cfg: cfg.withDefaults(), logger: logger}
}

// Normalize converts observations into the common currency/price basis.
// Monetary cells require an exact (country, year) exchange rate and deflator;
// absent either, the cell fails with a "missing normalization input"
// diagnostic and is excluded. The reserved series pass through unchanged so
// derivation rules can reference them; the assembler keeps them out of the
// final panel. All arithmetic is double precision. The input is never
// mutated.
func (n *Normalizer) Normalize(observations []core.RawObservation) ([]core.NormalizedObservation, core.Diagnostics, error) {
	rates := make(map[core.CellKey]float64)
	deflators := make(map[core.CellKey]float64)

	for _, o := range observations {
		if strings.HasPrefix(o.Unit, core.NormalizedUnitPrefix) {
			return nil, nil, &AlreadyNormalizedError{
				Country: o.Country, Year: o.Year, Variable: o.Variable, Unit: o.Unit,
			}
		}
		key := core.CellKey{Country: o.Country, Year: o.Year}
		switch o.Variable {
		case n.cfg.ExchangeRateCode:
			rates[key] = o.Value
		case n.cfg.DeflatorCode:
			deflators[key] = o.Value
		}
	}

	var (
		normalized []core.NormalizedObservation
		diags      core.Diagnostics
	)

	for _, o := range observations {
		spec, known := unitTable[o.Unit]
		if !known {
			diags = append(diags, cellDiag(o, fmt.Sprintf("unknown unit %q", o.Unit)))
			continue
		}

		basis := core.Basis{Currency: n.cfg.BaseCurrency, ReferenceYear: n.cfg.ReferenceYear}
		value := o.Value * spec.scale

		if spec.class == classMonetary {
			key := core.CellKey{Country: o.Country, Year: o.Year}
			rate, haveRate := rates[key]
			deflator, haveDeflator := deflators[key]
			if !haveRate {
				diags = append(diags, cellDiag(o, fmt.Sprintf(
					"missing normalization input: no %s observation for %s", n.cfg.ExchangeRateCode, key)))
				continue
			}
			if !haveDeflator {
				diags = append(diags, cellDiag(o, fmt.Sprintf(
					"missing normalization input: no %s observation for %s", n.cfg.DeflatorCode, key)))
				continue
			}
			if rate == 0 || deflator == 0 {
				diags = append(diags, cellDiag(o, "missing normalization input: zero exchange rate or deflator"))
				continue
			}
			value = value / rate / deflator
			basis.Converted = true
			basis.Deflated = true
		}

		normalized = append(normalized, core.NormalizedObservation{
			Country:  o.Country,
			Year:     o.Year,
			Variable: o.Variable,
			Value:    value,
			Basis:    basis,
		})
	}

	n.logger.Debug("normalization complete",
		"input", len(observations), "output", len(normalized), "diagnostics", len(diags))
	return normalized, diags, nil
}

func cellDiag(o core.RawObservation, reason string) core.Diagnostic {
	return core.Diagnostic{
		Stage:    core.StageNormalize,
		Severity: core.SeverityError,
		Country:  o.Country,
		Year:     o.Year,
		Variable: o.Variable,
		Reason:   reason,
	}
}
