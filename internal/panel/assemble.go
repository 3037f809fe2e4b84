// Package panel merges normalized and derived observations into the final
// country x year x variable panel and writes it out as a tabular file. The
// panel always covers the full cross-product of observed countries, the
// observed year range, and declared variables, with explicit missing markers.
package panel

import (
	"fmt"
	"log/slog"

	"github.com/Yile-Xu/penn-world-tables/pkg/core"
)

// Assembler folds observations into panels.
type Assembler struct {
	reserved map[string]bool
	logger   *slog.Logger
}

// New creates an assembler. Reserved variable codes (the exchange-rate and
// deflator series) are kept out of the output panel. A nil logger discards
// output.
func New(reserved []string, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	set := make(map[string]bool, len(reserved))
	for _, code := range reserved {
		set[code] = true
	}
	return &Assembler{reserved: set, logger: logger}
}

// Assemble merges normalized and derived observations into a total panel.
// When a rule output overlaps an observed variable for a cell, the derived
// result wins and the discrepancy is recorded as a consistency warning,
// never silently discarded.
func (a *Assembler) Assemble(normalized []core.NormalizedObservation, derived []core.DerivedObservation) (*core.Panel, core.Diagnostics) {
	countries := make(map[string]bool)
	variables := make(map[string]bool)
	minYear, maxYear := 0, 0
	seenYear := false

	observeYear := func(year int) {
		if !seenYear {
			minYear, maxYear = year, year
			seenYear = true
			return
		}
		if year < minYear {
			minYear = year
		}
		if year > maxYear {
			maxYear = year
		}
	}

	for _, o := range normalized {
		countries[o.Country] = true
		observeYear(o.Year)
		if !a.reserved[o.Variable] {
			variables[o.Variable] = true
		}
	}
	for _, d := range derived {
		countries[d.Country] = true
		observeYear(d.Year)
		variables[d.Variable] = true
	}

	var years []int
	for y := minYear; seenYear && y <= maxYear; y++ {
		years = append(years, y)
	}

	p := core.NewPanel(setToSlice(countries), years, setToSlice(variables))

	observed := make(map[cellVar]float64)
	for _, o := range normalized {
		if a.reserved[o.Variable] {
			continue
		}
		p.Set(o.Country, o.Year, o.Variable, o.Value)
		observed[cellVar{o.Country, o.Year, o.Variable}] = o.Value
	}

	var diags core.Diagnostics
	for _, d := range derived {
		if prior, overlap := observed[cellVar{d.Country, d.Year, d.Variable}]; overlap {
			diags = append(diags, core.Diagnostic{
				Stage:    core.StageAssemble,
				Severity: core.SeverityWarning,
				Country:  d.Country,
				Year:     d.Year,
				Variable: d.Variable,
				Reason:   overlapReason(d, prior),
			})
		}
		if d.Missing {
			p.SetMissing(d.Country, d.Year, d.Variable)
		} else {
			p.Set(d.Country, d.Year, d.Variable, d.Value)
		}
	}

	a.logger.Debug("panel assembled",
		"countries", len(p.Countries()), "years", len(p.Years()),
		"variables", len(p.Variables()), "cells", p.Size())
	return p, diags
}

type cellVar struct {
	country  string
	year     int
	variable string
}

func overlapReason(d core.DerivedObservation, prior float64) string {
	if d.Missing {
		return fmt.Sprintf("derived result (missing) overrides observed value %v", prior)
	}
	return fmt.Sprintf("derived value %v overrides observed value %v", d.Value, prior)
}

func setToSlice(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	return out
}
