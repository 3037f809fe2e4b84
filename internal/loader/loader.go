// Package loader reads raw country/year source tables into RawObservations.
// It accepts delimited text (.csv, .tsv) and Excel (.xlsx) tables sharing the
// same column contract: country_code, year, variable_code, value, unit.
package loader

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/Yile-Xu/penn-world-tables/pkg/core"
)

// Required columns of every source table, in any order.
var requiredColumns = []string{"country_code", "year", "variable_code", "value", "unit"}

// Years outside this window are treated as malformed rather than silently
// loaded; the PWT covers 1950 onward and no source predates modern records.
const (
	minYear = 1000
	maxYear = 2999
)

// Loader parses source tables into raw observations.
type Loader struct {
	logger *slog.Logger
}

// New creates a loader. A nil logger discards output.
func New(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{logger: logger}
}

// LoadDir reads every supported table under dir, in sorted filename order.
// When two sources report the same (country, year, variable) cell with
// different values, the later source wins and a consistency warning is
// emitted. Unreadable files are fatal; malformed rows are diagnostics.
func (l *Loader) LoadDir(dir string) ([]core.RawObservation, core.Diagnostics, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read sources directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".csv", ".tsv", ".xlsx":
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)

	if len(paths) == 0 {
		return nil, nil, fmt.Errorf("no source tables found in %s", dir)
	}

	var (
		observations []core.RawObservation
		diags        core.Diagnostics
		index        = make(map[rawKey]int)
	)

	for _, path := range paths {
		obs, fileDiags, err := l.LoadFile(path)
		if err != nil {
			return nil, nil, err
		}
		diags = append(diags, fileDiags...)

		for _, o := range obs {
			key := rawKey{country: o.Country, year: o.Year, variable: o.Variable}
			if prev, seen := index[key]; seen {
				if observations[prev].Value != o.Value {
					diags = append(diags, core.Diagnostic{
						Stage:    core.StageLoad,
						Severity: core.SeverityWarning,
						Country:  o.Country,
						Year:     o.Year,
						Variable: o.Variable,
						Reason: fmt.Sprintf("source %q overrides value %v from source %q",
							o.Source, observations[prev].Value, observations[prev].Source),
					})
				}
				observations[prev] = o
				continue
			}
			index[key] = len(observations)
			observations = append(observations, o)
		}
	}

	l.logger.Debug("sources loaded", "files", len(paths), "observations", len(observations), "diagnostics", len(diags))
	return observations, diags, nil
}

// LoadFile reads a single source table. The source id recorded on each
// observation is the file name without extension.
func (l *Loader) LoadFile(path string) ([]core.RawObservation, core.Diagnostics, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		rows, err = readDelimited(path, ',')
	case ".tsv":
		rows, err = readDelimited(path, '\t')
	case ".xlsx":
		rows, err = readWorkbook(path)
	default:
		return nil, nil, fmt.Errorf("unsupported source table format: %s", path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read source table %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("source table %s is empty", path)
	}

	columns, err := mapColumns(rows[0])
	if err != nil {
		return nil, nil, fmt.Errorf("source table %s: %w", path, err)
	}

	source := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return l.parseRows(rows[1:], columns, source)
}

// rawKey identifies a raw cell for cross-source deduplication.
type rawKey struct {
	country  string
	year     int
	variable string
}

// mapColumns resolves the positions of the required columns from a header.
func mapColumns(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range requiredColumns {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}
	return columns, nil
}

// parseRows converts table rows into observations, dropping malformed rows
// with a diagnostic instead of aborting.
func (l *Loader) parseRows(rows [][]string, columns map[string]int, source string) ([]core.RawObservation, core.Diagnostics, error) {
	var (
		observations []core.RawObservation
		diags        core.Diagnostics
	)

	field := func(row []string, name string) string {
		i := columns[name]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	for _, row := range rows {
		country := strings.ToUpper(field(row, "country_code"))
		variable := strings.ToLower(field(row, "variable_code"))
		yearText := field(row, "year")
		valueText := field(row, "value")
		unit := strings.ToLower(field(row, "unit"))

		year, err := strconv.Atoi(yearText)
		if err != nil || year < minYear || year > maxYear {
			diags = append(diags, malformed(country, 0, variable, source,
				fmt.Sprintf("invalid year %q", yearText)))
			continue
		}

		if !ValidCountryCode(country) {
			diags = append(diags, core.Diagnostic{
				Stage:    core.StageLoad,
				Severity: core.SeverityWarning,
				Country:  country,
				Year:     year,
				Variable: variable,
				Reason:   fmt.Sprintf("unknown country code %q in source %q, row excluded", country, source),
			})
			continue
		}

		if variable == "" {
			diags = append(diags, malformed(country, year, variable, source, "empty variable code"))
			continue
		}

		value, err := strconv.ParseFloat(valueText, 64)
		if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
			diags = append(diags, malformed(country, year, variable, source,
				fmt.Sprintf("non-numeric value %q", valueText)))
			continue
		}

		observations = append(observations, core.RawObservation{
			Country:  country,
			Year:     year,
			Variable: variable,
			Value:    value,
			Unit:     unit,
			Source:   source,
		})
	}

	return observations, diags, nil
}

func malformed(country string, year int, variable, source, detail string) core.Diagnostic {
	return core.Diagnostic{
		Stage:    core.StageLoad,
		Severity: core.SeverityError,
		Country:  country,
		Year:     year,
		Variable: variable,
		Reason:   fmt.Sprintf("malformed observation in source %q: %s", source, detail),
	}
}
