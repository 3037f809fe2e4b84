package panel

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/Yile-Xu/penn-world-tables/pkg/core"
)

// WritePanel writes the panel as CSV with one row per cell, sorted by
// (country, year, variable). Missing cells have an empty value column and
// is_missing=true, so downstream iteration is total.
func WritePanel(w io.Writer, p *core.Panel) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"country_code", "year", "variable_code", "value", "is_missing"}); err != nil {
		return err
	}

	for _, row := range p.Rows() {
		value := ""
		if !row.Missing {
			value = strconv.FormatFloat(row.Value, 'g', -1, 64)
		}
		record := []string{
			row.Country,
			strconv.Itoa(row.Year),
			row.Variable,
			value,
			strconv.FormatBool(row.Missing),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WritePanelFile writes the panel to a file path.
func WritePanelFile(path string, p *core.Panel) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	if err := WritePanel(f, p); err != nil {
		return fmt.Errorf("failed to write panel: %w", err)
	}
	return f.Close()
}

// WriteDiagnostics writes the diagnostics stream as CSV. The file is always
// produced, headers only when the run was clean.
func WriteDiagnostics(w io.Writer, diags core.Diagnostics) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"stage", "severity", "country_code", "year", "variable_code", "reason"}); err != nil {
		return err
	}

	for _, d := range diags {
		record := []string{
			string(d.Stage),
			string(d.Severity),
			d.Country,
			strconv.Itoa(d.Year),
			d.Variable,
			d.Reason,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteDiagnosticsFile writes the diagnostics stream to a file path.
func WriteDiagnosticsFile(path string, diags core.Diagnostics) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create diagnostics file: %w", err)
	}
	defer f.Close()

	if err := WriteDiagnostics(f, diags); err != nil {
		return fmt.Errorf("failed to write diagnostics: %w", err)
	}
	return f.Close()
}
