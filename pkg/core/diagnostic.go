package core

import "fmt"

// Stage identifies the pipeline stage that emitted a diagnostic.
type Stage string

// Pipeline stage constants.
const (
	StageLoad      Stage = "load"
	StageNormalize Stage = "normalize"
	StageDerive    Stage = "derive"
	StageAssemble  Stage = "assemble"
)

// Severity classifies a diagnostic.
type Severity string

// Diagnostic severity constants. Fatal conditions abort the run and are
// returned as errors instead; everything recorded here lets the run continue.
const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Diagnostic is a structured warning or cell-level error emitted during a
// run. The run completes with diagnostics present; only fatal conditions
// (cycle in the rule graph, unreadable input) halt it.
type Diagnostic struct {
	Stage    Stage
	Severity Severity
	// Country, Year, Variable identify the affected cell. Country may be a
	// rejected (non-ISO) code; Variable may be empty for row-level issues.
	Country  string
	Year     int
	Variable string
	Reason   string
}

// String renders the diagnostic for logs and test failures.
func (d Diagnostic) String() string {
	return fmt.Sprintf("[%s/%s] %s/%d/%s: %s", d.Stage, d.Severity, d.Country, d.Year, d.Variable, d.Reason)
}

// Diagnostics is an ordered collection of diagnostics. Order is emission
// order, which is deterministic for identical inputs.
type Diagnostics []Diagnostic

// Warnings returns only warning-severity entries.
func (ds Diagnostics) Warnings() Diagnostics {
	return ds.filter(SeverityWarning)
}

// Errors returns only error-severity entries.
func (ds Diagnostics) Errors() Diagnostics {
	return ds.filter(SeverityError)
}

func (ds Diagnostics) filter(sev Severity) Diagnostics {
	var out Diagnostics
	for _, d := range ds {
		if d.Severity == sev {
			out = append(out, d)
		}
	}
	return out
}
