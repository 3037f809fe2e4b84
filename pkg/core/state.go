package core

import "time"

// Store defines the interface for run-history persistence.
type Store interface {
	Open(path string) error
	Close() error
	Migrate() error

	// Run operations
	CreateRun(environment string) (*Run, error)
	GetRun(id string) (*Run, error)
	CompleteRun(id string, status RunStatus, stats RunStats, errMsg string) error
	ListRuns(limit int) ([]*Run, error)

	// Diagnostic operations
	RecordDiagnostics(runID string, diags Diagnostics) error
	GetDiagnostics(runID string) (Diagnostics, error)
	CountDiagnostics(runID string) (int, error)
}

// RunStatus represents the status of a pipeline run.
type RunStatus string

// Run status constants.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunStats summarizes the volume of a completed run.
type RunStats struct {
	RawObservations  int
	DerivedCells     int
	PanelCells       int
	DiagnosticsCount int
}

// Run represents one pipeline execution.
type Run struct {
	ID          string
	Environment string
	Status      RunStatus
	Stats       RunStats
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}
