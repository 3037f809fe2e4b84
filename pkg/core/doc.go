// Package core holds the shared domain types of the dataset-construction
// pipeline: raw and normalized observations, derivation rules, the output
// panel, diagnostics, and run-history records. It has no dependencies on the
// pipeline stages so that every stage (and external tooling) can consume it.
package core
