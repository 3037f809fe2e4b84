// Package rules loads and validates derivation rule sets. A rules file is a
// declarative YAML list mapping output variable codes to inputs, a transform
// identifier, and transform parameters. Declaration order is preserved and
// determines execution order between independent rules.
package rules

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/Yile-Xu/penn-world-tables/pkg/core"
)

// ruleFile is the YAML shape of a rules file.
type ruleFile struct {
	Rules []ruleEntry `yaml:"rules"`
}

type ruleEntry struct {
	Output    string         `yaml:"output"`
	Inputs    []string       `yaml:"inputs"`
	Transform string         `yaml:"transform"`
	Params    map[string]any `yaml:"params"`
}

// ValidationError reports a structurally invalid rule set. These are fatal:
// no computation happens with a malformed rule graph.
type ValidationError struct {
	Rule   string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Rule == "" {
		return fmt.Sprintf("invalid rule set: %s", e.Detail)
	}
	return fmt.Sprintf("invalid rule %q: %s", e.Rule, e.Detail)
}

// Load reads and validates a rules file.
func Load(path string, registry *Registry) ([]*core.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return Parse(data, registry)
}

// Parse validates rule definitions against the transform registry. It checks
// duplicate outputs, empty inputs, self-references, and unknown transforms;
// graph-level validation (cycles, unknown input variables) happens when the
// derivation engine builds the graph against the observed variable set.
func Parse(data []byte, registry *Registry) ([]*core.Rule, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}
	if len(f.Rules) == 0 {
		return nil, &ValidationError{Detail: "no rules declared"}
	}

	seen := make(map[string]bool, len(f.Rules))
	rules := make([]*core.Rule, 0, len(f.Rules))

	for i, entry := range f.Rules {
		if entry.Output == "" {
			return nil, &ValidationError{Detail: fmt.Sprintf("rule at position %d has no output variable", i)}
		}
		if seen[entry.Output] {
			return nil, &ValidationError{Rule: entry.Output, Detail: "declared more than once"}
		}
		seen[entry.Output] = true

		if len(entry.Inputs) == 0 {
			return nil, &ValidationError{Rule: entry.Output, Detail: "no input variables declared"}
		}
		for _, in := range entry.Inputs {
			if in == entry.Output {
				return nil, &ValidationError{Rule: entry.Output, Detail: "depends on itself"}
			}
		}

		rule := &core.Rule{
			Output:    entry.Output,
			Inputs:    entry.Inputs,
			Transform: entry.Transform,
			Params:    entry.Params,
			Position:  i,
		}

		// Resolve eagerly so a bad transform or bad params fail the run
		// before any computation starts.
		if _, err := registry.Resolve(rule); err != nil {
			return nil, err
		}

		rules = append(rules, rule)
	}

	return rules, nil
}

// UnknownTransformError is returned when a rule names a transform that is
// not registered.
type UnknownTransformError struct {
	Rule      string
	Transform string
	Available []string
}

func (e *UnknownTransformError) Error() string {
	sort.Strings(e.Available)
	return fmt.Sprintf("rule %q uses unknown transform %q (available: %v)", e.Rule, e.Transform, e.Available)
}
