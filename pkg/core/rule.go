package core

// Rule declares how one derived variable is computed from others.
// Rules form a directed acyclic graph keyed by output variable code.
type Rule struct {
	// Output is the variable code this rule produces
	Output string
	// Inputs are the variable codes the rule consumes, in declared order
	Inputs []string
	// Transform identifies the transform function (e.g., "ratio", "expr")
	Transform string
	// Params holds transform-specific parameters from the rules file
	Params map[string]any
	// Position is the zero-based declaration index in the rules file.
	// It breaks ties between independent rules so runs are reproducible.
	Position int
}

// DependsOn reports whether the rule lists the given variable as an input.
func (r *Rule) DependsOn(variable string) bool {
	for _, in := range r.Inputs {
		if in == variable {
			return true
		}
	}
	return false
}
