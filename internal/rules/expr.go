package rules

import (
	"fmt"
	"strings"

	starlarkmath "go.starlark.net/lib/math"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/Yile-Xu/penn-world-tables/pkg/core"
)

// exprParams configures the expr transform.
type exprParams struct {
	Formula string `mapstructure:"formula"`
}

// exprTransform evaluates a Starlark expression per cell with the rule's
// inputs bound as floats. The math module is available for pow, log, etc.
type exprTransform struct {
	rule    string
	formula string
	inputs  []string
}

// newExpr builds a Starlark expression transform. Only syntax and name
// resolution are checked at load time; evaluating against placeholder inputs
// would false-positive on division by zero.
func newExpr(rule *core.Rule) (Transform, error) {
	var params exprParams
	if err := decodeParams(rule, &params); err != nil {
		return nil, err
	}
	formula := strings.TrimSpace(params.Formula)
	if formula == "" {
		return nil, &ValidationError{Rule: rule.Output, Detail: "expr requires a formula param"}
	}

	// Syntax check only; evaluation binds cell values later.
	if _, err := starlark.ExprFuncOptions(syntaxOptions(), rule.Output, formula, emptyEnv(rule.Inputs)); err != nil {
		return nil, &ValidationError{Rule: rule.Output, Detail: fmt.Sprintf("invalid formula: %v", err)}
	}

	return &exprTransform{rule: rule.Output, formula: formula, inputs: rule.Inputs}, nil
}

func (t *exprTransform) Apply(values map[string]float64) (float64, error) {
	env := starlark.StringDict{"math": starlarkmath.Module}
	for _, in := range t.inputs {
		env[in] = starlark.Float(values[in])
	}

	thread := &starlark.Thread{Name: "expr:" + t.rule}
	result, err := starlark.EvalOptions(syntaxOptions(), thread, t.rule, t.formula, env)
	if err != nil {
		return 0, fmt.Errorf("formula evaluation failed: %w", err)
	}

	f, ok := starlark.AsFloat(result)
	if !ok {
		return 0, fmt.Errorf("formula returned %s, expected a number", result.Type())
	}
	return checkFinite(f)
}

// emptyEnv binds every input to 0.0 so the syntax check resolves all names.
func emptyEnv(inputs []string) starlark.StringDict {
	env := starlark.StringDict{"math": starlarkmath.Module}
	for _, in := range inputs {
		env[in] = starlark.Float(0)
	}
	return env
}

func syntaxOptions() *syntax.FileOptions {
	return &syntax.FileOptions{}
}
