package rules

import (
	"fmt"
	"math"

	"github.com/go-viper/mapstructure/v2"

	"github.com/Yile-Xu/penn-world-tables/pkg/core"
)

// Transform computes one derived cell from its input values. Implementations
// must be pure: same inputs, same output, no side effects.
type Transform interface {
	// Apply computes the output value. Inputs are keyed by variable code and
	// are guaranteed complete: the engine never calls Apply for a cell with
	// a missing input.
	Apply(inputs map[string]float64) (float64, error)
}

// factory builds a Transform for a rule, validating inputs and params once
// at load time.
type factory func(rule *core.Rule) (Transform, error)

// Registry maps transform identifiers to factories.
type Registry struct {
	factories map[string]factory
}

// NewRegistry returns a registry with all built-in transforms.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]factory)}
	r.factories["deflate"] = newDeflate
	r.factories["ratio"] = newRatio
	r.factories["product"] = newProduct
	r.factories["sum"] = newSum
	r.factories["scale"] = newScale
	r.factories["expr"] = newExpr
	return r
}

// Transforms returns the registered transform identifiers.
func (r *Registry) Transforms() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// Resolve builds the transform for a rule, failing on unknown identifiers or
// invalid parameters.
func (r *Registry) Resolve(rule *core.Rule) (Transform, error) {
	f, ok := r.factories[rule.Transform]
	if !ok {
		return nil, &UnknownTransformError{
			Rule:      rule.Output,
			Transform: rule.Transform,
			Available: r.Transforms(),
		}
	}
	return f(rule)
}

// transformFunc adapts a plain function to the Transform interface.
type transformFunc func(inputs map[string]float64) (float64, error)

func (f transformFunc) Apply(inputs map[string]float64) (float64, error) { return f(inputs) }

// deflate divides the first input by each remaining input in declared order.
// With inputs [gdp_nominal_lcu, xr, pl] it computes gdp / xr / pl.
func newDeflate(rule *core.Rule) (Transform, error) {
	if len(rule.Inputs) < 2 {
		return nil, &ValidationError{Rule: rule.Output, Detail: "deflate requires at least 2 inputs"}
	}
	inputs := rule.Inputs
	return transformFunc(func(values map[string]float64) (float64, error) {
		result := values[inputs[0]]
		for _, divisor := range inputs[1:] {
			d := values[divisor]
			if d == 0 {
				return 0, fmt.Errorf("division by zero: input %q is 0", divisor)
			}
			result /= d
		}
		return checkFinite(result)
	}), nil
}

// ratio divides the first input by the second.
func newRatio(rule *core.Rule) (Transform, error) {
	if len(rule.Inputs) != 2 {
		return nil, &ValidationError{Rule: rule.Output, Detail: "ratio requires exactly 2 inputs"}
	}
	num, den := rule.Inputs[0], rule.Inputs[1]
	return transformFunc(func(values map[string]float64) (float64, error) {
		d := values[den]
		if d == 0 {
			return 0, fmt.Errorf("division by zero: input %q is 0", den)
		}
		return checkFinite(values[num] / d)
	}), nil
}

// product multiplies all inputs.
func newProduct(rule *core.Rule) (Transform, error) {
	inputs := rule.Inputs
	return transformFunc(func(values map[string]float64) (float64, error) {
		result := 1.0
		for _, in := range inputs {
			result *= values[in]
		}
		return checkFinite(result)
	}), nil
}

// sum adds all inputs.
func newSum(rule *core.Rule) (Transform, error) {
	inputs := rule.Inputs
	return transformFunc(func(values map[string]float64) (float64, error) {
		result := 0.0
		for _, in := range inputs {
			result += values[in]
		}
		return checkFinite(result)
	}), nil
}

// scaleParams configures the scale transform.
type scaleParams struct {
	Factor float64 `mapstructure:"factor"`
}

// scale multiplies its single input by a constant factor.
func newScale(rule *core.Rule) (Transform, error) {
	if len(rule.Inputs) != 1 {
		return nil, &ValidationError{Rule: rule.Output, Detail: "scale requires exactly 1 input"}
	}
	var params scaleParams
	if err := decodeParams(rule, &params); err != nil {
		return nil, err
	}
	if params.Factor == 0 {
		return nil, &ValidationError{Rule: rule.Output, Detail: "scale requires a non-zero factor param"}
	}
	input := rule.Inputs[0]
	return transformFunc(func(values map[string]float64) (float64, error) {
		return checkFinite(values[input] * params.Factor)
	}), nil
}

// decodeParams decodes a rule's raw params map into a typed struct.
func decodeParams(rule *core.Rule, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out,
		ErrorUnused: true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(rule.Params); err != nil {
		return &ValidationError{Rule: rule.Output, Detail: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}

// checkFinite rejects NaN and infinite results so they surface as cell-level
// diagnostics rather than leaking into the panel.
func checkFinite(v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite result %v", v)
	}
	return v, nil
}
