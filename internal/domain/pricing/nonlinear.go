package pricing

import "math"

// Fn is a named nonlinear transform applied to a raw signal value before
// weighting. All transforms preserve the sign of the input so that negative
// signals (e.g. baseline decay) keep pulling the price down.
type Fn func(v float64) float64

// Built-in transform names.
const (
	FnIdentity = "identity"
	FnLog1p    = "log1p"
	FnSqrt     = "sqrt"
	FnSigmoid  = "sigmoid"
)

// builtins maps transform names to implementations.
var builtins = map[string]Fn{
	FnIdentity: func(v float64) float64 { return v },
	FnLog1p: func(v float64) float64 {
		return math.Copysign(math.Log1p(math.Abs(v)), v)
	},
	FnSqrt: func(v float64) float64 {
		return math.Copysign(math.Sqrt(math.Abs(v)), v)
	},
	// sigmoid squashes into (-1, 1), centered at zero.
	FnSigmoid: func(v float64) float64 {
		return 2/(1+math.Exp(-v)) - 1
	},
}
