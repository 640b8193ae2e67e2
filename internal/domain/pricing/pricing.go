// Package pricing computes bounded, weighted price deltas from demand signals.
package pricing

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/quotewire/pulse/internal/domain/model"
	"github.com/quotewire/pulse/pkg/logger"
)

// trendEpsilon is the smallest price movement reported as a trend change.
const trendEpsilon = 1e-9

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithFn registers an additional named nonlinear transform.
func WithFn(name string, fn Fn) Option {
	return func(e *Engine) {
		if name != "" && fn != nil {
			e.fns[name] = fn
		}
	}
}

// WithLogger sets a custom logger for the engine.
func WithLogger(log logger.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.logger = log
		}
	}
}

// Signal is one normalized demand input with its operator-configured weight
// and transform name.
type Signal struct {
	Name   string
	Value  float64
	Weight float64
	Fn     string
}

// Ambient configures the inactivity decay: after Trigger without a
// price-moving event the price drifts down by Rate, then Cooldown suppresses
// the next drift.
type Ambient struct {
	Trigger  time.Duration
	Cooldown time.Duration
	Rate     float64
}

// Input carries everything one price computation needs. The tick engine
// builds it from a single registry snapshot so every opportunity in a tick
// observes the same weights and bounds.
type Input struct {
	OpportunityID  string
	PriorPrice     float64
	Floor          float64
	Ceiling        float64
	Signals        []Signal
	Ambient        Ambient
	LastMovedAt    time.Time
	LastDecayAt    time.Time
	InventoryLevel int
	Now            time.Time
}

// Result is the outcome of one price computation.
type Result struct {
	Price          float64
	Delta          float64 // weighted signal sum, before ambient decay and clamping
	Contributions  []model.Contribution
	AmbientApplied bool
	Clamped        string // "floor", "ceiling", or empty
	Trend          model.Trend
}

// Engine applies the additive, stateful pricing model: each tick moves the
// prior price by the weighted signal sum, so the price is a time series with
// momentum rather than a memoryless recompute.
type Engine struct {
	fns    map[string]Fn
	logger logger.Logger
}

// NewEngine creates a pricing engine with the built-in transforms.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		fns:    make(map[string]Fn, len(builtins)),
		logger: logger.Get().Named("pricing"),
	}
	for name, fn := range builtins {
		e.fns[name] = fn
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// resolveFn returns the transform for name. Unknown names resolve to identity
// with a warning; they never abort the computation.
func (e *Engine) resolveFn(ctx context.Context, name string) (Fn, string) {
	if name == "" {
		return e.fns[FnIdentity], FnIdentity
	}
	if fn, ok := e.fns[name]; ok {
		return fn, name
	}
	e.logger.Warn(ctx, "unknown nonlinear fn; using identity", logger.String("fn", name))
	return e.fns[FnIdentity], FnIdentity
}

// Compute produces the next price for one opportunity.
func (e *Engine) Compute(ctx context.Context, in Input) (Result, error) {
	if in.Floor < 0 || in.Ceiling <= 0 || in.Floor >= in.Ceiling {
		return Result{}, fmt.Errorf("invalid price bounds [%v, %v] for %s", in.Floor, in.Ceiling, in.OpportunityID)
	}
	if math.IsNaN(in.PriorPrice) || math.IsInf(in.PriorPrice, 0) {
		return Result{}, fmt.Errorf("invalid prior price %v for %s", in.PriorPrice, in.OpportunityID)
	}

	res := Result{Contributions: make([]model.Contribution, 0, len(in.Signals))}

	for _, s := range in.Signals {
		fn, fnName := e.resolveFn(ctx, s.Fn)
		contributed := s.Weight * fn(s.Value)
		if math.IsNaN(contributed) || math.IsInf(contributed, 0) {
			return Result{}, fmt.Errorf("signal %q produced non-finite contribution for %s", s.Name, in.OpportunityID)
		}
		res.Delta += contributed
		res.Contributions = append(res.Contributions, model.Contribution{
			Signal:      s.Name,
			Value:       s.Value,
			Weight:      s.Weight,
			Fn:          fnName,
			Contributed: contributed,
		})
	}

	price := in.PriorPrice + res.Delta

	// Ambient decay: only after the trigger window elapses with no
	// price-moving event, and never while a previous decay is cooling down.
	if in.Ambient.Rate > 0 &&
		in.Now.Sub(in.LastMovedAt) >= in.Ambient.Trigger &&
		in.Now.Sub(in.LastDecayAt) >= in.Ambient.Cooldown {
		price *= 1 - in.Ambient.Rate
		res.AmbientApplied = true
	}

	// Inventory exhaustion forces the price toward the ceiling.
	if in.InventoryLevel <= 0 {
		price = in.Ceiling
	}

	switch {
	case price < in.Floor:
		price = in.Floor
		res.Clamped = "floor"
	case price > in.Ceiling:
		price = in.Ceiling
		res.Clamped = "ceiling"
	}

	res.Price = price
	res.Trend = TrendOf(in.PriorPrice, price)
	return res, nil
}

// TrendOf classifies the movement from prior to next.
func TrendOf(prior, next float64) model.Trend {
	switch {
	case next-prior > trendEpsilon:
		return model.TrendUp
	case prior-next > trendEpsilon:
		return model.TrendDown
	default:
		return model.TrendStable
	}
}
