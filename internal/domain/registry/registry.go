// Package registry defines the hot-reloadable variable and config snapshot
// the tick engine reads once per tick.
package registry

import (
	"context"
	"time"
)

// Well-known variable names feeding the weighted price delta.
const (
	VarPitchVelocity  = "pitch_velocity"
	VarConversionRate = "conversion_rate"
	VarOutletLoad     = "outlet_load"
	VarClickBoost     = "click_boost"
	VarBaselineDecay  = "baseline_decay"
)

// Config store keys. Values are stored as JSON in the config table so
// operators can hot-edit them; absent keys fall back to process defaults.
const (
	KeyPriceFloor          = "price.floor"
	KeyPriceCeiling        = "price.ceiling"
	KeyBaselineDecayRate   = "decay.baseline_rate"
	KeyAmbientTriggerMins  = "ambient.trigger_mins"
	KeyAmbientCooldownMins = "ambient.cooldown_mins"
	KeyAmbientRate         = "ambient.rate"
	KeySignalWindowMins    = "signal.window_mins"
	KeyNotifyDropPct       = "notify.drop_pct"
	KeyLastCallWindowMins  = "notify.last_call_window_mins"
	KeyLastCallSlots       = "notify.last_call_slots"
	KeyPushGatewayURL      = "push.gateway_url"
	KeyPushAPIKey          = "push.api_key"
)

// Variable is one named, operator-tunable weight with an optional nonlinear
// transform name.
type Variable struct {
	Name        string
	Weight      float64
	NonlinearFn string
	UpdatedAt   time.Time
}

// DefaultVariables are the weights a fresh deployment is seeded with, so
// every signal, baseline decay included, moves prices from the first tick.
// Operator rows always win over these seeds.
func DefaultVariables() []Variable {
	return []Variable{
		{Name: VarClickBoost, Weight: 12},
		{Name: VarPitchVelocity, Weight: 10},
		{Name: VarConversionRate, Weight: 20},
		{Name: VarOutletLoad, Weight: -3, NonlinearFn: "log1p"},
		{Name: VarBaselineDecay, Weight: 1},
	}
}

// Snapshot is an immutable view of the registry and config store, loaded
// fresh at the start of every tick. All opportunities in one tick observe
// the same snapshot; there is no mid-tick config drift.
type Snapshot struct {
	Variables map[string]Variable

	Floor             float64
	Ceiling           float64
	BaselineDecayRate float64
	AmbientTrigger    time.Duration
	AmbientCooldown   time.Duration
	AmbientRate       float64
	SignalWindow      time.Duration

	NotifyDropPct  float64
	LastCallWindow time.Duration
	LastCallSlots  int

	PushGatewayURL string
	PushAPIKey     string

	LoadedAt time.Time
}

// Variable returns the named variable and whether it is configured.
func (s *Snapshot) Variable(name string) (Variable, bool) {
	v, ok := s.Variables[name]
	return v, ok
}

// PushConfigured reports whether the push channel has its required config.
// A missing gateway disables push only, never the engine.
func (s *Snapshot) PushConfigured() bool {
	return s.PushGatewayURL != ""
}

// Defaults supplies fallback values for config keys without a store row.
// They come from the process configuration at startup.
type Defaults struct {
	Floor             float64
	Ceiling           float64
	BaselineDecayRate float64
	AmbientTrigger    time.Duration
	AmbientCooldown   time.Duration
	AmbientRate       float64
	SignalWindow      time.Duration
	NotifyDropPct     float64
	LastCallWindow    time.Duration
	LastCallSlots     int
	PushGatewayURL    string
	PushAPIKey        string
}

// Source loads registry snapshots. The repository implements it; the tick
// engine must call Load at the start of every tick rather than caching a
// snapshot across ticks.
type Source interface {
	Load(ctx context.Context) (Snapshot, error)
}
