// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Operator-tunable pricing values live in the SQLite config store and are
//   re-read every tick; fields here are process knobs plus fallback defaults
//   for absent store rows.
package config

import (
	"context"
	"runtime"
	"time"

	"github.com/quotewire/pulse/internal/domain/registry"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9090".
	Addr string `koanf:"addr"`

	// DBPath locates the SQLite database file.
	DBPath string `koanf:"db_path"`

	// TickSchedule and SweepSchedule are cron specs for the price tick and
	// the deadline-closure reconciliation sweep.
	TickSchedule  string `koanf:"tick_schedule"`
	SweepSchedule string `koanf:"sweep_schedule"`

	// TickQueueSize bounds the in-memory tick job queue.
	TickQueueSize int `koanf:"tick_queue_size"`

	// WorkerCount sets the number of tick workers.
	WorkerCount int `koanf:"worker_count"`

	// LedgerSize bounds the notification ledger.
	LedgerSize int `koanf:"ledger_size"`

	// Fallback pricing defaults used when the config store has no row.
	PriceFloor          float64 `koanf:"price_floor"`
	PriceCeiling        float64 `koanf:"price_ceiling"`
	BaselineDecayRate   float64 `koanf:"baseline_decay_rate"`
	AmbientTriggerMins  int     `koanf:"ambient_trigger_mins"`
	AmbientCooldownMins int     `koanf:"ambient_cooldown_mins"`
	AmbientRate         float64 `koanf:"ambient_rate"`
	SignalWindowMins    int     `koanf:"signal_window_mins"`

	// Notification thresholds, same fallback rule as the pricing defaults.
	NotifyDropPct      float64 `koanf:"notify_drop_pct"`
	LastCallWindowMins int     `koanf:"last_call_window_mins"`
	LastCallSlots      int     `koanf:"last_call_slots"`

	// Email (authoritative channel) settings.
	NotifyFromAddress string `koanf:"notify_from_address"`
	SMTPHost          string `koanf:"smtp_host"`
	SMTPPort          int    `koanf:"smtp_port"`
	SMTPUsername      string `koanf:"smtp_username"`
	SMTPPassword      string `koanf:"smtp_password"`

	// Web push gateway (best-effort channel) settings.
	PushGatewayURL string `koanf:"push_gateway_url"`
	PushAPIKey     string `koanf:"push_api_key"`
	PushTimeoutMS  int    `koanf:"push_timeout_ms"`

	// Distribution service knobs.
	StreamWriteTimeoutMS int `koanf:"stream_write_timeout_ms"`
	StreamMaxSubscribers int `koanf:"stream_max_subscribers"`

	// History query limits.
	HistoryDefaultLimit int `koanf:"history_default_limit"`
	HistoryMaxLimit     int `koanf:"history_max_limit"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention; it is reserved for future use.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:             "info",
		Addr:                 ":9090",
		DBPath:               "data/pulse.db",
		TickSchedule:         "@every 30s",
		SweepSchedule:        "@every 1m",
		TickQueueSize:        10_000,
		WorkerCount:          runtime.NumCPU() * 2,
		LedgerSize:           100_000,
		PriceFloor:           100,
		PriceCeiling:         500,
		BaselineDecayRate:    0,
		AmbientTriggerMins:   7,
		AmbientCooldownMins:  10,
		AmbientRate:          0.02,
		SignalWindowMins:     60,
		NotifyDropPct:        0.15,
		LastCallWindowMins:   240,
		LastCallSlots:        2,
		NotifyFromAddress:    "pricing@quotewire.example",
		SMTPHost:             "localhost",
		SMTPPort:             25,
		PushTimeoutMS:        3_000,
		StreamWriteTimeoutMS: 5_000,
		StreamMaxSubscribers: 10_000,
		HistoryDefaultLimit:  50,
		HistoryMaxLimit:      500,
	}
}

// RegistryDefaults extracts the fallback values the repository uses for
// config-store keys without a row.
func (c *Config) RegistryDefaults() registry.Defaults {
	return registry.Defaults{
		Floor:             c.PriceFloor,
		Ceiling:           c.PriceCeiling,
		BaselineDecayRate: c.BaselineDecayRate,
		AmbientTrigger:    time.Duration(c.AmbientTriggerMins) * time.Minute,
		AmbientCooldown:   time.Duration(c.AmbientCooldownMins) * time.Minute,
		AmbientRate:       c.AmbientRate,
		SignalWindow:      time.Duration(c.SignalWindowMins) * time.Minute,
		NotifyDropPct:     c.NotifyDropPct,
		LastCallWindow:    time.Duration(c.LastCallWindowMins) * time.Minute,
		LastCallSlots:     c.LastCallSlots,
		PushGatewayURL:    c.PushGatewayURL,
		PushAPIKey:        c.PushAPIKey,
	}
}
