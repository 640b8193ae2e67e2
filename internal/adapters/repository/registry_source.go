package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/quotewire/pulse/internal/domain/registry"
	"github.com/quotewire/pulse/pkg/logger"
	"github.com/quotewire/pulse/pkg/metrics"
)

// UpsertVariable stores or replaces one pricing variable definition. Takes
// effect on the next tick's registry load, no restart needed.
func (s *Store) UpsertVariable(ctx context.Context, v registry.Variable) error {
	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO variables (name, weight, nonlinear_fn, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET weight = excluded.weight, nonlinear_fn = excluded.nonlinear_fn,
			updated_at = excluded.updated_at`,
		v.Name, v.Weight, v.NonlinearFn, fmtTime(v.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert variable %s: %w", v.Name, err)
	}
	return nil
}

// UpsertConfig stores or replaces one runtime config value.
func (s *Store) UpsertConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO config (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, fmtTime(s.now()))
	if err != nil {
		return fmt.Errorf("upsert config %s: %w", key, err)
	}
	return nil
}

// Load reads the variables and config tables and assembles a registry
// snapshot. Keys missing from the store fall back to the configured
// defaults, so a fresh database prices sensibly from the first tick.
func (s *Store) Load(ctx context.Context) (registry.Snapshot, error) {
	snap := registry.Snapshot{
		Variables:         make(map[string]registry.Variable),
		Floor:             s.defaults.Floor,
		Ceiling:           s.defaults.Ceiling,
		BaselineDecayRate: s.defaults.BaselineDecayRate,
		AmbientTrigger:    s.defaults.AmbientTrigger,
		AmbientCooldown:   s.defaults.AmbientCooldown,
		AmbientRate:       s.defaults.AmbientRate,
		SignalWindow:      s.defaults.SignalWindow,
		NotifyDropPct:     s.defaults.NotifyDropPct,
		LastCallWindow:    s.defaults.LastCallWindow,
		LastCallSlots:     s.defaults.LastCallSlots,
		PushGatewayURL:    s.defaults.PushGatewayURL,
		PushAPIKey:        s.defaults.PushAPIKey,
		LoadedAt:          s.now(),
	}

	rows, err := s.db.QueryContext(ctx, `SELECT name, weight, nonlinear_fn, updated_at FROM variables`)
	if err != nil {
		metrics.RecordRegistryLoadError()
		return registry.Snapshot{}, fmt.Errorf("load variables: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			v       registry.Variable
			updated string
		)
		if err := rows.Scan(&v.Name, &v.Weight, &v.NonlinearFn, &updated); err != nil {
			metrics.RecordRegistryLoadError()
			return registry.Snapshot{}, fmt.Errorf("scan variable: %w", err)
		}
		v.UpdatedAt = parseTime(updated)
		snap.Variables[v.Name] = v
	}
	if err := rows.Err(); err != nil {
		metrics.RecordRegistryLoadError()
		return registry.Snapshot{}, fmt.Errorf("load variables: %w", err)
	}

	cfgRows, err := s.db.QueryContext(ctx, `SELECT key, value FROM config`)
	if err != nil {
		metrics.RecordRegistryLoadError()
		return registry.Snapshot{}, fmt.Errorf("load config: %w", err)
	}
	defer cfgRows.Close()
	for cfgRows.Next() {
		var key, value string
		if err := cfgRows.Scan(&key, &value); err != nil {
			metrics.RecordRegistryLoadError()
			return registry.Snapshot{}, fmt.Errorf("scan config: %w", err)
		}
		s.applyConfig(&snap, key, value)
	}
	if err := cfgRows.Err(); err != nil {
		metrics.RecordRegistryLoadError()
		return registry.Snapshot{}, fmt.Errorf("load config: %w", err)
	}

	if snap.Floor >= snap.Ceiling {
		metrics.RecordRegistryLoadError()
		return registry.Snapshot{}, fmt.Errorf("invalid price bounds: floor %.2f >= ceiling %.2f", snap.Floor, snap.Ceiling)
	}

	metrics.RecordRegistryLoad()
	return snap, nil
}

// applyConfig maps one config row onto the snapshot. Unparseable values are
// logged and skipped so one bad row cannot poison a tick.
func (s *Store) applyConfig(snap *registry.Snapshot, key, value string) {
	fail := func(err error) {
		s.logger.Warn(context.Background(), "ignoring unparseable config value",
			logger.String("key", key), logger.String("value", value), logger.Error(err))
	}
	parseFloat := func(dst *float64) {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			fail(err)
			return
		}
		*dst = f
	}
	parseMinutes := func(dst *time.Duration) {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			fail(err)
			return
		}
		*dst = time.Duration(f * float64(time.Minute))
	}

	switch key {
	case registry.KeyPriceFloor:
		parseFloat(&snap.Floor)
	case registry.KeyPriceCeiling:
		parseFloat(&snap.Ceiling)
	case registry.KeyBaselineDecayRate:
		parseFloat(&snap.BaselineDecayRate)
	case registry.KeyAmbientTriggerMins:
		parseMinutes(&snap.AmbientTrigger)
	case registry.KeyAmbientCooldownMins:
		parseMinutes(&snap.AmbientCooldown)
	case registry.KeyAmbientRate:
		parseFloat(&snap.AmbientRate)
	case registry.KeySignalWindowMins:
		parseMinutes(&snap.SignalWindow)
	case registry.KeyNotifyDropPct:
		parseFloat(&snap.NotifyDropPct)
	case registry.KeyLastCallWindowMins:
		parseMinutes(&snap.LastCallWindow)
	case registry.KeyLastCallSlots:
		n, err := strconv.Atoi(value)
		if err != nil {
			fail(err)
			return
		}
		snap.LastCallSlots = n
	case registry.KeyPushGatewayURL:
		snap.PushGatewayURL = value
	case registry.KeyPushAPIKey:
		snap.PushAPIKey = value
	default:
		s.logger.Warn(context.Background(), "unknown config key", logger.String("key", key))
	}
}
