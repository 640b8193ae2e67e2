// Package repository provides the durable SQLite store for opportunities,
// snapshots, signals, and the hot-reloadable registry rows.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/quotewire/pulse/internal/domain/model"
	"github.com/quotewire/pulse/internal/domain/registry"
	"github.com/quotewire/pulse/pkg/logger"
	"github.com/quotewire/pulse/pkg/metrics"
)

// Default store configuration constants.
const (
	defaultBusyTimeout = 5 * time.Second
	pingTimeout        = 5 * time.Second
	timeFormat         = time.RFC3339Nano
)

// Store is the SQLite-backed persistence layer. All timestamps are stored as
// RFC3339Nano text so they round-trip independently of driver conventions.
type Store struct {
	db          *sql.DB
	path        string
	defaults    registry.Defaults
	busyTimeout time.Duration
	now         func() time.Time
	logger      logger.Logger
}

// New opens (and if needed creates) the database at path and applies the
// schema. The defaults feed registry snapshot loads for config keys without
// a store row.
func New(ctx context.Context, path string, defaults registry.Defaults, opts ...Option) (*Store, error) {
	s := &Store{
		path:        path,
		defaults:    defaults,
		busyTimeout: defaultBusyTimeout,
		now:         time.Now,
		logger:      logger.Get().Named("repository"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if !strings.HasPrefix(path, "file:") && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)",
		path, s.busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Single connection: the driver is single-writer and a lone connection
	// also keeps in-memory databases coherent across calls.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	// Seed the default weights into a fresh variables table. OR IGNORE keeps
	// operator-tuned rows authoritative across restarts.
	for _, v := range registry.DefaultVariables() {
		if _, err := db.ExecContext(ctx,
			`INSERT OR IGNORE INTO variables (name, weight, nonlinear_fn, updated_at) VALUES (?, ?, ?, ?)`,
			v.Name, v.Weight, v.NonlinearFn, fmtTime(s.now())); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("seed variable %s: %w", v.Name, err)
		}
	}

	s.db = db
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(v string) time.Time {
	t, err := time.Parse(timeFormat, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

// --- Opportunities -------------------------------------------------------

const opportunityColumns = `id, outlet_id, title, tier, status, deadline, current_price, last_price,
	inventory_level, variable_snapshot, last_moved_at, last_decay_at, closed_at, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOpportunity(r rowScanner) (model.Opportunity, error) {
	var (
		o                                            model.Opportunity
		deadline, lastMoved, lastDecay, created, upd string
		closedAt                                     sql.NullString
		varSnapshot                                  string
	)
	err := r.Scan(&o.ID, &o.OutletID, &o.Title, &o.Tier, &o.Status, &deadline, &o.CurrentPrice, &o.LastPrice,
		&o.InventoryLevel, &varSnapshot, &lastMoved, &lastDecay, &closedAt, &o.Version, &created, &upd)
	if err != nil {
		return model.Opportunity{}, err
	}
	o.Deadline = parseTime(deadline)
	o.LastMovedAt = parseTime(lastMoved)
	o.LastDecayAt = parseTime(lastDecay)
	o.CreatedAt = parseTime(created)
	o.UpdatedAt = parseTime(upd)
	if closedAt.Valid {
		t := parseTime(closedAt.String)
		o.ClosedAt = &t
	}
	if varSnapshot != "" {
		_ = json.Unmarshal([]byte(varSnapshot), &o.VariableSnapshot)
	}
	return o, nil
}

// CreateOpportunity inserts a new opportunity row. Creation is normally the
// CRUD layer's job; this exists for the webhook mirror, tests, and the
// simulator.
func (s *Store) CreateOpportunity(ctx context.Context, o *model.Opportunity) error {
	now := s.now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	if o.Status == "" {
		o.Status = model.StatusOpen
	}
	if o.Version == 0 {
		o.Version = 1
	}
	if o.LastMovedAt.IsZero() {
		o.LastMovedAt = now
	}
	if o.LastDecayAt.IsZero() {
		o.LastDecayAt = now
	}
	snap, err := json.Marshal(o.VariableSnapshot)
	if err != nil {
		return fmt.Errorf("marshal variable snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO opportunities
		(id, outlet_id, title, tier, status, deadline, current_price, last_price, inventory_level,
		 variable_snapshot, last_moved_at, last_decay_at, closed_at, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?, ?)`,
		o.ID, o.OutletID, o.Title, o.Tier, o.Status, fmtTime(o.Deadline), o.CurrentPrice, o.LastPrice,
		o.InventoryLevel, string(snap), fmtTime(o.LastMovedAt), fmtTime(o.LastDecayAt), o.Version,
		fmtTime(o.CreatedAt), fmtTime(o.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert opportunity %s: %w", o.ID, err)
	}
	return nil
}

// GetOpportunity returns one opportunity by id.
func (s *Store) GetOpportunity(ctx context.Context, id string) (model.Opportunity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+opportunityColumns+` FROM opportunities WHERE id = ?`, id)
	o, err := scanOpportunity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Opportunity{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return model.Opportunity{}, fmt.Errorf("get opportunity %s: %w", id, err)
	}
	return o, nil
}

// ListOpen returns all opportunities still open with a deadline after now.
func (s *Store) ListOpen(ctx context.Context, now time.Time) ([]model.Opportunity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+opportunityColumns+` FROM opportunities WHERE status = ? AND deadline > ? ORDER BY id`,
		model.StatusOpen, fmtTime(now))
	if err != nil {
		return nil, fmt.Errorf("list open opportunities: %w", err)
	}
	defer rows.Close()

	var out []model.Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan opportunity: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list open opportunities: %w", err)
	}
	metrics.UpdateOpenOpportunities(len(out))
	return out, nil
}

// TickCommit carries everything one atomic tick commit writes.
type TickCommit struct {
	OpportunityID    string
	ExpectedVersion  int64
	NewPrice         float64
	VariableSnapshot map[string]float64
	PriceMoved       bool // refresh last_moved_at
	AmbientApplied   bool // refresh last_decay_at
	Snapshot         model.PriceSnapshot
}

// CommitTick atomically updates the opportunity's price fields and appends
// exactly one price snapshot. The optimistic version check fails with
// ErrConflict when a concurrent writer (e.g. a pitch locking in a price)
// advanced the row since the tick read it.
func (s *Store) CommitTick(ctx context.Context, c TickCommit) error {
	now := s.now()
	snapJSON, err := json.Marshal(c.VariableSnapshot)
	if err != nil {
		return fmt.Errorf("marshal variable snapshot: %w", err)
	}
	payloadJSON, err := json.Marshal(c.Snapshot.Payload)
	if err != nil {
		return fmt.Errorf("marshal snapshot payload: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tick commit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE opportunities SET
			current_price = ?,
			variable_snapshot = ?,
			last_moved_at = CASE WHEN ? THEN ? ELSE last_moved_at END,
			last_decay_at = CASE WHEN ? THEN ? ELSE last_decay_at END,
			version = version + 1,
			updated_at = ?
		WHERE id = ? AND version = ? AND status = ?`,
		c.NewPrice, string(snapJSON),
		c.PriceMoved, fmtTime(now),
		c.AmbientApplied, fmtTime(now),
		fmtTime(now),
		c.OpportunityID, c.ExpectedVersion, model.StatusOpen)
	if err != nil {
		return fmt.Errorf("update opportunity %s: %w", c.OpportunityID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("tick commit rows affected: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing/closed row from a concurrent write.
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM opportunities WHERE id = ?`, c.OpportunityID).Scan(&status)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("%w: %s", ErrNotFound, c.OpportunityID)
		case err != nil:
			return fmt.Errorf("tick commit status check: %w", err)
		case status != string(model.StatusOpen):
			return fmt.Errorf("%w: %s", ErrClosed, c.OpportunityID)
		default:
			metrics.RecordCommitConflict()
			return fmt.Errorf("%w: %s", ErrConflict, c.OpportunityID)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO price_snapshots (id, opportunity_id, suggested_price, payload, tick_time) VALUES (?, ?, ?, ?, ?)`,
		c.Snapshot.ID, c.OpportunityID, c.Snapshot.SuggestedPrice, string(payloadJSON), fmtTime(c.Snapshot.TickTime)); err != nil {
		return fmt.Errorf("append price snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tick for %s: %w", c.OpportunityID, err)
	}
	metrics.RecordSnapshotWritten()
	return nil
}

// ApplyPriceUpdate performs the programmatic price-update ingress: validate
// the opportunity exists and is open, then atomically set the price and
// append one snapshot. Returns the updated opportunity.
func (s *Store) ApplyPriceUpdate(ctx context.Context, id string, price float64, payload model.SnapshotPayload, snapshotID string) (model.Opportunity, error) {
	now := s.now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Opportunity{}, fmt.Errorf("begin price update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+opportunityColumns+` FROM opportunities WHERE id = ?`, id)
	o, err := scanOpportunity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Opportunity{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return model.Opportunity{}, fmt.Errorf("read opportunity %s: %w", id, err)
	}
	if o.Status != model.StatusOpen {
		return model.Opportunity{}, fmt.Errorf("%w: %s", ErrClosed, id)
	}

	payload.PriorPrice = o.CurrentPrice
	payload.Delta = price - o.CurrentPrice
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return model.Opportunity{}, fmt.Errorf("marshal snapshot payload: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE opportunities SET
			current_price = ?, last_moved_at = ?, version = version + 1, updated_at = ?
		WHERE id = ?`,
		price, fmtTime(now), fmtTime(now), id); err != nil {
		return model.Opportunity{}, fmt.Errorf("update opportunity %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO price_snapshots (id, opportunity_id, suggested_price, payload, tick_time) VALUES (?, ?, ?, ?, ?)`,
		snapshotID, id, price, string(payloadJSON), fmtTime(now)); err != nil {
		return model.Opportunity{}, fmt.Errorf("append price snapshot: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Opportunity{}, fmt.Errorf("commit price update for %s: %w", id, err)
	}
	metrics.RecordSnapshotWritten()

	o.CurrentPrice = price
	o.LastMovedAt = now
	o.UpdatedAt = now
	o.Version++
	return o, nil
}

// CloseExpired performs the idempotent deadline sweep: every open
// opportunity past its deadline is closed exactly once, freezing last_price
// at the current price. Returns the closed ids so callers can release any
// per-opportunity state; re-running the sweep is a no-op.
func (s *Store) CloseExpired(ctx context.Context, now time.Time) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin close sweep: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM opportunities WHERE status = ? AND deadline <= ?`,
		model.StatusOpen, fmtTime(now))
	if err != nil {
		return nil, fmt.Errorf("list expired opportunities: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan expired id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("list expired opportunities: %w", err)
	}
	rows.Close()
	if len(ids) == 0 {
		return nil, nil
	}

	if _, err := tx.ExecContext(ctx, `UPDATE opportunities SET
			status = ?, closed_at = ?, last_price = current_price, version = version + 1, updated_at = ?
		WHERE status = ? AND deadline <= ?`,
		model.StatusClosed, fmtTime(now), fmtTime(now), model.StatusOpen, fmtTime(now)); err != nil {
		return nil, fmt.Errorf("close expired opportunities: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit close sweep: %w", err)
	}

	metrics.RecordClosures(len(ids))
	return ids, nil
}

// --- Snapshots -----------------------------------------------------------

// Snapshots returns the most recent snapshots for an opportunity, newest
// first.
func (s *Store) Snapshots(ctx context.Context, opportunityID string, limit int) ([]model.PriceSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, opportunity_id, suggested_price, payload, tick_time
		 FROM price_snapshots WHERE opportunity_id = ? ORDER BY tick_time DESC LIMIT ?`,
		opportunityID, limit)
	if err != nil {
		return nil, fmt.Errorf("query snapshots for %s: %w", opportunityID, err)
	}
	defer rows.Close()

	var out []model.PriceSnapshot
	for rows.Next() {
		var (
			snap     model.PriceSnapshot
			payload  string
			tickTime string
		)
		if err := rows.Scan(&snap.ID, &snap.OpportunityID, &snap.SuggestedPrice, &payload, &tickTime); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap.TickTime = parseTime(tickTime)
		_ = json.Unmarshal([]byte(payload), &snap.Payload)
		out = append(out, snap)
	}
	return out, rows.Err()
}

// SnapshotCount returns the number of snapshots recorded for an opportunity.
func (s *Store) SnapshotCount(ctx context.Context, opportunityID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM price_snapshots WHERE opportunity_id = ?`, opportunityID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count snapshots for %s: %w", opportunityID, err)
	}
	return n, nil
}

// --- Clicks and pitches --------------------------------------------------

// AppendClick records one click event. Duplicates simply add signal.
func (s *Store) AppendClick(ctx context.Context, ev model.ClickEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO click_events (id, opportunity_id, clicked_at) VALUES (?, ?, ?)`,
		ev.ID, ev.OpportunityID, fmtTime(ev.ClickedAt))
	if err != nil {
		return fmt.Errorf("append click for %s: %w", ev.OpportunityID, err)
	}
	return nil
}

// CountClicks returns the number of clicks for an opportunity since a point
// in time.
func (s *Store) CountClicks(ctx context.Context, opportunityID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM click_events WHERE opportunity_id = ? AND clicked_at > ?`,
		opportunityID, fmtTime(since)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count clicks for %s: %w", opportunityID, err)
	}
	return n, nil
}

// UpsertPitch mirrors a pitch row from the CRUD layer into the read model.
func (s *Store) UpsertPitch(ctx context.Context, p model.Pitch) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO pitches (id, opportunity_id, user_id, status, successful, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, successful = excluded.successful`,
		p.ID, p.OpportunityID, p.UserID, p.Status, p.Successful, fmtTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("upsert pitch %s: %w", p.ID, err)
	}
	return nil
}

// CountRecentPitches returns non-withdrawn pitches for an opportunity since
// a point in time.
func (s *Store) CountRecentPitches(ctx context.Context, opportunityID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pitches WHERE opportunity_id = ? AND status != ? AND created_at > ?`,
		opportunityID, model.PitchWithdrawn, fmtTime(since)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pitches for %s: %w", opportunityID, err)
	}
	return n, nil
}

// OutletConversion returns (successful, total) pitch counts across all of an
// outlet's opportunities.
func (s *Store) OutletConversion(ctx context.Context, outletID string) (successful, total int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(p.successful), 0), COUNT(*)
		 FROM pitches p JOIN opportunities o ON o.id = p.opportunity_id
		 WHERE o.outlet_id = ? AND p.status != ?`,
		outletID, model.PitchWithdrawn).Scan(&successful, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("outlet conversion for %s: %w", outletID, err)
	}
	return successful, total, nil
}

// OutletOpenCount returns how many other opportunities the same outlet has
// open at now.
func (s *Store) OutletOpenCount(ctx context.Context, outletID, excludeID string, now time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM opportunities WHERE outlet_id = ? AND id != ? AND status = ? AND deadline > ?`,
		outletID, excludeID, model.StatusOpen, fmtTime(now)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("outlet open count for %s: %w", outletID, err)
	}
	return n, nil
}

// InterestedUsers returns the distinct users with a non-withdrawn pitch or
// draft on the opportunity.
func (s *Store) InterestedUsers(ctx context.Context, opportunityID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM pitches WHERE opportunity_id = ? AND status != ? ORDER BY user_id`,
		opportunityID, model.PitchWithdrawn)
	if err != nil {
		return nil, fmt.Errorf("interested users for %s: %w", opportunityID, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// --- Push subscriptions --------------------------------------------------

// UpsertPushSubscription stores a user's push endpoint.
func (s *Store) UpsertPushSubscription(ctx context.Context, sub model.PushSubscription) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO push_subscriptions (user_id, endpoint, created_at)
		VALUES (?, ?, ?) ON CONFLICT(user_id) DO UPDATE SET endpoint = excluded.endpoint`,
		sub.UserID, sub.Endpoint, fmtTime(sub.CreatedAt))
	if err != nil {
		return fmt.Errorf("upsert push subscription for %s: %w", sub.UserID, err)
	}
	return nil
}

// PushSubscriptions returns the subscriptions for the given users; users
// without one are simply absent.
func (s *Store) PushSubscriptions(ctx context.Context, userIDs []string) ([]model.PushSubscription, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(userIDs)), ",")
	args := make([]any, len(userIDs))
	for i, id := range userIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, endpoint, created_at FROM push_subscriptions WHERE user_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query push subscriptions: %w", err)
	}
	defer rows.Close()

	var out []model.PushSubscription
	for rows.Next() {
		var (
			sub     model.PushSubscription
			created string
		)
		if err := rows.Scan(&sub.UserID, &sub.Endpoint, &created); err != nil {
			return nil, fmt.Errorf("scan push subscription: %w", err)
		}
		sub.CreatedAt = parseTime(created)
		out = append(out, sub)
	}
	return out, rows.Err()
}

// PrunePushSubscription removes a dead endpoint after a gone/expired
// delivery failure.
func (s *Store) PrunePushSubscription(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("prune push subscription for %s: %w", userID, err)
	}
	metrics.RecordPushSubscriptionPruned()
	return nil
}

// --- Stats ---------------------------------------------------------------

// CountOpen returns the number of open, unexpired opportunities.
func (s *Store) CountOpen(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM opportunities WHERE status = ? AND deadline > ?`,
		model.StatusOpen, fmtTime(now)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count open opportunities: %w", err)
	}
	return n, nil
}
