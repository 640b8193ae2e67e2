package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/quotewire/pulse/internal/domain/ledger"
	"github.com/quotewire/pulse/internal/domain/model"
	"github.com/quotewire/pulse/internal/domain/registry"
	"github.com/quotewire/pulse/pkg/logger"
	"github.com/quotewire/pulse/pkg/metrics"
)

// InterestResolver answers who cares about an opportunity and how to reach
// them over push.
type InterestResolver interface {
	InterestedUsers(ctx context.Context, opportunityID string) ([]string, error)
	PushSubscriptions(ctx context.Context, userIDs []string) ([]model.PushSubscription, error)
	PrunePushSubscription(ctx context.Context, userID string) error
}

// EmailSender is the authoritative delivery channel.
type EmailSender interface {
	Send(ctx context.Context, userID string, n Notification) error
}

// PushSender is the best-effort delivery channel. ErrEndpointGone from Send
// causes the subscription to be pruned.
type PushSender interface {
	Send(ctx context.Context, sub model.PushSubscription, n Notification) error
}

// Dispatcher evaluates notification conditions against committed ticks. The
// ledger guarantees one notification per sustained condition: the condition
// must lapse before the same template can fire again for an opportunity.
type Dispatcher struct {
	ledger   ledger.Ledger
	resolver InterestResolver
	email    EmailSender
	logger   logger.Logger

	// Push channel. A fixed sender pins the channel; otherwise the gateway
	// client is built from each snapshot's hot-reloadable credentials.
	push       PushSender
	pushOpts   []PushOption
	gatewayMu  sync.Mutex
	gateway    *GatewaySender
	gatewayURL string
	gatewayKey string
}

// NewDispatcher wires the dispatcher. Email must be present; the push
// channel follows the registry snapshot unless a sender is pinned.
func NewDispatcher(led ledger.Ledger, resolver InterestResolver, email EmailSender, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		ledger:   led,
		resolver: resolver,
		email:    email,
		logger:   logger.Get().Named("notify"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Evaluate runs both templates against the freshly committed opportunity
// state. Errors are contained; a failed delivery never fails the tick.
func (d *Dispatcher) Evaluate(ctx context.Context, o model.Opportunity, snap *registry.Snapshot, now time.Time) {
	d.evaluatePriceDrop(ctx, o, snap)
	d.evaluateLastCall(ctx, o, snap, now)
}

// evaluatePriceDrop tracks a ratcheting baseline per opportunity: the
// highest price seen since the last notification. A drop of at least the
// configured fraction below that baseline fires once; the baseline then
// resets to the dropped price so the next notification requires a fresh
// drop, not a lingering low price.
func (d *Dispatcher) evaluatePriceDrop(ctx context.Context, o model.Opportunity, snap *registry.Snapshot) {
	key := o.ID + "|" + TemplatePriceDrop

	baseline, ok := d.ledger.Baseline(ctx, key)
	if !ok || o.CurrentPrice > baseline {
		d.ledger.SetBaseline(ctx, key, o.CurrentPrice)
		if !ok {
			// First observation only establishes the baseline.
			d.ledger.Observe(ctx, key, false)
			return
		}
		baseline = o.CurrentPrice
	}

	holds := baseline > 0 && o.CurrentPrice <= baseline*(1-snap.NotifyDropPct)
	if !d.ledger.Observe(ctx, key, holds) {
		if holds {
			metrics.RecordNotificationSuppressed()
		}
		return
	}

	d.ledger.SetBaseline(ctx, key, o.CurrentPrice)
	d.deliver(ctx, o, snap, Notification{
		Template:      TemplatePriceDrop,
		OpportunityID: o.ID,
		Title:         o.Title,
		CurrentPrice:  o.CurrentPrice,
		Deadline:      o.Deadline,
		DropPct:       snap.NotifyDropPct,
	})
}

// evaluateLastCall fires when the deadline is inside the last-call window
// and only a few inventory slots remain. Re-arms if either side of the
// condition lapses, e.g. inventory is restocked.
func (d *Dispatcher) evaluateLastCall(ctx context.Context, o model.Opportunity, snap *registry.Snapshot, now time.Time) {
	key := o.ID + "|" + TemplateLastCall

	holds := o.Open(now) &&
		o.Deadline.Sub(now) <= snap.LastCallWindow &&
		o.InventoryLevel > 0 &&
		o.InventoryLevel <= snap.LastCallSlots
	if !d.ledger.Observe(ctx, key, holds) {
		if holds {
			metrics.RecordNotificationSuppressed()
		}
		return
	}

	d.deliver(ctx, o, snap, Notification{
		Template:       TemplateLastCall,
		OpportunityID:  o.ID,
		Title:          o.Title,
		CurrentPrice:   o.CurrentPrice,
		Deadline:       o.Deadline,
		InventoryLevel: o.InventoryLevel,
	})
}

// pushSender resolves the push channel for the given snapshot. The gateway
// client is rebuilt when the hot-reloadable credentials change and dropped
// when the gateway row is emptied, so operator edits take effect on the next
// evaluation without a restart.
func (d *Dispatcher) pushSender(snap *registry.Snapshot) PushSender {
	if d.push != nil {
		return d.push
	}

	d.gatewayMu.Lock()
	defer d.gatewayMu.Unlock()

	if !snap.PushConfigured() {
		d.gateway = nil
		d.gatewayURL = ""
		d.gatewayKey = ""
		return nil
	}
	if d.gateway == nil || snap.PushGatewayURL != d.gatewayURL || snap.PushAPIKey != d.gatewayKey {
		d.gateway = NewGatewaySender(snap.PushGatewayURL, snap.PushAPIKey, d.pushOpts...)
		d.gatewayURL = snap.PushGatewayURL
		d.gatewayKey = snap.PushAPIKey
	}
	return d.gateway
}

// deliver resolves the interest set and fans out email first, push second.
func (d *Dispatcher) deliver(ctx context.Context, o model.Opportunity, snap *registry.Snapshot, n Notification) {
	users, err := d.resolver.InterestedUsers(ctx, o.ID)
	if err != nil {
		d.logger.Error(ctx, "resolving interested users failed",
			logger.String("opportunityID", o.ID), logger.Error(err))
		return
	}
	if len(users) == 0 {
		return
	}

	for _, userID := range users {
		if err := d.email.Send(ctx, userID, n); err != nil {
			metrics.RecordNotificationError(ChannelEmail)
			d.logger.Error(ctx, "email delivery failed",
				logger.String("userID", userID),
				logger.String("template", n.Template),
				logger.Error(err))
			continue
		}
		metrics.RecordNotificationSent(n.Template, ChannelEmail)
	}

	push := d.pushSender(snap)
	if push == nil {
		return
	}
	subs, err := d.resolver.PushSubscriptions(ctx, users)
	if err != nil {
		d.logger.Warn(ctx, "loading push subscriptions failed",
			logger.String("opportunityID", o.ID), logger.Error(err))
		return
	}
	for _, sub := range subs {
		err := push.Send(ctx, sub, n)
		switch {
		case errors.Is(err, ErrEndpointGone):
			if pruneErr := d.resolver.PrunePushSubscription(ctx, sub.UserID); pruneErr != nil {
				d.logger.Warn(ctx, "pruning dead push subscription failed",
					logger.String("userID", sub.UserID), logger.Error(pruneErr))
			}
		case err != nil:
			metrics.RecordNotificationError(ChannelPush)
			d.logger.Warn(ctx, "push delivery failed",
				logger.String("userID", sub.UserID),
				logger.String("template", n.Template),
				logger.Error(err))
		default:
			metrics.RecordNotificationSent(n.Template, ChannelPush)
		}
	}
}

// Forget drops all ledger state for a closed opportunity.
func (d *Dispatcher) Forget(ctx context.Context, opportunityID string) {
	d.ledger.Forget(ctx, opportunityID+"|"+TemplatePriceDrop)
	d.ledger.Forget(ctx, opportunityID+"|"+TemplateLastCall)
}

// DispatcherOption applies a configuration option to the Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithPushSender pins the best-effort push channel to a fixed sender,
// bypassing snapshot-driven gateway construction.
func WithPushSender(p PushSender) DispatcherOption {
	return func(d *Dispatcher) {
		d.push = p
	}
}

// WithPushOptions configures the gateway clients built from snapshot
// credentials, e.g. the request timeout.
func WithPushOptions(opts ...PushOption) DispatcherOption {
	return func(d *Dispatcher) {
		d.pushOpts = opts
	}
}

// WithLogger sets a custom logger for the dispatcher.
func WithLogger(log logger.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if log != nil {
			d.logger = log
		}
	}
}
