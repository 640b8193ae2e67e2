// Package notify evaluates notification conditions after each committed
// tick and delivers at most one notification per sustained condition, per
// opportunity, per channel batch.
package notify

import (
	"errors"
	"time"
)

// Notification templates.
const (
	TemplatePriceDrop = "PRICE_DROP"
	TemplateLastCall  = "LAST_CALL"
)

// Delivery channels, used for metric labels.
const (
	ChannelEmail = "email"
	ChannelPush  = "push"
)

// ErrEndpointGone signals a push endpoint that no longer exists. The
// dispatcher prunes the subscription and carries on.
var ErrEndpointGone = errors.New("push endpoint gone")

// Notification is the rendered payload handed to channel senders.
type Notification struct {
	Template       string    `json:"template"`
	OpportunityID  string    `json:"opportunity_id"`
	Title          string    `json:"title"`
	CurrentPrice   float64   `json:"current_price"`
	Deadline       time.Time `json:"deadline"`
	InventoryLevel int       `json:"inventory_level,omitempty"`
	DropPct        float64   `json:"drop_pct,omitempty"`
}
