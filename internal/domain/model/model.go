// Package model contains domain models passed between layers.
package model

import "time"

// Status describes the lifecycle state of an opportunity.
type Status string

// Opportunity lifecycle states.
const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Trend describes the direction of the most recent price movement.
type Trend string

// Price movement directions.
const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// Opportunity is a media opportunity whose bid floor moves with demand.
// The CRUD layer owns creation; the engine only mutates the price fields,
// the tick timestamps, and performs the terminal close.
type Opportunity struct {
	ID               string
	OutletID         string
	Title            string
	Tier             string
	Status           Status
	Deadline         time.Time
	CurrentPrice     float64
	LastPrice        float64 // frozen copy of CurrentPrice at close time
	InventoryLevel   int     // remaining slots; exhaustion forces price toward ceiling
	VariableSnapshot map[string]float64
	LastMovedAt      time.Time
	LastDecayAt      time.Time
	ClosedAt         *time.Time
	Version          int64 // optimistic concurrency token
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Open reports whether the opportunity is still accepting price ticks at now.
func (o *Opportunity) Open(now time.Time) bool {
	return o.Status == StatusOpen && o.Deadline.After(now)
}

// Contribution records one weighted signal's share of a price delta.
type Contribution struct {
	Signal      string  `json:"signal"`
	Value       float64 `json:"value"`
	Weight      float64 `json:"weight"`
	Fn          string  `json:"fn"`
	Contributed float64 `json:"contributed"`
}

// SnapshotPayload is the immutable record of one price computation's inputs
// and output, stored alongside the suggested price for auditability.
type SnapshotPayload struct {
	PriorPrice     float64        `json:"prior_price"`
	Delta          float64        `json:"delta"`
	Contributions  []Contribution `json:"contributions,omitempty"`
	AmbientApplied bool           `json:"ambient_applied,omitempty"`
	Clamped        string         `json:"clamped,omitempty"` // "floor", "ceiling", or empty
	Source         string         `json:"source"`            // "tick" or "ingress"
}

// PriceSnapshot is one append-only audit row per committed price mutation.
type PriceSnapshot struct {
	ID             string
	OpportunityID  string
	SuggestedPrice float64
	Payload        SnapshotPayload
	TickTime       time.Time
}

// ClickEvent is an append-only demand signal tagged to an opportunity.
type ClickEvent struct {
	ID            string
	OpportunityID string
	ClickedAt     time.Time
}

// PitchStatus describes the state of an expert's pitch on an opportunity.
type PitchStatus string

// Pitch states mirrored from the external CRUD layer.
const (
	PitchActive    PitchStatus = "active"
	PitchDraft     PitchStatus = "draft"
	PitchWithdrawn PitchStatus = "withdrawn"
)

// Pitch is the engine's read model of a pitch, fed by the CRUD layer.
// It drives the velocity/conversion/load signals and interest resolution.
type Pitch struct {
	ID            string
	OpportunityID string
	UserID        string
	Status        PitchStatus
	Successful    bool
	CreatedAt     time.Time
}

// PushSubscription is an externally owned push endpoint for a user. The
// engine only reads it, and prunes rows whose endpoint is gone.
type PushSubscription struct {
	UserID    string
	Endpoint  string
	CreatedAt time.Time
}

// PriceUpdate is the payload fanned out to subscribed clients after a
// committed price change.
type PriceUpdate struct {
	OpportunityID   string    `json:"opportunity_id"`
	CurrentPrice    float64   `json:"current_price"`
	Trend           Trend     `json:"trend"`
	LastPriceUpdate time.Time `json:"last_price_update"`
}

// TickError records one opportunity's failure inside a tick without
// aborting the rest of the batch.
type TickError struct {
	OpportunityID string
	Err           error
}

// TickReport summarizes one scheduled execution of the tick engine.
type TickReport struct {
	StartedAt time.Time
	Processed int
	Skipped   int // in-flight or no longer eligible
	Closed    int // terminal closures performed by the sweep
	Errors    []TickError
}
