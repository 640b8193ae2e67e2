// Package simulation drives a running pricing service with synthetic
// marketplace traffic: opportunities, pitches, and tagged click webhooks.
package simulation

import "time"

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL       string        // Base URL of the service
	Opportunities int           // Number of opportunities to create
	Outlets       int           // Number of distinct outlets to spread them over
	Clicks        int           // Number of click webhooks to send
	Pitches       int           // Number of pitch webhooks to send
	Workers       int           // Number of concurrent workers
	Timeout       time.Duration // HTTP request timeout
	Observe       time.Duration // How long to watch prices after traffic stops
	Verbose       bool          // Enable verbose logging
}

// Stats holds simulation statistics.
type Stats struct {
	OpportunitiesCreated int
	ClicksSubmitted      int
	ClicksIgnored        int
	PitchesSubmitted     int
	Failed               int
	PricesMoved          int
	StartTime            time.Time
	Duration             time.Duration
}
