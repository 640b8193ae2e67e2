package simulation

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// wire shapes matching the service API.
type opportunityRequest struct {
	ID             string  `json:"id"`
	OutletID       string  `json:"outlet_id"`
	Title          string  `json:"title"`
	Tier           string  `json:"tier"`
	Deadline       string  `json:"deadline"`
	InitialPrice   float64 `json:"initial_price"`
	InventoryLevel int     `json:"inventory_level"`
}

type clickRequest struct {
	OpportunityID string `json:"opportunity_id"`
}

type pitchRequest struct {
	ID            string `json:"id"`
	OpportunityID string `json:"opportunity_id"`
	UserID        string `json:"user_id"`
	Status        string `json:"status"`
	Successful    bool   `json:"successful"`
}

type opportunityResponse struct {
	ID           string  `json:"id"`
	CurrentPrice float64 `json:"current_price"`
	Status       string  `json:"status"`
}

// client wraps the HTTP surface the simulator exercises.
type client struct {
	http *resty.Client
}

func newClient(cfg *Config) *client {
	return &client{
		http: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(cfg.Timeout).
			SetHeader("Content-Type", "application/json"),
	}
}

func (c *client) health(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/healthz")
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("health check returned %d", resp.StatusCode())
	}
	return nil
}

func (c *client) createOpportunity(ctx context.Context, req opportunityRequest) error {
	resp, err := c.http.R().SetContext(ctx).SetBody(req).Post("/opportunities")
	if err != nil {
		return fmt.Errorf("create opportunity: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("create opportunity returned %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// sendClick posts a click webhook. Tagged determines whether the pricing
// header is attached; untagged clicks must be acknowledged and dropped.
func (c *client) sendClick(ctx context.Context, opportunityID string, tagged bool) error {
	r := c.http.R().SetContext(ctx).SetBody(clickRequest{OpportunityID: opportunityID})
	if tagged {
		r.SetHeader("X-Message-Tag", "pricing")
	}
	resp, err := r.Post("/webhooks/clicks")
	if err != nil {
		return fmt.Errorf("send click: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("send click returned %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

func (c *client) sendPitch(ctx context.Context, req pitchRequest) error {
	resp, err := c.http.R().SetContext(ctx).SetBody(req).Post("/webhooks/pitches")
	if err != nil {
		return fmt.Errorf("send pitch: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("send pitch returned %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

func (c *client) getOpportunity(ctx context.Context, id string) (opportunityResponse, error) {
	var out opportunityResponse
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/opportunities/" + id)
	if err != nil {
		return out, fmt.Errorf("get opportunity: %w", err)
	}
	if resp.IsError() {
		return out, fmt.Errorf("get opportunity returned %d", resp.StatusCode())
	}
	return out, nil
}

// waitHealthy polls until the service answers or the deadline passes.
func (c *client) waitHealthy(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if err := c.health(ctx); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("service not healthy after %s", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}
