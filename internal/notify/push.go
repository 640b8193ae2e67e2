package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/quotewire/pulse/internal/domain/model"
)

// Default push client configuration constants.
const (
	defaultPushTimeout = 3 * time.Second
	defaultPushRetries = 1
)

// pushRequest is the gateway wire format.
type pushRequest struct {
	UserID       string       `json:"user_id"`
	Endpoint     string       `json:"endpoint"`
	Notification Notification `json:"notification"`
}

// GatewaySender delivers push notifications through an HTTP gateway. A 404
// or 410 response marks the endpoint as gone so the dispatcher prunes it.
type GatewaySender struct {
	client *resty.Client
}

// NewGatewaySender creates the push channel against the given gateway URL.
func NewGatewaySender(gatewayURL, apiKey string, opts ...PushOption) *GatewaySender {
	client := resty.New().
		SetBaseURL(gatewayURL).
		SetTimeout(defaultPushTimeout).
		SetRetryCount(defaultPushRetries).
		SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		client.SetHeader("X-API-Key", apiKey)
	}

	g := &GatewaySender{client: client}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Send posts one notification to the gateway.
func (g *GatewaySender) Send(ctx context.Context, sub model.PushSubscription, n Notification) error {
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(pushRequest{UserID: sub.UserID, Endpoint: sub.Endpoint, Notification: n}).
		Post("/v1/push")
	if err != nil {
		return fmt.Errorf("push gateway request: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusNotFound, http.StatusGone:
		return fmt.Errorf("%w: %s", ErrEndpointGone, sub.Endpoint)
	}
	if resp.IsError() {
		return fmt.Errorf("push gateway returned %d", resp.StatusCode())
	}
	return nil
}

// PushOption applies a configuration option to the GatewaySender.
type PushOption func(*GatewaySender)

// WithTimeout bounds each gateway request.
func WithTimeout(d time.Duration) PushOption {
	return func(g *GatewaySender) {
		if d > 0 {
			g.client.SetTimeout(d)
		}
	}
}

// WithHTTPClient swaps the underlying transport, used by tests.
func WithHTTPClient(hc *http.Client) PushOption {
	return func(g *GatewaySender) {
		if hc != nil {
			base := g.client.BaseURL
			headers := g.client.Header
			g.client = resty.NewWithClient(hc).SetBaseURL(base)
			g.client.Header = headers
		}
	}
}
