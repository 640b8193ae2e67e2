// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/quotewire/pulse/internal/domain/model"
)

// subscriptionRequest mirrors the PUT /push-subscriptions schema.
type subscriptionRequest struct {
	UserID   string `json:"user_id"`
	Endpoint string `json:"endpoint"`
}

// SubscriptionsHandler manages push subscription registration.
type SubscriptionsHandler struct {
	deps Dependencies
}

// NewSubscriptionsHandler creates a new subscriptions handler.
func NewSubscriptionsHandler(deps Dependencies) *SubscriptionsHandler {
	return &SubscriptionsHandler{deps: deps}
}

// HandleUpsert handles PUT /push-subscriptions requests.
func (h *SubscriptionsHandler) HandleUpsert(w http.ResponseWriter, r *http.Request) {
	const op = "api.upsert_push_subscription"

	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if trimmed(req.UserID) == "" || trimmed(req.Endpoint) == "" {
		writeError(w, http.StatusBadRequest, "bad_request",
			WrapKind(op, ErrBadRequest, errors.New("missing user_id or endpoint")))
		return
	}

	err := h.deps.RegisterPushSubscription(r.Context(), model.PushSubscription{
		UserID:   req.UserID,
		Endpoint: req.Endpoint,
	})
	if err != nil {
		writeDomainError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "registered"})
}
