// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
)

// messageTagHeader identifies the interest of a tracked link click. Only
// pricing-tagged clicks count as a demand signal; everything else is
// acknowledged and dropped.
const (
	messageTagHeader = "X-Message-Tag"
	pricingTag       = "pricing"
)

// clickRequest mirrors the click-tracker webhook schema.
type clickRequest struct {
	OpportunityID string `json:"opportunity_id"`
}

type ackResponse struct {
	Status string `json:"status"`
}

// ClicksHandler ingests click-tracking webhooks.
type ClicksHandler struct {
	deps Dependencies
}

// NewClicksHandler creates a new clicks handler.
func NewClicksHandler(deps Dependencies) *ClicksHandler {
	return &ClicksHandler{deps: deps}
}

// HandleClick handles POST /webhooks/clicks requests.
func (h *ClicksHandler) HandleClick(w http.ResponseWriter, r *http.Request) {
	const op = "api.click_webhook"

	if r.Header.Get(messageTagHeader) != pricingTag {
		writeJSON(w, http.StatusOK, ackResponse{Status: "ignored"})
		return
	}

	var req clickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if trimmed(req.OpportunityID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request",
			WrapKind(op, ErrBadRequest, errors.New("missing opportunity_id")))
		return
	}

	if err := h.deps.RecordClick(r.Context(), req.OpportunityID); err != nil {
		writeDomainError(w, op, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "recorded"})
}
