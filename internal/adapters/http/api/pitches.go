// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/quotewire/pulse/internal/domain/model"
)

// pitchRequest mirrors the CRUD layer's pitch webhook schema.
type pitchRequest struct {
	ID            string `json:"id"`
	OpportunityID string `json:"opportunity_id"`
	UserID        string `json:"user_id"`
	Status        string `json:"status"`
	Successful    bool   `json:"successful"`
	CreatedAt     string `json:"created_at,omitempty"`
}

func (p pitchRequest) validate() error {
	switch {
	case trimmed(p.OpportunityID) == "":
		return errors.New("missing opportunity_id")
	case trimmed(p.UserID) == "":
		return errors.New("missing user_id")
	}
	switch model.PitchStatus(p.Status) {
	case model.PitchActive, model.PitchDraft, model.PitchWithdrawn:
		return nil
	default:
		return errors.New("invalid status")
	}
}

// PitchesHandler ingests pitch lifecycle webhooks from the CRUD layer.
type PitchesHandler struct {
	deps Dependencies
}

// NewPitchesHandler creates a new pitches handler.
func NewPitchesHandler(deps Dependencies) *PitchesHandler {
	return &PitchesHandler{deps: deps}
}

// HandlePitch handles POST /webhooks/pitches requests.
func (h *PitchesHandler) HandlePitch(w http.ResponseWriter, r *http.Request) {
	const op = "api.pitch_webhook"

	var req pitchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	p := model.Pitch{
		ID:            req.ID,
		OpportunityID: req.OpportunityID,
		UserID:        req.UserID,
		Status:        model.PitchStatus(req.Status),
		Successful:    req.Successful,
	}
	if req.CreatedAt != "" {
		t, err := time.Parse(time.RFC3339, req.CreatedAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request",
				WrapKind(op, ErrBadRequest, errors.New("invalid created_at; must be RFC3339")))
			return
		}
		p.CreatedAt = t
	}

	if err := h.deps.RecordPitch(r.Context(), p); err != nil {
		writeDomainError(w, op, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "recorded"})
}
