// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/quotewire/pulse/internal/domain/model"
)

// priceUpdateRequest mirrors the POST /opportunities/{id}/price schema.
type priceUpdateRequest struct {
	Price float64 `json:"price"`
}

type priceUpdateResponse struct {
	OpportunityID string    `json:"opportunity_id"`
	CurrentPrice  float64   `json:"current_price"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PricesHandler handles programmatic price updates, the ingress used when a
// pitch locks in a price or an operator overrides one.
type PricesHandler struct {
	deps Dependencies
}

// NewPricesHandler creates a new prices handler.
func NewPricesHandler(deps Dependencies) *PricesHandler {
	return &PricesHandler{deps: deps}
}

// HandleUpdatePrice handles POST /opportunities/{id}/price requests.
func (h *PricesHandler) HandleUpdatePrice(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_price"
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	var req priceUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.Price <= 0 {
		writeError(w, http.StatusBadRequest, "bad_request",
			WrapKind(op, ErrBadRequest, errors.New("price must be positive")))
		return
	}

	var o model.Opportunity
	o, err := h.deps.ApplyPriceUpdate(r.Context(), id, req.Price)
	if err != nil {
		writeDomainError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, priceUpdateResponse{
		OpportunityID: o.ID,
		CurrentPrice:  o.CurrentPrice,
		UpdatedAt:     o.UpdatedAt,
	})
}
