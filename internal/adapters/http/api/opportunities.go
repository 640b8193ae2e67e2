// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/quotewire/pulse/internal/domain/model"
)

// opportunityRequest mirrors the POST /opportunities schema.
type opportunityRequest struct {
	ID             string  `json:"id,omitempty"`
	OutletID       string  `json:"outlet_id"`
	Title          string  `json:"title"`
	Tier           string  `json:"tier,omitempty"`
	Deadline       string  `json:"deadline"`
	InitialPrice   float64 `json:"initial_price"`
	InventoryLevel int     `json:"inventory_level"`
}

func (o opportunityRequest) validate() (time.Time, error) {
	switch {
	case trimmed(o.OutletID) == "":
		return time.Time{}, errors.New("missing outlet_id")
	case trimmed(o.Title) == "":
		return time.Time{}, errors.New("missing title")
	case trimmed(o.Deadline) == "":
		return time.Time{}, errors.New("missing deadline")
	case o.InitialPrice <= 0:
		return time.Time{}, errors.New("initial_price must be positive")
	case o.InventoryLevel < 0:
		return time.Time{}, errors.New("inventory_level must not be negative")
	}
	deadline, err := time.Parse(time.RFC3339, o.Deadline)
	if err != nil {
		return time.Time{}, errors.New("invalid deadline; must be RFC3339")
	}
	return deadline, nil
}

// opportunityResponse is the read shape shared by create and get.
type opportunityResponse struct {
	ID             string     `json:"id"`
	OutletID       string     `json:"outlet_id"`
	Title          string     `json:"title"`
	Tier           string     `json:"tier"`
	Status         string     `json:"status"`
	Deadline       time.Time  `json:"deadline"`
	CurrentPrice   float64    `json:"current_price"`
	LastPrice      float64    `json:"last_price,omitempty"`
	InventoryLevel int        `json:"inventory_level"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func toOpportunityResponse(o model.Opportunity) opportunityResponse {
	return opportunityResponse{
		ID:             o.ID,
		OutletID:       o.OutletID,
		Title:          o.Title,
		Tier:           o.Tier,
		Status:         string(o.Status),
		Deadline:       o.Deadline,
		CurrentPrice:   o.CurrentPrice,
		LastPrice:      o.LastPrice,
		InventoryLevel: o.InventoryLevel,
		ClosedAt:       o.ClosedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

// OpportunitiesHandler handles opportunity lifecycle requests.
type OpportunitiesHandler struct {
	deps Dependencies
}

// NewOpportunitiesHandler creates a new opportunities handler.
func NewOpportunitiesHandler(deps Dependencies) *OpportunitiesHandler {
	return &OpportunitiesHandler{deps: deps}
}

// HandleCreate handles POST /opportunities requests.
func (h *OpportunitiesHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_opportunity"
	var req opportunityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	deadline, err := req.validate()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	o := model.Opportunity{
		ID:             req.ID,
		OutletID:       req.OutletID,
		Title:          req.Title,
		Tier:           req.Tier,
		Deadline:       deadline,
		CurrentPrice:   req.InitialPrice,
		InventoryLevel: req.InventoryLevel,
	}
	if o.Tier == "" {
		o.Tier = "standard"
	}
	if err := h.deps.CreateOpportunity(r.Context(), &o); err != nil {
		writeDomainError(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOpportunityResponse(o))
}

// HandleGet handles GET /opportunities/{id} requests.
func (h *OpportunitiesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_opportunity"
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	o, err := h.deps.GetOpportunity(r.Context(), id)
	if err != nil {
		writeDomainError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, toOpportunityResponse(o))
}
