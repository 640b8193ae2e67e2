// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/quotewire/pulse/internal/domain/model"
)

// snapshotResponse is the read shape of one audit row.
type snapshotResponse struct {
	ID             string                `json:"id"`
	SuggestedPrice float64               `json:"suggested_price"`
	Payload        model.SnapshotPayload `json:"payload"`
	TickTime       time.Time             `json:"tick_time"`
}

type historyResponse struct {
	OpportunityID string             `json:"opportunity_id"`
	Snapshots     []snapshotResponse `json:"snapshots"`
}

// HistoryHandler serves the append-only price snapshot history.
type HistoryHandler struct {
	deps   Dependencies
	limits HistoryLimits
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(deps Dependencies, limits HistoryLimits) *HistoryHandler {
	if limits.Default <= 0 {
		limits.Default = 50
	}
	if limits.Max <= 0 {
		limits.Max = 500
	}
	return &HistoryHandler{deps: deps, limits: limits}
}

// HandleHistory handles GET /opportunities/{id}/history requests.
func (h *HistoryHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.history"
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	limit := h.limits.Default
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		limit = min(n, h.limits.Max)
	}

	snaps, err := h.deps.History(r.Context(), id, limit)
	if err != nil {
		writeDomainError(w, op, err)
		return
	}

	out := historyResponse{OpportunityID: id, Snapshots: make([]snapshotResponse, len(snaps))}
	for i, s := range snaps {
		out.Snapshots[i] = snapshotResponse{
			ID:             s.ID,
			SuggestedPrice: s.SuggestedPrice,
			Payload:        s.Payload,
			TickTime:       s.TickTime,
		}
	}
	writeJSON(w, http.StatusOK, out)
}
