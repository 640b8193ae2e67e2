// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/quotewire/pulse/internal/domain/registry"
)

// variableRequest mirrors the PUT /admin/variables schema.
type variableRequest struct {
	Name        string  `json:"name"`
	Weight      float64 `json:"weight"`
	NonlinearFn string  `json:"nonlinear_fn,omitempty"`
}

// configRequest mirrors the PUT /admin/config schema.
type configRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// AdminHandler hot-updates pricing variables and runtime config. Changes
// take effect on the next tick without a restart.
type AdminHandler struct {
	deps Dependencies
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps Dependencies) *AdminHandler {
	return &AdminHandler{deps: deps}
}

// HandleUpsertVariable handles PUT /admin/variables requests.
func (h *AdminHandler) HandleUpsertVariable(w http.ResponseWriter, r *http.Request) {
	const op = "api.upsert_variable"

	var req variableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if trimmed(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "bad_request",
			WrapKind(op, ErrBadRequest, errors.New("missing name")))
		return
	}

	err := h.deps.UpsertVariable(r.Context(), registry.Variable{
		Name:        req.Name,
		Weight:      req.Weight,
		NonlinearFn: req.NonlinearFn,
	})
	if err != nil {
		writeDomainError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "updated"})
}

// HandleUpsertConfig handles PUT /admin/config requests.
func (h *AdminHandler) HandleUpsertConfig(w http.ResponseWriter, r *http.Request) {
	const op = "api.upsert_config"

	var req configRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if trimmed(req.Key) == "" || trimmed(req.Value) == "" {
		writeError(w, http.StatusBadRequest, "bad_request",
			WrapKind(op, ErrBadRequest, errors.New("missing key or value")))
		return
	}

	if err := h.deps.UpsertConfig(r.Context(), req.Key, req.Value); err != nil {
		writeDomainError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "updated"})
}
