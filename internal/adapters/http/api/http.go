// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/quotewire/pulse/internal/adapters/repository"
	"github.com/quotewire/pulse/internal/app"
	"github.com/quotewire/pulse/internal/domain/model"
	"github.com/quotewire/pulse/internal/domain/registry"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	CreateOpportunity(ctx context.Context, o *model.Opportunity) error
	GetOpportunity(ctx context.Context, id string) (model.Opportunity, error)
	ApplyPriceUpdate(ctx context.Context, opportunityID string, price float64) (model.Opportunity, error)
	History(ctx context.Context, opportunityID string, limit int) ([]model.PriceSnapshot, error)
	RecordClick(ctx context.Context, opportunityID string) error
	RecordPitch(ctx context.Context, p model.Pitch) error
	RegisterPushSubscription(ctx context.Context, sub model.PushSubscription) error
	UpsertVariable(ctx context.Context, v registry.Variable) error
	UpsertConfig(ctx context.Context, key, value string) error
	GetStats(ctx context.Context) map[string]interface{}
}

// HistoryLimits bounds the snapshot history endpoint.
type HistoryLimits struct {
	Default int
	Max     int
}

// Server wires HTTP routes for the pricing API.
type Server struct {
	healthHandler        *HealthHandler
	statsHandler         *StatsHandler
	opportunitiesHandler *OpportunitiesHandler
	pricesHandler        *PricesHandler
	historyHandler       *HistoryHandler
	clicksHandler        *ClicksHandler
	pitchesHandler       *PitchesHandler
	subscriptionsHandler *SubscriptionsHandler
	adminHandler         *AdminHandler
	streamHandler        http.Handler
}

// NewServer creates a new API server with all handlers. stream may be nil
// when websocket distribution is disabled.
func NewServer(deps Dependencies, limits HistoryLimits, stream http.Handler) *Server {
	return &Server{
		healthHandler:        NewHealthHandler(),
		statsHandler:         NewStatsHandler(deps),
		opportunitiesHandler: NewOpportunitiesHandler(deps),
		pricesHandler:        NewPricesHandler(deps),
		historyHandler:       NewHistoryHandler(deps, limits),
		clicksHandler:        NewClicksHandler(deps),
		pitchesHandler:       NewPitchesHandler(deps),
		subscriptionsHandler: NewSubscriptionsHandler(deps),
		adminHandler:         NewAdminHandler(deps),
		streamHandler:        stream,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /opportunities", MetricsMiddleware(s.opportunitiesHandler.HandleCreate, "opportunities"))
	mux.HandleFunc("GET /opportunities/{id}", MetricsMiddleware(s.opportunitiesHandler.HandleGet, "opportunities"))
	mux.HandleFunc("POST /opportunities/{id}/price", MetricsMiddleware(s.pricesHandler.HandleUpdatePrice, "prices"))
	mux.HandleFunc("GET /opportunities/{id}/history", MetricsMiddleware(s.historyHandler.HandleHistory, "history"))

	mux.HandleFunc("POST /webhooks/clicks", MetricsMiddleware(s.clicksHandler.HandleClick, "clicks"))
	mux.HandleFunc("POST /webhooks/pitches", MetricsMiddleware(s.pitchesHandler.HandlePitch, "pitches"))

	mux.HandleFunc("PUT /push-subscriptions", MetricsMiddleware(s.subscriptionsHandler.HandleUpsert, "push_subscriptions"))

	mux.HandleFunc("PUT /admin/variables", MetricsMiddleware(s.adminHandler.HandleUpsertVariable, "admin_variables"))
	mux.HandleFunc("PUT /admin/config", MetricsMiddleware(s.adminHandler.HandleUpsertConfig, "admin_config"))

	if s.streamHandler != nil {
		mux.Handle("/ws/prices", s.streamHandler)
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDomainError maps store and service sentinels onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
	case errors.Is(err, repository.ErrClosed):
		writeError(w, http.StatusConflict, "closed", WrapKind(op, ErrConflict, err))
	case errors.Is(err, repository.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", WrapKind(op, ErrConflict, err))
	case errors.Is(err, service.ErrPriceOutOfBounds):
		writeError(w, http.StatusUnprocessableEntity, "out_of_bounds", WrapKind(op, ErrBadRequest, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal", WrapKind(op, ErrInternal, err))
	}
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}
