package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mailrun/internal/core/port"
)

// Handler is the inbound HTTP adapter: dispatch trigger, response-event
// webhook, reporting reads and the operator health signal.
type Handler struct {
	dispatcher port.Dispatcher
	reporter   port.Reporter
	recorder   port.ResponseRecorder
	state      port.RunState
	logger     *slog.Logger
	router     chi.Router
}

// NewHandler creates a handler with all routes configured.
func NewHandler(dispatcher port.Dispatcher, reporter port.Reporter, recorder port.ResponseRecorder, state port.RunState, logger *slog.Logger) *Handler {
	h := &Handler{
		dispatcher: dispatcher,
		reporter:   reporter,
		recorder:   recorder,
		state:      state,
		logger:     logger,
	}
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/dispatch/tick", h.handleTick)
		r.Post("/responses", h.handleRecordResponse)
		r.Get("/campaigns/{id}/performance", h.handlePerformance)
		r.Get("/campaigns/{id}/returned", h.handleReturned)
		r.Get("/campaigns/{id}/responses", h.handleResponses)
		r.Get("/health", h.handleHealth)
	})
	r.Handle("/metrics", promhttp.Handler())
	h.router = r
	return h
}

// Router returns the underlying http.Handler.
func (h *Handler) Router() http.Handler {
	return h.router
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", slog.Any("error", err))
	}
}
