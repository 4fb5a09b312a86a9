package httpadapter

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"mailrun/internal/core/port"
)

// The three reporting reads share the same shape: parse the campaign id,
// delegate to the aggregator, render JSON.

func (h *Handler) handlePerformance(w http.ResponseWriter, r *http.Request) {
	h.report(w, r, func(id int64) (any, error) {
		return h.reporter.GetPerformanceData(r.Context(), id)
	})
}

func (h *Handler) handleReturned(w http.ResponseWriter, r *http.Request) {
	h.report(w, r, func(id int64) (any, error) {
		return h.reporter.GetReturnedData(r.Context(), id)
	})
}

func (h *Handler) handleResponses(w http.ResponseWriter, r *http.Request) {
	h.report(w, r, func(id int64) (any, error) {
		return h.reporter.GetResponsesData(r.Context(), id)
	})
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request, fn func(id int64) (any, error)) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}
	data, err := fn(id)
	if errors.Is(err, port.ErrCampaignNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.logger.Error("reporting read error", slog.Int64("campaign_id", id), slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, data)
}
