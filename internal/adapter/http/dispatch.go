package httpadapter

import (
	"log/slog"
	"net/http"

	"mailrun/internal/core/domain"
)

// handleTick runs one dispatch tick. A held lock is not an error; the caller
// gets 200 with result "skipped". Fatal tick errors map to 500 with the
// result reached so far.
func (h *Handler) handleTick(w http.ResponseWriter, r *http.Request) {
	actor := r.Header.Get("X-Actor")
	if actor == "" {
		actor = "api"
	}
	rctx := domain.RequestContext{Actor: actor}

	result, err := h.dispatcher.RunTick(r.Context(), rctx)
	resp := map[string]string{"result": result.String()}
	if err != nil {
		h.logger.Error("dispatch tick failed", slog.Any("error", err))
		resp["error"] = err.Error()
		h.writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// handleHealth renders the three operator signals: whether the dispatch lock
// is held, the last tick time and any recorded fatal error. Status is "ok",
// "caution" while a run is in progress, or "error" after a fatal tick.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	held, err := h.state.LockHeld(r.Context())
	if err != nil {
		h.logger.Error("health: lock probe failed", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	lastTick, fatalMsg, err := h.state.LastTick(r.Context())
	if err != nil {
		h.logger.Error("health: tick state read failed", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	status := "ok"
	switch {
	case fatalMsg != "":
		status = "error"
	case held:
		status = "caution"
	}
	resp := map[string]any{
		"status":     status,
		"lock_held":  held,
		"last_error": fatalMsg,
	}
	if !lastTick.IsZero() {
		resp["last_tick"] = lastTick
	}
	h.writeJSON(w, http.StatusOK, resp)
}
