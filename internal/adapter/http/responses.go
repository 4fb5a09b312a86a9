package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"mailrun/internal/core/domain"
	"mailrun/internal/core/port"
)

// responseEvent is the webhook payload delivered by the external bounce or
// tracking channel. Kind uses the wire values of ResponseKind: 1 html click,
// 2 plain click, -1 ping, -127 bounce.
type responseEvent struct {
	Token        string `json:"token"`
	Kind         int16  `json:"kind"`
	BounceReason int    `json:"bounce_reason,omitempty"`
	LinkID       int    `json:"link_id,omitempty"`
}

// handleRecordResponse ingests one response event. Unknown tokens map to 404
// so upstream webhooks can drop stale events; malformed payloads map to 400.
func (h *Handler) handleRecordResponse(w http.ResponseWriter, r *http.Request) {
	var ev responseEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	err := h.recorder.RecordResponse(r.Context(), ev.Token, domain.ResponseKind(ev.Kind), ev.BounceReason, ev.LinkID)
	switch {
	case errors.Is(err, port.ErrUnknownToken):
		http.NotFound(w, r)
	case err != nil:
		h.logger.Error("record response error", slog.Any("error", err))
		http.Error(w, "invalid event", http.StatusBadRequest)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
