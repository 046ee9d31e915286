package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"ecopoints/internal/ledger"
	"ecopoints/internal/models"
	"ecopoints/internal/service"
)

// EventHandler accepts point-earning events from task and game completion
// handlers.
type EventHandler struct {
	engine *service.Engine
}

// NewEventHandler creates a new event handler
func NewEventHandler(engine *service.Engine) *EventHandler {
	return &EventHandler{engine: engine}
}

// Submit handles POST /api/events. Duplicate submissions (same event_id)
// respond 200 with duplicate=true so flaky-network retries look like plain
// success to the client; storage failures respond 503 and are safe to
// retry with the same event_id.
func (h *EventHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var in service.SubmitEventInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	// Manual adjustments are operator actions; keep who did what on record.
	if in.Kind == models.EventManualAdjustment {
		log.Printf("manual adjustment: actor=%s delta=%d caller=%s", in.ActorID, in.Delta, CallerID(r))
	}

	result, err := h.engine.SubmitEvent(r.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInvalidEvent):
			respondError(w, http.StatusBadRequest, err.Error(), nil)
		default:
			respondError(w, http.StatusServiceUnavailable, "event not saved, please retry", err)
		}
		return
	}

	respondData(w, result)
}

// Get handles GET /api/events/{id}. Submitters use it to check what a
// retried submission actually recorded.
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	e, err := h.engine.GetEvent(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ledger.ErrUnknownEvent) {
			respondError(w, http.StatusNotFound, "event not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "could not load event", err)
		return
	}

	respondData(w, e)
}
