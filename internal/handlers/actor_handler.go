package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"ecopoints/internal/ledger"
	"ecopoints/internal/service"
)

// ActorHandler serves actor registration, dashboard summaries and the
// audit rebuild endpoint.
type ActorHandler struct {
	engine *service.Engine
}

// NewActorHandler creates a new actor handler
func NewActorHandler(engine *service.Engine) *ActorHandler {
	return &ActorHandler{engine: engine}
}

// Register handles POST /api/actors.
func (h *ActorHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterActorInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	summary, err := h.engine.RegisterActor(in)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			respondError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "could not register actor", err)
		return
	}

	respondData(w, summary)
}

// Summary handles GET /api/actors/{id}. An actor with no events yet is a
// 404; callers that want zero-state render it themselves.
func (h *ActorHandler) Summary(w http.ResponseWriter, r *http.Request) {
	actorID := r.PathValue("id")

	summary, err := h.engine.GetActorSummary(actorID)
	if err != nil {
		if errors.Is(err, ledger.ErrUnknownActor) {
			respondError(w, http.StatusNotFound, "actor not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "could not load actor", err)
		return
	}

	respondData(w, summary)
}

// Rebuild handles POST /api/actors/{id}/rebuild.
func (h *ActorHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	actorID := r.PathValue("id")

	summary, err := h.engine.Rebuild(actorID)
	if err != nil {
		if errors.Is(err, ledger.ErrUnknownActor) {
			respondError(w, http.StatusNotFound, "actor not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "rebuild failed", err)
		return
	}

	respondData(w, summary)
}
