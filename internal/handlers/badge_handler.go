package handlers

import (
	"net/http"

	"ecopoints/internal/service"
)

// BadgeHandler serves the badge catalog.
type BadgeHandler struct {
	engine *service.Engine
}

// NewBadgeHandler creates a new badge handler
func NewBadgeHandler(engine *service.Engine) *BadgeHandler {
	return &BadgeHandler{engine: engine}
}

// List handles GET /api/badges.
func (h *BadgeHandler) List(w http.ResponseWriter, r *http.Request) {
	respondData(w, h.engine.Badges())
}
