package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"ecopoints/internal/service"
)

// LeaderboardHandler serves ranked listings for the dashboard and
// leaderboard screens.
type LeaderboardHandler struct {
	engine *service.Engine
}

// NewLeaderboardHandler creates a new leaderboard handler
func NewLeaderboardHandler(engine *service.Engine) *LeaderboardHandler {
	return &LeaderboardHandler{engine: engine}
}

// Get handles GET /api/leaderboard?scope=students|schools&school=<id>&limit=N.
func (h *LeaderboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	scope := query.Get("scope")
	if scope == "" {
		scope = service.ScopeStudents
	}
	schoolID := query.Get("school")

	limit := 10
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			respondError(w, http.StatusBadRequest, "limit must be between 1 and 100", nil)
			return
		}
		limit = n
	}

	entries, err := h.engine.GetLeaderboard(scope, schoolID, limit)
	if err != nil {
		if errors.Is(err, service.ErrInvalidScope) {
			respondError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "could not load leaderboard", err)
		return
	}

	respondData(w, entries)
}
