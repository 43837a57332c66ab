package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/racetrack/go/internal/models"
	"github.com/mcdev12/racetrack/go/internal/sessions"
	"github.com/mcdev12/racetrack/go/internal/timing"
)

// LeaderboardResponse is the body of GET /api/sessions/{id}/leaderboard
type LeaderboardResponse struct {
	SessionID models.SessionID  `json:"sessionId"`
	Name      string            `json:"name"`
	Standings []timing.Standing `json:"standings"`
}

// StateHandler serves read-only views of engine state for screens that
// poll instead of holding a socket.
type StateHandler struct {
	engine Engine
}

// NewStateHandler creates a new state handler
func NewStateHandler(engine Engine) *StateHandler {
	return &StateHandler{engine: engine}
}

// HandleListSessions handles GET /api/sessions
func (h *StateHandler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.ListSessions())
}

// HandleLeaderboard handles GET /api/sessions/{id}/leaderboard
func (h *StateHandler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseSessionID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid session ID format", http.StatusBadRequest)
		return
	}

	standings, err := h.engine.Leaderboard(id)
	if err != nil {
		if sessions.IsNotFound(err) {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("session_id", id.String()).Msg("failed to build leaderboard")
		http.Error(w, "Failed to build leaderboard", http.StatusInternalServerError)
		return
	}

	var name string
	for _, s := range h.engine.ListSessions() {
		if s.ID == id {
			name = s.Name
			break
		}
	}

	writeJSON(w, http.StatusOK, LeaderboardResponse{SessionID: id, Name: name, Standings: standings})
}

// HandleRaceData handles GET /api/race. The body is null before any tick.
func (h *StateHandler) HandleRaceData(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.CurrentRaceData())
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(r chi.Router) {
	r.Get("/api/sessions", h.HandleListSessions)
	r.Get("/api/sessions/{id}/leaderboard", h.HandleLeaderboard)
	r.Get("/api/race", h.HandleRaceData)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
