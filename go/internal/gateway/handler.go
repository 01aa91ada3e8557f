package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Handler struct {
	hub *Hub
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// HandleLeague upgrades /ws/league?league_id=...&user_id=...
func (h *Handler) HandleLeague(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("league_id")
	if raw == "" {
		http.Error(w, "league_id is required", http.StatusBadRequest)
		return
	}
	leagueID, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "invalid league_id format", http.StatusBadRequest)
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID != "" {
		if _, err := uuid.Parse(userID); err != nil {
			http.Error(w, "invalid user_id format", http.StatusBadRequest)
			return
		}
	}

	// Upgrade has already written the HTTP error on failure
	if err := h.hub.Upgrade(w, r, leagueID, userID); err != nil {
		log.Error().Err(err).Str("league_id", leagueID.String()).Msg("failed to upgrade websocket connection")
	}
}

func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.hub.Stats()); err != nil {
		log.Error().Err(err).Msg("failed to write stats")
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/league", h.HandleLeague)
	mux.HandleFunc("/ws/stats", h.HandleStats)
}
