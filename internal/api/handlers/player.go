package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/riftbridge/custom-match-core/internal/domain"
	"github.com/riftbridge/custom-match-core/internal/repository"
	"github.com/riftbridge/custom-match-core/internal/service"
)

// PlayerHandler serves read-only profile and match lookups.
type PlayerHandler struct {
	players *service.PlayerService
	matches repository.MatchRepository
}

func NewPlayerHandler(players *service.PlayerService, matches repository.MatchRepository) *PlayerHandler {
	return &PlayerHandler{players: players, matches: matches}
}

func (h *PlayerHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "summonerName")
	player, err := h.players.GetBySummonerName(r.Context(), name)
	if err != nil {
		http.Error(w, "player not found", http.StatusNotFound)
		return
	}
	writeJSON(w, player)
}

func (h *PlayerHandler) GetMatch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid match id", http.StatusBadRequest)
		return
	}
	match, err := h.matches.GetByID(r.Context(), id)
	if err != nil {
		http.Error(w, "match not found", http.StatusNotFound)
		return
	}
	writeJSON(w, match)
}

// GetActiveMatches lists matches still moving through the lifecycle.
func (h *PlayerHandler) GetActiveMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := h.matches.GetByStatuses(r.Context(), []domain.MatchStatus{
		domain.MatchStatusPendingAccept,
		domain.MatchStatusDraft,
		domain.MatchStatusInProgress,
	})
	if err != nil {
		http.Error(w, "failed to list matches", http.StatusInternalServerError)
		return
	}
	writeJSON(w, matches)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
