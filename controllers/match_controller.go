package controllers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"tonot_server/services"
)

// MatchController handles HTTP requests for 1v1 match operations
type MatchController struct {
	MatchService *services.MatchService
	Reaper       *services.ReaperService
}

// NewMatchController creates a new MatchController instance
func NewMatchController(matchService *services.MatchService, reaper *services.ReaperService) *MatchController {
	return &MatchController{MatchService: matchService, Reaper: reaper}
}

// JoinQueue handles a 1v1 queue join: pairs the player or enqueues them.
func (mc *MatchController) JoinQueue(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		TelegramID    string `json:"telegramId"`
		Username      string `json:"username"`
		TicketsAmount int64  `json:"ticketsAmount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if payload.TelegramID == "" || payload.Username == "" || payload.TicketsAmount <= 0 {
		http.Error(w, "telegramId, username and a positive ticketsAmount are required", http.StatusBadRequest)
		return
	}

	// Sweep before pairing so a stale queue entry is never a candidate.
	if _, err := mc.Reaper.SweepStale(r.Context()); err != nil {
		log.Printf("⚠️ Pre-join sweep failed: %v", err)
	}

	result, err := mc.MatchService.JoinQueue(r.Context(), payload.TelegramID, payload.Username, payload.TicketsAmount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Cancel handles queue/match cancellation for a player.
func (mc *MatchController) Cancel(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		TelegramID string `json:"telegramId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.TelegramID == "" {
		http.Error(w, "telegramId is required", http.StatusBadRequest)
		return
	}

	result, err := mc.MatchService.CancelQueueOrMatch(r.Context(), payload.TelegramID)
	if err != nil {
		if errors.Is(err, services.ErrNothingToCancel) {
			// The entry may already be gone, e.g. removed by the sweep.
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"refunded":      false,
				"matchCanceled": false,
				"reason":        "nothing_to_cancel",
			})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Complete handles match completion with the winner's id.
func (mc *MatchController) Complete(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		MatchID  string `json:"matchId"`
		WinnerID string `json:"winnerId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if payload.MatchID == "" || payload.WinnerID == "" {
		http.Error(w, "matchId and winnerId are required", http.StatusBadRequest)
		return
	}

	result, err := mc.MatchService.CompleteMatch(r.Context(), payload.MatchID, payload.WinnerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetCurrent returns the player's active match, if any.
func (mc *MatchController) GetCurrent(w http.ResponseWriter, r *http.Request) {
	telegramID := r.URL.Query().Get("telegramId")
	if telegramID == "" {
		http.Error(w, "telegramId is required", http.StatusBadRequest)
		return
	}

	match, err := mc.MatchService.GetCurrentMatch(r.Context(), telegramID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"match": match})
}
