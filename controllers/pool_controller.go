package controllers

import (
	"encoding/json"
	"log"
	"net/http"

	"tonot_server/models"
	"tonot_server/services"
)

// PoolController handles HTTP requests for X10 pool match operations
type PoolController struct {
	PoolService *services.PoolService
	Reaper      *services.ReaperService
}

// NewPoolController creates a new PoolController instance
func NewPoolController(poolService *services.PoolService, reaper *services.ReaperService) *PoolController {
	return &PoolController{PoolService: poolService, Reaper: reaper}
}

// Join handles an X10 pool join (1 chance ticket entry fee).
func (pc *PoolController) Join(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		TelegramID string `json:"telegramId"`
		Username   string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if payload.TelegramID == "" || payload.Username == "" {
		http.Error(w, "telegramId and username are required", http.StatusBadRequest)
		return
	}

	if _, err := pc.Reaper.SweepStale(r.Context()); err != nil {
		log.Printf("⚠️ Pre-join sweep failed: %v", err)
	}

	result, err := pc.PoolService.JoinPool(r.Context(), payload.TelegramID, payload.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Cancel handles the eligibility-gated refund out of a waiting pool.
func (pc *PoolController) Cancel(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		TelegramID string `json:"telegramId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.TelegramID == "" {
		http.Error(w, "telegramId is required", http.StatusBadRequest)
		return
	}

	result, err := pc.PoolService.CancelPoolEntry(r.Context(), payload.TelegramID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Resolve applies an externally drawn winner set to a playing pool.
func (pc *PoolController) Resolve(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		MatchID string              `json:"matchId"`
		Winners []models.PoolWinner `json:"winners"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if payload.MatchID == "" {
		http.Error(w, "matchId is required", http.StatusBadRequest)
		return
	}

	result, err := pc.PoolService.ResolvePool(r.Context(), payload.MatchID, payload.Winners)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetCurrent returns the waiting/playing pool containing the player.
func (pc *PoolController) GetCurrent(w http.ResponseWriter, r *http.Request) {
	telegramID := r.URL.Query().Get("telegramId")
	if telegramID == "" {
		http.Error(w, "telegramId is required", http.StatusBadRequest)
		return
	}

	pool, err := pc.PoolService.GetCurrentPool(r.Context(), telegramID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"match": pool})
}
