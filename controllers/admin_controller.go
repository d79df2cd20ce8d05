package controllers

import (
	"net/http"

	"tonot_server/services"
)

// AdminController exposes maintenance operations
type AdminController struct {
	Reaper *services.ReaperService
}

// NewAdminController creates a new AdminController instance
func NewAdminController(reaper *services.ReaperService) *AdminController {
	return &AdminController{Reaper: reaper}
}

// Sweep runs one stale-state sweep pass and reports what it changed.
func (ac *AdminController) Sweep(w http.ResponseWriter, r *http.Request) {
	result, err := ac.Reaper.SweepStale(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
