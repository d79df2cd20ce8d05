package controllers

import (
	"net/http"

	"tonot_server/services"
)

// ReferralController handles HTTP requests for referral stats
type ReferralController struct {
	ReferralService *services.ReferralService
}

// NewReferralController creates a new ReferralController instance
func NewReferralController(referralService *services.ReferralService) *ReferralController {
	return &ReferralController{ReferralService: referralService}
}

// Stats returns a referrer's invitee counts.
func (rc *ReferralController) Stats(w http.ResponseWriter, r *http.Request) {
	telegramID := r.URL.Query().Get("telegramId")
	if telegramID == "" {
		http.Error(w, "telegramId is required", http.StatusBadRequest)
		return
	}

	stats, err := rc.ReferralService.GetStats(r.Context(), telegramID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"stats": stats})
}
