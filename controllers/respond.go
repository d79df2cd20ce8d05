package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"tonot_server/services"
)

// writeJSON sends a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeError maps domain errors onto HTTP status codes. Transaction
// conflicts are 409s the client may simply resubmit; nothing was written.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrMatchNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrInsufficientTickets),
		errors.Is(err, services.ErrInsufficientChance):
		http.Error(w, err.Error(), http.StatusPaymentRequired)
	case errors.Is(err, services.ErrAlreadyWaiting),
		errors.Is(err, services.ErrAlreadyInMatch),
		errors.Is(err, services.ErrAlreadyInPool),
		errors.Is(err, services.ErrMatchNotActive),
		errors.Is(err, services.ErrPoolNotPlaying),
		errors.Is(err, services.ErrBonusAlreadyClaimed),
		errors.Is(err, services.ErrRefundNotEligible),
		errors.Is(err, services.ErrTransactionConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, services.ErrInvalidWinnerSet),
		errors.Is(err, services.ErrWinnerNotInMatch):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
