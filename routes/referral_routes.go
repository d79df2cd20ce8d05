package routes

import (
	"tonot_server/controllers"
	"tonot_server/services"

	"github.com/gorilla/mux"
)

// RegisterReferralRoutes sets up routes for referral stats under /api/referral
func RegisterReferralRoutes(r *mux.Router, referralService *services.ReferralService) {
	controller := controllers.NewReferralController(referralService)

	referralRouter := r.PathPrefix("/api/referral").Subrouter()

	referralRouter.HandleFunc("/stats", controller.Stats).Methods("GET")
}
