package routes

import (
	"tonot_server/controllers"
	"tonot_server/services"

	"github.com/gorilla/mux"
)

// RegisterMatchRoutes sets up routes for 1v1 match operations under /api/match
func RegisterMatchRoutes(r *mux.Router, matchService *services.MatchService, reaper *services.ReaperService) {
	controller := controllers.NewMatchController(matchService, reaper)

	matchRouter := r.PathPrefix("/api/match").Subrouter()

	matchRouter.HandleFunc("/join", controller.JoinQueue).Methods("POST")
	matchRouter.HandleFunc("/cancel", controller.Cancel).Methods("POST")
	matchRouter.HandleFunc("/complete", controller.Complete).Methods("POST")
	matchRouter.HandleFunc("/current", controller.GetCurrent).Methods("GET")
}
