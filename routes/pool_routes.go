package routes

import (
	"tonot_server/controllers"
	"tonot_server/services"

	"github.com/gorilla/mux"
)

// RegisterPoolRoutes sets up routes for X10 pool operations under /api/x10
func RegisterPoolRoutes(r *mux.Router, poolService *services.PoolService, reaper *services.ReaperService) {
	controller := controllers.NewPoolController(poolService, reaper)

	poolRouter := r.PathPrefix("/api/x10").Subrouter()

	poolRouter.HandleFunc("/join", controller.Join).Methods("POST")
	poolRouter.HandleFunc("/cancel", controller.Cancel).Methods("POST")
	poolRouter.HandleFunc("/resolve", controller.Resolve).Methods("POST")
	poolRouter.HandleFunc("/current", controller.GetCurrent).Methods("GET")
}
