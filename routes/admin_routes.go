package routes

import (
	"tonot_server/controllers"
	"tonot_server/services"

	"github.com/gorilla/mux"
)

// RegisterAdminRoutes sets up maintenance routes under /api/admin
func RegisterAdminRoutes(r *mux.Router, reaper *services.ReaperService) {
	controller := controllers.NewAdminController(reaper)

	adminRouter := r.PathPrefix("/api/admin").Subrouter()

	adminRouter.HandleFunc("/sweep", controller.Sweep).Methods("POST")
}
