package routes

import (
	"tonot_server/controllers"
	"tonot_server/services"

	"github.com/gorilla/mux"
)

// RegisterUserRoutes sets up routes for user records under /api/user
func RegisterUserRoutes(r *mux.Router, userService *services.UserService) {
	controller := controllers.NewUserController(userService)

	userRouter := r.PathPrefix("/api/user").Subrouter()

	userRouter.HandleFunc("", controller.CreateOrGet).Methods("POST")
	userRouter.HandleFunc("", controller.Get).Methods("GET")
	userRouter.HandleFunc("/purchase", controller.Purchase).Methods("POST")
	userRouter.HandleFunc("/channelBonus", controller.ChannelBonus).Methods("POST")
	userRouter.HandleFunc("/history", controller.History).Methods("GET")
}
