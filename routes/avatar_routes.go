package routes

import (
	"tonot_server/controllers"
	"tonot_server/services"

	"github.com/gorilla/mux"
)

// RegisterAvatarRoutes sets up presigned-URL routes under /api/avatar
func RegisterAvatarRoutes(r *mux.Router, userService *services.UserService) {
	controller := controllers.NewAvatarController(userService)

	avatarRouter := r.PathPrefix("/api/avatar").Subrouter()

	avatarRouter.HandleFunc("/upload-url", controller.GenerateUploadURL).Methods("POST")
	avatarRouter.HandleFunc("/read-url", controller.GenerateReadURL).Methods("POST")
}
