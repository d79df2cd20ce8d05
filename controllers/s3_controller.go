package controllers

import (
	"encoding/json"
	"log"
	"net/http"

	"tonot_server/services"
)

// AvatarController handles presigned URL generation for profile avatars
type AvatarController struct {
	UserService *services.UserService
}

// NewAvatarController creates a new AvatarController instance
func NewAvatarController(userService *services.UserService) *AvatarController {
	return &AvatarController{UserService: userService}
}

// GenerateUploadURL generates a presigned URL for uploading an avatar and
// stores the resulting object key on the user record.
func (ac *AvatarController) GenerateUploadURL(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		TelegramID string `json:"telegramId"`
		FileType   string `json:"fileType"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if payload.TelegramID == "" || payload.FileType == "" {
		http.Error(w, "telegramId and fileType are required", http.StatusBadRequest)
		return
	}

	url, key, err := services.GenerateAvatarUploadURL(payload.TelegramID, payload.FileType)
	if err != nil {
		log.Printf("Error generating pre-signed URL: %v", err)
		http.Error(w, "Failed to generate pre-signed URL", http.StatusInternalServerError)
		return
	}

	if err := ac.UserService.SetAvatarKey(r.Context(), payload.TelegramID, key); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url, "key": key})
}

// GenerateReadURL generates a presigned URL for reading an avatar
func (ac *AvatarController) GenerateReadURL(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Key == "" {
		http.Error(w, "key is required", http.StatusBadRequest)
		return
	}

	url, err := services.GenerateAvatarReadURL(payload.Key)
	if err != nil {
		http.Error(w, "Failed to generate read pre-signed URL", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}
