package controllers

import (
	"encoding/json"
	"net/http"

	"tonot_server/services"
)

// UserController handles HTTP requests for user records and balances
type UserController struct {
	UserService *services.UserService
}

// NewUserController creates a new UserController instance
func NewUserController(userService *services.UserService) *UserController {
	return &UserController{UserService: userService}
}

// CreateOrGet returns the user record, creating it on first contact.
func (uc *UserController) CreateOrGet(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		TelegramID   string `json:"telegramId"`
		Username     string `json:"username"`
		ReferralCode string `json:"referralCode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if payload.TelegramID == "" || payload.Username == "" {
		http.Error(w, "telegramId and username are required", http.StatusBadRequest)
		return
	}

	user, created, err := uc.UserService.GetOrCreateUser(r.Context(), payload.TelegramID, payload.Username, payload.ReferralCode)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]interface{}{"user": user, "created": created})
}

// Get returns the user's profile and balances.
func (uc *UserController) Get(w http.ResponseWriter, r *http.Request) {
	telegramID := r.URL.Query().Get("telegramId")
	if telegramID == "" {
		http.Error(w, "telegramId is required", http.StatusBadRequest)
		return
	}

	user, err := uc.UserService.GetUser(r.Context(), telegramID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}

// Purchase credits purchased tickets and records the ledger entry.
func (uc *UserController) Purchase(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		TelegramID string  `json:"telegramId"`
		Tickets    int64   `json:"tickets"`
		AmountTon  float64 `json:"amountTon"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if payload.TelegramID == "" || payload.Tickets <= 0 || payload.AmountTon < 0 {
		http.Error(w, "telegramId and a positive tickets amount are required", http.StatusBadRequest)
		return
	}

	user, err := uc.UserService.RecordPurchase(r.Context(), payload.TelegramID, payload.Tickets, payload.AmountTon)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}

// ChannelBonus claims the one-time channel subscription bonus.
func (uc *UserController) ChannelBonus(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		TelegramID string `json:"telegramId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.TelegramID == "" {
		http.Error(w, "telegramId is required", http.StatusBadRequest)
		return
	}

	user, err := uc.UserService.ClaimChannelBonus(r.Context(), payload.TelegramID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}

// History returns the user's game ledger.
func (uc *UserController) History(w http.ResponseWriter, r *http.Request) {
	telegramID := r.URL.Query().Get("telegramId")
	if telegramID == "" {
		http.Error(w, "telegramId is required", http.StatusBadRequest)
		return
	}

	user, err := uc.UserService.GetUser(r.Context(), telegramID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"gameHistory":     user.GameHistory,
		"purchaseHistory": user.PurchaseHistory,
	})
}
