package apiserver

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"chatcore/internal/middleware"
	"chatcore/internal/social"
)

// UserHandler exposes the current user's profile.
type UserHandler struct {
	socialService social.Service
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(socialService social.Service) *UserHandler {
	return &UserHandler{socialService: socialService}
}

// UpdateProfileRequest is the body of a profile update.
type UpdateProfileRequest struct {
	Name    string `json:"name"`
	IconURL string `json:"iconUrl"`
}

// GetMe returns the authenticated user's full record.
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "not authenticated", http.StatusUnauthorized)
		return
	}

	user, err := h.socialService.GetUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, user)
}

// GetUser returns another user's public info.
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	targetID := mux.Vars(r)["userID"]

	user, err := h.socialService.GetUser(r.Context(), targetID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, user.BasicInfo())
}

// UpdateProfile changes the authenticated user's name and icon.
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "not authenticated", http.StatusUnauthorized)
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	user, err := h.socialService.UpdateProfile(r.Context(), userID, req.Name, req.IconURL)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, user)
}
