package apiserver

import (
	"net/http"

	"github.com/gorilla/mux"

	"chatcore/internal/middleware"
	"chatcore/internal/social"
)

// FriendHandler exposes the friend and block lists.
type FriendHandler struct {
	socialService social.Service
}

// NewFriendHandler creates a new FriendHandler.
func NewFriendHandler(socialService social.Service) *FriendHandler {
	return &FriendHandler{socialService: socialService}
}

// ListFriends returns the caller's friends.
func (h *FriendHandler) ListFriends(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "not authenticated", http.StatusUnauthorized)
		return
	}

	friends, err := h.socialService.ListFriends(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, friends)
}

// ListBlocked returns the caller's blocked users.
func (h *FriendHandler) ListBlocked(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "not authenticated", http.StatusUnauthorized)
		return
	}

	blocked, err := h.socialService.ListBlocked(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, blocked)
}

// AddFriend makes the caller and the target mutual friends.
func (h *FriendHandler) AddFriend(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "not authenticated", http.StatusUnauthorized)
		return
	}
	targetID := mux.Vars(r)["userID"]

	if err := h.socialService.AddFriend(r.Context(), userID, targetID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "friend added"})
}

// BlockFriend removes the friendship and blocks the target.
func (h *FriendHandler) BlockFriend(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "not authenticated", http.StatusUnauthorized)
		return
	}
	targetID := mux.Vars(r)["userID"]

	if err := h.socialService.BlockFriend(r.Context(), userID, targetID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "user blocked"})
}

// UnblockUser removes the target from the caller's blocked set.
func (h *FriendHandler) UnblockUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "not authenticated", http.StatusUnauthorized)
		return
	}
	targetID := mux.Vars(r)["userID"]

	if err := h.socialService.UnblockUser(r.Context(), userID, targetID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "user unblocked"})
}
