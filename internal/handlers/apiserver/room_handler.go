package apiserver

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"chatcore/internal/middleware"
	"chatcore/internal/rooms"
)

// RoomHandler exposes direct and group room operations.
type RoomHandler struct {
	roomService rooms.Service
}

// NewRoomHandler creates a new RoomHandler.
func NewRoomHandler(roomService rooms.Service) *RoomHandler {
	return &RoomHandler{roomService: roomService}
}

// OpenDirectRoomRequest names the other member of a direct room.
type OpenDirectRoomRequest struct {
	UserID string `json:"userId"`
}

// CreateRoomRequest is the body of a group room creation.
type CreateRoomRequest struct {
	Name    string `json:"name"`
	IconURL string `json:"iconUrl"`
}

// ListRooms returns summaries for every room on the caller's list.
func (h *RoomHandler) ListRooms(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "not authenticated", http.StatusUnauthorized)
		return
	}

	summaries, err := h.roomService.ListRooms(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, summaries)
}

// OpenDirectRoom finds or creates the direct room between the caller
// and the named user. 200 when it already existed, 201 when created.
func (h *RoomHandler) OpenDirectRoom(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "not authenticated", http.StatusUnauthorized)
		return
	}

	var req OpenDirectRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	room, created, err := h.roomService.OpenDirectRoom(r.Context(), userID, req.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, room)
}

// DeleteDirectRoom removes a direct room the caller is a member of.
func (h *RoomHandler) DeleteDirectRoom(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "not authenticated", http.StatusUnauthorized)
		return
	}
	roomID := mux.Vars(r)["roomID"]

	if err := h.roomService.DeleteDirectRoom(r.Context(), roomID, userID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "room deleted"})
}

// CreateRoom creates a group room with the caller as sole member.
func (h *RoomHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "not authenticated", http.StatusUnauthorized)
		return
	}

	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	room, err := h.roomService.CreateRoom(r.Context(), req.Name, req.IconURL, userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, room)
}

// GetRoom returns one group room.
func (h *RoomHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomID"]

	room, err := h.roomService.GetRoom(r.Context(), roomID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, room)
}

// JoinRoom adds the caller to a group room.
func (h *RoomHandler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "not authenticated", http.StatusUnauthorized)
		return
	}
	roomID := mux.Vars(r)["roomID"]

	if err := h.roomService.JoinRoom(r.Context(), roomID, userID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "joined room"})
}

// DeleteRoom removes a group room the caller is a member of.
func (h *RoomHandler) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "not authenticated", http.StatusUnauthorized)
		return
	}
	roomID := mux.Vars(r)["roomID"]

	if err := h.roomService.DeleteRoom(r.Context(), roomID, userID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "room deleted"})
}
