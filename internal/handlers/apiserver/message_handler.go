package apiserver

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"chatcore/internal/messages"
	"chatcore/internal/middleware"
	"chatcore/internal/unread"
)

// MessageHandler exposes the message log and unread counters.
type MessageHandler struct {
	messageService messages.Service
	unreadService  unread.Service
}

// NewMessageHandler creates a new MessageHandler.
func NewMessageHandler(messageService messages.Service, unreadService unread.Service) *MessageHandler {
	return &MessageHandler{
		messageService: messageService,
		unreadService:  unreadService,
	}
}

// SendMessageRequest is the body of a message append.
type SendMessageRequest struct {
	Content  string `json:"content"`
	ImageURL string `json:"imageUrl"`
}

// EditMessageRequest is the body of a message edit.
type EditMessageRequest struct {
	Content string `json:"content"`
}

// ToggleLikeRequest carries the like state the caller observed; the
// server flips relative to it so double-taps cannot double-count.
type ToggleLikeRequest struct {
	Liked bool `json:"liked"`
}

// ListMessages returns the room's messages in send order.
func (h *MessageHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomID"]

	msgs, err := h.messageService.List(r.Context(), roomID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, msgs)
}

// SendMessage appends a message to the room's log.
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "not authenticated", http.StatusUnauthorized)
		return
	}
	roomID := mux.Vars(r)["roomID"]

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	msg, err := h.messageService.Append(r.Context(), roomID, userID, req.Content, req.ImageURL)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, msg)
}

// EditMessage replaces a message's content. Only the sender may edit.
func (h *MessageHandler) EditMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "not authenticated", http.StatusUnauthorized)
		return
	}
	messageID := mux.Vars(r)["messageID"]

	var req EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	msg, err := h.messageService.Edit(r.Context(), messageID, userID, req.Content)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, msg)
}

// ToggleLike flips the caller's like on a message.
func (h *MessageHandler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "not authenticated", http.StatusUnauthorized)
		return
	}
	messageID := mux.Vars(r)["messageID"]

	var req ToggleLikeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	msg, err := h.messageService.ToggleLike(r.Context(), messageID, userID, req.Liked)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, msg)
}

// MarkRead zeroes the caller's unread counter for the room.
func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "not authenticated", http.StatusUnauthorized)
		return
	}
	roomID := mux.Vars(r)["roomID"]

	if err := h.unreadService.MarkRead(r.Context(), userID, roomID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "marked read"})
}

// UnreadCounts returns the caller's per-room unread counters.
func (h *MessageHandler) UnreadCounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "not authenticated", http.StatusUnauthorized)
		return
	}

	counts, err := h.unreadService.Counts(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, counts)
}
