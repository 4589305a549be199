package feedserver

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"chatcore/internal/auth"
	"chatcore/internal/config"
	"chatcore/internal/livefeed"
	"chatcore/internal/models"
	"chatcore/internal/rooms"
)

// WebSocketHandler upgrades feed requests and streams room snapshots.
// Each connection subscribes to exactly one room; a client watching
// several rooms opens one connection per room.
type WebSocketHandler struct {
	hub         *livefeed.Hub
	roomService rooms.Service
	cfg         config.Config
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(hub *livefeed.Hub, roomService rooms.Service, cfg config.Config) *WebSocketHandler {
	return &WebSocketHandler{
		hub:         hub,
		roomService: roomService,
		cfg:         cfg,
	}
}

// ServeWS authenticates via the token query parameter, checks the
// caller is a member of the requested room and starts streaming.
func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	claims, err := auth.ValidateToken(r.Context(), token, h.cfg.Auth.JWTSecretKey, nil)
	if err != nil {
		log.Printf("feed connection rejected, invalid token: %v", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	roomID := r.URL.Query().Get("roomId")
	if roomID == "" {
		http.Error(w, "missing roomId", http.StatusBadRequest)
		return
	}

	members, err := h.roomService.Members(r.Context(), roomID)
	if err != nil {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	isMember := false
	for _, m := range members {
		if m == claims.UserID {
			isMember = true
			break
		}
	}
	if !isMember {
		http.Error(w, "not a room member", http.StatusForbidden)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("feed upgrade failed: %v", err)
		return
	}

	sub := h.hub.Subscribe(roomID)
	client := &feedClient{
		conn: conn,
		sub:  sub,
		cfg:  h.cfg.WebSocket,
	}
	log.Printf("feed client connected: user %s, room %s", claims.UserID, roomID)

	go client.writePump()
	go client.readPump()
}

// feedClient is one live feed connection. The write pump streams
// snapshots from the subscription; the read pump only consumes control
// frames and tears the connection down when the peer goes away.
type feedClient struct {
	conn *websocket.Conn
	sub  *livefeed.Subscription
	cfg  config.WebSocketConfig
}

func (c *feedClient) readPump() {
	defer func() {
		c.sub.Cancel()
		c.conn.Close()
	}()
	c.conn.SetReadLimit(int64(c.cfg.MaxMessageSizeBytes))
	c.conn.SetReadDeadline(time.Now().Add(time.Duration(c.cfg.PongWaitSeconds) * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(time.Duration(c.cfg.PongWaitSeconds) * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("feed connection error (room %s): %v", c.sub.RoomID, err)
			}
			return
		}
		// The feed is one-way; inbound data frames are ignored.
	}
}

func (c *feedClient) writePump() {
	ticker := time.NewTicker(time.Duration(c.cfg.PingPeriodSeconds) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case snapshot, ok := <-c.sub.Snapshots():
			c.conn.SetWriteDeadline(time.Now().Add(time.Duration(c.cfg.WriteWaitSeconds) * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.writeSnapshot(snapshot); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(time.Duration(c.cfg.WriteWaitSeconds) * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *feedClient) writeSnapshot(snapshot []*models.Message) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		log.Printf("feed snapshot marshal failed (room %s): %v", c.sub.RoomID, err)
		return nil
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}
