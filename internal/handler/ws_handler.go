package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/conquest/api/internal/auth"
	"github.com/freeeve/conquest/api/internal/service"
	"github.com/freeeve/conquest/api/pkg/conquest"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = 54 * time.Second // Must be less than pongWait
	maxMsgSize  = 4096
	sendBufSize = 256
	syncTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS handled by middleware
	},
}

// SnapshotSource returns the live snapshot of a session for one of its players.
type SnapshotSource interface {
	CurrentSnapshot(ctx context.Context, sessionID, userID string) (*conquest.Snapshot, error)
}

// WSHandler handles WebSocket connections.
type WSHandler struct {
	hub       *Hub
	jwtMgr    *auth.JWTManager
	snapshots SnapshotSource
}

// NewWSHandler creates a WSHandler.
func NewWSHandler(hub *Hub, jwtMgr *auth.JWTManager, snapshots SnapshotSource) *WSHandler {
	return &WSHandler{hub: hub, jwtMgr: jwtMgr, snapshots: snapshots}
}

// ServeWS handles GET /api/v1/ws and upgrades to WebSocket.
// Auth via ?token= query parameter (WebSocket can't send headers).
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	tokenStr, err := auth.TokenFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "missing token parameter")
		return
	}
	claims, err := h.jwtMgr.ValidateAccess(tokenStr)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &WSConn{
		conn:   conn,
		userID: claims.UserID,
		send:   make(chan []byte, sendBufSize),
	}
	h.hub.Register(client)
	h.hub.SendTo(client, WSEvent{Type: EventConnected, Data: map[string]any{"user_id": claims.UserID}})

	go h.writePump(client)
	go h.readPump(client)

	log.Info().Str("userId", claims.UserID).Int("total", h.hub.ConnectionCount()).Msg("WebSocket client connected")
}

// handleMessage applies one client message. Subscribing also replies with the
// current snapshot when the user is seated in the session.
func (h *WSHandler) handleMessage(c *WSConn, msg ClientMessage) {
	if msg.SessionID == "" {
		return
	}
	switch msg.Action {
	case "subscribe":
		h.hub.Subscribe(c, msg.SessionID)
		h.sync(c, msg.SessionID, false)
	case "unsubscribe":
		h.hub.Unsubscribe(c, msg.SessionID)
	case "sync":
		h.sync(c, msg.SessionID, true)
	}
}

func (h *WSHandler) sync(c *WSConn, sessionID string, reportErrors bool) {
	if h.snapshots == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()
	snap, err := h.snapshots.CurrentSnapshot(ctx, sessionID, c.userID)
	if err != nil {
		if reportErrors {
			h.hub.SendTo(c, WSEvent{Type: EventError, SessionID: sessionID, Data: map[string]string{"error": err.Error()}})
		}
		return
	}
	h.hub.SendTo(c, WSEvent{Type: service.EventSnapshot, SessionID: sessionID, Data: snap})
}

// readPump reads messages from the WebSocket connection.
func (h *WSHandler) readPump(c *WSConn) {
	defer func() {
		h.hub.Unregister(c)
		c.conn.Close()
		log.Info().Str("userId", c.userID).Msg("WebSocket client disconnected")
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("userId", c.userID).Msg("WebSocket unexpected close")
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		h.handleMessage(c, msg)
	}
}

// writePump writes messages to the WebSocket connection, one event per frame.
func (h *WSHandler) writePump(c *WSConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
