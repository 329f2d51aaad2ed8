package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboard clients connect from browser origins we do not control.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientMessage is one client→server request. The filter axes are only
// meaningful for subscribe/unsubscribe, limit only for history.
type clientMessage struct {
	Action string `json:"action"`
	FilterUpdate
	Limit int `json:"limit"`
}

// Handler upgrades HTTP requests to WebSocket connections and services
// the client message protocol until the peer disconnects. The client id
// comes from the client_id query parameter; absent that, one is
// generated.
func (m *Manager) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}

		clientID := r.URL.Query().Get("client_id")
		if clientID == "" {
			clientID = "client_" + uuid.NewString()
		}

		c := m.Connect(conn, clientID)
		m.readLoop(conn, c)
	}
}

func (m *Manager) readLoop(conn *websocket.Conn, c *ClientConnection) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.drop(c)
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			m.sendError(c, "malformed message")
			continue
		}
		m.handleClientMessage(c, msg)
	}
}

func (m *Manager) handleClientMessage(c *ClientConnection, msg clientMessage) {
	switch msg.Action {
	case "subscribe":
		m.Subscribe(c.ID, msg.FilterUpdate)
	case "unsubscribe":
		m.Unsubscribe(c.ID, msg.FilterUpdate)
	case "ping":
		m.Touch(c.ID)
		_ = c.send(map[string]any{
			"type":      "pong",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	case "status":
		info, _ := m.GetConnectionInfo(c.ID)
		_ = c.send(map[string]any{
			"type":               "status",
			"connection":         info,
			"active_connections": m.ConnectionCount(),
		})
	case "history":
		_ = c.send(map[string]any{
			"type":   "history",
			"alerts": m.History(msg.Limit),
		})
	default:
		m.sendError(c, "unknown action: "+msg.Action)
	}
}

func (m *Manager) sendError(c *ClientConnection, reason string) {
	_ = c.send(map[string]any{
		"type":    "error",
		"message": reason,
	})
}
