package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/Burch-Group/labsync/internal/event"
	"github.com/Burch-Group/labsync/internal/hub"
	"github.com/Burch-Group/labsync/internal/metrics"
	"github.com/Burch-Group/labsync/internal/version"
)

// Control messages are tiny; anything larger is a misbehaving client.
const maxControlMessageSize = 512

type controlMessage struct {
	Action string `json:"action"`
	Room   string `json:"room"`
}

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.config.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	// Same-origin fallback when no explicit allow list matches.
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

func (s *Server) handleWebSocket(c echo.Context) error {
	ip := c.RealIP()

	ok, reason := s.limits.Acquire(ip)
	if !ok {
		metrics.WebSocketConnectionsRejected.WithLabelValues(string(reason)).Inc()
		metrics.WebSocketConnectionsTotal.WithLabelValues("rejected").Inc()
		slog.Warn("WebSocket connection rejected", "ip", ip, "reason", reason)
		return c.JSON(http.StatusTooManyRequests, map[string]string{"error": string(reason)})
	}
	defer s.limits.Release(ip)

	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		metrics.WebSocketConnectionsTotal.WithLabelValues("error").Inc()
		slog.Warn("WebSocket upgrade failed", "ip", ip, "error", err)
		return nil
	}
	conn.SetReadLimit(maxControlMessageSize)

	connection, err := s.hub.Register(conn)
	if err != nil {
		slog.Error("Failed to register connection", "ip", ip, "error", err)
		_ = conn.Close()
		return nil
	}
	metrics.WebSocketConnectionsTotal.WithLabelValues("success").Inc()

	// Read pump: blocks until the client disconnects. The hub owns all writes
	// to this connection; this goroutine only consumes control messages.
	s.readPump(conn, connection)

	s.hub.Disconnect(connection)
	return nil
}

func (s *Server) readPump(conn *websocket.Conn, connection *hub.Connection) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleControlMessage(connection, data)
	}
}

func (s *Server) handleControlMessage(connection *hub.Connection, data []byte) {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		metrics.WebSocketControlMessagesTotal.WithLabelValues("invalid").Inc()
		slog.Debug("Ignoring malformed control message", "conn_id", connection.ID().String(), "error", err)
		return
	}

	if !event.ValidRoom(msg.Room) {
		metrics.WebSocketControlMessagesTotal.WithLabelValues("invalid").Inc()
		slog.Debug("Ignoring control message for invalid room",
			"conn_id", connection.ID().String(), "action", msg.Action, "room", msg.Room)
		return
	}

	switch msg.Action {
	case "subscribe":
		metrics.WebSocketControlMessagesTotal.WithLabelValues("subscribe").Inc()
		s.hub.Subscribe(connection, msg.Room)
	case "unsubscribe":
		metrics.WebSocketControlMessagesTotal.WithLabelValues("unsubscribe").Inc()
		s.hub.Unsubscribe(connection, msg.Room)
	default:
		metrics.WebSocketControlMessagesTotal.WithLabelValues("invalid").Inc()
		slog.Debug("Ignoring unknown control action",
			"conn_id", connection.ID().String(), "action", msg.Action)
	}
}

func (s *Server) handleVersion(c echo.Context) error {
	return c.JSON(http.StatusOK, version.Get())
}
