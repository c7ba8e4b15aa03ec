package hub

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/Burch-Group/labsync/internal/event"
	"github.com/Burch-Group/labsync/internal/metrics"
)

const (
	commandTimeout      = 5 * time.Second
	stopTimeout         = 10 * time.Second
	commandChannelSize  = 256
	defaultSendQueue    = 64
	depthSampleInterval = time.Second
)

// Connection is one live client session. The rooms set is owned by the
// coordinator goroutine and must not be touched from outside it.
type Connection struct {
	id     uuid.UUID
	writer *clientWriter
	rooms  map[string]struct{}
}

// ID returns the opaque connection identifier.
func (c *Connection) ID() uuid.UUID { return c.id }

// --- Command types ---

type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type registerCmd struct {
	baseHubCmd
	conn  *websocket.Conn
	reply chan *Connection
}

type subscribeCmd struct {
	baseHubCmd
	connection *Connection
	room       string
}

type unsubscribeCmd struct {
	baseHubCmd
	connection *Connection
	room       string
}

type disconnectCmd struct {
	baseHubCmd
	connection *Connection
}

type publishCmd struct {
	baseHubCmd
	kind  event.Kind
	rooms []string
	data  []byte
}

type roomMembersCmd struct {
	baseHubCmd
	room  string
	reply chan []uuid.UUID
}

type connectionRoomsCmd struct {
	baseHubCmd
	connection *Connection
	reply      chan []string
}

type connectionCountCmd struct {
	baseHubCmd
	reply chan int
}

type stopCmd struct {
	baseHubCmd
}

// Hub fans events out to room subscribers. All membership state is owned by
// the coordinator goroutine started in NewHub.
type Hub struct {
	cmdCh         chan hubCmd
	clock         clockwork.Clock
	rooms         map[string]map[*Connection]struct{}
	connections   map[*Connection]struct{}
	sendQueueSize int
	done          chan struct{}
}

// NewHub creates a hub and starts its coordinator goroutine.
// sendQueueSize bounds each connection's outbound queue; zero or negative
// selects the default.
func NewHub(clock clockwork.Clock, sendQueueSize int) *Hub {
	if sendQueueSize <= 0 {
		sendQueueSize = defaultSendQueue
	}
	h := &Hub{
		cmdCh:         make(chan hubCmd, commandChannelSize),
		clock:         clock,
		rooms:         make(map[string]map[*Connection]struct{}),
		connections:   make(map[*Connection]struct{}),
		sendQueueSize: sendQueueSize,
		done:          make(chan struct{}),
	}
	go h.run()
	return h
}

// Register adopts an upgraded WebSocket connection, starts its writer, and
// sends the connected greeting. The returned Connection is the handle for all
// later subscribe/unsubscribe/disconnect calls.
func (h *Hub) Register(conn *websocket.Conn) (*Connection, error) {
	reply := make(chan *Connection, 1)
	h.cmdCh <- registerCmd{conn: conn, reply: reply}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case c := <-reply:
		return c, nil
	case <-timer.Chan():
		return nil, fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Subscribe adds the connection to a room. Idempotent; repeat calls are no-ops.
func (h *Hub) Subscribe(c *Connection, room string) {
	h.cmdCh <- subscribeCmd{connection: c, room: room}
}

// Unsubscribe removes the connection from a room. No error if absent.
func (h *Hub) Unsubscribe(c *Connection, room string) {
	h.cmdCh <- unsubscribeCmd{connection: c, room: room}
}

// Disconnect removes the connection from every room and releases its writer.
func (h *Hub) Disconnect(c *Connection) {
	h.cmdCh <- disconnectCmd{connection: c}
}

// Publish fans an event out to the members of its resolved rooms. It never
// returns an error to the producer: delivery failure is local to the affected
// connection and handled by evicting only that connection.
func (h *Hub) Publish(e event.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		slog.Error("Failed to marshal event", "kind", e.Kind, "error", err)
		return
	}
	metrics.HubEventsPublishedTotal.WithLabelValues(string(e.Kind)).Inc()
	h.cmdCh <- publishCmd{kind: e.Kind, rooms: e.Rooms(), data: data}
}

// RoomMembers returns the ids of connections currently subscribed to room.
func (h *Hub) RoomMembers(room string) []uuid.UUID {
	reply := make(chan []uuid.UUID, 1)
	h.cmdCh <- roomMembersCmd{room: room, reply: reply}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case members := <-reply:
		return members
	case <-timer.Chan():
		slog.Warn("RoomMembers timed out", "room", room, "timeout", commandTimeout)
		return nil
	}
}

// ConnectionRooms returns the rooms the connection currently belongs to.
func (h *Hub) ConnectionRooms(c *Connection) []string {
	reply := make(chan []string, 1)
	h.cmdCh <- connectionRoomsCmd{connection: c, reply: reply}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case rooms := <-reply:
		return rooms
	case <-timer.Chan():
		slog.Warn("ConnectionRooms timed out", "timeout", commandTimeout)
		return nil
	}
}

// ConnectionCount returns the number of registered connections, or -1 on
// timeout.
func (h *Hub) ConnectionCount() int {
	reply := make(chan int, 1)
	h.cmdCh <- connectionCountCmd{reply: reply}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case n := <-reply:
		return n
	case <-timer.Chan():
		slog.Warn("ConnectionCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop closes all client connections and shuts the coordinator down. Blocks
// until the coordinator has exited or the stop timeout elapses.
func (h *Hub) Stop() {
	h.cmdCh <- stopCmd{}

	timer := h.clock.NewTimer(stopTimeout)
	defer timer.Stop()

	select {
	case <-h.done:
		slog.Info("Hub stopped gracefully")
	case <-timer.Chan():
		slog.Warn("Hub stop timeout exceeded", "timeout", stopTimeout)
	}
}

func (h *Hub) run() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Hub coordinator panic recovered", "panic", r)
			metrics.HubPanicsTotal.Inc()
			h.closeAllConnections("hub panic")
			close(h.done)
		}
	}()

	depthTicker := h.clock.NewTicker(depthSampleInterval)
	defer depthTicker.Stop()

	for {
		select {
		case <-depthTicker.Chan():
			depth := len(h.cmdCh)
			metrics.HubCommandChannelDepth.Set(float64(depth))
			if depth > commandChannelSize*4/5 {
				slog.Warn("Command channel near capacity", "depth", depth, "capacity", cap(h.cmdCh))
			}

		case cmd := <-h.cmdCh:
			switch c := cmd.(type) {
			case registerCmd:
				c.reply <- h.handleRegister(c.conn)
			case subscribeCmd:
				h.handleSubscribe(c.connection, c.room)
			case unsubscribeCmd:
				h.handleUnsubscribe(c.connection, c.room)
			case disconnectCmd:
				h.handleDisconnect(c.connection)
			case publishCmd:
				h.handlePublish(c)
			case roomMembersCmd:
				c.reply <- h.roomMembers(c.room)
			case connectionRoomsCmd:
				c.reply <- h.connectionRooms(c.connection)
			case connectionCountCmd:
				c.reply <- len(h.connections)
			case stopCmd:
				h.handleStop()
				close(h.done)
				return
			default:
				slog.Warn("Hub received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		}
	}
}

func (h *Hub) handleRegister(conn *websocket.Conn) *Connection {
	c := &Connection{
		id:     uuid.New(),
		writer: newClientWriter(conn, h.clock, h.sendQueueSize),
		rooms:  make(map[string]struct{}),
	}
	h.connections[c] = struct{}{}

	metrics.HubActiveConnections.Set(float64(len(h.connections)))

	h.enqueueControl(c, event.KindConnected, map[string]any{"connection_id": c.id.String()})
	slog.Debug("Connection registered", "conn_id", c.id.String(), "total_connections", len(h.connections))
	return c
}

func (h *Hub) handleSubscribe(c *Connection, room string) {
	if _, ok := h.connections[c]; !ok {
		return
	}

	members, exists := h.rooms[room]
	if !exists {
		members = make(map[*Connection]struct{})
		h.rooms[room] = members
		metrics.HubActiveRooms.Set(float64(len(h.rooms)))
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}

	h.enqueueControl(c, event.KindSubscribed, map[string]any{"room": room})
	slog.Debug("Subscribed", "conn_id", c.id.String(), "room", room, "room_size", len(members))
}

func (h *Hub) handleUnsubscribe(c *Connection, room string) {
	members, exists := h.rooms[room]
	if !exists {
		return
	}
	if _, ok := members[c]; !ok {
		return
	}

	delete(members, c)
	delete(c.rooms, room)
	if len(members) == 0 {
		delete(h.rooms, room)
		metrics.HubActiveRooms.Set(float64(len(h.rooms)))
	}
	slog.Debug("Unsubscribed", "conn_id", c.id.String(), "room", room)
}

func (h *Hub) handleDisconnect(c *Connection) {
	if _, ok := h.connections[c]; !ok {
		return
	}

	for room := range c.rooms {
		members := h.rooms[room]
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	c.rooms = make(map[string]struct{})
	delete(h.connections, c)
	c.writer.stop()

	metrics.HubActiveConnections.Set(float64(len(h.connections)))
	metrics.HubActiveRooms.Set(float64(len(h.rooms)))
	slog.Debug("Connection removed", "conn_id", c.id.String(), "total_connections", len(h.connections))
}

func (h *Hub) handlePublish(cmd publishCmd) {
	var slow []*Connection
	for _, room := range cmd.rooms {
		for c := range h.rooms[room] {
			if c.writer.tryEnqueue(cmd.data) {
				metrics.HubDeliveriesTotal.WithLabelValues(string(cmd.kind)).Inc()
			} else {
				slow = append(slow, c)
			}
		}
	}

	for _, c := range slow {
		slog.Warn("Disconnecting slow client", "conn_id", c.id.String())
		metrics.HubSlowClientsEvictedTotal.Inc()
		h.handleDisconnect(c)
	}
}

func (h *Hub) roomMembers(room string) []uuid.UUID {
	members := h.rooms[room]
	ids := make([]uuid.UUID, 0, len(members))
	for c := range members {
		ids = append(ids, c.id)
	}
	return ids
}

func (h *Hub) connectionRooms(c *Connection) []string {
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

func (h *Hub) handleStop() {
	slog.Info("Hub shutting down", "rooms", len(h.rooms), "connections", len(h.connections))
	h.closeAllConnections("server shutting down")
}

func (h *Hub) closeAllConnections(reason string) {
	for c := range h.connections {
		c.writer.stopGraceful(reason)
		delete(h.connections, c)
	}
	h.rooms = make(map[string]map[*Connection]struct{})
	metrics.HubActiveConnections.Set(0)
	metrics.HubActiveRooms.Set(0)
}

// enqueueControl sends a control message (connected/subscribed ack) through
// the connection's normal send queue so it stays ordered with event delivery.
func (h *Hub) enqueueControl(c *Connection, kind event.Kind, payload map[string]any) {
	msg := struct {
		Kind      event.Kind     `json:"kind"`
		Timestamp time.Time      `json:"timestamp"`
		Payload   map[string]any `json:"payload"`
	}{Kind: kind, Timestamp: h.clock.Now().UTC(), Payload: payload}

	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal control message", "kind", kind, "error", err)
		return
	}
	if !c.writer.tryEnqueue(data) {
		slog.Warn("Disconnecting slow client", "conn_id", c.id.String())
		metrics.HubSlowClientsEvictedTotal.Inc()
		h.handleDisconnect(c)
	}
}
