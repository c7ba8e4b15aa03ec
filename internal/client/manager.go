package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/Burch-Group/labsync/internal/event"
)

// Status is the connection state exposed to UI indicators.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

const (
	handshakeTimeout   = 10 * time.Second
	writeTimeout       = 5 * time.Second
	serverPingDeadline = 75 * time.Second
)

// Handler receives decoded events for one kind. Handlers run on the manager's
// read goroutine; a panicking handler is recovered and logged without
// affecting other handlers or later events.
type Handler func(e event.Event)

type controlMessage struct {
	Action string `json:"action"`
	Room   string `json:"room"`
}

// Manager is the per-session sync client. Construct with New, wire handlers,
// then Start. One instance per process, passed by reference to consumers.
type Manager struct {
	url     string
	dialer  *websocket.Dialer
	clock   clockwork.Clock
	backoff Policy

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	started bool

	writeMu sync.Mutex // serializes control frames to the socket

	mu            sync.Mutex
	conn          *websocket.Conn
	status        Status
	subscriptions map[string]struct{}
	handlers      map[event.Kind][]Handler
	statusSinks   []func(Status)
	errorSinks    []func(error)
}

// New creates a manager for the given ws:// or wss:// URL. It does not
// connect until Start is called.
func New(url string, clock clockwork.Clock, backoff Policy) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		url:           url,
		dialer:        &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		clock:         clock,
		backoff:       backoff,
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
		status:        StatusDisconnected,
		subscriptions: make(map[string]struct{}),
		handlers:      make(map[event.Kind][]Handler),
	}
}

// On registers a handler for an event kind. Handlers fire in registration
// order.
func (m *Manager) On(kind event.Kind, fn Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[kind] = append(m.handlers[kind], fn)
}

// OnStatus registers a sink for connection-status changes.
func (m *Manager) OnStatus(fn func(Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusSinks = append(m.statusSinks, fn)
}

// OnError registers a sink for transport-level failures. Failures feed the
// reconnect loop; they never terminate the process.
func (m *Manager) OnError(fn func(error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorSinks = append(m.errorSinks, fn)
}

// Status returns the current connection status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Subscribe adds room to the tracked subscription set and applies it
// immediately when connected. Idempotent.
func (m *Manager) Subscribe(room string) {
	m.mu.Lock()
	m.subscriptions[room] = struct{}{}
	conn := m.connIfConnected()
	m.mu.Unlock()

	if conn != nil {
		m.sendControl(conn, "subscribe", room)
	}
}

// Unsubscribe removes room from the tracked set and applies it immediately
// when connected. An unsubscribe issued while offline takes effect on
// reconnect simply by not being resubscribed.
func (m *Manager) Unsubscribe(room string) {
	m.mu.Lock()
	delete(m.subscriptions, room)
	conn := m.connIfConnected()
	m.mu.Unlock()

	if conn != nil {
		m.sendControl(conn, "unsubscribe", room)
	}
}

// Subscriptions returns a snapshot of the tracked subscription set.
func (m *Manager) Subscriptions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	rooms := make([]string, 0, len(m.subscriptions))
	for room := range m.subscriptions {
		rooms = append(rooms, room)
	}
	return rooms
}

// Start launches the connect/reconnect loop.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	go m.run()
}

// Close tears the manager down. After Close returns no further handler or
// sink is invoked.
func (m *Manager) Close() {
	m.cancel()

	m.mu.Lock()
	started := m.started
	if m.conn != nil {
		_ = m.conn.Close()
	}
	m.mu.Unlock()

	if started {
		<-m.done
	}
	m.setStatus(StatusDisconnected)
}

// connIfConnected must be called with mu held.
func (m *Manager) connIfConnected() *websocket.Conn {
	if m.status == StatusConnected {
		return m.conn
	}
	return nil
}

func (m *Manager) run() {
	defer close(m.done)

	attempt := 0
	reconnecting := false

	for {
		if m.ctx.Err() != nil {
			return
		}

		if reconnecting {
			m.setStatus(StatusReconnecting)
		} else {
			m.setStatus(StatusConnecting)
		}

		conn, _, err := m.dialer.DialContext(m.ctx, m.url, nil)
		if err != nil {
			if m.ctx.Err() != nil {
				return
			}
			m.reportError(fmt.Errorf("dial %s: %w", m.url, err))

			delay := m.backoff.Delay(attempt)
			attempt++
			if m.backoff.MaxAttempts > 0 && attempt >= m.backoff.MaxAttempts {
				slog.Warn("Reconnect attempts exhausted", "attempts", attempt)
				m.setStatus(StatusDisconnected)
				return
			}
			if !m.wait(delay) {
				return
			}
			continue
		}

		attempt = 0
		m.attach(conn)
		m.setStatus(StatusConnected)
		m.resubscribeAll(conn)

		err = m.readLoop(conn)
		m.detach()
		_ = conn.Close()

		if m.ctx.Err() != nil {
			return
		}
		m.reportError(fmt.Errorf("connection lost: %w", err))
		reconnecting = true
	}
}

func (m *Manager) attach(conn *websocket.Conn) {
	conn.SetPingHandler(func(message string) error {
		_ = conn.SetReadDeadline(m.clock.Now().Add(serverPingDeadline))
		m.writeMu.Lock()
		defer m.writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(message), m.clock.Now().Add(writeTimeout))
	})
	_ = conn.SetReadDeadline(m.clock.Now().Add(serverPingDeadline))

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
}

func (m *Manager) detach() {
	m.mu.Lock()
	m.conn = nil
	m.mu.Unlock()
}

// resubscribeAll re-issues every tracked subscription. This runs after each
// successful connect and is the only repair mechanism for server-side
// membership.
func (m *Manager) resubscribeAll(conn *websocket.Conn) {
	for _, room := range m.Subscriptions() {
		m.sendControl(conn, "subscribe", room)
	}
}

func (m *Manager) sendControl(conn *websocket.Conn, action, room string) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	_ = conn.SetWriteDeadline(m.clock.Now().Add(writeTimeout))
	if err := conn.WriteJSON(controlMessage{Action: action, Room: room}); err != nil {
		// The read loop will observe the broken connection and reconnect;
		// the subscription set is repaired then.
		slog.Debug("Control send failed", "action", action, "room", room, "error", err)
	}
}

func (m *Manager) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(m.clock.Now().Add(serverPingDeadline))
		m.dispatch(data)
	}
}

func (m *Manager) dispatch(data []byte) {
	var head struct {
		Kind event.Kind `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		slog.Debug("Ignoring malformed frame", "error", err)
		return
	}

	switch head.Kind {
	case event.KindConnected, event.KindSubscribed:
		slog.Debug("Server control message", "kind", head.Kind)
		return
	}

	e, err := event.Decode(data)
	if err != nil {
		slog.Debug("Ignoring undecodable event", "error", err)
		return
	}

	m.mu.Lock()
	handlers := make([]Handler, len(m.handlers[e.Kind]))
	copy(handlers, m.handlers[e.Kind])
	m.mu.Unlock()

	for _, fn := range handlers {
		m.safeInvoke(fn, e)
	}
}

// safeInvoke isolates handler faults: a panic in one callback must not stop
// the remaining callbacks or future events.
func (m *Manager) safeInvoke(fn Handler, e event.Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Event handler panicked", "kind", e.Kind, "panic", r)
		}
	}()
	fn(e)
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	if m.status == s {
		m.mu.Unlock()
		return
	}
	m.status = s
	sinks := make([]func(Status), len(m.statusSinks))
	copy(sinks, m.statusSinks)
	m.mu.Unlock()

	for _, fn := range sinks {
		fn(s)
	}
}

func (m *Manager) reportError(err error) {
	m.mu.Lock()
	sinks := make([]func(error), len(m.errorSinks))
	copy(sinks, m.errorSinks)
	m.mu.Unlock()

	slog.Warn("Transport failure", "error", err)
	for _, fn := range sinks {
		fn(err)
	}
}

// wait blocks for d or until the manager is closed; it returns false when
// closed so the run loop can exit without leaking a timer.
func (m *Manager) wait(d time.Duration) bool {
	timer := m.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.Chan():
		return true
	case <-m.ctx.Done():
		return false
	}
}
