package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Burch-Group/labsync/internal/event"
)

// wireMessage mirrors the envelope as clients see it on the wire, including
// control messages outside the decodable event enum.
type wireMessage struct {
	Kind    event.Kind      `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// testHub sets up a Hub behind a test HTTP server. The dial function returns
// the client-side socket plus the server-side connection handle, with the
// connected greeting already consumed.
func testHub(t *testing.T, queueSize int) (*Hub, func() (*ws.Conn, *Connection)) {
	t.Helper()

	hub := NewHub(clockwork.NewRealClock(), queueSize)
	t.Cleanup(func() { hub.Stop() })

	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	handles := make(chan *Connection, 16)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		c, err := hub.Register(conn)
		if err != nil {
			t.Errorf("register failed: %v", err)
			return
		}
		handles <- c

		// Read loop to detect disconnects
		go func() {
			defer hub.Disconnect(c)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					break
				}
			}
		}()
	}))
	t.Cleanup(func() { server.Close() })

	dial := func() (*ws.Conn, *Connection) {
		t.Helper()
		url := "ws" + strings.TrimPrefix(server.URL, "http")
		conn, _, err := ws.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })

		c := <-handles

		msg := readWire(t, conn)
		require.Equal(t, event.KindConnected, msg.Kind)
		return conn, c
	}

	return hub, dial
}

func readWire(t *testing.T, conn *ws.Conn) wireMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg wireMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func readEvent(t *testing.T, conn *ws.Conn) event.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	e, err := event.Decode(data)
	require.NoError(t, err)
	return e
}

// subscribe joins the room and consumes the subscribed ack.
func subscribe(t *testing.T, h *Hub, conn *ws.Conn, c *Connection, room string) {
	t.Helper()
	h.Subscribe(c, room)

	msg := readWire(t, conn)
	require.Equal(t, event.KindSubscribed, msg.Kind)

	var payload struct {
		Room string `json:"room"`
	}
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	require.Equal(t, room, payload.Room)
}

func expectNoMessage(t *testing.T, conn *ws.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "expected no message within the deadline")
}

func waitForMembers(h *Hub, room string, expected int) bool {
	for i := 0; i < 200; i++ {
		if len(h.RoomMembers(room)) == expected {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

func TestHub_SubscribeAndReceive(t *testing.T) {
	hub, dial := testHub(t, 0)
	conn, c := dial()

	subscribe(t, hub, conn, c, event.ScanRoom("42"))

	hub.Publish(event.New(event.ScanStatus{ScanID: "42", Status: event.StatusRunning, Progress: 0.5}, time.Now()))

	e := readEvent(t, conn)
	require.Equal(t, event.KindScanStatus, e.Kind)
	p, ok := e.Payload.(event.ScanStatus)
	require.True(t, ok)
	assert.Equal(t, "42", p.ScanID)
	assert.Equal(t, event.StatusRunning, p.Status)
	assert.Equal(t, 0.5, p.Progress)
}

func TestHub_NonMemberDoesNotReceive(t *testing.T) {
	hub, dial := testHub(t, 0)

	member, c1 := dial()
	other, c2 := dial()

	subscribe(t, hub, member, c1, event.ScanRoom("1"))
	subscribe(t, hub, other, c2, event.ScanRoom("2"))

	hub.Publish(event.New(event.DataPoint{ScanID: "1", MeasurementName: "sweep", Values: map[string]float64{"x": 1}, SequenceIndex: 1}, time.Now()))

	e := readEvent(t, member)
	assert.Equal(t, event.KindDataPoint, e.Kind)

	expectNoMessage(t, other)
}

func TestHub_FanOutToAllMembers(t *testing.T) {
	hub, dial := testHub(t, 0)

	const clients = 5
	conns := make([]*ws.Conn, 0, clients)
	for i := 0; i < clients; i++ {
		conn, c := dial()
		subscribe(t, hub, conn, c, event.RoomGlobal)
		conns = append(conns, conn)
	}

	hub.Publish(event.New(event.ScanStatus{ScanID: "7", Status: event.StatusCompleted, Progress: 1}, time.Now()))

	for _, conn := range conns {
		e := readEvent(t, conn)
		require.Equal(t, event.KindScanStatus, e.Kind)
		p := e.Payload.(event.ScanStatus)
		assert.Equal(t, "7", p.ScanID)
	}
}

func TestHub_SubscribeIdempotent(t *testing.T) {
	hub, dial := testHub(t, 0)
	conn, c := dial()

	room := event.ScanRoom("9")
	subscribe(t, hub, conn, c, room)
	subscribe(t, hub, conn, c, room)

	require.Len(t, hub.RoomMembers(room), 1)

	hub.Publish(event.New(event.DataPoint{ScanID: "9", MeasurementName: "sweep", Values: map[string]float64{"x": 1}, SequenceIndex: 1}, time.Now()))

	e := readEvent(t, conn)
	assert.Equal(t, event.KindDataPoint, e.Kind)

	// Exactly one delivery despite the double subscribe
	expectNoMessage(t, conn)
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	hub, dial := testHub(t, 0)
	conn, c := dial()

	room := event.ScanRoom("3")
	subscribe(t, hub, conn, c, room)

	hub.Unsubscribe(c, room)
	require.True(t, waitForMembers(hub, room, 0))

	hub.Publish(event.New(event.DataPoint{ScanID: "3", MeasurementName: "sweep", Values: map[string]float64{"x": 1}, SequenceIndex: 1}, time.Now()))
	expectNoMessage(t, conn)

	// Unsubscribing a room it never joined is a no-op
	hub.Unsubscribe(c, event.ScanRoom("999"))
	assert.Equal(t, 1, hub.ConnectionCount())
}

func TestHub_PerRoomOrdering(t *testing.T) {
	hub, dial := testHub(t, 0)
	conn, c := dial()

	subscribe(t, hub, conn, c, event.ScanRoom("11"))

	const n = 20
	for i := 1; i <= n; i++ {
		hub.Publish(event.New(event.DataPoint{
			ScanID:          "11",
			MeasurementName: "sweep",
			Values:          map[string]float64{"x": float64(i)},
			SequenceIndex:   i,
		}, time.Now()))
	}

	for i := 1; i <= n; i++ {
		e := readEvent(t, conn)
		p, ok := e.Payload.(event.DataPoint)
		require.True(t, ok)
		require.Equal(t, i, p.SequenceIndex, "events must arrive in publish order")
	}
}

func TestHub_MultiRoomDelivery(t *testing.T) {
	hub, dial := testHub(t, 0)

	scanConn, c1 := dial()
	globalConn, c2 := dial()

	subscribe(t, hub, scanConn, c1, event.ScanRoom("5"))
	subscribe(t, hub, globalConn, c2, event.RoomGlobal)

	hub.Publish(event.New(event.ScanStatus{ScanID: "5", Status: event.StatusRunning}, time.Now()))

	for _, conn := range []*ws.Conn{scanConn, globalConn} {
		e := readEvent(t, conn)
		assert.Equal(t, event.KindScanStatus, e.Kind)
	}
}

func TestHub_MemberOfBothRoomsReceivesTwice(t *testing.T) {
	hub, dial := testHub(t, 0)
	conn, c := dial()

	subscribe(t, hub, conn, c, event.ScanRoom("6"))
	subscribe(t, hub, conn, c, event.RoomGlobal)

	hub.Publish(event.New(event.ScanStatus{ScanID: "6", Status: event.StatusRunning}, time.Now()))

	first := readEvent(t, conn)
	second := readEvent(t, conn)
	assert.Equal(t, event.KindScanStatus, first.Kind)
	assert.Equal(t, event.KindScanStatus, second.Kind)
}

func TestHub_DisconnectRemovesFromAllRooms(t *testing.T) {
	hub, dial := testHub(t, 0)
	conn, c := dial()

	subscribe(t, hub, conn, c, event.ScanRoom("1"))
	subscribe(t, hub, conn, c, event.RoomGlobal)

	hub.Disconnect(c)

	require.True(t, waitForMembers(hub, event.ScanRoom("1"), 0))
	require.True(t, waitForMembers(hub, event.RoomGlobal, 0))
	assert.Equal(t, 0, hub.ConnectionCount())

	// Second disconnect is a no-op
	hub.Disconnect(c)
	assert.Equal(t, 0, hub.ConnectionCount())
}

func TestHub_ClientCloseTriggersCleanup(t *testing.T) {
	hub, dial := testHub(t, 0)
	conn, c := dial()

	room := event.ScanRoom("8")
	subscribe(t, hub, conn, c, room)
	require.Len(t, hub.RoomMembers(room), 1)

	conn.Close()

	require.True(t, waitForMembers(hub, room, 0))
}

func TestHub_ConnectionRooms(t *testing.T) {
	hub, dial := testHub(t, 0)
	conn, c := dial()

	subscribe(t, hub, conn, c, event.ScanRoom("1"))
	subscribe(t, hub, conn, c, event.QueueRoom("2"))

	rooms := hub.ConnectionRooms(c)
	assert.ElementsMatch(t, []string{event.ScanRoom("1"), event.QueueRoom("2")}, rooms)
}

func TestHub_SlowClientEvicted(t *testing.T) {
	hub, dial := testHub(t, 1)
	conn, c := dial()

	room := event.ScanRoom("slow")
	subscribe(t, hub, conn, c, room)

	// The client never reads. Large payloads fill the socket buffers, the
	// write blocks, the queue of one fills, and the next publish evicts.
	big := strings.Repeat("x", 64*1024)
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		hub.Publish(event.New(event.ScanStatus{ScanID: "slow", Status: event.StatusRunning, Message: big}, time.Now()))
		if len(hub.RoomMembers(room)) == 0 {
			break
		}
	}

	require.True(t, waitForMembers(hub, room, 0), "slow client should be evicted")
	_ = conn
}

func TestHub_StopSendsCloseFrame(t *testing.T) {
	hub, dial := testHub(t, 0)
	conn, _ := dial()

	hub.Stop()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()

	if closeErr, ok := err.(*ws.CloseError); ok {
		assert.Equal(t, ws.CloseNormalClosure, closeErr.Code)
		assert.Contains(t, closeErr.Text, "shutting down")
	} else {
		assert.Error(t, err, "connection should be closed")
	}
}

func TestHub_PublishAfterDisconnectDoesNotPanic(t *testing.T) {
	hub, dial := testHub(t, 0)
	conn, c := dial()

	subscribe(t, hub, conn, c, event.RoomGlobal)
	hub.Disconnect(c)
	require.True(t, waitForMembers(hub, event.RoomGlobal, 0))

	hub.Publish(event.New(event.ScanStatus{ScanID: "1", Status: event.StatusRunning}, time.Now()))
	assert.Equal(t, 0, hub.ConnectionCount())
}
