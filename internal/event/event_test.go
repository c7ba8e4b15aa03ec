package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvent_Rooms(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
		want    []string
	}{
		{
			name:    "scan status reaches scan room and global",
			payload: ScanStatus{ScanID: "42"},
			want:    []string{"scan:42", RoomGlobal},
		},
		{
			name:    "queue status reaches queue room and global",
			payload: QueueStatus{QueueID: "q1"},
			want:    []string{"queue:q1", RoomGlobal},
		},
		{
			name:    "data point stays in its scan room",
			payload: DataPoint{ScanID: "42"},
			want:    []string{"scan:42"},
		},
		{
			name:    "instrument status reaches instrument room and instruments",
			payload: InstrumentStatus{InstrumentID: "stage"},
			want:    []string{"instrument:stage", RoomInstruments},
		},
		{
			name:    "instrument position reaches instrument room and instruments",
			payload: InstrumentPosition{InstrumentID: "stage"},
			want:    []string{"instrument:stage", RoomInstruments},
		},
		{
			name:    "log entry goes to its owning room only",
			payload: LogEntry{OwningRoomID: "queue:q1"},
			want:    []string{"queue:q1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(tt.payload, time.Now())
			assert.Equal(t, tt.want, e.Rooms())
		})
	}
}

func TestEvent_MarshalDecodeRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	e := New(DataPoint{
		ScanID:          "42",
		MeasurementName: "sweep",
		Values:          map[string]float64{"x": 0.5, "signal": -1.25},
		SequenceIndex:   17,
	}, now)

	data, err := json.Marshal(e)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, KindDataPoint, got.Kind)
	assert.Equal(t, now, got.Timestamp)

	p, ok := got.Payload.(DataPoint)
	require.True(t, ok, "payload should decode to a value type")
	assert.Equal(t, "42", p.ScanID)
	assert.Equal(t, 17, p.SequenceIndex)
	assert.Equal(t, 0.5, p.Values["x"])
}

func TestDecode_UnknownKind(t *testing.T) {
	_, err := Decode([]byte(`{"kind":"bogus","timestamp":"2026-01-01T00:00:00Z","payload":{}}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestDecode_MalformedEnvelope(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"kind":"scan_status","payload":"not an object"}`))
	assert.Error(t, err)
}

func TestDecode_ControlKindsAreNotEvents(t *testing.T) {
	for _, kind := range []Kind{KindConnected, KindSubscribed} {
		_, err := Decode([]byte(`{"kind":"` + string(kind) + `","payload":{}}`))
		assert.ErrorIs(t, err, ErrUnknownKind)
	}
}

func TestValidRoom(t *testing.T) {
	valid := []string{
		RoomGlobal,
		RoomInstruments,
		ScanRoom("42"),
		QueueRoom("q1"),
		InstrumentRoom("stage"),
	}
	for _, room := range valid {
		assert.True(t, ValidRoom(room), room)
	}

	invalid := []string{
		"",
		"scan:",
		"queue:",
		"instrument:",
		"kitchen",
		"scans:42",
	}
	for _, room := range invalid {
		assert.False(t, ValidRoom(room), room)
	}
}

func TestStatus_Transitions(t *testing.T) {
	assert.True(t, StatusPending.CanTransition(StatusRunning))
	assert.True(t, StatusPending.CanTransition(StatusAborted))
	assert.False(t, StatusPending.CanTransition(StatusPaused))

	assert.True(t, StatusRunning.CanTransition(StatusPaused))
	assert.True(t, StatusRunning.CanTransition(StatusCompleted))
	assert.True(t, StatusRunning.CanTransition(StatusFailed))
	assert.False(t, StatusRunning.CanTransition(StatusPending))

	assert.True(t, StatusPaused.CanTransition(StatusRunning))
	assert.True(t, StatusPaused.CanTransition(StatusAborted))

	for _, terminal := range []Status{StatusCompleted, StatusFailed, StatusAborted} {
		assert.True(t, terminal.Terminal())
		for _, next := range []Status{StatusPending, StatusRunning, StatusPaused, StatusCompleted, StatusFailed, StatusAborted} {
			assert.False(t, terminal.CanTransition(next), "%s -> %s", terminal, next)
		}
	}
}

func TestStatus_Valid(t *testing.T) {
	assert.True(t, StatusRunning.Valid())
	assert.False(t, Status("bogus").Valid())
	assert.False(t, Status("").Valid())
}
