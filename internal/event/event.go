package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies the payload type of a broadcast event.
type Kind string

const (
	KindScanStatus         Kind = "scan_status"
	KindQueueStatus        Kind = "queue_status"
	KindDataPoint          Kind = "data_point"
	KindInstrumentStatus   Kind = "instrument_status"
	KindInstrumentPosition Kind = "instrument_position"
	KindLogEntry           Kind = "log_entry"
)

// Control kinds are sent by the server outside the event enum above:
// a greeting after the handshake and an ack after each applied subscribe.
const (
	KindConnected  Kind = "connected"
	KindSubscribed Kind = "subscribed"
)

// Payload is the sealed set of event payload types.
type Payload interface {
	Kind() Kind
}

// ScanStatus reports a scan lifecycle transition or progress update.
type ScanStatus struct {
	ScanID   string  `json:"scan_id"`
	Status   Status  `json:"status"`
	Progress float64 `json:"progress"`
	Message  string  `json:"message,omitempty"`
}

func (ScanStatus) Kind() Kind { return KindScanStatus }

// QueueStatus reports queue execution state.
type QueueStatus struct {
	QueueID        string `json:"queue_id"`
	Status         Status `json:"status"`
	CurrentScanID  string `json:"current_scan_id,omitempty"`
	CompletedCount int    `json:"completed_count"`
	TotalCount     int    `json:"total_count"`
}

func (QueueStatus) Kind() Kind { return KindQueueStatus }

// DataPoint carries one measurement row for live chart rendering.
type DataPoint struct {
	ScanID          string             `json:"scan_id"`
	MeasurementName string             `json:"measurement_name"`
	Values          map[string]float64 `json:"values"`
	SequenceIndex   int                `json:"sequence_index"`
}

func (DataPoint) Kind() Kind { return KindDataPoint }

// InstrumentStatus reports instrument connection state.
type InstrumentStatus struct {
	InstrumentID string `json:"instrument_id"`
	Status       Status `json:"status"`
	Error        string `json:"error,omitempty"`
}

func (InstrumentStatus) Kind() Kind { return KindInstrumentStatus }

// InstrumentPosition reports current axis positions for live tracking.
type InstrumentPosition struct {
	InstrumentID string             `json:"instrument_id"`
	Position     map[string]float64 `json:"position"`
	Target       map[string]float64 `json:"target,omitempty"`
	IsMoving     bool               `json:"is_moving"`
}

func (InstrumentPosition) Kind() Kind { return KindInstrumentPosition }

// LogEntry carries one execution log line scoped to the room that owns it.
type LogEntry struct {
	OwningRoomID string    `json:"owning_room_id"`
	Level        string    `json:"level"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
}

func (LogEntry) Kind() Kind { return KindLogEntry }

// Event is a transient broadcast envelope. Events are constructed by a
// producer, fanned out once, and discarded.
type Event struct {
	Kind      Kind
	Timestamp time.Time
	Payload   Payload
}

// New wraps a payload in an envelope stamped with the given time.
func New(p Payload, now time.Time) Event {
	return Event{Kind: p.Kind(), Timestamp: now.UTC(), Payload: p}
}

// Rooms returns the rooms this event is published to. The mapping is fixed
// per kind; callers never choose targets themselves.
func (e Event) Rooms() []string {
	switch p := e.Payload.(type) {
	case ScanStatus:
		return []string{ScanRoom(p.ScanID), RoomGlobal}
	case QueueStatus:
		return []string{QueueRoom(p.QueueID), RoomGlobal}
	case DataPoint:
		return []string{ScanRoom(p.ScanID)}
	case InstrumentStatus:
		return []string{InstrumentRoom(p.InstrumentID), RoomInstruments}
	case InstrumentPosition:
		return []string{InstrumentRoom(p.InstrumentID), RoomInstruments}
	case LogEntry:
		return []string{p.OwningRoomID}
	default:
		return nil
	}
}

type envelope struct {
	Kind      Kind            `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// MarshalJSON encodes the envelope with the kind-specific payload inline.
func (e Event) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", e.Kind, err)
	}
	return json.Marshal(envelope{Kind: e.Kind, Timestamp: e.Timestamp, Payload: payload})
}

// ErrUnknownKind is returned by Decode for kinds outside the closed enum.
var ErrUnknownKind = fmt.Errorf("unknown event kind")

// Decode parses a wire envelope into a typed event.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, fmt.Errorf("decode envelope: %w", err)
	}

	var payload Payload
	switch env.Kind {
	case KindScanStatus:
		payload = &ScanStatus{}
	case KindQueueStatus:
		payload = &QueueStatus{}
	case KindDataPoint:
		payload = &DataPoint{}
	case KindInstrumentStatus:
		payload = &InstrumentStatus{}
	case KindInstrumentPosition:
		payload = &InstrumentPosition{}
	case KindLogEntry:
		payload = &LogEntry{}
	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}

	if err := json.Unmarshal(env.Payload, payload); err != nil {
		return Event{}, fmt.Errorf("decode %s payload: %w", env.Kind, err)
	}

	return Event{Kind: env.Kind, Timestamp: env.Timestamp, Payload: deref(payload)}, nil
}

// deref converts the pointer used for unmarshalling back to the value type so
// consumers can type-switch on values.
func deref(p Payload) Payload {
	switch v := p.(type) {
	case *ScanStatus:
		return *v
	case *QueueStatus:
		return *v
	case *DataPoint:
		return *v
	case *InstrumentStatus:
		return *v
	case *InstrumentPosition:
		return *v
	case *LogEntry:
		return *v
	default:
		return p
	}
}
