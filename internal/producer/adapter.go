package producer

import (
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/Burch-Group/labsync/internal/event"
)

// Publisher accepts events for fan-out. *hub.Hub implements it; so does
// RedisPublisher for cross-process producers.
type Publisher interface {
	Publish(e event.Event)
}

// Adapter translates engine lifecycle calls into broadcast events. It is
// one-way: calls never fail and never block on slow consumers.
type Adapter struct {
	publisher   Publisher
	clock       clockwork.Clock
	sampleEvery int

	mu     sync.Mutex
	counts map[string]int
}

// NewAdapter creates an adapter. sampleEvery controls data-point thinning:
// every Nth point per scan/measurement is broadcast (1 broadcasts all,
// values below 1 are treated as 1).
func NewAdapter(publisher Publisher, clock clockwork.Clock, sampleEvery int) *Adapter {
	if sampleEvery < 1 {
		sampleEvery = 1
	}
	return &Adapter{
		publisher:   publisher,
		clock:       clock,
		sampleEvery: sampleEvery,
		counts:      make(map[string]int),
	}
}

func (a *Adapter) publish(p event.Payload) {
	a.publisher.Publish(event.New(p, a.clock.Now()))
}

// ScanStatus reports a scan lifecycle transition or progress update.
func (a *Adapter) ScanStatus(scanID string, status event.Status, progress float64, message string) {
	a.publish(event.ScanStatus{ScanID: scanID, Status: status, Progress: progress, Message: message})
}

// QueueStatus reports queue execution state.
func (a *Adapter) QueueStatus(queueID string, status event.Status, currentScanID string, completed, total int) {
	a.publish(event.QueueStatus{
		QueueID:        queueID,
		Status:         status,
		CurrentScanID:  currentScanID,
		CompletedCount: completed,
		TotalCount:     total,
	})
}

// DataPoint reports one measurement row. Points are counted per
// scan/measurement pair and only every Nth is broadcast; the sequence index
// always reflects the true count so consumers can detect thinning.
func (a *Adapter) DataPoint(scanID, measurementName string, values map[string]float64) {
	a.mu.Lock()
	key := scanID + "\x00" + measurementName
	a.counts[key]++
	seq := a.counts[key]
	a.mu.Unlock()

	if seq%a.sampleEvery != 0 {
		return
	}
	a.publish(event.DataPoint{
		ScanID:          scanID,
		MeasurementName: measurementName,
		Values:          values,
		SequenceIndex:   seq,
	})
}

// ScanFinished clears the data-point counters for a scan.
func (a *Adapter) ScanFinished(scanID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	prefix := scanID + "\x00"
	for key := range a.counts {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(a.counts, key)
		}
	}
}

// InstrumentStatus reports instrument connection state.
func (a *Adapter) InstrumentStatus(instrumentID string, status event.Status, errMessage string) {
	a.publish(event.InstrumentStatus{InstrumentID: instrumentID, Status: status, Error: errMessage})
}

// InstrumentPosition reports current axis positions.
func (a *Adapter) InstrumentPosition(instrumentID string, position, target map[string]float64, isMoving bool) {
	a.publish(event.InstrumentPosition{
		InstrumentID: instrumentID,
		Position:     position,
		Target:       target,
		IsMoving:     isMoving,
	})
}

// LogEntry reports one execution log line scoped to its owning room.
func (a *Adapter) LogEntry(owningRoomID, level, message string) {
	a.publish(event.LogEntry{
		OwningRoomID: owningRoomID,
		Level:        level,
		Message:      message,
		Timestamp:    a.clock.Now().UTC(),
	})
}
