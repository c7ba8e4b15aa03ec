package monitor

import (
	"sync"

	"github.com/Burch-Group/labsync/internal/event"
)

// InstrumentView is the rendering surface for one instrument's control panel.
//
// Like ScanView, view methods run with the monitor's lock held and must be
// plain setters.
type InstrumentView interface {
	ShowStatus(status event.Status, errMsg string)
	ShowPosition(position, target map[string]float64, moving bool)
}

// InstrumentMonitor tracks one instrument's connection state and axis
// positions. It subscribes to the instrument's own room.
type InstrumentMonitor struct {
	syncer       Syncer
	view         InstrumentView
	instrumentID string
	room         string

	mu        sync.Mutex
	destroyed bool
	status    event.Status
	lastError string
	position  map[string]float64
	target    map[string]float64
	moving    bool
}

func NewInstrumentMonitor(syncer Syncer, view InstrumentView, instrumentID string) *InstrumentMonitor {
	m := &InstrumentMonitor{
		syncer:       syncer,
		view:         view,
		instrumentID: instrumentID,
		room:         event.InstrumentRoom(instrumentID),
	}

	m.syncer.Subscribe(m.room)
	m.syncer.On(event.KindInstrumentStatus, m.onStatus)
	m.syncer.On(event.KindInstrumentPosition, m.onPosition)
	return m
}

// Close unsubscribes and sets the destroyed flag, guaranteeing no callback
// effect from events still in flight.
func (m *InstrumentMonitor) Close() {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	m.destroyed = true
	m.mu.Unlock()

	m.syncer.Unsubscribe(m.room)
}

// Status returns the last reported connection status and error message.
func (m *InstrumentMonitor) Status() (status event.Status, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status, m.lastError
}

// Position returns the last reported axis positions and movement target.
func (m *InstrumentMonitor) Position() (position, target map[string]float64, moving bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position, m.target, m.moving
}

func (m *InstrumentMonitor) onStatus(e event.Event) {
	p, ok := e.Payload.(event.InstrumentStatus)
	if !ok || p.InstrumentID != m.instrumentID {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return
	}
	m.status = p.Status
	m.lastError = p.Error
	m.view.ShowStatus(p.Status, p.Error)
}

func (m *InstrumentMonitor) onPosition(e event.Event) {
	p, ok := e.Payload.(event.InstrumentPosition)
	if !ok || p.InstrumentID != m.instrumentID {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return
	}
	m.position = p.Position
	m.target = p.Target
	m.moving = p.IsMoving
	m.view.ShowPosition(p.Position, p.Target, p.IsMoving)
}
