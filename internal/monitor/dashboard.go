package monitor

import (
	"sync"

	"github.com/Burch-Group/labsync/internal/event"
)

// ScanSummary is the dashboard's latest known state for one scan.
type ScanSummary struct {
	ScanID   string
	Status   event.Status
	Progress float64
	Message  string
}

// QueueSummary is the dashboard's latest known state for one queue.
type QueueSummary struct {
	QueueID       string
	Status        event.Status
	CurrentScanID string
	Completed     int
	Total         int
}

// InstrumentSummary is the dashboard's latest known state for one instrument.
type InstrumentSummary struct {
	InstrumentID string
	Status       event.Status
	Error        string
	Moving       bool
}

// DashboardView is the rendering surface for the lab-wide overview page.
//
// Like ScanView, view methods run with the monitor's lock held and must be
// plain setters.
type DashboardView interface {
	UpdateScan(s ScanSummary)
	UpdateQueue(q QueueSummary)
	UpdateInstrument(i InstrumentSummary)
}

// DashboardMonitor aggregates lab-wide activity. It subscribes to the global
// and instruments rooms and keeps the latest state per entity, applying the
// same lifecycle rules as the per-entity monitors.
type DashboardMonitor struct {
	syncer Syncer
	view   DashboardView

	mu          sync.Mutex
	destroyed   bool
	scans       map[string]ScanSummary
	queues      map[string]QueueSummary
	instruments map[string]InstrumentSummary
}

func NewDashboardMonitor(syncer Syncer, view DashboardView) *DashboardMonitor {
	m := &DashboardMonitor{
		syncer:      syncer,
		view:        view,
		scans:       make(map[string]ScanSummary),
		queues:      make(map[string]QueueSummary),
		instruments: make(map[string]InstrumentSummary),
	}

	m.syncer.Subscribe(event.RoomGlobal)
	m.syncer.Subscribe(event.RoomInstruments)
	m.syncer.On(event.KindScanStatus, m.onScanStatus)
	m.syncer.On(event.KindQueueStatus, m.onQueueStatus)
	m.syncer.On(event.KindInstrumentStatus, m.onInstrumentStatus)
	m.syncer.On(event.KindInstrumentPosition, m.onInstrumentPosition)
	return m
}

// Close unsubscribes from both rooms and sets the destroyed flag.
func (m *DashboardMonitor) Close() {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	m.destroyed = true
	m.mu.Unlock()

	m.syncer.Unsubscribe(event.RoomGlobal)
	m.syncer.Unsubscribe(event.RoomInstruments)
}

// Scans returns the latest known state of every scan seen so far.
func (m *DashboardMonitor) Scans() map[string]ScanSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]ScanSummary, len(m.scans))
	for id, s := range m.scans {
		out[id] = s
	}
	return out
}

// Queues returns the latest known state of every queue seen so far.
func (m *DashboardMonitor) Queues() map[string]QueueSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]QueueSummary, len(m.queues))
	for id, q := range m.queues {
		out[id] = q
	}
	return out
}

// Instruments returns the latest known state of every instrument seen so far.
func (m *DashboardMonitor) Instruments() map[string]InstrumentSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]InstrumentSummary, len(m.instruments))
	for id, i := range m.instruments {
		out[id] = i
	}
	return out
}

func (m *DashboardMonitor) onScanStatus(e event.Event) {
	p, ok := e.Payload.(event.ScanStatus)
	if !ok || p.ScanID == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return
	}

	s, seen := m.scans[p.ScanID]
	if !seen {
		s = ScanSummary{ScanID: p.ScanID, Status: event.StatusPending}
	}
	status, apply := nextStatus(s.Status, p.Status)
	if !apply {
		return
	}
	s.Status = status
	s.Progress = clampProgress(p.Progress)
	if p.Message != "" {
		s.Message = p.Message
	}
	m.scans[p.ScanID] = s
	m.view.UpdateScan(s)
}

func (m *DashboardMonitor) onQueueStatus(e event.Event) {
	p, ok := e.Payload.(event.QueueStatus)
	if !ok || p.QueueID == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return
	}

	q, seen := m.queues[p.QueueID]
	if !seen {
		q = QueueSummary{QueueID: p.QueueID, Status: event.StatusPending}
	}
	status, apply := nextStatus(q.Status, p.Status)
	if !apply {
		return
	}
	q.Status = status
	q.CurrentScanID = p.CurrentScanID
	q.Completed = p.CompletedCount
	q.Total = p.TotalCount
	m.queues[p.QueueID] = q
	m.view.UpdateQueue(q)
}

func (m *DashboardMonitor) onInstrumentStatus(e event.Event) {
	p, ok := e.Payload.(event.InstrumentStatus)
	if !ok || p.InstrumentID == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return
	}

	i := m.instruments[p.InstrumentID]
	i.InstrumentID = p.InstrumentID
	i.Status = p.Status
	i.Error = p.Error
	m.instruments[p.InstrumentID] = i
	m.view.UpdateInstrument(i)
}

func (m *DashboardMonitor) onInstrumentPosition(e event.Event) {
	p, ok := e.Payload.(event.InstrumentPosition)
	if !ok || p.InstrumentID == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return
	}

	i := m.instruments[p.InstrumentID]
	i.InstrumentID = p.InstrumentID
	i.Moving = p.IsMoving
	m.instruments[p.InstrumentID] = i
	m.view.UpdateInstrument(i)
}
