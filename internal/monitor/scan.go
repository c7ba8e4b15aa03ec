package monitor

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Burch-Group/labsync/internal/event"
)

// ScanView is the rendering surface for one scan page: a status badge, a
// progress bar, a message line, a live chart, and an elapsed-time display.
//
// View methods are invoked with the monitor's lock held so that Close is
// synchronous with respect to rendering: after Close returns, no view method
// runs. Implementations must be plain setters and must not call back into
// the monitor.
type ScanView interface {
	ShowStatus(status event.Status)
	ShowProgress(progress float64)
	ShowMessage(message string)
	AppendPoint(measurement string, values map[string]float64)
	ShowElapsed(elapsed time.Duration)
}

// ScanMonitor tracks one scan. It subscribes to the scan's room and keeps a
// capped buffer of recent data points for chart rendering.
type ScanMonitor struct {
	syncer Syncer
	view   ScanView
	scanID string
	room   string

	mu        sync.Mutex
	destroyed bool
	status    event.Status
	progress  float64

	points *PointBuffer
	watch  *Stopwatch
}

func NewScanMonitor(syncer Syncer, view ScanView, clock clockwork.Clock, scanID string) *ScanMonitor {
	m := &ScanMonitor{
		syncer: syncer,
		view:   view,
		scanID: scanID,
		room:   event.ScanRoom(scanID),
		status: event.StatusPending,
		points: NewPointBuffer(0),
		watch:  NewStopwatch(clock),
	}

	m.syncer.Subscribe(m.room)
	m.syncer.On(event.KindScanStatus, m.onScanStatus)
	m.syncer.On(event.KindDataPoint, m.onDataPoint)
	return m
}

// Close unsubscribes and sets the destroyed flag, guaranteeing no callback
// effect from events still in flight.
func (m *ScanMonitor) Close() {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	m.destroyed = true
	m.watch.Stop()
	m.mu.Unlock()

	m.syncer.Unsubscribe(m.room)
}

// Status returns the last applied lifecycle status.
func (m *ScanMonitor) Status() event.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Progress returns the last reported progress in [0, 1].
func (m *ScanMonitor) Progress() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progress
}

// Elapsed returns the scan's accumulated run time.
func (m *ScanMonitor) Elapsed() time.Duration {
	return m.watch.Elapsed()
}

// Points returns buffered data points, oldest first.
func (m *ScanMonitor) Points() []Point {
	return m.points.Points()
}

func (m *ScanMonitor) onScanStatus(e event.Event) {
	p, ok := e.Payload.(event.ScanStatus)
	if !ok || p.ScanID != m.scanID {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return
	}

	status, apply := nextStatus(m.status, p.Status)
	if !apply {
		return
	}
	m.status = status
	m.progress = clampProgress(p.Progress)

	if status == event.StatusRunning {
		m.watch.Start()
	}
	if status.Terminal() {
		m.watch.Stop()
	}

	m.view.ShowStatus(status)
	m.view.ShowProgress(m.progress)
	if p.Message != "" {
		m.view.ShowMessage(p.Message)
	}
	if status.Terminal() {
		m.view.ShowElapsed(m.watch.Elapsed())
	}
}

func (m *ScanMonitor) onDataPoint(e event.Event) {
	p, ok := e.Payload.(event.DataPoint)
	if !ok || p.ScanID != m.scanID || p.Values == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return
	}
	m.points.Append(Point{Measurement: p.MeasurementName, Values: p.Values, Sequence: p.SequenceIndex})
	m.view.AppendPoint(p.MeasurementName, p.Values)
}

func clampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
