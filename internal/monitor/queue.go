package monitor

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Burch-Group/labsync/internal/event"
)

const defaultLogCapacity = 500

// QueueView is the rendering surface for one queue page.
//
// Like ScanView, view methods run with the monitor's lock held and must be
// plain setters.
type QueueView interface {
	ShowStatus(status event.Status)
	ShowProgress(completed, total int)
	ShowCurrentScan(scanID string)
	AppendLog(entry event.LogEntry)
	ShowElapsed(elapsed time.Duration)
}

// QueueMonitor tracks one scan queue: lifecycle status, completion counts,
// the currently executing scan, and a capped ring of log lines.
type QueueMonitor struct {
	syncer  Syncer
	view    QueueView
	queueID string
	room    string

	mu        sync.Mutex
	destroyed bool
	status    event.Status
	completed int
	total     int
	current   string

	logs  []event.LogEntry
	next  int
	full  bool
	watch *Stopwatch
}

func NewQueueMonitor(syncer Syncer, view QueueView, clock clockwork.Clock, queueID string) *QueueMonitor {
	m := &QueueMonitor{
		syncer:  syncer,
		view:    view,
		queueID: queueID,
		room:    event.QueueRoom(queueID),
		status:  event.StatusPending,
		logs:    make([]event.LogEntry, defaultLogCapacity),
		watch:   NewStopwatch(clock),
	}

	m.syncer.Subscribe(m.room)
	m.syncer.On(event.KindQueueStatus, m.onQueueStatus)
	m.syncer.On(event.KindLogEntry, m.onLogEntry)
	return m
}

// Close unsubscribes and sets the destroyed flag, guaranteeing no callback
// effect from events still in flight.
func (m *QueueMonitor) Close() {
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
func (m *QueueMonitor) Status() event.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Progress returns completed and total scan counts.
func (m *QueueMonitor) Progress() (completed, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completed, m.total
}

// CurrentScan returns the id of the scan the queue is executing, or the
// empty string when idle.
func (m *QueueMonitor) CurrentScan() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Elapsed returns the queue's accumulated run time.
func (m *QueueMonitor) Elapsed() time.Duration {
	return m.watch.Elapsed()
}

// Logs returns buffered log entries, oldest first.
func (m *QueueMonitor) Logs() []event.LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.full {
		out := make([]event.LogEntry, m.next)
		copy(out, m.logs[:m.next])
		return out
	}
	out := make([]event.LogEntry, 0, len(m.logs))
	out = append(out, m.logs[m.next:]...)
	out = append(out, m.logs[:m.next]...)
	return out
}

func (m *QueueMonitor) onQueueStatus(e event.Event) {
	p, ok := e.Payload.(event.QueueStatus)
	if !ok || p.QueueID != m.queueID {
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
	m.completed = p.CompletedCount
	m.total = p.TotalCount
	m.current = p.CurrentScanID

	if status == event.StatusRunning {
		m.watch.Start()
	}
	if status.Terminal() {
		m.watch.Stop()
	}

	m.view.ShowStatus(status)
	m.view.ShowProgress(m.completed, m.total)
	m.view.ShowCurrentScan(m.current)
	if status.Terminal() {
		m.view.ShowElapsed(m.watch.Elapsed())
	}
}

func (m *QueueMonitor) onLogEntry(e event.Event) {
	p, ok := e.Payload.(event.LogEntry)
	if !ok || p.OwningRoomID != m.room {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return
	}

	m.logs[m.next] = p
	m.next++
	if m.next == len(m.logs) {
		m.next = 0
		m.full = true
	}
	m.view.AppendLog(p)
}
