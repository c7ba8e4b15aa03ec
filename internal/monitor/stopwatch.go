package monitor

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Stopwatch measures elapsed run time for an entity: started on the first
// running status, stopped on any terminal status.
type Stopwatch struct {
	clock clockwork.Clock

	mu        sync.Mutex
	startedAt time.Time
	running   bool
	elapsed   time.Duration
}

func NewStopwatch(clock clockwork.Clock) *Stopwatch {
	return &Stopwatch{clock: clock}
}

// Start begins timing. No-op if already running.
func (s *Stopwatch) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.startedAt = s.clock.Now()
}

// Stop freezes the elapsed time. No-op if not running.
func (s *Stopwatch) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.elapsed += s.clock.Since(s.startedAt)
	s.running = false
}

// Elapsed returns accumulated run time, including the current interval when
// still running.
func (s *Stopwatch) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return s.elapsed + s.clock.Since(s.startedAt)
	}
	return s.elapsed
}

// Running reports whether the stopwatch is currently timing.
func (s *Stopwatch) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
