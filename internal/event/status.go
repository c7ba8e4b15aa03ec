package event

// Status is the shared lifecycle state for scans, queues, and instruments.
//
// Transitions: pending -> running -> {completed, failed, aborted}, with
// paused reachable from and returning to running. Terminal states are
// absorbing.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusAborted   Status = "aborted"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusAborted:
		return true
	}
	return false
}

// Valid reports whether s is a member of the status enum.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusPaused, StatusCompleted, StatusFailed, StatusAborted:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal step in the
// lifecycle state machine.
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case StatusPending:
		return next == StatusRunning || next.Terminal()
	case StatusRunning:
		return next == StatusPaused || next.Terminal()
	case StatusPaused:
		return next == StatusRunning || next.Terminal()
	}
	return false
}
