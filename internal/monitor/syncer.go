package monitor

import (
	"github.com/Burch-Group/labsync/internal/client"
	"github.com/Burch-Group/labsync/internal/event"
)

// Syncer is the slice of the sync manager monitors depend on.
// *client.Manager satisfies it.
type Syncer interface {
	Subscribe(room string)
	Unsubscribe(room string)
	On(kind event.Kind, fn client.Handler)
}

// nextStatus applies the shared lifecycle rules to an incoming status.
// Repeats of the current status are applied (progress updates); illegal
// transitions, including anything out of a terminal state, are dropped.
func nextStatus(current, incoming event.Status) (event.Status, bool) {
	if !incoming.Valid() {
		return current, false
	}
	if incoming == current {
		return current, true
	}
	if current.CanTransition(incoming) {
		return incoming, true
	}
	return current, false
}
