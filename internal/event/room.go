package event

import "strings"

// Fixed room namespace. Rooms are created lazily on first subscribe and
// garbage-collected when their membership becomes empty.
const (
	RoomGlobal      = "global"
	RoomInstruments = "instruments"

	scanRoomPrefix       = "scan:"
	queueRoomPrefix      = "queue:"
	instrumentRoomPrefix = "instrument:"
)

// ScanRoom returns the room carrying events for a single scan.
func ScanRoom(scanID string) string { return scanRoomPrefix + scanID }

// QueueRoom returns the room carrying events for a single queue.
func QueueRoom(queueID string) string { return queueRoomPrefix + queueID }

// InstrumentRoom returns the room carrying events for a single instrument.
func InstrumentRoom(instrumentID string) string { return instrumentRoomPrefix + instrumentID }

// ValidRoom reports whether name falls inside the fixed room namespace.
// The server rejects subscribe requests for anything else.
func ValidRoom(name string) bool {
	switch name {
	case RoomGlobal, RoomInstruments:
		return true
	}
	for _, prefix := range []string{scanRoomPrefix, queueRoomPrefix, instrumentRoomPrefix} {
		if id, ok := strings.CutPrefix(name, prefix); ok {
			return id != ""
		}
	}
	return false
}
