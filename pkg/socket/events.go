package socket

import "github.com/irctrakz/sockmgr/pkg/core"

// EventKind identifies what an Event reports.
type EventKind int

const (
	// EventStatus reports a state transition.
	EventStatus EventKind = iota
	// EventData reports packets added to the RX queue.
	EventData
)

func (k EventKind) String() string {
	switch k {
	case EventStatus:
		return "status"
	case EventData:
		return "data"
	}
	return "unknown"
}

// Event is passed to a handle's event callback.
type Event struct {
	Kind EventKind
	// Status is the new status for EventStatus and the current one for
	// EventData.
	Status core.Status
	// Prev is the status left behind, EventStatus only.
	Prev core.Status
	// Packets is the number of packets queued, EventData only.
	Packets int
}

// EventFunc receives handle events. It runs on the registry's dispatcher
// goroutine and must not block for long. It may call Disconnect or Destroy
// on any handle, but must not call Registry.Close, which waits for the
// dispatcher goroutine itself, or WaitAll, which can deadlock on a full queue.
type EventFunc func(h *Handle, ev Event)

// ErrorFunc receives the failure that moved a handle to EVENTERROR. It is
// called at most once per handle, never after Destroy, and is subject to the
// same restrictions as EventFunc.
type ErrorFunc func(h *Handle, err *SocketError)
