package core

import "time"

// EventType names the outcome an Event reports.
type EventType string

const (
	EventWrite     EventType = "write"
	EventRestore   EventType = "restore"
	EventConflict  EventType = "conflict"
	EventInvalid   EventType = "invalid"
	EventForbidden EventType = "forbidden"
	EventNotFound  EventType = "not_found"
	EventPrune     EventType = "prune"
)

// Op names the engine operation an Event came from.
type Op string

const (
	OpPatch   Op = "patch"
	OpRestore Op = "restore"
	OpPrune   Op = "prune"
)

// Event describes the outcome of one engine operation.
type Event struct {
	Op           Op
	Type         EventType
	SiteID       string
	Caller       string
	Version      int64  // live version after the operation
	CheckpointID string // checkpoint created (write) or restored (restore)
	Pruned       int
	Duration     time.Duration // time spent holding the document lock
	Timestamp    time.Time
}

// Observer receives events after the document lock is released.
// Implementations must not block.
type Observer interface {
	Observe(ev Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ev Event)

// Observe calls f(ev).
func (f ObserverFunc) Observe(ev Event) {
	f(ev)
}
