package executor

import "strings"

// EventKind identifies where an Event came from.
type EventKind string

const (
	EventLog   EventKind = "log"
	EventInfo  EventKind = "info"
	EventWarn  EventKind = "warn"
	EventError EventKind = "error"
	// EventValue is an instrumentation trace of a computed value.
	EventValue EventKind = "value"
)

// Event is one piece of output produced while a submission runs. Console
// events carry their formatted arguments; value events carry the label,
// formatted value and type tag.
type Event struct {
	Kind  EventKind `json:"kind"`
	Args  []string  `json:"args,omitempty"`
	Label string    `json:"label,omitempty"`
	Type  string    `json:"type,omitempty"`
	Line  int       `json:"line,omitempty"`
}

// Text joins the event arguments the way console output prints them.
func (e Event) Text() string {
	return strings.Join(e.Args, " ")
}

// IsConsole reports whether the event came from a console call or raw
// guest output rather than instrumentation.
func (e Event) IsConsole() bool {
	return e.Kind != EventValue
}

// Handler receives events in program order. It is called from the goroutine
// driving the guest, before the emitting statement finishes, and must not
// call back into the session.
type Handler func(Event)

type guestEvent struct {
	ID int `json:"id"`
	Event
}
