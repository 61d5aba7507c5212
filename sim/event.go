package sim

// VTimeInSec defines the time in the simulated space in the unit of second.
type VTimeInSec float64

// Nanos converts a simulated time to integer nanoseconds.
func (t VTimeInSec) Nanos() uint64 {
	if t < 0 {
		return 0
	}

	return uint64(float64(t) * 1e9)
}

// An Event is something going to happen in the future.
type Event interface {
	// Time returns the time that the event should happen.
	Time() VTimeInSec

	// Handler returns the handler that should handle the event.
	Handler() Handler
}

// A Handler defines a domain for the events. An event can only be scheduled
// by its handler and can only directly modify that handler.
type Handler interface {
	Handle(e Event) error
}

// EventBase provides the basic fields and getters for other events.
type EventBase struct {
	time    VTimeInSec
	handler Handler
}

// MakeEventBase creates a new EventBase.
func MakeEventBase(t VTimeInSec, handler Handler) EventBase {
	return EventBase{
		time:    t,
		handler: handler,
	}
}

// Time returns the time that the event is going to happen.
func (e EventBase) Time() VTimeInSec {
	return e.time
}

// Handler returns the handler to handle the event.
func (e EventBase) Handler() Handler {
	return e.handler
}
