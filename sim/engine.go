package sim

import "errors"

// ErrEngineHalted is returned when stepping an engine that has previously
// failed. A failed step is fatal and is not retried.
var ErrEngineHalted = errors.New("engine halted after a fatal step error")

// TimeTeller can be used to get the current time.
type TimeTeller interface {
	CurrentTime() VTimeInSec
}

// EventScheduler can be used to schedule future events.
type EventScheduler interface {
	Schedule(e Event)
}

// EngineState describes the lifecycle of an engine.
type EngineState int

// Engine lifecycle states. An engine only moves forward: once halted it
// cannot be stepped again.
const (
	StateBuilt EngineState = iota
	StateStepping
	StateHalted
)

func (s EngineState) String() string {
	switch s {
	case StateBuilt:
		return "built"
	case StateStepping:
		return "stepping"
	case StateHalted:
		return "halted"
	default:
		return "unknown"
	}
}

// An Engine is a unit that keeps the discrete event simulation running.
type Engine interface {
	Hookable
	TimeTeller
	EventScheduler

	// Step processes all the events scheduled at the single earliest pending
	// timestamp. It reports whether any event was handled. Calling Step with
	// no pending events is a no-op.
	Step() (bool, error)

	// Run processes events until no event is left.
	Run() error

	// State returns the lifecycle state of the engine.
	State() EngineState

	// Pending returns the number of events that are scheduled but not yet
	// handled.
	Pending() int

	// Handled returns the total number of events handled so far.
	Handled() uint64
}
