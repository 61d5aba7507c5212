package sim

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// A SerialEngine is an Engine that always runs events one after another.
type SerialEngine struct {
	HookableBase

	timeLock sync.RWMutex
	time     VTimeInSec

	queue EventQueue

	state   EngineState
	handled uint64
}

// NewSerialEngine creates a SerialEngine.
func NewSerialEngine() *SerialEngine {
	e := new(SerialEngine)

	e.queue = NewEventQueue()
	e.state = StateBuilt

	return e
}

// Schedule registers an event to happen in the future. Scheduling an event
// earlier than the current time is a programming error.
func (e *SerialEngine) Schedule(evt Event) {
	now := e.readNow()
	if evt.Time() < now {
		logrus.Panicf(
			"scheduling an event at %.10f, earlier than current time %.10f",
			evt.Time(), now)
	}

	e.queue.Push(evt)
}

func (e *SerialEngine) readNow() VTimeInSec {
	e.timeLock.RLock()
	t := e.time
	e.timeLock.RUnlock()

	return t
}

func (e *SerialEngine) writeNow(t VTimeInSec) {
	e.timeLock.Lock()
	e.time = t
	e.timeLock.Unlock()
}

// Step advances simulated time to the earliest pending timestamp and handles
// every event scheduled at that timestamp, in scheduling order. A handler
// error halts the engine permanently.
func (e *SerialEngine) Step() (bool, error) {
	if e.state == StateHalted {
		return false, ErrEngineHalted
	}

	if e.queue.Len() == 0 {
		return false, nil
	}

	e.state = StateStepping

	stepTime := e.queue.Peek().Time()
	e.writeNow(stepTime)

	for e.queue.Len() > 0 && e.queue.Peek().Time() == stepTime {
		evt := e.queue.Pop()

		hookCtx := HookCtx{
			Domain: e,
			Pos:    HookPosBeforeEvent,
			Item:   evt,
		}
		e.InvokeHook(hookCtx)

		err := evt.Handler().Handle(evt)
		if err != nil {
			e.state = StateHalted
			return true, fmt.Errorf("handling event at %.10f: %w",
				stepTime, err)
		}

		e.handled++

		hookCtx.Pos = HookPosAfterEvent
		e.InvokeHook(hookCtx)
	}

	return true, nil
}

// Run processes all the events scheduled in the SerialEngine until no event
// is left.
func (e *SerialEngine) Run() error {
	for {
		ran, err := e.Step()
		if err != nil {
			return err
		}

		if !ran {
			return nil
		}
	}
}

// CurrentTime returns the current time at which the engine is at.
func (e *SerialEngine) CurrentTime() VTimeInSec {
	return e.readNow()
}

// State returns the lifecycle state of the engine.
func (e *SerialEngine) State() EngineState {
	return e.state
}

// Pending returns the number of scheduled, unhandled events.
func (e *SerialEngine) Pending() int {
	return e.queue.Len()
}

// Handled returns the total number of events handled so far.
func (e *SerialEngine) Handled() uint64 {
	return e.handled
}
