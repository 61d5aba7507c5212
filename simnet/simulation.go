package simnet

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/simnetlab/simnet/device"
	"github.com/simnetlab/simnet/sim"
)

// graphEvent carries one device event toward its mailbox.
type graphEvent struct {
	sim.EventBase

	target device.Address
	ev     device.Event
}

// A Simulation is the immutable runtime form of a device graph. It is
// single-threaded: devices never execute concurrently, and one Step call is
// synchronous with respect to simulated state.
type Simulation struct {
	id      string
	engine  *sim.SerialEngine
	devices []device.Device

	log *logrus.Entry
}

// ID returns the unique identifier of this run.
func (s *Simulation) ID() string {
	return s.id
}

// Engine exposes the underlying event engine, mainly for hooks and
// monitoring.
func (s *Simulation) Engine() sim.Engine {
	return s.engine
}

// Now returns the current simulated time.
func (s *Simulation) Now() sim.VTimeInSec {
	return s.engine.CurrentTime()
}

// Device returns the device at a mailbox index.
func (s *Simulation) Device(index int) device.Device {
	return s.devices[index]
}

// ScheduleEvent enqueues ev for delivery to target at the given simulated
// time. It implements device.EventSink.
func (s *Simulation) ScheduleEvent(
	target device.Address,
	ev device.Event,
	at sim.VTimeInSec,
) {
	s.engine.Schedule(graphEvent{
		EventBase: sim.MakeEventBase(at, s),
		target:    target,
		ev:        ev,
	})
}

// Handle dispatches one graph event to its device. An event addressed to a
// mailbox outside the graph is an unrecoverable engine fault.
func (s *Simulation) Handle(e sim.Event) error {
	ge, ok := e.(graphEvent)
	if !ok {
		return fmt.Errorf("unexpected event type %T", e)
	}

	if int(ge.target) < 0 || int(ge.target) >= len(s.devices) {
		return fmt.Errorf("event addressed to unknown mailbox %d", ge.target)
	}

	ctx := device.NewContext(s.engine.CurrentTime(), ge.target, s)
	s.devices[ge.target].ProcessEvent(ge.ev, &ctx)

	return nil
}

// Step processes all events at the earliest pending timestamp. It reports
// whether anything ran. A failed step is fatal; the simulation is unusable
// afterward.
func (s *Simulation) Step() (bool, error) {
	return s.engine.Step()
}

// Run steps the simulation until maxSteps steps have run or no event is
// pending.
func (s *Simulation) Run(maxSteps int) error {
	for i := 0; i < maxSteps; i++ {
		ran, err := s.Step()
		if err != nil {
			return err
		}

		if !ran {
			return nil
		}
	}

	return nil
}
