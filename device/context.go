package device

import "github.com/simnetlab/simnet/sim"

// DeliveryLead is the minimum simulated-time advance of any output-to-input
// hop. A strictly positive lead prevents same-instant delivery cycles.
const DeliveryLead sim.VTimeInSec = 1e-9

// An EventSink accepts events for future delivery to a mailbox. It is
// implemented by the runtime simulation.
type EventSink interface {
	ScheduleEvent(target Address, ev Event, at sim.VTimeInSec)
}

// Context is handed to a device for the duration of one ProcessEvent call.
// It carries the current simulated time and the scheduling capabilities the
// device may use.
type Context struct {
	Now  sim.VTimeInSec
	Self Address

	sink EventSink
}

// NewContext creates the context for one dispatch.
func NewContext(now sim.VTimeInSec, self Address, sink EventSink) Context {
	return Context{Now: now, Self: self, sink: sink}
}

// Deliver schedules ev to arrive at target after the delivery lead time.
func (c *Context) Deliver(target Address, ev Event) {
	c.sink.ScheduleEvent(target, ev, c.Now+DeliveryLead)
}

// SetTimer schedules a TimerFired event on the calling device after delay.
func (c *Context) SetTimer(delay sim.VTimeInSec, token uint64) {
	c.sink.ScheduleEvent(c.Self, TimerFired{Token: token}, c.Now+delay)
}
