// Package device defines the closed set of simulated network elements and
// the events they exchange. Device kinds are fixed at build time; dispatch
// is an exhaustive switch over the variants, and no new kinds can be
// registered at runtime.
package device

import "github.com/simnetlab/simnet/wire"

// ID identifies a device. It is unique and stable within one graph's
// lifetime.
type ID uint32

// Address is the handle of a device's mailbox inside one graph.
type Address int

// NoAddress marks an unbound output.
const NoAddress Address = -1

// An Event is something a device can receive.
type Event interface {
	isEvent()
}

// PacketArrived delivers a packet to a device's mailbox.
type PacketArrived struct {
	Packet wire.Packet
}

// TimerFired wakes a device that scheduled a timer on itself.
type TimerFired struct {
	Token uint64
}

func (PacketArrived) isEvent() {}
func (TimerFired) isEvent()    {}
