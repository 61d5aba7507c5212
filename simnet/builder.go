// Package simnet builds device graphs and advances them through simulated
// time. A Builder accumulates devices and connections; Build consumes it
// into an immutable runtime Simulation that is stepped by the caller.
package simnet

import (
	"fmt"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/simnetlab/simnet/device"
	"github.com/simnetlab/simnet/sim"
)

// A Builder accumulates the device graph before the simulation starts. The
// zero value is not usable; create one with NewBuilder.
type Builder struct {
	devices  []device.Device
	consumed bool
}

// NewBuilder creates an empty graph builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddDevice appends a device to the graph, creating its mailbox, and
// returns the index used to wire connections. It always succeeds.
func (b *Builder) AddDevice(d device.Device) int {
	b.mustBeFresh()

	b.devices = append(b.devices, d)

	return len(b.devices) - 1
}

// Connect binds the source device's single output to the target's mailbox.
// A later call with the same source overwrites the previous binding.
// Referencing a device that was never added is a programming error.
func (b *Builder) Connect(src, target int) {
	b.mustBeFresh()

	if src < 0 || src >= len(b.devices) {
		logrus.Panicf("connect: unknown source index %d", src)
	}

	if target < 0 || target >= len(b.devices) {
		logrus.Panicf("connect: unknown target index %d", target)
	}

	b.devices[src].Connect(device.Address(target))
}

// Build consumes the builder into a runtime Simulation. Structural problems
// are fatal build errors. The builder cannot be reused afterward.
func (b *Builder) Build() (*Simulation, error) {
	b.mustBeFresh()
	b.consumed = true

	for i, d := range b.devices {
		if d == nil {
			return nil, fmt.Errorf("device at index %d is nil", i)
		}
	}

	s := &Simulation{
		id:      xid.New().String(),
		engine:  sim.NewSerialEngine(),
		devices: b.devices,
	}
	s.log = logrus.WithField("simulation", s.id)

	// Generators have no external stimulus: schedule their first tick so
	// the event chain starts at t0.
	for i, d := range b.devices {
		if g, ok := d.(*device.Generator); ok {
			if g.Output() == device.NoAddress {
				return nil, fmt.Errorf(
					"generator %d has no output binding", g.ID())
			}

			s.ScheduleEvent(
				device.Address(i),
				device.TimerFired{Token: device.TickToken},
				0)
		}
	}

	b.devices = nil

	return s, nil
}

func (b *Builder) mustBeFresh() {
	if b.consumed {
		logrus.Panic("graph builder already consumed by Build")
	}
}
