package device

import "github.com/simnetlab/simnet/wire"

// A Device is one element of the simulated network. The set of implementers
// is closed: Router, Switch, Cable, Generator, and Sandboxed.
type Device interface {
	// ID returns the stable identity of the device.
	ID() ID

	// ProcessEvent reacts to one event. It runs on the simulation's single
	// event loop and must not block.
	ProcessEvent(ev Event, ctx *Context)

	// Connect binds the device's single output to a mailbox address. A later
	// call overwrites the previous binding.
	Connect(target Address)

	// closed keeps the implementer set fixed at compile time.
	closed()
}

// base carries the identity and the single output binding every variant has.
type base struct {
	id     ID
	output Address
}

func makeBase(id ID) base {
	return base{id: id, output: NoAddress}
}

func (b *base) ID() ID {
	return b.id
}

func (b *base) Connect(target Address) {
	b.output = target
}

func (b *base) Output() Address {
	return b.output
}

func (b *base) closed() {}

// A Router terminates packets. Routing logic is a placeholder for now; the
// router records what it receives so the graph can be inspected.
type Router struct {
	base

	received []wire.Packet
}

// NewRouter creates a Router.
func NewRouter(id ID) *Router {
	return &Router{base: makeBase(id)}
}

// ProcessEvent consumes arriving packets.
func (r *Router) ProcessEvent(ev Event, _ *Context) {
	switch ev := ev.(type) {
	case PacketArrived:
		r.received = append(r.received, ev.Packet)
	case TimerFired:
	}
}

// Received returns the packets the router has consumed so far.
func (r *Router) Received() []wire.Packet {
	return r.received
}

// A Switch is a pass-through placeholder.
type Switch struct {
	base
}

// NewSwitch creates a Switch.
func NewSwitch(id ID) *Switch {
	return &Switch{base: makeBase(id)}
}

// ProcessEvent forwards arriving packets unchanged.
func (s *Switch) ProcessEvent(ev Event, ctx *Context) {
	switch ev := ev.(type) {
	case PacketArrived:
		if s.output != NoAddress {
			ctx.Deliver(s.output, ev)
		}
	case TimerFired:
	}
}

// A Cable is a pass-through placeholder.
type Cable struct {
	base
}

// NewCable creates a Cable.
func NewCable(id ID) *Cable {
	return &Cable{base: makeBase(id)}
}

// ProcessEvent forwards arriving packets unchanged.
func (c *Cable) ProcessEvent(ev Event, ctx *Context) {
	switch ev := ev.(type) {
	case PacketArrived:
		if c.output != NoAddress {
			ctx.Deliver(c.output, ev)
		}
	case TimerFired:
	}
}
