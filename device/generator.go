package device

import (
	"math/rand"

	"github.com/simnetlab/simnet/metalog"
	"github.com/simnetlab/simnet/sim"
	"github.com/simnetlab/simnet/telemetry"
	"github.com/simnetlab/simnet/wire"
)

// MinInterArrival is the lower clamp on sampled inter-arrival delays. The
// strictly positive minimum keeps the self-scheduling chain advancing.
const MinInterArrival sim.VTimeInSec = 1e-6

// TickToken is the timer token generators use for their self-ticks.
const TickToken uint64 = 0

// payloadLen is the fixed size of the placeholder payload.
const payloadLen = 64

// A Generator is the only active device: it has no external stimulus, so
// the graph builder schedules its first tick, and every tick schedules the
// next one. The chain is unbounded; the caller decides when to stop
// stepping.
type Generator struct {
	base

	dest         ID
	interArrival *metalog.Distribution
	rng          *rand.Rand
	tel          *telemetry.AsyncWriter
}

// NewGenerator creates a generator that addresses its packets to dest and
// samples inter-arrival delays from interArrival. The telemetry writer may
// be nil.
func NewGenerator(
	id ID,
	dest ID,
	interArrival *metalog.Distribution,
	seed int64,
	tel *telemetry.AsyncWriter,
) *Generator {
	return &Generator{
		base:         makeBase(id),
		dest:         dest,
		interArrival: interArrival,
		rng:          rand.New(rand.NewSource(seed)),
		tel:          tel,
	}
}

// ProcessEvent runs one tick per TimerFired event. A generator is a source
// and ignores arriving packets.
func (g *Generator) ProcessEvent(ev Event, ctx *Context) {
	switch ev.(type) {
	case TimerFired:
		g.tick(ctx)
	case PacketArrived:
	}
}

func (g *Generator) tick(ctx *Context) {
	// Fire-and-forget: a failed or dropped record never touches the tick.
	if g.tel != nil {
		g.tel.Record(uint32(g.id), ctx.Now.Nanos(), 1.0)
	}

	if g.output != NoAddress {
		pkt := wire.Packet{
			Src:  uint32(g.id),
			Dest: uint32(g.dest),
			Data: make([]byte, payloadLen),
		}
		ctx.Deliver(g.output, PacketArrived{Packet: pkt})
	}

	ctx.SetTimer(g.nextDelay(), TickToken)
}

func (g *Generator) nextDelay() sim.VTimeInSec {
	delay := sim.VTimeInSec(g.interArrival.Sample(g.rng))
	if delay < MinInterArrival {
		delay = MinInterArrival
	}

	return delay
}
