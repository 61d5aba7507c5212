package device

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/simnetlab/simnet/sandbox"
)

// A Sandboxed device delegates its packet logic to an untrusted guest
// module. A guest fault degrades to "packet not processed": the event loop
// keeps running and the fault is visible only as a missing forwarded packet.
type Sandboxed struct {
	base

	guest *sandbox.Guest
	ctx   context.Context
	log   *logrus.Entry
}

// NewSandboxed wraps a loaded guest. ctx is used for guest invocations over
// the whole simulation lifetime.
func NewSandboxed(ctx context.Context, id ID, guest *sandbox.Guest) *Sandboxed {
	return &Sandboxed{
		base:  makeBase(id),
		guest: guest,
		ctx:   ctx,
		log:   logrus.WithField("device", id),
	}
}

// ProcessEvent hands arriving packets to the guest and re-injects whatever
// the guest emits, addressed to the configured forward target.
func (s *Sandboxed) ProcessEvent(ev Event, ctx *Context) {
	switch ev := ev.(type) {
	case PacketArrived:
		s.processPacket(ev, ctx)
	case TimerFired:
	}
}

func (s *Sandboxed) processPacket(ev PacketArrived, ctx *Context) {
	disposition, out, err := s.guest.ProcessPacket(s.ctx, ev.Packet)
	if err != nil {
		s.log.WithError(err).Error("guest fault, packet not processed")
		return
	}

	s.log.WithField("disposition", disposition).
		Debug("guest processed packet")

	if s.output == NoAddress {
		return
	}

	for _, pkt := range out {
		ctx.Deliver(s.output, PacketArrived{Packet: pkt})
	}
}

// Guest exposes the wrapped guest, mainly so the owner can close it.
func (s *Sandboxed) Guest() *sandbox.Guest {
	return s.guest
}
