package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simnetlab/simnet/metalog"
	"github.com/simnetlab/simnet/sim"
	"github.com/simnetlab/simnet/wire"
)

type scheduled struct {
	target Address
	ev     Event
	at     sim.VTimeInSec
}

// recordingSink captures scheduled events instead of running an engine.
type recordingSink struct {
	events []scheduled
}

func (s *recordingSink) ScheduleEvent(
	target Address, ev Event, at sim.VTimeInSec,
) {
	s.events = append(s.events, scheduled{target, ev, at})
}

func TestRouterConsumesPackets(t *testing.T) {
	r := NewRouter(202)
	sink := &recordingSink{}
	ctx := NewContext(1.0, 0, sink)

	pkt := wire.Packet{Src: 303, Dest: 202, Data: []byte("x")}
	r.ProcessEvent(PacketArrived{Packet: pkt}, &ctx)
	r.ProcessEvent(TimerFired{}, &ctx)

	require.Len(t, r.Received(), 1)
	assert.Equal(t, pkt, r.Received()[0])
	assert.Empty(t, sink.events, "a router emits nothing")
}

func TestSwitchForwardsWithLead(t *testing.T) {
	s := NewSwitch(5)
	s.Connect(3)

	sink := &recordingSink{}
	ctx := NewContext(2.0, 0, sink)

	pkt := wire.Packet{Src: 1, Dest: 2}
	s.ProcessEvent(PacketArrived{Packet: pkt}, &ctx)

	require.Len(t, sink.events, 1)
	assert.Equal(t, Address(3), sink.events[0].target)
	assert.Equal(t, sim.VTimeInSec(2.0)+DeliveryLead, sink.events[0].at)
	assert.Equal(t, PacketArrived{Packet: pkt}, sink.events[0].ev)
}

func TestUnconnectedSwitchDropsPackets(t *testing.T) {
	s := NewSwitch(5)

	sink := &recordingSink{}
	ctx := NewContext(2.0, 0, sink)

	s.ProcessEvent(PacketArrived{Packet: wire.Packet{}}, &ctx)

	assert.Empty(t, sink.events)
}

func TestCableForwards(t *testing.T) {
	c := NewCable(9)
	c.Connect(1)

	sink := &recordingSink{}
	ctx := NewContext(0, 4, sink)

	c.ProcessEvent(PacketArrived{Packet: wire.Packet{Src: 7}}, &ctx)

	require.Len(t, sink.events, 1)
	assert.Equal(t, Address(1), sink.events[0].target)
}

func constantDist(t *testing.T) *metalog.Distribution {
	t.Helper()

	// A single a1 term is a constant quantile function.
	return metalog.New([]float64{5e-6}, metalog.Unbounded())
}

func TestGeneratorTick(t *testing.T) {
	g := NewGenerator(303, 202, constantDist(t), 1, nil)
	g.Connect(2)

	sink := &recordingSink{}
	ctx := NewContext(1.0, 0, sink)

	g.ProcessEvent(TimerFired{Token: TickToken}, &ctx)

	require.Len(t, sink.events, 2)

	packet := sink.events[0]
	assert.Equal(t, Address(2), packet.target)
	assert.Equal(t, sim.VTimeInSec(1.0)+DeliveryLead, packet.at)

	arrived, ok := packet.ev.(PacketArrived)
	require.True(t, ok)
	assert.Equal(t, uint32(303), arrived.Packet.Src)
	assert.Equal(t, uint32(202), arrived.Packet.Dest)
	assert.Len(t, arrived.Packet.Data, 64)

	timer := sink.events[1]
	assert.Equal(t, Address(0), timer.target)
	assert.InDelta(t, 1.0+5e-6, float64(timer.at), 1e-12)
	assert.Equal(t, TimerFired{Token: TickToken}, timer.ev)
}

func TestGeneratorClampsInterArrival(t *testing.T) {
	// A large negative constant quantile must clamp to the floor delay.
	dist := metalog.New([]float64{-1.0}, metalog.Unbounded())

	g := NewGenerator(303, 202, dist, 1, nil)
	g.Connect(1)

	sink := &recordingSink{}
	ctx := NewContext(0, 0, sink)

	g.ProcessEvent(TimerFired{Token: TickToken}, &ctx)

	require.Len(t, sink.events, 2)
	assert.Equal(t, MinInterArrival, sink.events[1].at)
}

func TestGeneratorWithoutOutputStillTicks(t *testing.T) {
	g := NewGenerator(303, 202, constantDist(t), 1, nil)

	sink := &recordingSink{}
	ctx := NewContext(0, 0, sink)

	g.ProcessEvent(TimerFired{Token: TickToken}, &ctx)

	// No packet, but the tick chain continues.
	require.Len(t, sink.events, 1)
	assert.IsType(t, TimerFired{}, sink.events[0].ev)
}

func TestGeneratorIgnoresPackets(t *testing.T) {
	g := NewGenerator(303, 202, constantDist(t), 1, nil)
	g.Connect(1)

	sink := &recordingSink{}
	ctx := NewContext(0, 0, sink)

	g.ProcessEvent(PacketArrived{Packet: wire.Packet{}}, &ctx)

	assert.Empty(t, sink.events)
}
