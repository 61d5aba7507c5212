// Package sandbox executes untrusted device logic as WebAssembly guest
// modules. The host reaches the guest only through the exported
// guest_alloc/process_packet functions, and the guest reaches the host only
// through the env.host_log and env.send_packet imports. A trap inside the
// guest aborts that one invocation and nothing else.
package sandbox

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/simnetlab/simnet/wire"
)

// Disposition codes returned by process_packet.
const (
	DispositionDropped   int32 = 0
	DispositionForwarded int32 = 1
)

// A Guest is one loaded, instantiated guest module. It owns its linear
// memory; the host touches that memory only between calls. A Guest is not
// safe for concurrent use.
type Guest struct {
	id      uint32
	runtime wazero.Runtime
	module  api.Module

	alloc   api.Function
	process api.Function

	// outbound collects packets the guest emits through send_packet during
	// one process_packet invocation.
	outbound []wire.Packet

	log *logrus.Entry
}

// Load compiles and instantiates a guest module from its binary form. The
// module must export "memory", "guest_alloc", and "process_packet". Invalid
// bytes or missing exports are fatal build errors.
func Load(ctx context.Context, code []byte, id uint32) (*Guest, error) {
	r := wazero.NewRuntime(ctx)

	g := &Guest{
		id:      id,
		runtime: r,
		log:     logrus.WithField("guest", id),
	}

	_, err := r.NewHostModuleBuilder("env").
		NewFunctionBuilder().WithFunc(g.hostLog).Export("host_log").
		NewFunctionBuilder().WithFunc(g.sendPacket).Export("send_packet").
		Instantiate(ctx)
	if err != nil {
		r.Close(ctx)
		return nil, fmt.Errorf("instantiating host module: %w", err)
	}

	mod, err := r.Instantiate(ctx, code)
	if err != nil {
		r.Close(ctx)
		return nil, fmt.Errorf("instantiating guest module: %w", err)
	}
	g.module = mod

	if mod.Memory() == nil {
		r.Close(ctx)
		return nil, fmt.Errorf("guest module must export \"memory\"")
	}

	for _, name := range []string{"guest_alloc", "process_packet"} {
		if mod.ExportedFunction(name) == nil {
			r.Close(ctx)
			return nil, fmt.Errorf("guest module must export %q", name)
		}
	}

	g.alloc = mod.ExportedFunction("guest_alloc")
	g.process = mod.ExportedFunction("process_packet")

	return g, nil
}

// ID returns the device id the guest was loaded for.
func (g *Guest) ID() uint32 {
	return g.id
}

// hostLog implements env.host_log. Out-of-bounds reads and invalid UTF-8 are
// silently dropped so the guest cannot fault the host through logging.
func (g *Guest) hostLog(_ context.Context, m api.Module, ptr, size uint32) {
	buf, ok := m.Memory().Read(ptr, size)
	if !ok {
		return
	}

	if !utf8.Valid(buf) {
		return
	}

	g.log.Info(string(buf))
}

// sendPacket implements env.send_packet. The serialized packet is decoded
// from guest memory and queued for re-injection into the graph.
func (g *Guest) sendPacket(_ context.Context, m api.Module, ptr, size uint32) {
	buf, ok := m.Memory().Read(ptr, size)
	if !ok {
		return
	}

	g.outbound = append(g.outbound, wire.Decode(buf))
}

// ProcessPacket delivers one packet to the guest and returns its disposition
// code along with any packets the guest emitted. The inbound buffer is
// allocated through guest_alloc and never freed by the host; the guest's
// whole memory is torn down when the Guest is closed. A guest trap is
// returned as an error and leaves the host intact.
func (g *Guest) ProcessPacket(
	ctx context.Context,
	p wire.Packet,
) (int32, []wire.Packet, error) {
	encoded := p.Encode()

	res, err := g.alloc.Call(ctx, uint64(len(encoded)))
	if err != nil {
		return 0, nil, fmt.Errorf("guest_alloc: %w", err)
	}

	ptr := uint32(res[0])
	if !g.module.Memory().Write(ptr, encoded) {
		return 0, nil, fmt.Errorf(
			"guest_alloc returned out-of-range buffer at %d", ptr)
	}

	g.outbound = g.outbound[:0]

	res, err = g.process.Call(ctx, uint64(ptr), uint64(len(encoded)))
	if err != nil {
		return 0, nil, fmt.Errorf("process_packet: %w", err)
	}

	out := make([]wire.Packet, len(g.outbound))
	copy(out, g.outbound)

	return int32(uint32(res[0])), out, nil
}

// Close tears down the guest instance and its memory.
func (g *Guest) Close(ctx context.Context) error {
	return g.runtime.Close(ctx)
}
