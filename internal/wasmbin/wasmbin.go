// Package wasmbin emits small WebAssembly guest modules in binary form, so
// tests can exercise the sandbox bridge without shipping precompiled
// artifacts or invoking an external toolchain.
package wasmbin

// Opcode and encoding constants for the parts of the wasm binary format the
// emitter uses.
const (
	secType   = 1
	secImport = 2
	secFunc   = 3
	secMemory = 5
	secGlobal = 6
	secExport = 7
	secCode   = 10

	opUnreachable = 0x00
	opIf          = 0x04
	opEnd         = 0x0B
	opReturn      = 0x0F
	opCall        = 0x10
	opLocalGet    = 0x20
	opLocalSet    = 0x21
	opGlobalGet   = 0x23
	opGlobalSet   = 0x24
	opI32Load     = 0x28
	opI32Const    = 0x41
	opI32Eq       = 0x46
	opI32Add      = 0x6A
	opI32Sub      = 0x6B

	blockTypeEmpty = 0x40

	valTypeI32 = 0x7F

	exportFunc = 0x00
	exportMem  = 0x02
)

// NoTrap disables the deliberate-trap destination of RouterGuest. No packet
// carries this destination id in practice.
const NoTrap = 0xFFFFFFFF

// RouterGuest builds a guest module implementing the reference device
// behavior: a packet addressed to selfID is consumed, anything else is
// forwarded unchanged through send_packet with disposition 1. The guest
// first logs the payload bytes through host_log (dropped by the host unless
// they are valid UTF-8). A packet addressed to trapDest executes an
// unreachable instruction, deliberately trapping the invocation.
//
// Exports: memory, guest_alloc (bump allocator, never freed), and
// process_packet. Imports: env.host_log and env.send_packet.
func RouterGuest(selfID, trapDest uint32) []byte {
	mod := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}

	// Types: 0 = (i32,i32)->(), 1 = (i32)->(i32), 2 = (i32,i32)->(i32).
	mod = append(mod, section(secType, join(
		uleb(3),
		[]byte{0x60, 2, valTypeI32, valTypeI32, 0},
		[]byte{0x60, 1, valTypeI32, 1, valTypeI32},
		[]byte{0x60, 2, valTypeI32, valTypeI32, 1, valTypeI32},
	))...)

	// Imports: func 0 = env.host_log, func 1 = env.send_packet.
	mod = append(mod, section(secImport, join(
		uleb(2),
		name("env"), name("host_log"), []byte{exportFunc}, uleb(0),
		name("env"), name("send_packet"), []byte{exportFunc}, uleb(0),
	))...)

	// Module functions: 2 = guest_alloc (type 1), 3 = process_packet (type 2).
	mod = append(mod, section(secFunc, join(
		uleb(2), uleb(1), uleb(2),
	))...)

	// One linear memory, 4 pages minimum, no maximum.
	mod = append(mod, section(secMemory, join(
		uleb(1), []byte{0x00}, uleb(4),
	))...)

	// Global 0: mutable i32 bump-allocator cursor, starting past the data
	// area at 1024.
	mod = append(mod, section(secGlobal, join(
		uleb(1),
		[]byte{valTypeI32, 0x01, opI32Const}, sleb(1024), []byte{opEnd},
	))...)

	mod = append(mod, section(secExport, join(
		uleb(3),
		name("memory"), []byte{exportMem}, uleb(0),
		name("guest_alloc"), []byte{exportFunc}, uleb(2),
		name("process_packet"), []byte{exportFunc}, uleb(3),
	))...)

	mod = append(mod, section(secCode, join(
		uleb(2),
		codeEntry(guestAllocBody()),
		codeEntry(processPacketBody(selfID, trapDest)),
	))...)

	return mod
}

// guestAllocBody returns the bump allocator: push the cursor as the result,
// then advance it by the requested length.
func guestAllocBody() []byte {
	return join(
		uleb(0), // no locals
		[]byte{
			opGlobalGet, 0,
			opGlobalGet, 0,
			opLocalGet, 0,
			opI32Add,
			opGlobalSet, 0,
			opEnd,
		},
	)
}

// processPacketBody routes one packet. Local 0 is the buffer pointer, local
// 1 its length, local 2 holds the decoded destination id.
func processPacketBody(selfID, trapDest uint32) []byte {
	instrs := join(
		// host_log(ptr+8, len-8): the payload, logged if valid UTF-8.
		[]byte{opLocalGet, 0, opI32Const}, sleb(8), []byte{opI32Add},
		[]byte{opLocalGet, 1, opI32Const}, sleb(8), []byte{opI32Sub},
		[]byte{opCall, 0},

		// dest = little-endian u32 at ptr+4 (wasm loads are little-endian).
		[]byte{opLocalGet, 0},
		[]byte{opI32Load}, uleb(2), uleb(4),
		[]byte{opLocalSet, 2},

		// Deliberate trap for the crafted destination.
		[]byte{opLocalGet, 2, opI32Const}, sleb(int64(int32(trapDest))),
		[]byte{opI32Eq, opIf, blockTypeEmpty, opUnreachable, opEnd},

		// Consume packets addressed to this device.
		[]byte{opLocalGet, 2, opI32Const}, sleb(int64(int32(selfID))),
		[]byte{opI32Eq, opIf, blockTypeEmpty,
			opI32Const}, sleb(0), []byte{opReturn, opEnd},

		// Forward everything else unchanged.
		[]byte{opLocalGet, 0, opLocalGet, 1, opCall, 1},
		[]byte{opI32Const}, sleb(1),
		[]byte{opEnd},
	)

	return join(
		uleb(1), uleb(1), []byte{valTypeI32}, // one extra i32 local
		instrs,
	)
}

func codeEntry(body []byte) []byte {
	return join(uleb(uint64(len(body))), body)
}

func section(id byte, payload []byte) []byte {
	return join([]byte{id}, uleb(uint64(len(payload))), payload)
}

func name(s string) []byte {
	return join(uleb(uint64(len(s))), []byte(s))
}

func join(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}

	return out
}

func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v == 0 {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}
