// Package wire defines the abstract packet exchanged between simulated
// devices and its binary encoding, which is also the format used across the
// sandbox boundary.
package wire

import "encoding/binary"

// HeaderLen is the number of bytes occupied by the src and dest fields in an
// encoded packet.
const HeaderLen = 8

// A Packet is an immutable value carried between devices. The payload is
// opaque to the kernel.
type Packet struct {
	Src  uint32
	Dest uint32
	Data []byte
}

// Encode serializes the packet as a little-endian u32 src, a little-endian
// u32 dest, and the raw payload.
func (p Packet) Encode() []byte {
	buf := make([]byte, HeaderLen+len(p.Data))

	binary.LittleEndian.PutUint32(buf[0:4], p.Src)
	binary.LittleEndian.PutUint32(buf[4:8], p.Dest)
	copy(buf[HeaderLen:], p.Data)

	return buf
}

// Decode parses an encoded packet. A buffer shorter than the header decodes
// to an all-zero, empty-payload packet. The payload is copied, so the
// returned packet does not alias buf.
func Decode(buf []byte) Packet {
	if len(buf) < HeaderLen {
		return Packet{Data: []byte{}}
	}

	return Packet{
		Src:  binary.LittleEndian.Uint32(buf[0:4]),
		Dest: binary.LittleEndian.Uint32(buf[4:8]),
		Data: append([]byte{}, buf[HeaderLen:]...),
	}
}
