// Package rcon implements the Source RCON client (C6): packet codec,
// authentication handshake, and multi-packet reassembly over a persistent
// TCP connection. The packet layout is grounded on schultz-is-rcon-go's
// protocol.go (the size/id/type/body/NUL-pad framing and its ReadFrom/
// WriteTo split); the connection state machine is grounded on the
// teacher's internal/network.Connection (mutex-guarded net.Conn wrapper
// with a logger carrying connection identity).
package rcon

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/kongor-net/agql/internal/core"
)

// wireOverhead is the byte count of everything but the body in an encoded
// packet: a 4-byte id, a 4-byte type, and the two NUL terminators.
const wireOverhead = 4 + 4 + 2

// MaxPacketSize bounds an RCON frame's declared size field.
const MaxPacketSize = 4096

// Packet type discriminators of spec §6.
const (
	TypeAuth          int32 = 3
	TypeAuthResponse  int32 = 2
	TypeExecCommand   int32 = 2
	TypeResponseValue int32 = 0
)

// AuthFailureID is the packet id a server sends back on an AUTH_RESPONSE
// when authentication failed.
const AuthFailureID int32 = -1

// Packet is a single RCON frame.
type Packet struct {
	ID   int32
	Type int32
	Body []byte
}

// MarshalBinary encodes p into its wire form: `size | id | type | body | \0\0`.
func (p Packet) MarshalBinary() ([]byte, error) {
	size := int32(len(p.Body) + wireOverhead)
	if size > MaxPacketSize {
		return nil, fmt.Errorf("%w: rcon packet of %d bytes exceeds %d byte limit", core.ErrPacketSizeLimitExceeded, size, MaxPacketSize)
	}

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, size)
	binary.Write(&buf, binary.LittleEndian, p.ID)
	binary.Write(&buf, binary.LittleEndian, p.Type)
	buf.Write(p.Body)
	buf.Write([]byte{0, 0})
	return buf.Bytes(), nil
}

// WriteTo writes the encoded packet to w.
func (p Packet) WriteTo(w io.Writer) (int64, error) {
	data, err := p.MarshalBinary()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

// ReadFrom decodes a single packet from r into p.
func (p *Packet) ReadFrom(r io.Reader) (int64, error) {
	var n int64

	var size int32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return n, err
	}
	n += 4

	if size < wireOverhead {
		return n, fmt.Errorf("%w: rcon packet size %d below minimum", core.ErrMalformedPayload, size)
	}
	if size > MaxPacketSize {
		return n, fmt.Errorf("%w: rcon packet size %d exceeds %d byte limit", core.ErrPacketSizeLimitExceeded, size, MaxPacketSize)
	}

	if err := binary.Read(r, binary.LittleEndian, &p.ID); err != nil {
		return n, err
	}
	n += 4
	if err := binary.Read(r, binary.LittleEndian, &p.Type); err != nil {
		return n, err
	}
	n += 4

	p.Body = make([]byte, size-wireOverhead)
	if len(p.Body) > 0 {
		if _, err := io.ReadFull(r, p.Body); err != nil {
			return n, err
		}
	}
	n += int64(len(p.Body))

	pad := make([]byte, 2)
	if _, err := io.ReadFull(r, pad); err != nil {
		return n, err
	}
	n += 2
	if pad[0] != 0 || pad[1] != 0 {
		return n, fmt.Errorf("%w: rcon packet missing NUL terminator pair", core.ErrMalformedPayload)
	}

	return n, nil
}
