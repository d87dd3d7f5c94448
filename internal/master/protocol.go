// Package master implements the Valve Master Server codec and the C5
// seeded-pagination query loop. The codec is grounded on the teacher's
// internal/protocol builder/parser split; the loop itself is grounded on
// the original MasterServerQueryClient.getServersFromStartAddress — kept as
// a blocking per-conversation loop, generalized from a fixed 3-callback
// shape into the engine's Family/Messenger submission path.
package master

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"

	"github.com/kongor-net/agql/internal/core"
)

// Region is the one-byte region filter of spec §6.
type Region byte

const (
	RegionUSEast      Region = 0x00
	RegionUSWest      Region = 0x01
	RegionSouthAmerica Region = 0x02
	RegionEurope      Region = 0x03
	RegionAsia        Region = 0x04
	RegionAustralia   Region = 0x05
	RegionMiddleEast  Region = 0x06
	RegionAfrica      Region = 0x07
	RegionRest        Region = 0xFF
)

const (
	requestMagic  = 0x31
	responseMagic = "\xFF\xFF\xFF\xFF\x66\x0A"
)

// Terminator is the sentinel address the master server sends to mark the
// end of a server list, and the seed used to start a fresh iteration.
var Terminator = &net.UDPAddr{IP: net.IPv4(0, 0, 0, 0), Port: 0}

// Request is the typed payload of a single master server query page.
type Request struct {
	Region Region
	Filter string // e.g. `\gamedir\cstrike\empty\1`
	Seed   *net.UDPAddr
}

// EncodeRequest builds the `31 <region> <seed> <filter>` wire request of
// spec §6.
func EncodeRequest(payload any) ([]byte, error) {
	req, ok := payload.(Request)
	if !ok {
		return nil, fmt.Errorf("master: encode expects Request, got %T", payload)
	}

	var buf bytes.Buffer
	buf.WriteByte(requestMagic)
	buf.WriteByte(byte(req.Region))
	buf.WriteString(seedString(req.Seed))
	buf.WriteByte(0)
	buf.WriteString(req.Filter)
	buf.WriteByte(0)
	return buf.Bytes(), nil
}

func seedString(seed *net.UDPAddr) string {
	if seed == nil {
		seed = Terminator
	}
	return fmt.Sprintf("%s:%d", seed.IP.String(), seed.Port)
}

// Page is a decoded response page: an ordered list of server addresses,
// possibly ending with the Terminator sentinel.
type Page []*net.UDPAddr

// Decode parses a master server response page. Each entry is 6 bytes:
// a big-endian IPv4 address followed by a big-endian port.
func Decode(data []byte) (any, error) {
	if len(data) < len(responseMagic) {
		return nil, fmt.Errorf("%w: master response too short", core.ErrMalformedPayload)
	}
	if string(data[:len(responseMagic)]) != responseMagic {
		return nil, fmt.Errorf("%w: unexpected master response header", core.ErrUnrecognizedMessage)
	}

	body := data[len(responseMagic):]
	if len(body)%6 != 0 {
		return nil, fmt.Errorf("%w: master response body length %d not a multiple of 6", core.ErrMalformedPayload, len(body))
	}

	page := make(Page, 0, len(body)/6)
	for i := 0; i < len(body); i += 6 {
		ip := net.IPv4(body[i], body[i+1], body[i+2], body[i+3])
		port := binary.BigEndian.Uint16(body[i+4 : i+6])
		page = append(page, &net.UDPAddr{IP: ip, Port: int(port)})
	}
	return page, nil
}

// IsTerminator reports whether addr is the master server's end-of-list
// sentinel (0.0.0.0:0).
func IsTerminator(addr *net.UDPAddr) bool {
	return addr != nil && addr.IP.Equal(Terminator.IP) && addr.Port == 0
}
