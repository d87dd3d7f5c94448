package rcon

import (
	"bytes"
	"errors"
	"testing"

	"github.com/kongor-net/agql/internal/core"
)

func TestPacketRoundTrip(t *testing.T) {
	p := Packet{ID: 7, Type: TypeExecCommand, Body: []byte("status")}
	data, err := p.MarshalBinary()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got Packet
	if _, err := got.ReadFrom(bytes.NewReader(data)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != p.ID || got.Type != p.Type || !bytes.Equal(got.Body, p.Body) {
		t.Fatalf("got %+v, want %+v", got, p)
	}
}

func TestPacketTooLarge(t *testing.T) {
	p := Packet{ID: 1, Type: TypeExecCommand, Body: make([]byte, MaxPacketSize)}
	_, err := p.MarshalBinary()
	if !errors.Is(err, core.ErrPacketSizeLimitExceeded) {
		t.Fatalf("got %v, want ErrPacketSizeLimitExceeded", err)
	}
}

func TestReadFrom_BadTerminator(t *testing.T) {
	var buf bytes.Buffer
	p := Packet{ID: 1, Type: TypeExecCommand, Body: []byte("x")}
	data, _ := p.MarshalBinary()
	data[len(data)-1] = 0xFF // corrupt the NUL pad
	buf.Write(data)

	var got Packet
	_, err := got.ReadFrom(&buf)
	if !errors.Is(err, core.ErrMalformedPayload) {
		t.Fatalf("got %v, want ErrMalformedPayload", err)
	}
}

func TestReadFrom_SizeTooSmall(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 0}) // size = 0, below wireOverhead

	var got Packet
	_, err := got.ReadFrom(&buf)
	if !errors.Is(err, core.ErrMalformedPayload) {
		t.Fatalf("got %v, want ErrMalformedPayload", err)
	}
}
