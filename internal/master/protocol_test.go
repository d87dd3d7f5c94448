package master

import (
	"encoding/binary"
	"net"
	"testing"
)

func TestEncodeRequest(t *testing.T) {
	data, err := EncodeRequest(Request{
		Region: RegionEurope,
		Filter: `\gamedir\cstrike`,
		Seed:   Terminator,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data[0] != requestMagic {
		t.Fatalf("got magic 0x%02X, want 0x%02X", data[0], requestMagic)
	}
	if Region(data[1]) != RegionEurope {
		t.Fatalf("got region %d, want %d", data[1], RegionEurope)
	}
}

func buildPage(t *testing.T, addrs ...*net.UDPAddr) []byte {
	t.Helper()
	buf := []byte(responseMagic)
	for _, a := range addrs {
		ip := a.IP.To4()
		buf = append(buf, ip[0], ip[1], ip[2], ip[3])
		port := make([]byte, 2)
		binary.BigEndian.PutUint16(port, uint16(a.Port))
		buf = append(buf, port...)
	}
	return buf
}

func TestDecodePage(t *testing.T) {
	a := &net.UDPAddr{IP: net.IPv4(192, 168, 1, 1), Port: 27015}
	b := Terminator

	data := buildPage(t, a, b)
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	page, ok := got.(Page)
	if !ok || len(page) != 2 {
		t.Fatalf("got %+v, want a 2-entry page", got)
	}
	if !page[0].IP.Equal(a.IP) || page[0].Port != a.Port {
		t.Fatalf("got first entry %v, want %v", page[0], a)
	}
	if !IsTerminator(page[1]) {
		t.Fatalf("expected terminator at page[1], got %v", page[1])
	}
}

func TestDecode_BadHeader(t *testing.T) {
	_, err := Decode([]byte("garbage"))
	if err == nil {
		t.Fatal("expected error for bad header")
	}
}

func TestDecode_OddBodyLength(t *testing.T) {
	data := append([]byte(responseMagic), 1, 2, 3)
	_, err := Decode(data)
	if err == nil {
		t.Fatal("expected error for malformed body length")
	}
}
