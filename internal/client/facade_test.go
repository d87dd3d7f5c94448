package client

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/kongor-net/agql/internal/a2s"
)

// fakeServer answers every datagram it receives on a loopback UDP socket
// with a scripted response, simulating a Source game server for end-to-end
// exercise of the facade's transport + messenger + codec wiring.
type fakeServer struct {
	conn    *net.UDPConn
	respond func(from *net.UDPAddr, data []byte) []byte
}

func startFakeServer(t *testing.T, respond func(from *net.UDPAddr, data []byte) []byte) *fakeServer {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("failed to start fake server: %v", err)
	}
	s := &fakeServer{conn: conn, respond: respond}

	go func() {
		buf := make([]byte, 2048)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			resp := s.respond(addr, buf[:n])
			if resp != nil {
				conn.WriteToUDP(resp, addr)
			}
		}
	}()

	t.Cleanup(func() { conn.Close() })
	return s
}

func buildInfoResponseBytes() []byte {
	var buf []byte
	hdr := make([]byte, 4)
	binary.LittleEndian.PutUint32(hdr, 0xFFFFFFFF)
	buf = append(buf, hdr...)
	buf = append(buf, 0x49) // discInfo
	buf = append(buf, 17)
	buf = append(buf, []byte("Fake Server\x00")...)
	buf = append(buf, []byte("de_test\x00")...)
	buf = append(buf, []byte("cstrike\x00")...)
	buf = append(buf, []byte("Counter-Strike\x00")...)
	appID := make([]byte, 2)
	binary.LittleEndian.PutUint16(appID, 10)
	buf = append(buf, appID...)
	buf = append(buf, 3, 16, 0, 'd', 'l', 0, 1)
	buf = append(buf, []byte("1.0\x00")...)
	return buf
}

func TestClient_QueryInfo_EndToEnd(t *testing.T) {
	srv := startFakeServer(t, func(from *net.UDPAddr, data []byte) []byte {
		return buildInfoResponseBytes()
	})

	c, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	info, err := c.QueryInfo(ctx, srv.conn.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Name != "Fake Server" || info.Map != "de_test" {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestClient_QueryPlayers_ChallengeRoundTrip(t *testing.T) {
	srv := startFakeServer(t, func(from *net.UDPAddr, data []byte) []byte {
		// First request carries NoChallenge; answer with a Challenge.
		// Second carries the challenge value; answer with the real page.
		challenge := int32(binary.LittleEndian.Uint32(data[5:9]))
		if challenge == a2s.NoChallenge {
			hdr := make([]byte, 4)
			binary.LittleEndian.PutUint32(hdr, 0xFFFFFFFF)
			resp := append(hdr, 0x41)
			val := make([]byte, 4)
			binary.LittleEndian.PutUint32(val, 9999)
			return append(resp, val...)
		}

		hdr := make([]byte, 4)
		binary.LittleEndian.PutUint32(hdr, 0xFFFFFFFF)
		resp := append(hdr, 0x44, 1, 0)
		resp = append(resp, []byte("alice\x00")...)
		score := make([]byte, 4)
		binary.LittleEndian.PutUint32(score, 10)
		resp = append(resp, score...)
		resp = append(resp, 0, 0, 0, 0) // duration float32 0.0
		return resp
	})

	c, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	players, err := c.QueryPlayers(ctx, srv.conn.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(players) != 1 || players[0].Name != "alice" {
		t.Fatalf("unexpected players: %+v", players)
	}
}
