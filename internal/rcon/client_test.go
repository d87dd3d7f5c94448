package rcon

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/kongor-net/agql/internal/core"
)

func pipeClient(t *testing.T) (*Client, net.Conn) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	c := newClient(clientConn, "pipe")
	t.Cleanup(func() { c.Close() })
	return c, serverConn
}

// readPacket is a small test helper that reads one frame off the server
// side of the pipe.
func readPacket(t *testing.T, conn net.Conn) Packet {
	t.Helper()
	var p Packet
	if _, err := p.ReadFrom(conn); err != nil {
		t.Fatalf("server failed to read packet: %v", err)
	}
	return p
}

func writePacket(t *testing.T, conn net.Conn, p Packet) {
	t.Helper()
	if _, err := p.WriteTo(conn); err != nil {
		t.Fatalf("server failed to write packet: %v", err)
	}
}

func TestAuthenticate_Success(t *testing.T) {
	c, server := pipeClient(t)

	go func() {
		req := readPacket(t, server)
		writePacket(t, server, Packet{ID: req.ID, Type: TypeAuthResponse})
	}()

	if err := c.Authenticate("hunter2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.State() != Authenticated {
		t.Fatalf("state = %v, want Authenticated", c.State())
	}
}

func TestAuthenticate_Failure(t *testing.T) {
	c, server := pipeClient(t)

	go func() {
		readPacket(t, server)
		writePacket(t, server, Packet{ID: AuthFailureID, Type: TypeAuthResponse})
	}()

	err := c.Authenticate("wrong")
	if !errors.Is(err, core.ErrAuthenticationFailed) {
		t.Fatalf("got %v, want ErrAuthenticationFailed", err)
	}
	if c.State() != Closed {
		t.Fatalf("state = %v, want Closed", c.State())
	}
}

func authenticatedClient(t *testing.T) (*Client, net.Conn) {
	t.Helper()
	c, server := pipeClient(t)
	go func() {
		req := readPacket(t, server)
		writePacket(t, server, Packet{ID: req.ID, Type: TypeAuthResponse})
	}()
	if err := c.Authenticate("pw"); err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	return c, server
}

func TestExecute_SinglePacketResponse(t *testing.T) {
	c, server := authenticatedClient(t)

	go func() {
		real := readPacket(t, server)
		term := readPacket(t, server)

		writePacket(t, server, Packet{ID: real.ID, Type: TypeResponseValue, Body: []byte("hello world")})
		writePacket(t, server, Packet{ID: term.ID, Type: TypeResponseValue})
	}()

	out, err := c.Execute("status")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hello world" {
		t.Fatalf("got %q, want %q", out, "hello world")
	}
}

func TestExecute_MultiPacketReassembly(t *testing.T) {
	c, server := authenticatedClient(t)

	go func() {
		real := readPacket(t, server)
		term := readPacket(t, server)

		writePacket(t, server, Packet{ID: real.ID, Type: TypeResponseValue, Body: []byte("part one ")})
		writePacket(t, server, Packet{ID: real.ID, Type: TypeResponseValue, Body: []byte("part two")})
		writePacket(t, server, Packet{ID: term.ID, Type: TypeResponseValue})
	}()

	out, err := c.Execute("bigcommand")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "part one part two" {
		t.Fatalf("got %q, want %q", out, "part one part two")
	}
}

func TestExecute_BeforeAuthentication(t *testing.T) {
	c, _ := pipeClient(t)

	_, err := c.Execute("status")
	if !errors.Is(err, core.ErrAuthenticationFailed) {
		t.Fatalf("got %v, want ErrAuthenticationFailed", err)
	}
}

func TestExecute_ConnectionClosedMidCommand(t *testing.T) {
	c, server := authenticatedClient(t)

	go func() {
		readPacket(t, server) // real command
		readPacket(t, server) // terminator
		server.Close()
	}()

	_, err := c.Execute("status")
	if !errors.Is(err, core.ErrTransport) {
		t.Fatalf("got %v, want ErrTransport", err)
	}
}

func TestReassembly_StaleBufferDiscarded(t *testing.T) {
	c, server := authenticatedClient(t)
	defer server.Close()

	real := Packet{ID: c.allocID(), Type: TypeExecCommand, Body: []byte("slow")}
	termID := c.allocID()

	c.mu.Lock()
	entry := &pending{lastUpdate: time.Now().Add(-2 * ReassemblyTimeout), done: make(chan core.Result, 1)}
	c.pending[real.ID] = entry
	c.terminators[termID] = real.ID
	c.mu.Unlock()

	c.sweep()

	select {
	case res := <-entry.done:
		if !errors.Is(res.Err, core.ErrRequestTimedOut) {
			t.Fatalf("got %v, want ErrRequestTimedOut", res.Err)
		}
	case <-time.After(time.Second):
		t.Fatal("stale buffer was not swept")
	}
}
