// Package transport implements the Datagram Transport (C1): a thin,
// non-blocking wrapper around a UDP socket that multiplexes every UDP
// protocol family over a small number of sockets. It is grounded on the
// teacher's internal/network/udp_autoping.go — the same net.UDPConn +
// ReadFromUDP receive loop and context-cancellation shutdown idiom — but
// generalized into a reusable send/receive abstraction instead of a single
// fixed responder.
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/kongor-net/agql/internal/core"
)

// MaxDatagramBytes is the MTU policy of spec §4.1: payloads larger than
// this are rejected before anything touches the socket.
const MaxDatagramBytes = 1400

// Handler is invoked for every inbound datagram with its source address and
// raw bytes. It must not block — the receive loop calls it inline per
// datagram, mirroring the teacher's udp_autoping handler which responds
// synchronously before looping to the next ReadFromUDP.
type Handler func(source *net.UDPAddr, data []byte)

// UDP is a bound UDP socket shared by every UDP protocol family. There is
// no retransmission here by design, and the Messenger does not retransmit
// either: a request whose response never arrives completes with
// core.ErrRequestTimedOut.
type UDP struct {
	conn    *net.UDPConn
	handler Handler

	closeOnce sync.Once
	closed    chan struct{}
}

// Open binds a UDP socket. An empty local address binds an ephemeral port,
// the default for outbound-only query clients.
func Open(local string) (*UDP, error) {
	addr, err := net.ResolveUDPAddr("udp", local)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve local address: %v", core.ErrTransport, err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: bind udp socket: %v", core.ErrTransport, err)
	}

	return &UDP{
		conn:   conn,
		closed: make(chan struct{}),
	}, nil
}

// OnReceive installs the sink invoked for every inbound datagram. It must be
// called before Serve.
func (u *UDP) OnReceive(h Handler) {
	u.handler = h
}

// Serve runs the receive loop until ctx is cancelled or the socket is
// closed. It is meant to run in its own goroutine — the "receive goroutine
// per transport" of spec §5.
func (u *UDP) Serve(ctx context.Context) {
	go func() {
		<-ctx.Done()
		u.conn.Close()
	}()

	buf := make([]byte, 65535)
	for {
		n, addr, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			case <-u.closed:
				return
			default:
				log.Warn().Err(err).Msg("udp transport read error")
				continue
			}
		}

		if u.handler != nil {
			data := make([]byte, n)
			copy(data, buf[:n])
			u.handler(addr, data)
		}
	}
}

// Send writes data to destination. It never blocks the caller beyond the
// size check: the OS write itself runs in a goroutine whose outcome is
// reported on the returned channel, the idiom the teacher reaches for in
// place of a native future (Go has none). destination must be a
// *net.UDPAddr — this satisfies messenger.Transport's net.Addr parameter
// so the Messenger stays transport-interface-agnostic.
func (u *UDP) Send(destination net.Addr, data []byte) <-chan error {
	result := make(chan error, 1)

	udpAddr, ok := destination.(*net.UDPAddr)
	if !ok {
		result <- fmt.Errorf("%w: udp transport requires a *net.UDPAddr destination, got %T", core.ErrTransport, destination)
		return result
	}

	if len(data) > MaxDatagramBytes {
		result <- fmt.Errorf("%w: %d bytes exceeds %d byte limit", core.ErrPacketSizeLimitExceeded, len(data), MaxDatagramBytes)
		return result
	}

	go func() {
		_, err := u.conn.WriteToUDP(data, udpAddr)
		if err != nil {
			result <- fmt.Errorf("%w: %v", core.ErrTransport, err)
			return
		}
		result <- nil
	}()

	return result
}

// Close idempotently closes the socket. Outstanding Send calls already in
// flight are unaffected; future Sends will fail once the OS socket is gone.
func (u *UDP) Close() error {
	var err error
	u.closeOnce.Do(func() {
		close(u.closed)
		err = u.conn.Close()
	})
	return err
}

// LocalAddr returns the bound local address.
func (u *UDP) LocalAddr() net.Addr {
	return u.conn.LocalAddr()
}
