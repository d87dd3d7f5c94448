package rcon

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kongor-net/agql/internal/core"
)

// State is one of the RCON connection lifecycle states of spec §4.6.
type State int

const (
	Disconnected State = iota
	Connecting
	Unauthenticated
	Authenticated
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// ReassemblyTimeout is the maximum age of a partially-filled response
// buffer before it is discarded, per spec §4.6.
const ReassemblyTimeout = 10 * time.Second

// pending tracks one in-flight command's reassembly buffer.
type pending struct {
	buf        bytes.Buffer
	lastUpdate time.Time
	done       chan core.Result
}

// Client is a single authenticated RCON connection. It owns its own state
// machine rather than sharing the UDP Messenger's priority queue: spec §5
// is explicit that RCON sockets are per remote endpoint, and command
// traffic is low-volume and sequential, so a dedicated loop is simpler
// than forcing it through a shared dispatch abstraction. It is grounded on
// the teacher's internal/network.Connection — a mutex-guarded net.Conn
// wrapper carrying a connection-scoped logger — generalized into an
// explicit auth/command state machine.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	state  State
	logger zerolog.Logger

	nextID int32

	// pending is keyed by the id of the real command whose response is
	// being reassembled. terminators maps the id of the synthetic empty
	// follow-up command back to the real command's id.
	pending     map[int32]*pending
	terminators map[int32]int32

	authDone chan core.Result

	closed chan struct{}
}

// Dial connects to an RCON endpoint and starts its read and reassembly
// sweep loops. The returned Client is Unauthenticated until Authenticate
// succeeds.
func Dial(ctx context.Context, addr string) (*Client, error) {
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: rcon dial %s: %v", core.ErrTransport, addr, err)
	}
	return newClient(conn, addr), nil
}

// newClient wraps an already-established connection, starting its read and
// reassembly sweep loops. Separated from Dial so tests can drive the state
// machine over a net.Pipe without a real socket.
func newClient(conn net.Conn, remote string) *Client {
	c := &Client{
		conn:        conn,
		state:       Connecting,
		logger:      log.With().Str("component", "rcon").Str("remote", remote).Logger(),
		pending:     make(map[int32]*pending),
		terminators: make(map[int32]int32),
		closed:      make(chan struct{}),
	}
	c.setState(Unauthenticated)

	go c.readLoop()
	go c.sweepLoop()

	return c
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.logger.Debug().Str("state", s.String()).Msg("rcon connection state")
}

// State reports the connection's current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Authenticate sends the AUTH handshake and blocks until the server
// responds or the connection closes. Failure transitions the connection
// to Closed, per spec §4.6.
func (c *Client) Authenticate(password string) error {
	id := c.allocID()

	c.mu.Lock()
	done := make(chan core.Result, 1)
	c.authDone = done
	c.mu.Unlock()

	pkt := Packet{ID: id, Type: TypeAuth, Body: []byte(password)}
	if _, err := pkt.WriteTo(c.conn); err != nil {
		c.closeWithError(fmt.Errorf("%w: %v", core.ErrTransport, err))
		return core.ErrTransport
	}

	select {
	case res := <-done:
		if res.Err != nil {
			c.closeWithError(res.Err)
			return res.Err
		}
		gotID, _ := res.Value.(int32)
		if gotID != id {
			c.closeWithError(core.ErrAuthenticationFailed)
			return core.ErrAuthenticationFailed
		}
		c.setState(Authenticated)
		return nil
	case <-c.closed:
		return fmt.Errorf("%w: connection closed during authentication", core.ErrTransport)
	}
}

// Execute runs command and returns its fully reassembled response body.
// It implements the empty-second-command termination trick of spec §4.6:
// a synthetic empty EXECCOMMAND with a second fresh id is sent immediately
// after the real one, and its echoed response marks the boundary of the
// real command's output.
func (c *Client) Execute(command string) (string, error) {
	if c.State() != Authenticated {
		return "", fmt.Errorf("%w: rcon command issued before authentication", core.ErrAuthenticationFailed)
	}

	id := c.allocID()
	termID := c.allocID()

	entry := &pending{lastUpdate: time.Now(), done: make(chan core.Result, 1)}

	c.mu.Lock()
	c.pending[id] = entry
	c.terminators[termID] = id
	c.mu.Unlock()

	real := Packet{ID: id, Type: TypeExecCommand, Body: []byte(command)}
	empty := Packet{ID: termID, Type: TypeExecCommand, Body: nil}

	if _, err := real.WriteTo(c.conn); err != nil {
		c.dropPending(id, termID)
		return "", fmt.Errorf("%w: %v", core.ErrTransport, err)
	}
	if _, err := empty.WriteTo(c.conn); err != nil {
		c.dropPending(id, termID)
		return "", fmt.Errorf("%w: %v", core.ErrTransport, err)
	}

	select {
	case res := <-entry.done:
		if res.Err != nil {
			return "", res.Err
		}
		body, _ := res.Value.(string)
		return body, nil
	case <-c.closed:
		return "", fmt.Errorf("%w: connection closed mid-command", core.ErrTransport)
	}
}

func (c *Client) dropPending(id, termID int32) {
	c.mu.Lock()
	delete(c.pending, id)
	delete(c.terminators, termID)
	c.mu.Unlock()
}

func (c *Client) allocID() int32 {
	return atomic.AddInt32(&c.nextID, 1)
}

// readLoop is the single consumer of the TCP stream, dispatching each
// decoded frame to the auth handle or the matching reassembly buffer.
func (c *Client) readLoop() {
	for {
		var pkt Packet
		if _, err := pkt.ReadFrom(c.conn); err != nil {
			c.closeWithError(fmt.Errorf("%w: %v", core.ErrTransport, err))
			return
		}
		c.handleInbound(pkt)
	}
}

func (c *Client) handleInbound(pkt Packet) {
	c.mu.Lock()

	if c.state == Unauthenticated && pkt.Type == TypeAuthResponse {
		done := c.authDone
		c.authDone = nil
		c.mu.Unlock()
		if done == nil {
			return
		}
		if pkt.ID == AuthFailureID {
			done <- core.Result{Err: core.ErrAuthenticationFailed}
		} else {
			done <- core.Result{Value: pkt.ID}
		}
		return
	}

	if origID, ok := c.terminators[pkt.ID]; ok {
		delete(c.terminators, pkt.ID)
		entry, ok := c.pending[origID]
		delete(c.pending, origID)
		c.mu.Unlock()
		if ok {
			entry.done <- core.Result{Value: entry.buf.String()}
		}
		return
	}

	entry, ok := c.pending[pkt.ID]
	if ok {
		entry.buf.Write(pkt.Body)
		entry.lastUpdate = time.Now()
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug().Int32("id", pkt.ID).Msg("unmatched rcon response discarded")
	}
}

// sweepLoop discards reassembly buffers that have gone stale, per the
// 10-second budget of spec §4.6.
func (c *Client) sweepLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.closed:
			return
		}
	}
}

func (c *Client) sweep() {
	cutoff := time.Now().Add(-ReassemblyTimeout)

	c.mu.Lock()
	var stale []int32
	for id, entry := range c.pending {
		if entry.lastUpdate.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	entries := make(map[int32]*pending, len(stale))
	for _, id := range stale {
		entries[id] = c.pending[id]
		delete(c.pending, id)
	}
	for termID, origID := range c.terminators {
		if _, gone := entries[origID]; gone {
			delete(c.terminators, termID)
		}
	}
	c.mu.Unlock()

	for id, entry := range entries {
		c.logger.Warn().Int32("id", id).Msg("discarding stale rcon reassembly buffer")
		entry.done <- core.Result{Err: core.ErrRequestTimedOut}
	}
}

func (c *Client) closeWithError(err error) {
	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		return
	}
	c.state = Closed
	pendingCopy := c.pending
	c.pending = make(map[int32]*pending)
	authDone := c.authDone
	c.authDone = nil
	c.mu.Unlock()

	select {
	case <-c.closed:
	default:
		close(c.closed)
	}

	c.conn.Close()
	for _, entry := range pendingCopy {
		entry.done <- core.Result{Err: err}
	}
	if authDone != nil {
		authDone <- core.Result{Err: err}
	}
	c.logger.Warn().Err(err).Msg("rcon connection closed")
}

// Close terminates the connection. An Execute or Authenticate call still
// waiting returns an error: core.ErrCancelled, or core.ErrTransport when it
// observes the closed connection first.
func (c *Client) Close() error {
	c.closeWithError(core.ErrCancelled)
	return nil
}
