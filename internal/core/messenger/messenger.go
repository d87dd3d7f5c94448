// Package messenger implements the Messenger (C4): the priority-ordered,
// rate-aware dispatch loop that owns outbound queueing and correlates
// inbound packets back to the request that is waiting for them. It is
// grounded on the teacher's internal/events/bus.go — a single owner
// draining work and completing handles under a mutex-protected map — but
// reshaped from "fan out to N handlers" into "drain a priority queue to one
// transport."
package messenger

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"github.com/kongor-net/agql/internal/core"
	"github.com/kongor-net/agql/internal/core/session"
)

// Transport is the minimal surface the Messenger needs from a datagram or
// stream transport: an address-addressed, non-blocking send. transport.UDP
// satisfies this directly.
type Transport interface {
	Send(addr net.Addr, data []byte) <-chan error
}

// Config holds the tunables named in spec §6.
type Config struct {
	DefaultTimeout time.Duration
	PacingDelay    time.Duration // enforced per-destination for FamilyMaster only
	AgingAfter     time.Duration
	RateMapSize    int // capacity of the per-destination last-send LRU
}

// DefaultConfig returns the spec-mandated defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout: 3000 * time.Millisecond,
		PacingDelay:    13 * time.Millisecond,
		AgingAfter:     1 * time.Second,
		RateMapSize:    256,
	}
}

// Messenger is the single logical consumer thread of spec §5: one dispatch
// goroutine drains a priority queue, encodes, registers, and sends; the
// inbound path runs concurrently on whatever goroutine the transport's
// receive loop calls HandleInbound from.
type Messenger struct {
	mu  sync.Mutex
	q   queue
	wake chan struct{}

	seq atomic.Uint64

	registry  *session.Registry
	transport Transport
	cfg       Config

	// rateMap is the "small map pruned by LRU" spec §4.4 explicitly calls
	// for: per-destination last-send timestamps for rate-sensitive
	// families.
	rateMap *lru.Cache[string, time.Time]
}

// New creates a Messenger bound to transport and registry.
func New(transport Transport, registry *session.Registry, cfg Config) *Messenger {
	rateMap, err := lru.New[string, time.Time](cfg.RateMapSize)
	if err != nil {
		// Only returns an error for a non-positive size; fall back to the
		// documented default rather than propagating a constructor error
		// for a programmer mistake.
		rateMap, _ = lru.New[string, time.Time](256)
	}

	return &Messenger{
		wake:      make(chan struct{}, 1),
		registry:  registry,
		transport: transport,
		cfg:       cfg,
		rateMap:   rateMap,
	}
}

// Submit enqueues req and returns its Record immediately; the caller reads
// the eventual response from Record.Done. Submission order is preserved
// FIFO within a priority level per spec §5.
func (m *Messenger) Submit(req core.Request) *core.Record {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = m.cfg.DefaultTimeout
	}

	seq := m.seq.Add(1)
	rec := core.NewRecord(req, timeout, seq)

	m.mu.Lock()
	m.q.push(rec)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}

	return rec
}

// Run drives the dispatch loop until ctx is cancelled. It is meant to run
// in its own goroutine for the lifetime of the Messenger.
func (m *Messenger) Run(ctx context.Context) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.wake:
		case <-ticker.C:
			// Periodic tick so aging promotions take effect even when no
			// new record arrives to wake the loop.
		}

		for {
			m.mu.Lock()
			rec := m.q.popHighest(m.cfg.AgingAfter)
			m.mu.Unlock()
			if rec == nil {
				break
			}
			m.dispatch(ctx, rec)
		}
	}
}

// dispatch encodes, registers, and sends a single record, enforcing the
// per-destination pacing delay for rate-sensitive families.
func (m *Messenger) dispatch(ctx context.Context, rec *core.Record) {
	data, err := rec.Req.Encode(rec.Req.Payload)
	if err != nil {
		rec.Complete(core.Result{Err: fmt.Errorf("%w: %v", core.ErrEncoding, err)})
		return
	}

	key := session.Key{
		Addr:      rec.Req.Addr.String(),
		Family:    rec.Req.Family,
		RequestID: rec.Req.RequestID,
	}

	remaining := time.Until(rec.Deadline)
	if remaining <= 0 {
		rec.Complete(core.Result{Err: core.ErrRequestTimedOut})
		return
	}

	if _, err := m.registry.Register(key, rec, remaining); err != nil {
		rec.Complete(core.Result{Err: err})
		return
	}

	if rec.Req.Family == core.FamilyMaster {
		m.awaitPacing(ctx, rec.Req.Addr)
	}

	errCh := m.transport.Send(rec.Req.Addr, data)
	if err := <-errCh; err != nil {
		// Send failed: undo the registration ourselves since no response
		// will ever arrive to trigger the normal match-and-complete path.
		m.registry.Take(key)
		rec.Complete(core.Result{Err: err})
		return
	}

	if rec.Req.Family == core.FamilyMaster {
		m.rateMap.Add(rec.Req.Addr.String(), time.Now())
	}

	log.Debug().
		Str("family", rec.Req.Family.String()).
		Str("dest", rec.Req.Addr.String()).
		Uint64("seq", rec.Seq).
		Msg("request dispatched")
}

// awaitPacing blocks until at least cfg.PacingDelay has elapsed since the
// last dispatch to addr, or ctx is cancelled. This runs on the Messenger's
// single dispatch goroutine, so it only ever delays the record immediately
// behind it in the queue — never the inbound path.
func (m *Messenger) awaitPacing(ctx context.Context, addr net.Addr) {
	last, ok := m.rateMap.Get(addr.String())
	if !ok {
		return
	}
	wait := m.cfg.PacingDelay - time.Since(last)
	if wait <= 0 {
		return
	}

	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// HandleInbound is called by the transport's receive path (via a protocol
// decoder that classifies the discriminator and produces a typed message)
// with the already-decoded value, or a non-nil decodeErr if the payload
// was malformed or unrecognized. A response with no matching session is
// logged and discarded, per spec §4.4 — it is not an error.
func (m *Messenger) HandleInbound(addr net.Addr, family core.Family, requestID int32, value any, decodeErr error) {
	if !m.HandleInboundTry(addr, family, requestID, value, decodeErr) {
		log.Debug().
			Str("family", family.String()).
			Str("source", addr.String()).
			Msg("unmatched inbound message discarded")
	}
}

// HandleInboundTry is HandleInbound's matched/unmatched-reporting variant,
// used where a response's family is ambiguous on the wire (the A2S
// challenge response carries no family tag) and the caller needs to probe
// more than one candidate family before giving up.
func (m *Messenger) HandleInboundTry(addr net.Addr, family core.Family, requestID int32, value any, decodeErr error) bool {
	key := session.Key{Addr: addr.String(), Family: family, RequestID: requestID}

	rec, ok := m.registry.Take(key)
	if !ok {
		return false
	}

	if decodeErr != nil {
		rec.Complete(core.Result{Err: decodeErr})
		return true
	}
	rec.Complete(core.Result{Value: value})
	return true
}

// Cancel cancels a previously submitted record by its sequence index.
func (m *Messenger) Cancel(seq uint64) {
	m.registry.Cancel(seq)
}

// QueueDepth reports the number of records currently queued for dispatch.
// It is a diagnostic accessor for the health endpoint, not used by the
// dispatch loop itself.
func (m *Messenger) QueueDepth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q.len()
}

// OutstandingSessions reports the number of live sessions in the registry,
// i.e. requests dispatched but not yet matched, expired, or cancelled.
func (m *Messenger) OutstandingSessions() int {
	return m.registry.Len()
}
