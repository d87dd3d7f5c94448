package core

import (
	"net"
	"time"
)

// Priority orders outbound requests in the Messenger's dispatch queue.
// Higher values are drained first.
type Priority int

const (
	Low Priority = iota
	Normal
	High
)

// String returns the lowercase name of the priority, used in log fields.
func (p Priority) String() string {
	switch p {
	case High:
		return "high"
	case Normal:
		return "normal"
	case Low:
		return "low"
	default:
		return "unknown"
	}
}

// Family discriminates the expected response type for a request so that
// several protocol conversations can multiplex the same UDP socket and
// remote address without colliding in the session registry.
type Family int

const (
	FamilyA2SInfo Family = iota
	FamilyA2SPlayers
	FamilyA2SRules
	FamilyMaster
	FamilyRCON
)

// String returns the name of the family, used in log fields and session keys.
func (f Family) String() string {
	switch f {
	case FamilyA2SInfo:
		return "a2s_info"
	case FamilyA2SPlayers:
		return "a2s_players"
	case FamilyA2SRules:
		return "a2s_rules"
	case FamilyMaster:
		return "master"
	case FamilyRCON:
		return "rcon"
	default:
		return "unknown"
	}
}

// Result is delivered exactly once on a request's completion channel,
// carrying either a decoded response or an error — never both.
type Result struct {
	Value any
	Err   error
}

// Request is a typed request payload paired with its destination, priority,
// and the family tag used to disambiguate protocols sharing a transport.
// Encode produces the wire bytes for this request; it is pure and must not
// mutate shared state.
type Request struct {
	Payload   any
	Addr      net.Addr
	Priority  Priority
	Family    Family
	RequestID int32         // only meaningful for families keyed by id (RCON)
	Timeout   time.Duration // zero means the Messenger's configured default

	Encode func(payload any) ([]byte, error)
}

// Record is the request record of the data model: a submitted Request plus
// its completion handle, timeout deadline, and assigned sequence index. Its
// Done channel is created only by NewRecord, which Messenger.Submit calls;
// the Session Registry never creates one, so the caller always owns exactly
// one receive.
type Record struct {
	Req      Request
	Done     chan Result
	Deadline time.Time
	Seq      uint64

	// submittedAt is used by the aging rule to promote starved records.
	submittedAt time.Time
}

// NewRecord allocates a Record with a ready-to-receive completion channel.
// The channel is buffered so that a completer never blocks on a caller that
// has stopped listening (e.g. after a context cancellation).
func NewRecord(req Request, timeout time.Duration, seq uint64) *Record {
	now := time.Now()
	return &Record{
		Req:         req,
		Done:        make(chan Result, 1),
		Deadline:    now.Add(timeout),
		Seq:         seq,
		submittedAt: now,
	}
}

// Complete resolves the record's completion handle exactly once. Subsequent
// calls are no-ops, satisfying invariant 5 of the data model (idempotent
// resolution) under concurrent timeout/cancel/match races. The channel is
// buffered by one (see NewRecord), so the first call never blocks.
func (r *Record) Complete(res Result) {
	select {
	case r.Done <- res:
	default:
	}
}

// EffectivePriority returns the record's priority, promoted by one level if
// it has been waiting in queue for longer than agingAfter. This implements
// the starvation-avoidance aging rule of spec §4.4.
func (r *Record) EffectivePriority(agingAfter time.Duration) Priority {
	if time.Since(r.submittedAt) <= agingAfter {
		return r.Req.Priority
	}
	if r.Req.Priority == High {
		return High
	}
	return r.Req.Priority + 1
}
