package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kongor-net/agql/internal/core"
)

// Value is the session value of the data model: the registered request
// record plus the bookkeeping needed to expire or cancel it. Per the
// "cyclic references" design note, the entry is addressed by its sequence
// index everywhere outside the registry — the timer callback captures only
// the index, never the Value itself, so removal-by-index is what makes
// concurrent expiry/cancel/match races safe.
type Value struct {
	Key          Key
	Record       *core.Record
	RegisteredAt time.Time
	Index        uint64

	timer *time.Timer
}

// Registry is the Session Registry (C3): a map from Key to Value plus a
// per-entry expiry timer. It is grounded on the teacher's
// network.ConnectionRegistry (map + sync.RWMutex, Register/Unregister/Get),
// generalized from "port" keys to the protocol-family-aware Key above and
// from a passive sweep to a per-entry timer as spec §4.3 requires.
type Registry struct {
	mu      sync.Mutex
	byKey   map[Key]uint64
	byIndex map[uint64]*Value
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		byKey:   make(map[Key]uint64),
		byIndex: make(map[uint64]*Value),
	}
}

// Register inserts a new live session for key and arms its timeout. It
// fails with core.ErrDuplicateSession if a live session for key already
// exists, per invariant 2 of the data model (at most one live session per
// key). record.Seq is used as the arena index.
func (r *Registry) Register(key Key, record *core.Record, timeout time.Duration) (uint64, error) {
	r.mu.Lock()
	if _, exists := r.byKey[key]; exists {
		r.mu.Unlock()
		return 0, core.ErrDuplicateSession
	}

	idx := record.Seq
	v := &Value{
		Key:          key,
		Record:       record,
		RegisteredAt: time.Now(),
		Index:        idx,
	}
	r.byKey[key] = idx
	r.byIndex[idx] = v
	v.timer = time.AfterFunc(timeout, func() { r.expire(idx) })
	r.mu.Unlock()

	log.Debug().Str("key", key.String()).Uint64("seq", idx).Msg("session registered")
	return idx, nil
}

// Take atomically removes and returns the session value for key, cancelling
// its timer. It reports false if no live session matches — the caller (the
// Messenger's inbound-packet handler) must treat that as an unmatched
// response and discard it rather than error.
func (r *Registry) Take(key Key) (*core.Record, bool) {
	r.mu.Lock()
	idx, ok := r.byKey[key]
	if !ok {
		r.mu.Unlock()
		return nil, false
	}
	v := r.byIndex[idx]
	delete(r.byKey, key)
	delete(r.byIndex, idx)
	r.mu.Unlock()

	v.timer.Stop()
	return v.Record, true
}

// expire is invoked by the per-entry timer. If the session is still present
// it is removed and its handle completed with ErrRequestTimedOut; if it was
// already taken or cancelled first, this is a no-op — the map-presence
// check under the mutex is the compare-and-set that makes completion
// exactly-once.
func (r *Registry) expire(idx uint64) {
	r.mu.Lock()
	v, ok := r.byIndex[idx]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.byIndex, idx)
	delete(r.byKey, v.Key)
	r.mu.Unlock()

	log.Debug().Str("key", v.Key.String()).Uint64("seq", idx).Msg("session timed out")
	v.Record.Complete(core.Result{Err: core.ErrRequestTimedOut})
}

// Cancel removes the session for idx, if still live, and completes its
// handle with core.ErrCancelled. A cancellation that arrives after the
// response was already matched (or after expiry) is a no-op.
func (r *Registry) Cancel(idx uint64) {
	r.mu.Lock()
	v, ok := r.byIndex[idx]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.byIndex, idx)
	delete(r.byKey, v.Key)
	r.mu.Unlock()

	v.timer.Stop()
	v.Record.Complete(core.Result{Err: core.ErrCancelled})
}

// Len reports the number of live sessions, used by health diagnostics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byIndex)
}
