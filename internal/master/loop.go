package master

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kongor-net/agql/internal/core"
	"github.com/kongor-net/agql/internal/core/messenger"
)

// State is one of the C5 query loop states.
type State int

const (
	Idle State = iota
	Querying
	AwaitingResponse
	Emitting
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Querying:
		return "querying"
	case AwaitingResponse:
		return "awaiting_response"
	case Emitting:
		return "emitting"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// EntryCallback is invoked sequentially, once per server address yielded
// by the iteration, never concurrently for the same query per spec §5.
// err is non-nil only on the final, terminal invocation that reports a
// page timeout; in that case addr is nil. Other failures are returned from
// Query without a callback invocation.
type EntryCallback func(addr *net.UDPAddr, masterAddr net.Addr, err error)

const perEntryDelay = 13 * time.Millisecond

// Query runs the full seeded-pagination loop of spec §4.5 against
// masterAddr, submitting each page request to m at High priority and
// paging until the terminator is seen, ctx is cancelled, or a page times
// out. It returns the accumulated, terminator-free server list.
func Query(ctx context.Context, m *messenger.Messenger, masterAddr net.Addr, region Region, filter string, callback EntryCallback) ([]*net.UDPAddr, error) {
	state := Idle
	seed := Terminator
	var accumulated []*net.UDPAddr

	transition := func(next State) {
		state = next
		log.Trace().Str("state", state.String()).Msg("master query loop transition")
	}

	for {
		transition(Querying)
		rec := m.Submit(core.Request{
			Payload: Request{Region: region, Filter: filter, Seed: seed},
			Addr:    masterAddr,
			Family:  core.FamilyMaster,
			Priority: core.High,
			Timeout: 3 * time.Second,
			Encode:  EncodeRequest,
		})

		transition(AwaitingResponse)
		var res core.Result
		select {
		case res = <-rec.Done:
		case <-ctx.Done():
			return accumulated, ctx.Err()
		}

		if res.Err != nil {
			transition(Done)
			if errors.Is(res.Err, core.ErrRequestTimedOut) {
				if callback != nil {
					callback(nil, masterAddr, res.Err)
				}
				return accumulated, nil
			}
			transition(Failed)
			return accumulated, fmt.Errorf("master query failed: %w", res.Err)
		}

		page, ok := res.Value.(Page)
		if !ok {
			transition(Failed)
			return accumulated, fmt.Errorf("master query: unexpected response type %T", res.Value)
		}

		transition(Emitting)
		terminated := false
		var lastSeen *net.UDPAddr
		for _, addr := range page {
			if IsTerminator(addr) {
				terminated = true
				break
			}
			if sameAddr(addr, seed) {
				// The master echoes the seed as the first entry of every
				// page after the first; skip it.
				continue
			}
			lastSeen = addr

			if callback != nil {
				callback(addr, masterAddr, nil)
			}
			accumulated = append(accumulated, addr)

			select {
			case <-time.After(perEntryDelay):
			case <-ctx.Done():
				return accumulated, ctx.Err()
			}
		}

		if terminated {
			transition(Done)
			log.Debug().Int("count", len(accumulated)).Msg("master server iteration complete")
			return accumulated, nil
		}

		if lastSeen == nil {
			// An empty, non-terminated page: nothing left to page through.
			transition(Done)
			return accumulated, nil
		}
		seed = lastSeen
	}
}

func sameAddr(a, b *net.UDPAddr) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.IP.Equal(b.IP) && a.Port == b.Port
}
