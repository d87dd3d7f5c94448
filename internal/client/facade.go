// Package client assembles the Datagram Transport, Messenger, and
// per-family codecs into the single facade (F1) applications import: one
// UDP socket shared by every Source protocol family, one Messenger owning
// dispatch and correlation, and typed methods per query kind. It is the
// classify-and-decode dispatcher's home, kept deliberately out of
// internal/core/messenger so that package stays protocol-agnostic.
package client

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/kongor-net/agql/internal/a2s"
	"github.com/kongor-net/agql/internal/core"
	"github.com/kongor-net/agql/internal/core/messenger"
	"github.com/kongor-net/agql/internal/core/session"
	"github.com/kongor-net/agql/internal/core/transport"
	"github.com/kongor-net/agql/internal/events"
	"github.com/kongor-net/agql/internal/master"
)

// Config holds the knobs enumerated in spec §6.
type Config struct {
	LocalBind          string
	RequestTimeout     time.Duration
	MasterPacingDelay  time.Duration
	PriorityAging      time.Duration
	MaxBulkConcurrency int

	// EventBus, if set, receives one QueryCompleted/QueryFailed event per
	// QueryInfo, QueryPlayers, or QueryRules call (a challenge round trip
	// counts as one call), and one MasterDone event per QueryMasterServer
	// call. Nil disables publication entirely — the core never requires an
	// EventBus to function.
	EventBus *events.EventBus
}

// DefaultConfig returns the spec-mandated defaults.
func DefaultConfig() Config {
	return Config{
		LocalBind:          "",
		RequestTimeout:     3000 * time.Millisecond,
		MasterPacingDelay:  13 * time.Millisecond,
		PriorityAging:      1000 * time.Millisecond,
		MaxBulkConcurrency: 8,
	}
}

// Client is the engine-facing facade (F1).
type Client struct {
	cfg       Config
	udp       *transport.UDP
	messenger *messenger.Messenger
	cancel    context.CancelFunc
}

// New binds a UDP socket, wires the Messenger, and starts both service
// loops. Callers must call Close when done.
func New(cfg Config) (*Client, error) {
	udp, err := transport.Open(cfg.LocalBind)
	if err != nil {
		return nil, err
	}

	reg := session.New()
	mcfg := messenger.Config{
		DefaultTimeout: cfg.RequestTimeout,
		PacingDelay:    cfg.MasterPacingDelay,
		AgingAfter:     cfg.PriorityAging,
		RateMapSize:    256,
	}
	m := messenger.New(udp, reg, mcfg)

	c := &Client{cfg: cfg, udp: udp, messenger: m}
	udp.OnReceive(c.dispatchInbound)

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go udp.Serve(ctx)
	go m.Run(ctx)

	return c, nil
}

// Close stops both service loops and releases the UDP socket.
func (c *Client) Close() error {
	c.cancel()
	return c.udp.Close()
}

// QueueDepth and OutstandingSessions expose Messenger/Registry diagnostics
// for the health endpoint without leaking the core package types into
// callers that only want a couple of gauges.
func (c *Client) QueueDepth() int            { return c.messenger.QueueDepth() }
func (c *Client) OutstandingSessions() int   { return c.messenger.OutstandingSessions() }

// a2s response discriminators, used only to classify an inbound datagram
// before handing it to a2s.Decode.
const (
	discInfo      = 0x49
	discPlayers   = 0x44
	discRules     = 0x45
	discChallenge = 0x41
	discMasterLo  = 0x66
)

// dispatchInbound classifies a raw UDP datagram by its leading header and
// discriminator byte and routes it to the matching codec and Family.
func (c *Client) dispatchInbound(source *net.UDPAddr, data []byte) {
	if len(data) < 5 {
		log.Debug().Int("len", len(data)).Msg("datagram too short to classify, discarded")
		return
	}
	if binary.LittleEndian.Uint32(data[:4]) != 0xFFFFFFFF {
		log.Debug().Msg("datagram missing Source/Valve header, discarded")
		return
	}

	switch data[4] {
	case discInfo:
		val, err := a2s.Decode(data)
		c.messenger.HandleInbound(source, core.FamilyA2SInfo, 0, val, err)
	case discPlayers:
		val, err := a2s.Decode(data)
		c.messenger.HandleInbound(source, core.FamilyA2SPlayers, 0, val, err)
	case discRules:
		val, err := a2s.Decode(data)
		c.messenger.HandleInbound(source, core.FamilyA2SRules, 0, val, err)
	case discChallenge:
		// The challenge response carries no family tag, so it must be
		// tried against every family that can be awaiting one. Only one
		// of PLAYERS or RULES can have a live session for this address at
		// a time in normal use; if both do, the first match wins and the
		// second request's challenge round trip simply times out and is
		// retried by the caller.
		val, err := a2s.Decode(data)
		if c.messenger.HandleInboundTry(source, core.FamilyA2SPlayers, 0, val, err) {
			return
		}
		if c.messenger.HandleInboundTry(source, core.FamilyA2SRules, 0, val, err) {
			return
		}
		log.Debug().Str("source", source.String()).Msg("unmatched a2s challenge discarded")
	case discMasterLo:
		if len(data) < 6 || data[5] != 0x0A {
			log.Debug().Msg("malformed master server header, discarded")
			return
		}
		val, err := master.Decode(data)
		c.messenger.HandleInbound(source, core.FamilyMaster, 0, val, err)
	default:
		log.Debug().Uint8("discriminator", data[4]).Msg("unrecognized discriminator, discarded")
	}
}

// QueryInfo issues an A2S_INFO request against addr.
func (c *Client) QueryInfo(ctx context.Context, addr *net.UDPAddr) (a2s.Info, error) {
	start := time.Now()
	rec := c.messenger.Submit(core.Request{
		Addr:     addr,
		Family:   core.FamilyA2SInfo,
		Priority: core.Normal,
		Encode:   a2s.EncodeInfoRequest,
	})
	res, err := await(ctx, rec)
	c.publishOutcome(core.FamilyA2SInfo, addr, rec.Seq, "a2s_info", start, err)
	if err != nil {
		return a2s.Info{}, err
	}
	info, ok := res.(a2s.Info)
	if !ok {
		return a2s.Info{}, fmt.Errorf("%w: unexpected a2s info response type %T", core.ErrMalformedPayload, res)
	}
	return info, nil
}

// QueryPlayers issues an A2S_PLAYERS request, transparently completing the
// challenge round trip the Source protocol requires before a fresh
// destination will answer.
func (c *Client) QueryPlayers(ctx context.Context, addr *net.UDPAddr) ([]a2s.Player, error) {
	start := time.Now()
	res, err := c.queryChallenged(ctx, addr, core.FamilyA2SPlayers, a2s.EncodePlayersRequest)
	c.publishOutcome(core.FamilyA2SPlayers, addr, 0, "a2s_players", start, err)
	if err != nil {
		return nil, err
	}
	players, ok := res.([]a2s.Player)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected a2s players response type %T", core.ErrMalformedPayload, res)
	}
	return players, nil
}

// QueryRules issues an A2S_RULES request, with the same challenge
// round-trip handling as QueryPlayers.
func (c *Client) QueryRules(ctx context.Context, addr *net.UDPAddr) ([]a2s.Rule, error) {
	start := time.Now()
	res, err := c.queryChallenged(ctx, addr, core.FamilyA2SRules, a2s.EncodeRulesRequest)
	c.publishOutcome(core.FamilyA2SRules, addr, 0, "a2s_rules", start, err)
	if err != nil {
		return nil, err
	}
	rules, ok := res.([]a2s.Rule)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected a2s rules response type %T", core.ErrMalformedPayload, res)
	}
	return rules, nil
}

func (c *Client) queryChallenged(ctx context.Context, addr *net.UDPAddr, family core.Family, encode func(any) ([]byte, error)) (any, error) {
	rec := c.messenger.Submit(core.Request{
		Payload:  a2s.NoChallenge,
		Addr:     addr,
		Family:   family,
		Priority: core.Normal,
		Encode:   encode,
	})
	res, err := await(ctx, rec)
	if err != nil {
		return nil, err
	}

	challenge, isChallenge := res.(a2s.Challenge)
	if !isChallenge {
		return res, nil
	}

	rec = c.messenger.Submit(core.Request{
		Payload:  challenge.Value,
		Addr:     addr,
		Family:   family,
		Priority: core.Normal,
		Encode:   encode,
	})
	return await(ctx, rec)
}

// QueryMasterServer runs the full seeded-pagination loop (C5) against the
// Valve master server at masterAddr.
func (c *Client) QueryMasterServer(ctx context.Context, masterAddr net.Addr, region master.Region, filter string, callback master.EntryCallback) ([]*net.UDPAddr, error) {
	start := time.Now()
	addrs, err := master.Query(ctx, c.messenger, masterAddr, region, filter, callback)
	if c.cfg.EventBus != nil {
		c.cfg.EventBus.Emit(ctx, events.Event{
			Type:   events.EventMasterDone,
			Source: "client",
			Payload: events.MasterDonePayload{
				MasterAddr: masterAddr.String(),
				Total:      len(addrs),
				TimedOut:   errors.Is(err, core.ErrRequestTimedOut),
				Err:        errString(err),
				Elapsed:    time.Since(start).Seconds(),
			},
		})
	}
	return addrs, err
}

// publishOutcome emits a QueryCompleted or QueryFailed event when the
// facade's Config carries an EventBus. A nil EventBus is the common case
// for library callers that never touch the ambient stack.
func (c *Client) publishOutcome(family core.Family, addr net.Addr, seq uint64, kind string, start time.Time, err error) {
	if c.cfg.EventBus == nil {
		return
	}
	elapsed := time.Since(start).Seconds()
	if err != nil {
		c.cfg.EventBus.Emit(context.Background(), events.Event{
			Type:   events.EventQueryFailed,
			Source: "client",
			Payload: events.QueryFailedPayload{
				Family:     family.String(),
				Addr:       addr.String(),
				SequenceID: int64(seq),
				Err:        err.Error(),
			},
		})
		return
	}
	c.cfg.EventBus.Emit(context.Background(), events.Event{
		Type:   events.EventQueryCompleted,
		Source: "client",
		Payload: events.QueryCompletedPayload{
			Family:       family.String(),
			Addr:         addr.String(),
			SequenceID:   int64(seq),
			ResponseKind: kind,
			Elapsed:      elapsed,
		},
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// BulkQueryInfo queries every address concurrently, bounded by
// cfg.MaxBulkConcurrency, and returns one result per input address in
// order.
func (c *Client) BulkQueryInfo(ctx context.Context, addrs []*net.UDPAddr) ([]a2s.Info, []error) {
	results := make([]a2s.Info, len(addrs))
	errs := make([]error, len(addrs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxBulkConcurrency)

	for i, addr := range addrs {
		i, addr := i, addr
		g.Go(func() error {
			info, err := c.QueryInfo(gctx, addr)
			results[i] = info
			errs[i] = err
			return nil
		})
	}
	g.Wait()

	return results, errs
}

func await(ctx context.Context, rec *core.Record) (any, error) {
	select {
	case res := <-rec.Done:
		return res.Value, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
