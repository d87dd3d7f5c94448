package messenger

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/kongor-net/agql/internal/core"
	"github.com/kongor-net/agql/internal/core/session"
)

// fakeTransport records every Send call and lets the test control the
// outcome reported back to the Messenger.
type fakeTransport struct {
	mu    sync.Mutex
	sent  []string
	outer func(addr net.Addr, data []byte) error
}

func (f *fakeTransport) Send(addr net.Addr, data []byte) <-chan error {
	f.mu.Lock()
	f.sent = append(f.sent, addr.String())
	f.mu.Unlock()

	ch := make(chan error, 1)
	if f.outer != nil {
		ch <- f.outer(addr, data)
	} else {
		ch <- nil
	}
	return ch
}

func (f *fakeTransport) sentAddrs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	copy(out, f.sent)
	return out
}

func identityEncode(payload any) ([]byte, error) {
	s, _ := payload.(string)
	return []byte(s), nil
}

func newTestMessenger(t *testing.T, tr Transport) (*Messenger, context.CancelFunc) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.AgingAfter = 50 * time.Millisecond
	cfg.PacingDelay = 0

	m := New(tr, session.New(), cfg)
	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)
	return m, cancel
}

func TestMessenger_SubmitAndMatch(t *testing.T) {
	tr := &fakeTransport{}
	m, cancel := newTestMessenger(t, tr)
	defer cancel()

	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 27015}
	rec := m.Submit(core.Request{
		Payload: "ping",
		Addr:    addr,
		Family:  core.FamilyA2SInfo,
		Encode:  identityEncode,
	})

	deadline := time.After(time.Second)
	for len(tr.sentAddrs()) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for dispatch")
		case <-time.After(time.Millisecond):
		}
	}

	m.HandleInbound(addr, core.FamilyA2SInfo, 0, "pong", nil)

	select {
	case res := <-rec.Done:
		if res.Err != nil {
			t.Fatalf("unexpected error: %v", res.Err)
		}
		if res.Value != "pong" {
			t.Fatalf("got %v, want pong", res.Value)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for completion")
	}
}

func TestMessenger_UnmatchedInboundDiscarded(t *testing.T) {
	tr := &fakeTransport{}
	m, cancel := newTestMessenger(t, tr)
	defer cancel()

	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 27015}
	// No Submit was ever made for this key; HandleInbound must not panic
	// or block.
	m.HandleInbound(addr, core.FamilyA2SInfo, 0, "unexpected", nil)
}

func TestMessenger_TransportFailureCompletesWithError(t *testing.T) {
	boom := errors.New("write failed")
	tr := &fakeTransport{outer: func(net.Addr, []byte) error { return boom }}
	m, cancel := newTestMessenger(t, tr)
	defer cancel()

	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 27015}
	rec := m.Submit(core.Request{
		Payload: "ping",
		Addr:    addr,
		Family:  core.FamilyA2SInfo,
		Encode:  identityEncode,
	})

	select {
	case res := <-rec.Done:
		if !errors.Is(res.Err, boom) {
			t.Fatalf("got %v, want wrapped %v", res.Err, boom)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for completion")
	}

	// A later, unrelated inbound for the same key must find nothing —
	// the failed dispatch unregistered itself.
	m.HandleInbound(addr, core.FamilyA2SInfo, 0, "late", nil)
}

func TestMessenger_PriorityOrder(t *testing.T) {
	tr := &fakeTransport{}
	cfg := DefaultConfig()
	cfg.AgingAfter = 24 * time.Hour // aging disabled for this ordering test
	cfg.PacingDelay = 0

	m := New(tr, session.New(), cfg)

	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 27015}
	submit := func(p core.Priority) *core.Record {
		return m.Submit(core.Request{
			Payload:  "x",
			Addr:     addr,
			Family:   core.FamilyA2SInfo,
			Priority: p,
			Encode:   identityEncode,
		})
	}

	// L, N, H, N, L submitted in that order.
	submit(core.Low)
	submit(core.Normal)
	submit(core.High)
	submit(core.Normal)
	submit(core.Low)

	var order []core.Priority
	for i := 0; i < 5; i++ {
		rec := m.q.popHighest(cfg.AgingAfter)
		if rec == nil {
			t.Fatalf("expected a record at step %d", i)
		}
		order = append(order, rec.Req.Priority)
	}

	want := []core.Priority{core.High, core.Normal, core.Normal, core.Low, core.Low}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("dispatch order = %v, want %v", order, want)
		}
	}
}
