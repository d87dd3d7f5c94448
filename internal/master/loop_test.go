package master

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/kongor-net/agql/internal/core"
	"github.com/kongor-net/agql/internal/core/messenger"
	"github.com/kongor-net/agql/internal/core/session"
)

// scriptedTransport answers master server requests with a pre-programmed
// sequence of pages, one per call, and sends nothing once the script is
// exhausted.
type scriptedTransport struct {
	mu      sync.Mutex
	pages   [][]byte
	calls   int
	handler func(addr net.Addr, data []byte)
}

func (s *scriptedTransport) Send(addr net.Addr, data []byte) <-chan error {
	ch := make(chan error, 1)
	s.mu.Lock()
	idx := s.calls
	s.calls++
	s.mu.Unlock()

	go func() {
		if idx < len(s.pages) {
			s.handler(addr, s.pages[idx])
		}
		ch <- nil
	}()
	return ch
}

func TestQuery_SinglePageTerminates(t *testing.T) {
	addrA := &net.UDPAddr{IP: net.IPv4(1, 2, 3, 4), Port: 27015}
	page := buildPage(t, addrA, Terminator)

	reg := session.New()
	tr := &scriptedTransport{pages: [][]byte{page}}
	m := messenger.New(tr, reg, messenger.DefaultConfig())

	masterAddr := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 27011}
	tr.handler = func(addr net.Addr, data []byte) {
		val, err := Decode(data)
		m.HandleInbound(addr, core.FamilyMaster, 0, val, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	var seen []*net.UDPAddr
	start := time.Now()
	results, err := Query(ctx, m, masterAddr, RegionEurope, "", func(addr *net.UDPAddr, master net.Addr, qerr error) {
		if qerr == nil {
			seen = append(seen, addr)
		}
	})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The terminator ends the iteration, so a single page must finish well
	// under the per-page request timeout, not by timing out.
	if elapsed > 500*time.Millisecond {
		t.Fatalf("single-page query took %s, want it to terminate without a request timeout", elapsed)
	}
	if len(results) != 1 || !results[0].IP.Equal(addrA.IP) {
		t.Fatalf("got %v, want [%v]", results, addrA)
	}
	if len(seen) != 1 {
		t.Fatalf("callback invoked %d times, want 1", len(seen))
	}
}

func TestQuery_MultiPagePaginates(t *testing.T) {
	addrA := &net.UDPAddr{IP: net.IPv4(1, 1, 1, 1), Port: 1}
	addrB := &net.UDPAddr{IP: net.IPv4(2, 2, 2, 2), Port: 2}

	firstPage := buildPage(t, addrA)
	secondPage := buildPage(t, addrA, addrB, Terminator) // echoes seed, then new entry, then terminator

	reg := session.New()
	tr := &scriptedTransport{pages: [][]byte{firstPage, secondPage}}
	m := messenger.New(tr, reg, messenger.DefaultConfig())

	masterAddr := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 27011}
	tr.handler = func(addr net.Addr, data []byte) {
		val, err := Decode(data)
		m.HandleInbound(addr, core.FamilyMaster, 0, val, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	results, err := Query(ctx, m, masterAddr, RegionEurope, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (addrA from page 1, addrB from page 2)", len(results))
	}
}

func TestQuery_ContextCancelled(t *testing.T) {
	reg := session.New()
	tr := &scriptedTransport{pages: nil} // never responds
	m := messenger.New(tr, reg, messenger.DefaultConfig())
	tr.handler = func(net.Addr, []byte) {}

	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)

	masterAddr := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 27011}

	done := make(chan struct{})
	go func() {
		_, err := Query(ctx, m, masterAddr, RegionEurope, "", nil)
		if err == nil {
			t.Error("expected context cancellation error")
		}
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Query did not return after context cancellation")
	}
}
