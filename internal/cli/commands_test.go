package cli

import (
	"context"
	"testing"
	"time"

	"github.com/kongor-net/agql/internal/events"
)

func TestRequireAddr(t *testing.T) {
	if _, err := requireAddr(nil); err == nil {
		t.Error("expected error with no args")
	}
	addr, err := requireAddr([]string{"127.0.0.1:27015"})
	if err != nil {
		t.Fatalf("requireAddr: %v", err)
	}
	if addr.Port != 27015 {
		t.Errorf("expected port 27015, got %d", addr.Port)
	}
}

func TestRequireAddr_InvalidEndpoint(t *testing.T) {
	if _, err := requireAddr([]string{"not-an-endpoint"}); err == nil {
		t.Error("expected error for invalid endpoint")
	}
}

func TestCLI_Execute_Quit_EmitsShutdown(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Stop()

	received := make(chan struct{}, 1)
	bus.Subscribe(events.EventShutdown, "test.quit", func(_ context.Context, _ events.Event) error {
		received <- struct{}{}
		return nil
	})

	c := NewCLI(nil, bus)
	quit := c.execute(context.Background(), "quit", nil)
	if !quit {
		t.Error("expected quit command to signal REPL exit")
	}

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Error("expected EventShutdown to be emitted on quit")
	}
}

func TestCLI_Execute_UnknownCommand_DoesNotQuit(t *testing.T) {
	c := NewCLI(nil, nil)
	quit := c.execute(context.Background(), "bogus", nil)
	if quit {
		t.Error("expected unknown command to not signal REPL exit")
	}
}

func TestCLI_Execute_Help_DoesNotQuit(t *testing.T) {
	c := NewCLI(nil, nil)
	quit := c.execute(context.Background(), "help", nil)
	if quit {
		t.Error("expected help command to not signal REPL exit")
	}
}

func TestCLI_CmdRCON_RequiresThreeArgs(t *testing.T) {
	c := NewCLI(nil, nil)
	if err := c.cmdRCON(context.Background(), []string{"127.0.0.1:27015"}); err == nil {
		t.Error("expected error when rcon is missing password and command")
	}
}

func TestCLI_CmdMaster_RequiresEndpoint(t *testing.T) {
	c := NewCLI(nil, nil)
	if err := c.cmdMaster(context.Background(), nil); err == nil {
		t.Error("expected error when master command is missing the endpoint")
	}
}
