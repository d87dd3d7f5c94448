// Package cli implements agql's interactive REPL: one line in, one query
// or RCON command out. Player and rule lists are rendered as tables; master
// server endpoints are printed one per line.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/kongor-net/agql/internal/client"
	"github.com/kongor-net/agql/internal/events"
	"github.com/kongor-net/agql/internal/master"
	"github.com/kongor-net/agql/internal/rcon"
)

// CLI is the interactive command loop over a Client engine.
type CLI struct {
	engine   *client.Client
	eventBus *events.EventBus
}

// NewCLI creates a CLI bound to engine. eventBus may be nil.
func NewCLI(engine *client.Client, eventBus *events.EventBus) *CLI {
	return &CLI{engine: engine, eventBus: eventBus}
}

// Start runs the REPL until ctx is cancelled or the user quits.
func (c *CLI) Start(ctx context.Context) {
	fmt.Println("\nagql CLI ready. Type 'help' for available commands.")

	reader := newLineReader()
	defer reader.Close()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := reader.ReadLine("agql> ")
		if err != nil {
			if err == io.EOF {
				return
			}
			continue
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		if quit := c.execute(ctx, cmd, args); quit {
			return
		}
	}
}

// execute runs one command. It returns true when the REPL should exit.
func (c *CLI) execute(ctx context.Context, cmd string, args []string) bool {
	var err error
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "info":
		err = c.cmdInfo(ctx, args)
	case "players":
		err = c.cmdPlayers(ctx, args)
	case "rules":
		err = c.cmdRules(ctx, args)
	case "master":
		err = c.cmdMaster(ctx, args)
	case "rcon":
		err = c.cmdRCON(ctx, args)
	case "quit", "exit", "q":
		fmt.Println("Shutting down agql...")
		if c.eventBus != nil {
			c.eventBus.Emit(ctx, events.Event{Type: events.EventShutdown, Source: "cli"})
		}
		return true
	default:
		fmt.Printf("Unknown command: %q. Type 'help' for available commands.\n", cmd)
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
	}
	return false
}

func (c *CLI) printHelp() {
	fmt.Println()
	fmt.Println("  info   <host:port>                    A2S_INFO")
	fmt.Println("  players <host:port>                   A2S_PLAYERS")
	fmt.Println("  rules  <host:port>                     A2S_RULES")
	fmt.Println("  master <host:port> [region] [filter]  iterate Valve master server")
	fmt.Println("  rcon   <host:port> <password> <cmd...> RCON command")
	fmt.Println("  quit                                   exit")
	fmt.Println()
}

func (c *CLI) cmdInfo(ctx context.Context, args []string) error {
	addr, err := requireAddr(args)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	info, err := c.engine.QueryInfo(ctx, addr)
	if err != nil {
		return err
	}

	fmt.Printf("\n  %s\n", info.Name)
	fmt.Printf("  map:     %s\n", info.Map)
	fmt.Printf("  game:    %s (appid %d)\n", info.Game, info.AppID)
	fmt.Printf("  players: %d/%d (%d bots)\n", info.Players, info.MaxPlayers, info.Bots)
	fmt.Printf("  version: %s\n\n", info.Version)
	return nil
}

func (c *CLI) cmdPlayers(ctx context.Context, args []string) error {
	addr, err := requireAddr(args)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	players, err := c.engine.QueryPlayers(ctx, addr)
	if err != nil {
		return err
	}

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Index", "Name", "Score", "Connected"})
	for _, p := range players {
		connectedSince := time.Now().Add(-time.Duration(p.Duration * float32(time.Second)))
		tw.Append([]string{
			strconv.Itoa(int(p.Index)),
			p.Name,
			strconv.Itoa(int(p.Score)),
			humanize.Time(connectedSince),
		})
	}
	tw.Render()
	return nil
}

func (c *CLI) cmdRules(ctx context.Context, args []string) error {
	addr, err := requireAddr(args)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rules, err := c.engine.QueryRules(ctx, addr)
	if err != nil {
		return err
	}

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Cvar", "Value"})
	for _, r := range rules {
		tw.Append([]string{r.Name, r.Value})
	}
	tw.Render()
	return nil
}

func (c *CLI) cmdMaster(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: master <host:port> [region] [filter]")
	}
	masterAddr, err := net.ResolveUDPAddr("udp", args[0])
	if err != nil {
		return fmt.Errorf("invalid master endpoint: %w", err)
	}

	region := master.RegionRest
	if len(args) > 1 {
		if r, err := strconv.Atoi(args[1]); err == nil {
			region = master.Region(r)
		}
	}
	filter := ""
	if len(args) > 2 {
		filter = strings.Join(args[2:], " ")
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	start := time.Now()
	addrs, err := c.engine.QueryMasterServer(ctx, masterAddr, region, filter, func(addr *net.UDPAddr, _ net.Addr, queryErr error) {
		if queryErr == nil {
			fmt.Printf("  %s\n", addr.String())
		}
	})
	if err != nil {
		return err
	}
	fmt.Printf("\n%d endpoints in %s\n\n", len(addrs), time.Since(start).Round(time.Millisecond))
	return nil
}

func (c *CLI) cmdRCON(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: rcon <host:port> <password> <command...>")
	}
	endpoint, password, command := args[0], args[1], strings.Join(args[2:], " ")

	conn, err := rcon.Dial(ctx, endpoint)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Authenticate(password); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	response, err := conn.Execute(command)
	if err != nil {
		return err
	}

	fmt.Printf("\n%s\n\n", response)
	return nil
}

func requireAddr(args []string) (*net.UDPAddr, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("endpoint required, e.g. 127.0.0.1:27015")
	}
	addr, err := net.ResolveUDPAddr("udp", args[0])
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	return addr, nil
}

// lineReader is a minimal cross-platform line reader, grounded on the same
// scan-line-at-a-time shape used throughout the teacher's CLI package.
type lineReader struct {
	r *bufio.Reader
}

func newLineReader() *lineReader { return &lineReader{r: bufio.NewReader(os.Stdin)} }

// ReadLine returns the whole input line, arguments included.
func (lr *lineReader) ReadLine(prompt string) (string, error) {
	fmt.Print(prompt)
	line, err := lr.r.ReadString('\n')
	if err == io.EOF && line != "" {
		return line, nil
	}
	return line, err
}

func (lr *lineReader) Close() error { return nil }
