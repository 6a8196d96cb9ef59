// Package interactive provides the interactive shell for nxblue-controller.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"

	"github.com/nxblue/nxblue-go/pkg/command"
	"github.com/nxblue/nxblue-go/pkg/connection"
	"github.com/nxblue/nxblue-go/pkg/controller"
	"github.com/nxblue/nxblue-go/pkg/discovery"
	"github.com/nxblue/nxblue-go/pkg/socket"
)

// Controller handles interactive mode for nxblue-controller.
type Controller struct {
	mgr *controller.Manager
	rl  *readline.Instance
	out io.Writer

	mu      sync.Mutex
	results []discovery.Peer
	link    *controller.Link
}

// New creates a new interactive controller.
func New(mgr *controller.Manager) (*Controller, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "nxt> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Controller{mgr: mgr, rl: rl, out: rl.Stdout()}, nil
}

// NewBatch creates a controller without a prompt that writes to out.
// Use Execute to run single commands.
func NewBatch(mgr *controller.Manager, out io.Writer) *Controller {
	return &Controller{mgr: mgr, out: out}
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (c *Controller) Stdout() io.Writer {
	return c.out
}

// Close closes the current connection, if any.
func (c *Controller) Close() {
	c.closeLink()
}

// Run starts the interactive command loop.
func (c *Controller) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()
	defer c.closeLink()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if !c.Execute(ctx, line) {
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
	}
}

// Execute runs one command line. It returns false when the shell
// should exit.
func (c *Controller) Execute(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return true
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()

	case "search", "s":
		c.cmdSearch(ctx, args)

	case "connect", "c":
		c.cmdConnect(ctx, args)

	case "send":
		c.cmdSend(args)

	case "raw":
		c.cmdRaw(strings.TrimSpace(strings.TrimPrefix(input, parts[0])))

	case "status":
		c.cmdStatus()

	case "close":
		c.closeLink()

	case "quit", "exit", "q":
		return false

	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (c *Controller) printHelp() {
	fmt.Fprintln(c.out, `
nxblue Controller Commands:
  Discovery:
    search [filter]              - Search for bricks (filter matches a name substring)

  Connection:
    connect <n>                  - Connect to result n of the last search
    connect <name> <addr> [host] - Connect to a brick by name and address (host[:port] optional)
    status                       - Show connection status
    close                        - Close the connection

  Commands:
    send <OP> [params...]        - Send a command (e.g. send MOVE 50 -50)
    raw <line>                   - Send a wire line as is (e.g. raw BEEP;440)

  General:
    help                         - Show this help
    quit                         - Exit controller`)
}

func (c *Controller) cmdSearch(ctx context.Context, args []string) {
	filter := strings.Join(args, " ")

	fmt.Fprintln(c.out, "Searching...")
	peers, err := c.mgr.GetAllNXTs(ctx, filter)
	if err != nil {
		fmt.Fprintf(c.out, "Search failed: %v\n", err)
		return
	}

	c.mu.Lock()
	c.results = peers
	c.mu.Unlock()

	if len(peers) == 0 {
		fmt.Fprintln(c.out, "No bricks found.")
		return
	}
	fmt.Fprintf(c.out, "Found %d brick(s):\n", len(peers))
	for i, p := range peers {
		where := "unresolved"
		if addr, err := p.DialAddress(0); err == nil {
			where = addr
		}
		fmt.Fprintf(c.out, "  [%d] %-20s %s  %s\n", i+1, p.Name, discovery.FormatAddress(p.Address), where)
	}
}

func (c *Controller) cmdConnect(ctx context.Context, args []string) {
	peer, err := c.peerFromArgs(args)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}

	c.closeLink()

	link, err := c.mgr.NewLink(peer)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	if err := link.AddListener(c.listener()); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}

	fmt.Fprintf(c.out, "Connecting to %s...\n", peer)
	if err := link.Connect(ctx); err != nil {
		link.Close()
		fmt.Fprintf(c.out, "Connect failed: %v\n", err)
		return
	}

	c.mu.Lock()
	c.link = link
	c.mu.Unlock()
}

// peerFromArgs resolves "connect" arguments to a peer.
func (c *Controller) peerFromArgs(args []string) (discovery.Peer, error) {
	switch len(args) {
	case 1:
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return discovery.Peer{}, errors.New("usage: connect <n> | connect <name> <addr> [host[:port]]")
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if n < 1 || n > len(c.results) {
			return discovery.Peer{}, fmt.Errorf("no search result %d", n)
		}
		return c.results[n-1], nil

	case 2, 3:
		peer, err := c.mgr.GetNXT(args[0], args[1])
		if err != nil {
			return discovery.Peer{}, err
		}
		if len(args) == 3 {
			peer.Host, peer.Port, err = splitHostPort(args[2])
			if err != nil {
				return discovery.Peer{}, err
			}
		}
		return peer, nil

	default:
		return discovery.Peer{}, errors.New("usage: connect <n> | connect <name> <addr> [host[:port]]")
	}
}

func (c *Controller) cmdSend(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(c.out, "Usage: send <OP> [params...]")
		return
	}
	c.send(command.New(strings.ToUpper(args[0]), args[1:]...))
}

func (c *Controller) cmdRaw(line string) {
	if line == "" {
		fmt.Fprintln(c.out, "Usage: raw <line>")
		return
	}
	cmd, err := command.Decode(line)
	if err != nil {
		fmt.Fprintf(c.out, "Invalid line: %v\n", err)
		return
	}
	c.send(cmd)
}

func (c *Controller) send(cmd command.Command) {
	c.mu.Lock()
	link := c.link
	c.mu.Unlock()

	if link == nil {
		fmt.Fprintln(c.out, "Not connected. Use 'connect' first.")
		return
	}
	if err := link.SendCommand(cmd); err != nil {
		fmt.Fprintf(c.out, "Send failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "-> %s\n", cmd)
}

func (c *Controller) cmdStatus() {
	c.mu.Lock()
	link := c.link
	c.mu.Unlock()

	if link == nil {
		fmt.Fprintln(c.out, "Not connected.")
		return
	}

	fmt.Fprintf(c.out, "Peer:  %s\n", link.Peer())
	fmt.Fprintf(c.out, "State: %s\n", link.State())
	if sock := link.Socket(); sock != nil {
		fmt.Fprintf(c.out, "Conn:  %s\n", sock.ID())
		if addr := sock.RemoteAddr(); addr != nil {
			fmt.Fprintf(c.out, "Remote: %s\n", addr)
		}
	}
}

func (c *Controller) closeLink() {
	c.mu.Lock()
	link := c.link
	c.link = nil
	c.mu.Unlock()

	if link == nil {
		return
	}
	if err := link.Close(); err != nil {
		fmt.Fprintf(c.out, "Close failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Closed connection to %s\n", link.Peer())
}

func (c *Controller) listener() socket.Listener {
	return &socket.ListenerFuncs{
		Connect: func(s *socket.Socket) {
			fmt.Fprintf(c.out, "[%s] Connected (%s)\n", time.Now().Format("15:04:05"), s.ID())
		},
		CommandReceived: func(s *socket.Socket, cmd command.Command) {
			fmt.Fprintf(c.out, "<- %s\n", cmd)
		},
		Disconnect: func(s *socket.Socket) {
			fmt.Fprintf(c.out, "[%s] Disconnected\n", time.Now().Format("15:04:05"))
		},
	}
}

// OnStateChange prints link state transitions. Pass it as the
// controller's reconnect callback.
func (c *Controller) OnStateChange(from, to connection.State) {
	if to == connection.StateReconnecting {
		fmt.Fprintf(c.out, "Link lost (%s -> %s)\n", from, to)
	}
}

// OnReconnecting prints each reconnect attempt.
func (c *Controller) OnReconnecting(attempt int, delay time.Duration) {
	fmt.Fprintf(c.out, "Reconnecting in %s (attempt %d)...\n", delay.Round(time.Millisecond), attempt)
}

func splitHostPort(s string) (string, uint16, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return s, 0, nil
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	return host, uint16(port), nil
}
