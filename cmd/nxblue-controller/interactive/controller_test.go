package interactive

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nxblue/nxblue-go/pkg/command"
	"github.com/nxblue/nxblue-go/pkg/controller"
	"github.com/nxblue/nxblue-go/pkg/device"
	"github.com/nxblue/nxblue-go/pkg/discovery"
	"github.com/nxblue/nxblue-go/pkg/socket"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// startPongBrick runs a brick on loopback that answers PING with PONG.
func startPongBrick(t *testing.T) uint16 {
	t.Helper()
	m := device.NewManager(device.Config{ListenAddress: "127.0.0.1:0"})
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { _ = m.Stop() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		for {
			s, err := m.WaitForConnection(ctx)
			if err != nil {
				return
			}
			_ = s.AddListener(&socket.ListenerFuncs{
				CommandReceived: func(s *socket.Socket, cmd command.Command) {
					if cmd.Is("PING") {
						_ = s.Send("PONG")
					}
				},
			})
			if err := s.Open(ctx); err != nil {
				return
			}
		}
	}()
	return uint16(m.Addr().(*net.TCPAddr).Port)
}

func newTestController(t *testing.T, peers ...discovery.Peer) (*Controller, *syncBuffer) {
	t.Helper()
	table, err := discovery.NewStaticTable(peers...)
	require.NoError(t, err)

	cfg := controller.DefaultConfig()
	cfg.Peers = table
	cfg.DisableReconnect = true

	out := &syncBuffer{}
	c := NewBatch(controller.NewManager(cfg), out)
	t.Cleanup(c.Close)
	return c, out
}

func eventually(t *testing.T, out *syncBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(out.String(), want) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("output does not contain %q:\n%s", want, out.String())
}

func TestSearchAndConnectByIndex(t *testing.T) {
	port := startPongBrick(t)
	c, out := newTestController(t,
		discovery.Peer{Name: "Ultron", Address: "0016531B594D", Host: "127.0.0.1", Port: port},
		discovery.Peer{Name: "Vision", Address: "001653000002", Host: "127.0.0.1", Port: 1},
	)
	ctx := context.Background()

	assert.True(t, c.Execute(ctx, "search Ult"))
	assert.Contains(t, out.String(), "Found 1 brick(s)")
	assert.Contains(t, out.String(), "00:16:53:1B:59:4D")

	assert.True(t, c.Execute(ctx, "connect 1"))
	eventually(t, out, "Connected (")

	assert.True(t, c.Execute(ctx, "send ping"))
	assert.Contains(t, out.String(), "-> PING")
	eventually(t, out, "<- PONG")

	assert.True(t, c.Execute(ctx, "status"))
	assert.Contains(t, out.String(), "State: CONNECTED")

	assert.True(t, c.Execute(ctx, "close"))
	assert.Contains(t, out.String(), "Closed connection to Ultron")
}

func TestConnectByAddress(t *testing.T) {
	port := startPongBrick(t)
	c, out := newTestController(t)
	ctx := context.Background()

	c.Execute(ctx, fmt.Sprintf("connect Ultron 00:16:53:1B:59:4D 127.0.0.1:%d", port))
	eventually(t, out, "Connected (")

	c.Execute(ctx, "raw PING")
	eventually(t, out, "<- PONG")
}

func TestCommandErrors(t *testing.T) {
	c, out := newTestController(t)
	ctx := context.Background()

	tests := []struct {
		line string
		want string
	}{
		{"send MOVE 1 2", "Not connected"},
		{"send", "Usage: send"},
		{"raw", "Usage: raw"},
		{`raw MOVE;1\`, "Invalid line"},
		{"connect 3", "no search result 3"},
		{"connect x", "usage: connect"},
		{"connect Ultron 12", "invalid hardware address"},
		{"connect Ultron 0016531B594D 127.0.0.1:99999", "invalid port"},
		{"status", "Not connected."},
		{"dance", "Unknown command: dance"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.True(t, c.Execute(ctx, tt.line))
			assert.Contains(t, out.String(), tt.want)
		})
	}
}

func TestQuit(t *testing.T) {
	c, _ := newTestController(t)
	assert.False(t, c.Execute(context.Background(), "quit"))
	assert.True(t, c.Execute(context.Background(), "   "))
}

func TestSplitHostPort(t *testing.T) {
	host, port, err := splitHostPort("10.0.0.2:7000")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", host)
	assert.Equal(t, uint16(7000), port)

	host, port, err = splitHostPort("brick.local")
	require.NoError(t, err)
	assert.Equal(t, "brick.local", host)
	assert.Zero(t, port)
}
