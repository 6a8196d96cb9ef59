package nxblue_test

import (
	"context"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nxblue/nxblue-go/pkg/command"
	"github.com/nxblue/nxblue-go/pkg/connection"
	"github.com/nxblue/nxblue-go/pkg/controller"
	"github.com/nxblue/nxblue-go/pkg/device"
	"github.com/nxblue/nxblue-go/pkg/discovery"
	"github.com/nxblue/nxblue-go/pkg/log"
	"github.com/nxblue/nxblue-go/pkg/socket"
	"github.com/nxblue/nxblue-go/pkg/transport"
)

const brickAddress = "0016531B594D"

type accepted struct {
	sock   *socket.Socket
	events *socket.EventChannel
}

// runBrick starts a device manager and opens every accepted socket with
// an event channel attached.
func runBrick(t *testing.T, cfg device.Config) (*device.Manager, <-chan accepted) {
	t.Helper()
	m := device.NewManager(cfg)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { _ = m.Stop() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	out := make(chan accepted, 4)
	go func() {
		for {
			s, err := m.WaitForConnection(ctx)
			if err != nil {
				return
			}
			events := socket.NewEventChannel(16)
			if err := s.AddListener(events); err != nil {
				return
			}
			if err := s.Open(ctx); err != nil {
				return
			}
			out <- accepted{sock: s, events: events}
		}
	}()
	return m, out
}

func port(m *device.Manager) uint16 {
	return uint16(m.Addr().(*net.TCPAddr).Port)
}

func nextEvent(t *testing.T, events *socket.EventChannel, want socket.EventType) socket.Event {
	t.Helper()
	for {
		select {
		case ev, ok := <-events.C():
			require.True(t, ok, "event channel closed while waiting for %s", want)
			if ev.Type == want {
				return ev
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func nextAccepted(t *testing.T, ch <-chan accepted) accepted {
	t.Helper()
	select {
	case a := <-ch:
		return a
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a controller")
		return accepted{}
	}
}

// TestE2E_CommandExchange sends commands both ways between a controller
// and a brick over TCP.
func TestE2E_CommandExchange(t *testing.T) {
	for _, framing := range []transport.Framing{transport.FramingLine, transport.FramingUTF} {
		t.Run(framing.String(), func(t *testing.T) {
			brick, acceptedCh := runBrick(t, device.Config{
				Name:          "Ultron",
				Address:       brickAddress,
				ListenAddress: "127.0.0.1:0",
				Framing:       framing,
			})

			table, err := discovery.NewStaticTable(discovery.Peer{
				Name:    "Ultron",
				Address: brickAddress,
				Host:    "127.0.0.1",
				Port:    port(brick),
			})
			require.NoError(t, err)

			cfg := controller.DefaultConfig()
			cfg.Peers = table
			cfg.Framing = framing
			mgr := controller.NewManager(cfg)

			peers, err := mgr.GetAllNXTs(context.Background(), "Ult")
			require.NoError(t, err)
			require.Len(t, peers, 1)

			sock, err := mgr.CreateConnection(peers[0])
			require.NoError(t, err)
			ctrlEvents := socket.NewEventChannel(16)
			require.NoError(t, sock.AddListener(ctrlEvents))

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			require.NoError(t, sock.Open(ctx))
			nextEvent(t, ctrlEvents, socket.EventConnect)

			remote := nextAccepted(t, acceptedCh)
			nextEvent(t, remote.events, socket.EventConnect)

			// Controller to brick.
			move := command.New("MOVE", "10", "20")
			require.NoError(t, sock.SendCommand(move))
			got := nextEvent(t, remote.events, socket.EventCommand)
			assert.True(t, move.Equal(got.Command), "got %s", got.Command)

			// Brick to controller, with a delimiter inside a parameter.
			say := command.New("SAY", "hello;world", "")
			require.NoError(t, remote.sock.SendCommand(say))
			got = nextEvent(t, ctrlEvents, socket.EventCommand)
			assert.True(t, say.Equal(got.Command), "got %s", got.Command)

			require.NoError(t, sock.Close())
			nextEvent(t, ctrlEvents, socket.EventDisconnect)
			nextEvent(t, remote.events, socket.EventDisconnect)
		})
	}
}

// TestE2E_Reconnection restarts the brick and checks that a link comes
// back on a fresh socket, with both sockets recorded in the protocol log.
func TestE2E_Reconnection(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "controller"+log.FileExtension)
	fileLogger, err := log.NewFileLogger(logPath)
	require.NoError(t, err)
	defer fileLogger.Close()

	first, firstCh := runBrick(t, device.Config{ListenAddress: "127.0.0.1:0"})
	brickPort := port(first)

	cfg := controller.DefaultConfig()
	cfg.Reconnect = connection.Config{
		Backoff: connection.BackoffConfig{Initial: 20 * time.Millisecond, Max: 100 * time.Millisecond},
	}
	cfg.ProtocolLogger = fileLogger
	mgr := controller.NewManager(cfg)

	peer, err := mgr.GetNXT("Ultron", brickAddress)
	require.NoError(t, err)
	peer.Host = "127.0.0.1"
	peer.Port = brickPort

	link, err := mgr.NewLink(peer)
	require.NoError(t, err)
	defer link.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, link.Connect(ctx))
	firstSock := link.Socket()
	require.NotNil(t, firstSock)

	remote := nextAccepted(t, firstCh)
	require.NoError(t, link.SendCommand(command.New("PING")))
	got := nextEvent(t, remote.events, socket.EventCommand)
	assert.Equal(t, "PING", got.Command.Operation())

	// Take the brick down and bring it back on the same port.
	require.NoError(t, first.Stop())
	<-firstSock.Done()

	_, secondCh := runBrick(t, device.Config{ListenAddress: fmt.Sprintf("127.0.0.1:%d", brickPort)})
	remote = nextAccepted(t, secondCh)

	deadline := time.Now().Add(5 * time.Second)
	for link.State() != connection.StateConnected && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, connection.StateConnected, link.State())
	secondSock := link.Socket()
	require.NotNil(t, secondSock)
	assert.NotEqual(t, firstSock.ID(), secondSock.ID())

	require.NoError(t, link.SendCommand(command.New("PING")))
	got = nextEvent(t, remote.events, socket.EventCommand)
	assert.Equal(t, "PING", got.Command.Operation())

	require.NoError(t, link.Close())
	<-link.Done()
	require.NoError(t, fileLogger.Close())

	// Both sockets logged their commands under their own connection IDs.
	layer := log.LayerCommand
	reader, err := log.NewFilteredReader(logPath, log.Filter{Layer: &layer})
	require.NoError(t, err)
	defer reader.Close()

	conns := map[string]int{}
	for {
		ev, err := reader.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, log.RoleController, ev.LocalRole)
		assert.Equal(t, brickAddress, ev.PeerAddress)
		conns[ev.ConnectionID]++
	}
	assert.Equal(t, 1, conns[firstSock.ID()])
	assert.Equal(t, 1, conns[secondSock.ID()])
}
