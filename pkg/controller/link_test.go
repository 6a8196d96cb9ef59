package controller_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nxblue/nxblue-go/pkg/command"
	"github.com/nxblue/nxblue-go/pkg/connection"
	"github.com/nxblue/nxblue-go/pkg/controller"
	"github.com/nxblue/nxblue-go/pkg/device"
	"github.com/nxblue/nxblue-go/pkg/discovery"
	"github.com/nxblue/nxblue-go/pkg/socket"
)

// brickLoop accepts and opens every controller connection, forwarding
// the sockets on the returned channel.
func brickLoop(t *testing.T, m *device.Manager) <-chan *socket.Socket {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	out := make(chan *socket.Socket, 4)
	go func() {
		for {
			s, err := m.WaitForConnection(ctx)
			if err != nil {
				return
			}
			if err := s.Open(ctx); err != nil {
				return
			}
			out <- s
		}
	}()
	return out
}

func fastReconnect() connection.Config {
	return connection.Config{
		Backoff: connection.BackoffConfig{Initial: 10 * time.Millisecond, Max: 50 * time.Millisecond},
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestLinkReconnects(t *testing.T) {
	brick, port := startBrick(t)
	accepted := brickLoop(t, brick)

	mgr := controller.NewManager(controller.Config{Port: port, Reconnect: fastReconnect()})
	link, err := mgr.NewLink(discovery.Peer{Name: "Ultron", Address: "0016531B594D", Host: "127.0.0.1"})
	require.NoError(t, err)
	defer link.Close()

	var connects, disconnects atomic.Int32
	require.NoError(t, link.AddListener(&socket.ListenerFuncs{
		Connect:    func(*socket.Socket) { connects.Add(1) },
		Disconnect: func(*socket.Socket) { disconnects.Add(1) },
	}))

	assert.ErrorIs(t, link.SendCommand(command.New("PING")), controller.ErrNotConnected)

	require.NoError(t, link.Connect(context.Background()))
	assert.Equal(t, connection.StateConnected, link.State())
	first := link.Socket()
	require.NotNil(t, first)
	assert.Equal(t, "Ultron", first.Name())

	remote := <-accepted
	require.NoError(t, link.SendCommand(command.New("PING")))

	// Brick drops the connection.
	require.NoError(t, remote.Close())

	second := <-accepted
	waitFor(t, func() bool {
		s := link.Socket()
		return s != nil && s != first && link.State() == connection.StateConnected
	}, "link did not reconnect")

	assert.False(t, first.IsOpen())
	waitFor(t, func() bool { return connects.Load() == 2 }, "listener not carried over to the new socket")
	assert.EqualValues(t, 1, disconnects.Load())

	got := socket.NewEventChannel(4)
	require.NoError(t, second.AddListener(got))
	require.NoError(t, link.SendCommand(command.New("MOVE", "1", "2")))
	select {
	case ev := <-got.C():
		assert.Equal(t, "MOVE;1;2", ev.Command.String())
	case <-time.After(2 * time.Second):
		t.Fatal("command not received after reconnect")
	}
}

func TestLinkNoReconnect(t *testing.T) {
	brick, port := startBrick(t)
	accepted := brickLoop(t, brick)

	var mu sync.Mutex
	var states []connection.State
	reconnect := fastReconnect()
	reconnect.OnStateChange = func(_, to connection.State) {
		mu.Lock()
		states = append(states, to)
		mu.Unlock()
	}

	mgr := controller.NewManager(controller.Config{Port: port, Reconnect: reconnect, DisableReconnect: true})
	link, err := mgr.NewLink(discovery.Peer{Address: "0016531B594D", Host: "127.0.0.1"})
	require.NoError(t, err)
	defer link.Close()

	require.NoError(t, link.Connect(context.Background()))
	remote := <-accepted
	require.NoError(t, remote.Close())

	waitFor(t, func() bool { return link.State() == connection.StateDisconnected }, "link did not report loss")
	assert.Nil(t, link.Socket())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []connection.State{
		connection.StateConnecting,
		connection.StateConnected,
		connection.StateDisconnected,
	}, states)
}

func TestLinkConnectFailure(t *testing.T) {
	mgr := controller.NewManager(controller.Config{Port: 1, Reconnect: fastReconnect()})
	link, err := mgr.NewLink(discovery.Peer{Address: "0016531B594D", Host: "127.0.0.1"})
	require.NoError(t, err)
	defer link.Close()

	err = link.Connect(context.Background())
	assert.ErrorIs(t, err, socket.ErrTransport)
	assert.Equal(t, connection.StateDisconnected, link.State())
	assert.Nil(t, link.Socket())
}

func TestLinkClose(t *testing.T) {
	brick, port := startBrick(t)
	accepted := brickLoop(t, brick)

	mgr := controller.NewManager(controller.Config{Port: port, Reconnect: fastReconnect()})
	link, err := mgr.NewLink(discovery.Peer{Address: "0016531B594D", Host: "127.0.0.1"})
	require.NoError(t, err)

	require.NoError(t, link.Connect(context.Background()))
	<-accepted
	sock := link.Socket()

	require.NoError(t, link.Close())
	require.NoError(t, link.Close())

	assert.False(t, sock.IsOpen())
	select {
	case <-link.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("link not done after Close")
	}
	select {
	case <-sock.Done():
	default:
		t.Fatal("link done before its socket")
	}
	assert.Equal(t, connection.StateClosed, link.State())
	assert.ErrorIs(t, link.Connect(context.Background()), connection.ErrClosed)
}

func TestLinkListenerRegistration(t *testing.T) {
	mgr := controller.NewManager(controller.Config{})
	link, err := mgr.NewLink(discovery.Peer{Address: "0016531B594D"})
	require.NoError(t, err)
	defer link.Close()

	l := &socket.ListenerFuncs{}
	require.NoError(t, link.AddListener(l))
	assert.ErrorIs(t, link.AddListener(l), socket.ErrListenerRegistered)
	assert.ErrorIs(t, link.AddListener(nil), socket.ErrNilListener)

	_, err = mgr.NewLink(discovery.Peer{Address: "zz"})
	assert.ErrorIs(t, err, discovery.ErrInvalidAddress)
}

// connectedLink returns a connected link and the brick-side socket.
func connectedLink(t *testing.T) (*controller.Link, *socket.Socket) {
	t.Helper()
	brick, port := startBrick(t)
	accepted := brickLoop(t, brick)

	mgr := controller.NewManager(controller.Config{Port: port, Reconnect: fastReconnect()})
	link, err := mgr.NewLink(discovery.Peer{Name: "Ultron", Address: "0016531B594D", Host: "127.0.0.1"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = link.Close() })

	require.NoError(t, link.Connect(context.Background()))
	select {
	case remote := <-accepted:
		return link, remote
	case <-time.After(2 * time.Second):
		t.Fatal("brick did not accept")
		return nil, nil
	}
}

func TestLinkReplyWhileAddingListener(t *testing.T) {
	link, remote := connectedLink(t)

	dispatching := make(chan struct{})
	replied := make(chan error, 1)
	require.NoError(t, link.AddListener(&socket.ListenerFuncs{
		CommandReceived: func(_ *socket.Socket, cmd command.Command) {
			if !cmd.Is("PING") {
				return
			}
			close(dispatching)
			time.Sleep(100 * time.Millisecond)
			replied <- link.SendCommand(command.New("PONG"))
		},
	}))

	brickEvents := socket.NewEventChannel(4)
	require.NoError(t, remote.AddListener(brickEvents))
	require.NoError(t, remote.Send("PING"))

	<-dispatching
	added := make(chan error, 1)
	go func() { added <- link.AddListener(&socket.ListenerFuncs{}) }()

	select {
	case err := <-replied:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reply blocked by a concurrent AddListener")
	}
	select {
	case err := <-added:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("AddListener blocked")
	}

	select {
	case ev := <-brickEvents.C():
		assert.Equal(t, "PONG", ev.Command.Operation())
	case <-time.After(2 * time.Second):
		t.Fatal("brick did not receive the reply")
	}
}

func TestLinkCloseFromCallback(t *testing.T) {
	link, remote := connectedLink(t)

	closed := make(chan error, 1)
	require.NoError(t, link.AddListener(&socket.ListenerFuncs{
		CommandReceived: func(_ *socket.Socket, cmd command.Command) {
			if cmd.Is("BYE") {
				closed <- link.Close()
			}
		},
	}))

	require.NoError(t, remote.Send("BYE"))

	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close from a callback did not return")
	}
	select {
	case <-link.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("link not done after Close")
	}
	assert.Equal(t, connection.StateClosed, link.State())
	assert.Nil(t, link.Socket())
}

func TestLinkCloseFromDisconnect(t *testing.T) {
	link, remote := connectedLink(t)

	closed := make(chan error, 1)
	require.NoError(t, link.AddListener(&socket.ListenerFuncs{
		Disconnect: func(*socket.Socket) { closed <- link.Close() },
	}))

	require.NoError(t, remote.Close())

	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close from OnDisconnect did not return")
	}
	select {
	case <-link.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("link not done after Close")
	}
	assert.Equal(t, connection.StateClosed, link.State())
}

func TestLinkRemoveListener(t *testing.T) {
	link, remote := connectedLink(t)

	var got atomic.Int32
	l := &socket.ListenerFuncs{
		CommandReceived: func(*socket.Socket, command.Command) { got.Add(1) },
	}
	require.NoError(t, link.AddListener(l))

	require.NoError(t, remote.Send("PING"))
	waitFor(t, func() bool { return got.Load() == 1 }, "listener not called")

	require.NoError(t, link.RemoveListener(l))
	assert.ErrorIs(t, link.RemoveListener(l), socket.ErrListenerNotRegistered)
	assert.ErrorIs(t, link.RemoveListener(nil), socket.ErrNilListener)
	assert.Equal(t, 0, link.Socket().ListenerCount())

	// A marker listener shows that later commands are still dispatched.
	marker := socket.NewEventChannel(4)
	require.NoError(t, link.AddListener(marker))
	require.NoError(t, remote.Send("PING"))
	select {
	case <-marker.C():
	case <-time.After(2 * time.Second):
		t.Fatal("command not dispatched")
	}
	assert.EqualValues(t, 1, got.Load())

	// Removed listeners are not carried over to a reconnected socket.
	first := link.Socket()
	require.NoError(t, remote.Close())
	waitFor(t, func() bool {
		s := link.Socket()
		return s != nil && s != first
	}, "link did not reconnect")
	assert.Equal(t, 1, link.Socket().ListenerCount())
}
