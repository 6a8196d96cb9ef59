package controller

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"sync"

	"github.com/nxblue/nxblue-go/pkg/command"
	"github.com/nxblue/nxblue-go/pkg/connection"
	"github.com/nxblue/nxblue-go/pkg/discovery"
	"github.com/nxblue/nxblue-go/pkg/socket"
)

// Link is a reconnecting connection to one brick. Every (re)connect
// creates and opens a fresh socket; listeners added to the Link are
// registered on each of them before Open, so they see OnConnect and
// OnDisconnect once per underlying socket.
type Link struct {
	mgr  *Manager
	peer discovery.Peer
	conn *connection.Manager

	mu        sync.Mutex
	sock      *socket.Socket
	listeners []socket.Listener
	closed    bool
	done      chan struct{}
}

// NewLink creates a link to peer. Call Connect to establish the first
// connection.
func (m *Manager) NewLink(peer discovery.Peer) (*Link, error) {
	addr, err := discovery.NormalizeAddress(peer.Address)
	if err != nil {
		return nil, err
	}
	peer.Address = addr

	l := &Link{mgr: m, peer: peer, done: make(chan struct{})}

	cfg := m.config.Reconnect
	cfg.AutoReconnect = !m.config.DisableReconnect
	if cfg.Logger == nil {
		cfg.Logger = m.config.Logger
	}
	userHook := cfg.OnStateChange
	cfg.OnStateChange = func(from, to connection.State) {
		if userHook != nil {
			userHook(from, to)
		}
		if to == connection.StateConnected {
			l.checkAlive()
		}
	}

	l.conn = connection.NewManager(l.connect, cfg)
	return l, nil
}

// Peer returns the brick this link connects to.
func (l *Link) Peer() discovery.Peer {
	return l.peer
}

// State returns the link state.
func (l *Link) State() connection.State {
	return l.conn.State()
}

// Connect opens the first connection. A failure is returned without
// retrying; retries start only after an established connection drops.
func (l *Link) Connect(ctx context.Context) error {
	return l.conn.Connect(ctx)
}

// Socket returns the current socket, or nil while disconnected.
func (l *Link) Socket() *socket.Socket {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sock
}

// AddListener registers listener on the current socket, if any, and on
// every future one. Like socket.AddListener, it must not be called from a
// callback of the link's current socket.
func (l *Link) AddListener(listener socket.Listener) error {
	if listener == nil {
		return socket.ErrNilListener
	}
	if !reflect.TypeOf(listener).Comparable() {
		return socket.ErrListenerNotComparable
	}

	l.mu.Lock()
	if slices.Contains(l.listeners, listener) {
		l.mu.Unlock()
		return socket.ErrListenerRegistered
	}
	l.listeners = append(l.listeners, listener)
	sock := l.sock
	l.mu.Unlock()

	// The socket's listener lock is held during dispatch, so it is never
	// taken while holding l.mu.
	if sock != nil {
		if err := sock.AddListener(listener); err != nil && !errors.Is(err, socket.ErrListenerRegistered) {
			return err
		}
	}
	return nil
}

// RemoveListener unregisters listener from the current socket and from
// future ones. The same callback restriction as AddListener applies.
func (l *Link) RemoveListener(listener socket.Listener) error {
	if listener == nil {
		return socket.ErrNilListener
	}
	if !reflect.TypeOf(listener).Comparable() {
		return socket.ErrListenerNotComparable
	}

	l.mu.Lock()
	i := slices.Index(l.listeners, listener)
	if i < 0 {
		l.mu.Unlock()
		return socket.ErrListenerNotRegistered
	}
	l.listeners = slices.Delete(l.listeners, i, i+1)
	sock := l.sock
	l.mu.Unlock()

	if sock != nil {
		if err := sock.RemoveListener(listener); err != nil && !errors.Is(err, socket.ErrListenerNotRegistered) {
			return err
		}
	}
	return nil
}

// SendCommand sends cmd on the current socket.
func (l *Link) SendCommand(cmd command.Command) error {
	sock := l.Socket()
	if sock == nil {
		return ErrNotConnected
	}
	return sock.SendCommand(cmd)
}

// Close stops reconnecting and closes the current socket. It does not
// wait for the socket's OnDisconnect, so it may be called from a listener
// callback; use Done to wait.
func (l *Link) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	sock := l.sock
	l.sock = nil
	l.mu.Unlock()

	l.conn.Close()
	if sock == nil {
		close(l.done)
		return nil
	}
	_ = sock.Close()
	go func() {
		sock.Wait()
		close(l.done)
	}()
	return nil
}

// Done returns a channel that is closed once the link has been closed and
// its last socket has delivered OnDisconnect.
func (l *Link) Done() <-chan struct{} {
	return l.done
}

func (l *Link) connect(ctx context.Context) error {
	sock, err := l.mgr.CreateConnection(l.peer)
	if err != nil {
		return err
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLinkClosed
	}
	listeners := slices.Clone(l.listeners)
	l.mu.Unlock()

	for _, listener := range listeners {
		if err := sock.AddListener(listener); err != nil {
			return err
		}
	}
	if err := sock.Open(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		_ = sock.Close()
		return ErrLinkClosed
	}
	l.sock = sock
	added := without(l.listeners, listeners)
	removed := without(listeners, l.listeners)
	l.mu.Unlock()

	// Listeners changed while the socket was opening.
	for _, listener := range added {
		_ = sock.AddListener(listener)
	}
	for _, listener := range removed {
		_ = sock.RemoveListener(listener)
	}

	go l.watch(sock)
	return nil
}

// without returns the elements of a that are not in b.
func without(a, b []socket.Listener) []socket.Listener {
	var out []socket.Listener
	for _, x := range a {
		if !slices.Contains(b, x) {
			out = append(out, x)
		}
	}
	return out
}

func (l *Link) watch(sock *socket.Socket) {
	<-sock.Done()

	l.mu.Lock()
	if l.sock == sock {
		l.sock = nil
	}
	l.mu.Unlock()

	l.mgr.debugLog("controller: link lost", "peer", l.peer.String())
	l.conn.ConnectionLost()
}

// checkAlive reports a loss that happened before the manager reached
// CONNECTED, which ConnectionLost would otherwise ignore.
func (l *Link) checkAlive() {
	l.mu.Lock()
	sock := l.sock
	l.mu.Unlock()

	if sock == nil || !sock.IsOpen() {
		l.conn.ConnectionLost()
	}
}
