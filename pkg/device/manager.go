package device

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/nxblue/nxblue-go/pkg/discovery"
	"github.com/nxblue/nxblue-go/pkg/log"
	"github.com/nxblue/nxblue-go/pkg/socket"
	"github.com/nxblue/nxblue-go/pkg/transport"
)

// Manager accepts controller connections.
type Manager struct {
	config Config

	mu         sync.RWMutex
	state      State
	server     *transport.Server
	advertised bool
}

// NewManager creates a manager. Nothing is opened until Start.
func NewManager(config Config) *Manager {
	if config.ListenAddress == "" {
		config.ListenAddress = DefaultConfig().ListenAddress
	}
	return &Manager{config: config}
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Start listens for connections and, when configured, advertises the
// brick. A manager can be started again after Stop.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateRunning {
		return ErrAlreadyStarted
	}
	if err := m.config.validate(); err != nil {
		return err
	}

	server := transport.NewServer(transport.ServerConfig{
		Address: m.config.ListenAddress,
		Logger:  m.config.Logger,
		OnError: func(err error) {
			m.debugLog("device: accept failed", "error", err)
		},
	})
	if err := server.Start(ctx); err != nil {
		return err
	}

	if m.config.Advertiser != nil {
		info := &discovery.AdvertiseInfo{
			Name:    m.config.Name,
			Address: m.config.Address,
			Port:    listenPort(server.Addr()),
			Framing: m.config.Framing.String(),
		}
		if err := m.config.Advertiser.Advertise(ctx, info); err != nil {
			_ = server.Stop()
			return fmt.Errorf("advertise: %w", err)
		}
		m.advertised = true
	}

	m.server = server
	m.state = StateRunning
	m.debugLog("device: started", "addr", server.Addr().String(), "name", m.config.Name)
	return nil
}

// WaitForConnection blocks until a controller connects and returns an
// unopened socket for it. Register listeners, then call Open.
func (m *Manager) WaitForConnection(ctx context.Context) (*socket.Socket, error) {
	conn, err := m.accept(ctx)
	if err != nil {
		return nil, err
	}
	return m.newSocket(conn), nil
}

// Accept blocks until a controller connects, registers listeners on its
// socket and opens it. If registering or opening fails the connection is
// closed and the error wraps ErrConnectionSetup.
func (m *Manager) Accept(ctx context.Context, listeners ...socket.Listener) (*socket.Socket, error) {
	conn, err := m.accept(ctx)
	if err != nil {
		return nil, err
	}

	sock := m.newSocket(conn)
	for _, l := range listeners {
		if err := sock.AddListener(l); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: %w", ErrConnectionSetup, err)
		}
	}
	if err := sock.Open(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionSetup, err)
	}
	return sock, nil
}

func (m *Manager) accept(ctx context.Context) (*transport.Conn, error) {
	m.mu.RLock()
	server := m.server
	running := m.state == StateRunning
	m.mu.RUnlock()

	if !running {
		return nil, ErrNotStarted
	}

	conn, err := server.Accept(ctx)
	if err != nil {
		if ctx.Err() == nil && m.State() != StateRunning {
			return nil, ErrNotStarted
		}
		return nil, err
	}

	m.debugLog("device: controller connected", "remote", conn.RemoteAddr().String())
	return conn, nil
}

func (m *Manager) newSocket(conn *transport.Conn) *socket.Socket {
	return socket.New(transport.Accepted(conn), socket.Config{
		Framing:        m.config.Framing,
		MaxMessageSize: m.config.MaxMessageSize,
		Role:           log.RoleDevice,
		Logger:         m.config.Logger,
		ProtocolLogger: m.config.ProtocolLogger,
	})
}

// Stop withdraws the advertisement, stops listening and closes every
// accepted connection.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateRunning {
		return ErrNotStarted
	}

	var advErr error
	if m.advertised {
		advErr = m.config.Advertiser.Stop()
		m.advertised = false
	}
	err := m.server.Stop()
	m.state = StateStopped

	m.debugLog("device: stopped")
	if advErr != nil {
		return fmt.Errorf("stop advertising: %w", advErr)
	}
	return err
}

// Addr returns the listen address, or nil when not running.
func (m *Manager) Addr() net.Addr {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateRunning {
		return nil
	}
	return m.server.Addr()
}

// ConnectionCount returns the number of open accepted connections.
func (m *Manager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.server == nil {
		return 0
	}
	return m.server.ConnectionCount()
}

func (m *Manager) debugLog(msg string, args ...any) {
	if m.config.Logger != nil {
		m.config.Logger.Debug(msg, args...)
	}
}

func listenPort(addr net.Addr) uint16 {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return uint16(tcp.Port)
	}
	return transport.DefaultPort
}
