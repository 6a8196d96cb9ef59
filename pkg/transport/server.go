package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
)

// DefaultPort is the default TCP port a device listens on.
const DefaultPort = 6174

// Server errors.
var (
	ErrServerRunning    = errors.New("server already running")
	ErrServerNotRunning = errors.New("server not running")
	ErrServerClosed     = errors.New("server closed")
)

// ServerConfig configures a Server.
type ServerConfig struct {
	// Address to listen on (e.g., ":6174" or "127.0.0.1:0").
	Address string

	// AcceptQueue is the number of accepted connections held until
	// Accept is called (default: 1). When the queue is full, further
	// connections wait in the kernel backlog.
	AcceptQueue int

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// OnError is called when accepting fails.
	OnError func(err error)
}

// Server accepts inbound TCP connections and hands them out one at a time
// through Accept.
type Server struct {
	config   ServerConfig
	listener net.Listener
	accepted chan *Conn

	// Active connections
	conns   map[*Conn]struct{}
	connsMu sync.RWMutex

	// State
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a new server. It does not listen until Start.
func NewServer(config ServerConfig) *Server {
	if config.Address == "" {
		config.Address = fmt.Sprintf(":%d", DefaultPort)
	}
	if config.AcceptQueue <= 0 {
		config.AcceptQueue = 1
	}

	return &Server{
		config:   config,
		accepted: make(chan *Conn, config.AcceptQueue),
		conns:    make(map[*Conn]struct{}),
	}
}

// Start listens on the configured address and begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return ErrServerRunning
	}

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.listener = listener
	s.running.Store(true)

	s.debugLog("transport: listening", "addr", listener.Addr().String())

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Stop stops accepting and closes every connection the server produced,
// including those not yet handed out by Accept.
func (s *Server) Stop() error {
	if !s.running.Swap(false) {
		return nil
	}

	s.cancel()
	s.listener.Close()

	s.connsMu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.connsMu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}

	s.wg.Wait()
	return nil
}

// Addr returns the listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ConnectionCount returns the number of open connections.
func (s *Server) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

// Accept blocks until an inbound connection is available, ctx is done, or
// the server stops.
func (s *Server) Accept(ctx context.Context) (*Conn, error) {
	if !s.running.Load() {
		return nil, ErrServerNotRunning
	}

	select {
	case conn := <-s.accepted:
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.ctx.Done():
		return nil, ErrServerClosed
	}
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		nc, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			if s.config.OnError != nil {
				s.config.OnError(fmt.Errorf("accept error: %w", err))
			}
			continue
		}

		conn := newConn(nc, s.untrack)
		s.connsMu.Lock()
		s.conns[conn] = struct{}{}
		s.connsMu.Unlock()

		s.debugLog("transport: accepted", "remote", nc.RemoteAddr().String())

		select {
		case s.accepted <- conn:
		case <-s.ctx.Done():
			conn.Close()
			return
		}
	}
}

func (s *Server) untrack(conn *Conn) {
	s.connsMu.Lock()
	delete(s.conns, conn)
	s.connsMu.Unlock()

	s.debugLog("transport: connection closed", "remote", conn.RemoteAddr().String())
}

func (s *Server) debugLog(msg string, args ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, args...)
	}
}
