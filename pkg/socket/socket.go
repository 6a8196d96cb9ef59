package socket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/nxblue/nxblue-go/pkg/command"
	"github.com/nxblue/nxblue-go/pkg/log"
	"github.com/nxblue/nxblue-go/pkg/transport"
)

// State is the socket lifecycle state.
type State int32

const (
	// StateClosed indicates no usable stream.
	StateClosed State = iota

	// StateOpen indicates a connected stream with a running receive loop.
	StateOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// Socket errors.
var (
	// ErrNotOpen is returned when sending on a socket that is not open.
	ErrNotOpen = errors.New("socket not open")

	// ErrAlreadyUsed is returned when opening a socket a second time.
	ErrAlreadyUsed = errors.New("socket already used")

	// ErrTransport wraps connector failures during Open.
	ErrTransport = errors.New("transport error")

	// ErrWriteFailed wraps stream write failures. The socket is closed.
	ErrWriteFailed = errors.New("write failed")

	// ErrInvalidCommand is returned for commands that cannot be sent.
	// The socket stays open.
	ErrInvalidCommand = errors.New("invalid command")
)

// Config configures a Socket.
type Config struct {
	// Framing selects message framing (default: transport.FramingLine).
	Framing transport.Framing

	// MaxMessageSize bounds a single message (default: transport.DefaultMaxMessageSize).
	MaxMessageSize int

	// Name and Address identify the remote brick, when known.
	Name    string
	Address string

	// Role is the local end of the link, recorded in protocol events.
	Role log.Role

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger receives protocol events (optional).
	ProtocolLogger log.Logger
}

// Socket is a single-use, message-oriented channel over a stream.
type Socket struct {
	id        string
	config    Config
	connector transport.Connector

	// Lifecycle, guarded by mu. state is also read without the lock.
	mu         sync.Mutex
	state      atomic.Int32
	used       bool
	stream     transport.Stream
	framer     *transport.Framer
	remoteAddr net.Addr
	ctx        context.Context
	cancel     context.CancelFunc

	writeMu sync.Mutex

	listenersMu sync.Mutex
	listeners   []Listener

	done chan struct{}
}

// New creates a closed socket that connects through connector when opened.
func New(connector transport.Connector, config Config) *Socket {
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = transport.DefaultMaxMessageSize
	}

	s := &Socket{
		id:        uuid.New().String(),
		config:    config,
		connector: connector,
		done:      make(chan struct{}),
	}
	s.state.Store(int32(StateClosed))
	return s
}

// ID returns the unique connection identifier.
func (s *Socket) ID() string {
	return s.id
}

// Name returns the remote brick name, if known.
func (s *Socket) Name() string {
	return s.config.Name
}

// Address returns the remote brick hardware address, if known.
func (s *Socket) Address() string {
	return s.config.Address
}

// State returns the current lifecycle state.
func (s *Socket) State() State {
	return State(s.state.Load())
}

// IsOpen reports whether the socket is open.
func (s *Socket) IsOpen() bool {
	return s.State() == StateOpen
}

// RemoteAddr returns the network address of the peer, or nil when the
// stream does not expose one or the socket was never opened.
func (s *Socket) RemoteAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteAddr
}

// Done returns a channel that is closed after OnDisconnect has been
// delivered. It is never closed if the socket is never opened.
func (s *Socket) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the receive loop has finished.
func (s *Socket) Wait() {
	<-s.done
}

// Open connects the stream and starts the receive loop. ctx bounds
// connection establishment only.
//
// On failure the socket stays closed and may be opened again. Once a
// socket has been opened successfully, Open returns ErrAlreadyUsed.
func (s *Socket) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.used {
		s.mu.Unlock()
		return ErrAlreadyUsed
	}
	s.used = true
	s.mu.Unlock()

	stream, err := s.connect(ctx)
	if err != nil {
		s.mu.Lock()
		s.used = false
		s.mu.Unlock()

		s.logError(log.LayerTransport, err, "open")
		s.debugLog("socket: open failed", "error", err)
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	framer := transport.NewFramer(stream, s.config.Framing, s.config.MaxMessageSize)
	if s.config.ProtocolLogger != nil {
		framer.SetLogger(s.config.ProtocolLogger, s.id)
	}

	s.mu.Lock()
	s.stream = stream
	s.framer = framer
	if ra, ok := stream.(transport.RemoteAddresser); ok {
		s.remoteAddr = ra.RemoteAddr()
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.state.Store(int32(StateOpen))
	s.mu.Unlock()

	s.logState(StateClosed, StateOpen, "")
	s.debugLog("socket: opened", "remote", addrString(s.remoteAddr))

	go s.receiveLoop(s.ctx)
	return nil
}

func (s *Socket) connect(ctx context.Context) (transport.Stream, error) {
	if s.connector == nil {
		return nil, errors.New("no connector")
	}
	stream, err := s.connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	if stream == nil {
		return nil, errors.New("connector returned no stream")
	}
	return stream, nil
}

// Close closes the socket. It is safe to call at any time and from any
// goroutine, including listener callbacks; only the first call on an open
// socket has an effect. Stream release errors are logged, not returned.
//
// OnDisconnect is delivered asynchronously by the receive loop; use Wait
// to block until it has run.
func (s *Socket) Close() error {
	s.closeWithReason("closed locally")
	return nil
}

// closeWithReason moves the socket from open to closed and releases the
// stream. It reports whether this call performed the transition.
func (s *Socket) closeWithReason(reason string) bool {
	s.mu.Lock()
	if s.State() != StateOpen {
		s.mu.Unlock()
		return false
	}
	s.state.Store(int32(StateClosed))
	s.cancel()
	stream := s.stream
	s.mu.Unlock()

	if err := stream.Close(); err != nil {
		s.debugLog("socket: stream close failed", "error", err)
	}

	s.logState(StateOpen, StateClosed, reason)
	s.debugLog("socket: closed", "reason", reason)
	return true
}

// SendCommand encodes cmd and writes it as one message.
//
// It returns ErrNotOpen without writing when the socket is not open, and
// ErrInvalidCommand when cmd cannot be encoded or framed. If the write
// fails the socket closes itself and the returned error wraps
// ErrWriteFailed.
func (s *Socket) SendCommand(cmd command.Command) error {
	if !s.IsOpen() {
		return ErrNotOpen
	}

	line, err := command.Encode(cmd)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// Close may have won the race while we waited for the write lock.
	if !s.IsOpen() {
		return ErrNotOpen
	}

	if err := s.framer.WriteMessage(line); err != nil {
		if errors.Is(err, transport.ErrMessageTooLarge) || errors.Is(err, transport.ErrInvalidMessage) {
			return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
		}
		s.logError(log.LayerTransport, err, "send")
		s.closeWithReason("write: " + err.Error())
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	s.logCommand(cmd, log.DirectionOut)
	return nil
}

// Send builds a command from op and params and sends it.
func (s *Socket) Send(op string, params ...string) error {
	return s.SendCommand(command.New(op, params...))
}

func (s *Socket) debugLog(msg string, args ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, append([]any{"conn_id", s.id}, args...)...)
	}
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
