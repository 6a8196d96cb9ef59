package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Manager errors.
var (
	ErrClosed           = errors.New("connection manager closed")
	ErrAlreadyConnected = errors.New("already connected")
	ErrConnecting       = errors.New("connection attempt in progress")
)

// DefaultAttemptTimeout bounds a single reconnect attempt.
const DefaultAttemptTimeout = 30 * time.Second

// State is the manager's view of the link.
type State uint8

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ConnectFunc establishes one connection. It returns nil once the
// connection is usable.
type ConnectFunc func(ctx context.Context) error

// Config configures a Manager.
type Config struct {
	// Backoff schedules reconnect attempts. Zero value means
	// DefaultBackoffConfig.
	Backoff BackoffConfig

	// AttemptTimeout bounds each reconnect attempt (default 30s).
	AttemptTimeout time.Duration

	// AutoReconnect retries after ConnectionLost. Set with
	// DefaultConfig; a zero Config does not reconnect.
	AutoReconnect bool

	// OnStateChange is called after every transition, outside the
	// manager's lock.
	OnStateChange func(from, to State)

	// OnReconnecting is called before each reconnect delay.
	OnReconnecting func(attempt int, delay time.Duration)

	// Logger for debug output. If nil, logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns a configuration with auto-reconnect enabled.
func DefaultConfig() Config {
	return Config{
		Backoff:        DefaultBackoffConfig(),
		AttemptTimeout: DefaultAttemptTimeout,
		AutoReconnect:  true,
	}
}

// Manager drives a ConnectFunc through the connect, lose, reconnect
// cycle.
type Manager struct {
	cfg       Config
	connectFn ConnectFunc
	backoff   *Backoff

	mu            sync.Mutex
	state         State
	autoReconnect bool

	ctx         context.Context
	cancel      context.CancelFunc
	reconnectCh chan struct{}
	wg          sync.WaitGroup
}

// NewManager creates a manager and starts its reconnect loop. Call
// Close to stop it.
func NewManager(connectFn ConnectFunc, cfg Config) *Manager {
	if cfg.Backoff == (BackoffConfig{}) {
		cfg.Backoff = DefaultBackoffConfig()
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:           cfg,
		connectFn:     connectFn,
		backoff:       NewBackoff(cfg.Backoff),
		autoReconnect: cfg.AutoReconnect,
		ctx:           ctx,
		cancel:        cancel,
		reconnectCh:   make(chan struct{}, 1),
	}

	m.wg.Add(1)
	go m.reconnectLoop()
	return m
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the last attempt succeeded and no loss
// has been reported since.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// SetAutoReconnect toggles reconnection after a loss.
func (m *Manager) SetAutoReconnect(enabled bool) {
	m.mu.Lock()
	m.autoReconnect = enabled
	m.mu.Unlock()
}

// Attempts returns the number of reconnect attempts since the last
// successful connection.
func (m *Manager) Attempts() int {
	return m.backoff.Attempts()
}

// Connect makes one connection attempt in the caller's goroutine.
// A failure leaves the manager DISCONNECTED and does not schedule a
// retry.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateConnected:
		m.mu.Unlock()
		return ErrAlreadyConnected
	case StateConnecting, StateReconnecting:
		m.mu.Unlock()
		return ErrConnecting
	case StateClosed:
		m.mu.Unlock()
		return ErrClosed
	}
	m.transitionLocked(StateConnecting)

	err := m.connectFn(ctx)

	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		if err == nil {
			return ErrClosed
		}
		return err
	}
	if err != nil {
		m.transitionLocked(StateDisconnected)
		m.debugLog("connect failed", "error", err)
		return err
	}
	m.backoff.Reset()
	m.transitionLocked(StateConnected)
	return nil
}

// ConnectionLost reports that the established connection went away.
// With auto-reconnect enabled the manager enters RECONNECTING and the
// background loop starts retrying. Calls in any state other than
// CONNECTED are ignored.
func (m *Manager) ConnectionLost() {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	reconnect := m.autoReconnect
	if reconnect {
		m.transitionLocked(StateReconnecting)
		select {
		case m.reconnectCh <- struct{}{}:
		default:
		}
		return
	}
	m.transitionLocked(StateDisconnected)
}

// Close stops reconnecting and waits for the loop to exit. A pending
// attempt sees its context cancelled.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	m.transitionLocked(StateClosed)

	m.cancel()
	m.wg.Wait()
}

// transitionLocked moves to state to, releases m.mu and runs the
// state callback.
func (m *Manager) transitionLocked(to State) {
	from := m.state
	m.state = to
	m.mu.Unlock()

	m.debugLog("state change", "from", from, "to", to)
	if m.cfg.OnStateChange != nil && from != to {
		m.cfg.OnStateChange(from, to)
	}
}

func (m *Manager) reconnectLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.reconnectCh:
			m.reconnect()
		}
	}
}

func (m *Manager) reconnect() {
	for {
		if m.State() != StateReconnecting {
			return
		}

		delay := m.backoff.Next()
		attempt := m.backoff.Attempts()
		m.debugLog("reconnecting", "attempt", attempt, "delay", delay)
		if m.cfg.OnReconnecting != nil {
			m.cfg.OnReconnecting(attempt, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-m.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		ctx, cancel := context.WithTimeout(m.ctx, m.cfg.AttemptTimeout)
		err := m.connectFn(ctx)
		cancel()

		m.mu.Lock()
		if m.state != StateReconnecting {
			m.mu.Unlock()
			return
		}
		if err != nil {
			m.mu.Unlock()
			m.debugLog("reconnect attempt failed", "attempt", attempt, "error", err)
			continue
		}
		m.backoff.Reset()
		m.transitionLocked(StateConnected)
		return
	}
}

func (m *Manager) debugLog(msg string, args ...any) {
	if m.cfg.Logger != nil {
		m.cfg.Logger.Debug(msg, args...)
	}
}
