package device

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/nxblue/nxblue-go/pkg/discovery"
	"github.com/nxblue/nxblue-go/pkg/log"
	"github.com/nxblue/nxblue-go/pkg/transport"
)

// Manager errors.
var (
	ErrNotStarted     = errors.New("device manager not started")
	ErrAlreadyStarted = errors.New("device manager already started")
	ErrInvalidConfig  = errors.New("invalid configuration")

	ErrConnectionSetup = errors.New("connection setup failed")
)

// State is the manager lifecycle state.
type State uint8

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Config configures a Manager.
type Config struct {
	// Name is the brick name announced over mDNS.
	Name string

	// Address is the brick hardware address (12 hex digits, colons allowed).
	// Required when Advertiser is set.
	Address string

	// ListenAddress is the TCP address to listen on (default ":6174").
	ListenAddress string

	// Framing for accepted sockets (default: line).
	Framing transport.Framing

	// MaxMessageSize for accepted sockets (default: 4096).
	MaxMessageSize int

	// Advertiser announces the brick after Start. Optional.
	Advertiser discovery.Advertiser

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger receives protocol events of accepted sockets (optional).
	ProtocolLogger log.Logger
}

// DefaultConfig returns a Config listening on the default port.
func DefaultConfig() Config {
	return Config{
		ListenAddress:  fmt.Sprintf(":%d", transport.DefaultPort),
		Framing:        transport.FramingLine,
		MaxMessageSize: transport.DefaultMaxMessageSize,
	}
}

func (c *Config) validate() error {
	if c.Advertiser == nil {
		return nil
	}
	if err := discovery.ValidateInstanceName(c.Name); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	addr, err := discovery.NormalizeAddress(c.Address)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	c.Address = addr
	return nil
}
