package controller

import (
	"errors"
	"log/slog"
	"time"

	"github.com/nxblue/nxblue-go/pkg/connection"
	"github.com/nxblue/nxblue-go/pkg/discovery"
	"github.com/nxblue/nxblue-go/pkg/log"
	"github.com/nxblue/nxblue-go/pkg/transport"
)

// Controller errors.
var (
	ErrNoDiscovery    = errors.New("no discovery source configured")
	ErrUnresolved     = errors.New("peer address could not be resolved")
	ErrNotConnected   = errors.New("not connected")
	ErrLinkClosed     = errors.New("link closed")
	ErrInvalidFraming = errors.New("invalid peer framing")
)

// Config configures a Manager.
type Config struct {
	// Browser discovers bricks on the network. Optional when Peers
	// covers every brick.
	Browser discovery.Browser

	// Peers is a table of known bricks, consulted before Browser.
	Peers *discovery.StaticTable

	// BrowseTimeout bounds searches and lookups whose context has no
	// deadline (default: discovery.BrowseTimeout).
	BrowseTimeout time.Duration

	// ConnectTimeout bounds the TCP dial when the Open context has no
	// deadline (default: transport.DefaultConnectTimeout).
	ConnectTimeout time.Duration

	// Port is dialled when a peer does not carry its own
	// (default: transport.DefaultPort).
	Port uint16

	// Framing for sockets to peers that do not advertise one
	// (default: line).
	Framing transport.Framing

	// MaxMessageSize for created sockets (default: 4096).
	MaxMessageSize int

	// Reconnect configures Link backoff and callbacks. Its AutoReconnect
	// field is ignored in favour of DisableReconnect.
	Reconnect connection.Config

	// DisableReconnect stops a Link from reconnecting after a loss.
	DisableReconnect bool

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger receives protocol events of created sockets (optional).
	ProtocolLogger log.Logger
}

// DefaultConfig returns a Config with the default timeouts and port.
func DefaultConfig() Config {
	return Config{
		BrowseTimeout:  discovery.BrowseTimeout,
		ConnectTimeout: transport.DefaultConnectTimeout,
		Port:           transport.DefaultPort,
		Framing:        transport.FramingLine,
		MaxMessageSize: transport.DefaultMaxMessageSize,
		Reconnect:      connection.DefaultConfig(),
	}
}
