package controller

import (
	"context"
	"fmt"

	"github.com/nxblue/nxblue-go/pkg/discovery"
	"github.com/nxblue/nxblue-go/pkg/log"
	"github.com/nxblue/nxblue-go/pkg/socket"
	"github.com/nxblue/nxblue-go/pkg/transport"
)

// Manager creates sockets to bricks.
type Manager struct {
	config Config
}

// NewManager creates a manager, filling unset config fields with
// defaults.
func NewManager(config Config) *Manager {
	def := DefaultConfig()
	if config.BrowseTimeout <= 0 {
		config.BrowseTimeout = def.BrowseTimeout
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = def.ConnectTimeout
	}
	if config.Port == 0 {
		config.Port = def.Port
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = def.MaxMessageSize
	}
	return &Manager{config: config}
}

// GetNXT returns the identity of a brick with the given name and hardware
// address. The address may be bare or colon-separated, in any case; it
// must come to 12 hex digits.
func (m *Manager) GetNXT(name, address string) (discovery.Peer, error) {
	return discovery.NewPeer(name, address)
}

// GetAllNXTs returns every reachable brick whose name contains filter,
// in the order discovery reported them. An empty filter matches all.
// Without a deadline on ctx the search runs for BrowseTimeout.
func (m *Manager) GetAllNXTs(ctx context.Context, filter string) ([]discovery.Peer, error) {
	browser := m.browser()
	if browser == nil {
		return nil, ErrNoDiscovery
	}

	ctx, cancel := m.browseContext(ctx)
	defer cancel()

	peers, err := discovery.Search(ctx, browser, filter)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	m.debugLog("controller: search finished", "filter", filter, "found", len(peers))
	return peers, nil
}

// CreateConnection returns an unopened socket to peer. The peer is
// resolved and dialled when the socket is opened.
func (m *Manager) CreateConnection(peer discovery.Peer) (*socket.Socket, error) {
	addr, err := discovery.NormalizeAddress(peer.Address)
	if err != nil {
		return nil, err
	}
	peer.Address = addr

	framing := m.config.Framing
	if peer.Framing != "" {
		framing, err = transport.ParseFraming(peer.Framing)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFraming, err)
		}
	}

	return socket.New(m.connector(peer), socket.Config{
		Framing:        framing,
		MaxMessageSize: m.config.MaxMessageSize,
		Name:           peer.Name,
		Address:        peer.Address,
		Role:           log.RoleController,
		Logger:         m.config.Logger,
		ProtocolLogger: m.config.ProtocolLogger,
	}), nil
}

// Resolve fills in a dialable location for peer. A peer that already
// has one is returned unchanged.
func (m *Manager) Resolve(ctx context.Context, peer discovery.Peer) (discovery.Peer, error) {
	if peer.Resolved() {
		return peer, nil
	}

	if m.config.Peers != nil {
		if known, ok := m.config.Peers.Lookup(peer.Address); ok && known.Resolved() {
			return merge(peer, known), nil
		}
	}

	if m.config.Browser == nil {
		return discovery.Peer{}, fmt.Errorf("%w: %s", ErrUnresolved, peer)
	}

	ctx, cancel := m.browseContext(ctx)
	defer cancel()

	found, err := discovery.FindByAddress(ctx, m.config.Browser, peer.Address)
	if err != nil {
		return discovery.Peer{}, fmt.Errorf("%w: %s: %w", ErrUnresolved, peer, err)
	}
	return merge(peer, found), nil
}

func (m *Manager) connector(peer discovery.Peer) transport.Connector {
	return transport.ConnectorFunc(func(ctx context.Context) (transport.Stream, error) {
		resolved, err := m.Resolve(ctx, peer)
		if err != nil {
			return nil, err
		}
		target, err := resolved.DialAddress(m.config.Port)
		if err != nil {
			return nil, err
		}

		m.debugLog("controller: dialing", "peer", peer.String(), "target", target)
		dialer := &transport.Dialer{Address: target, Timeout: m.config.ConnectTimeout}
		return dialer.Connect(ctx)
	})
}

// browser combines the static table with the configured browser.
func (m *Manager) browser() discovery.Browser {
	switch {
	case m.config.Peers != nil && m.config.Browser != nil:
		return discovery.Combine(m.config.Peers, m.config.Browser)
	case m.config.Peers != nil:
		return m.config.Peers
	default:
		return m.config.Browser
	}
}

func (m *Manager) browseContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.config.BrowseTimeout)
}

func (m *Manager) debugLog(msg string, args ...any) {
	if m.config.Logger != nil {
		m.config.Logger.Debug(msg, args...)
	}
}

// merge copies location fields from found into peer, keeping peer's
// name when set.
func merge(peer, found discovery.Peer) discovery.Peer {
	if peer.Name == "" {
		peer.Name = found.Name
	}
	peer.Host = found.Host
	peer.Addrs = found.Addrs
	if peer.Port == 0 {
		peer.Port = found.Port
	}
	if peer.Framing == "" {
		peer.Framing = found.Framing
	}
	return peer
}
