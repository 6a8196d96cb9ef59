package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/enbility/zeroconf/v3"
	"github.com/enbility/zeroconf/v3/api"

	"github.com/nxblue/nxblue-go/pkg/transport"
)

// MDNSAdvertiser implements the Advertiser interface using zeroconf.
type MDNSAdvertiser struct {
	config AdvertiserConfig

	mu     sync.Mutex
	server *zeroconf.Server
}

// NewMDNSAdvertiser creates a new mDNS advertiser.
func NewMDNSAdvertiser(config AdvertiserConfig) *MDNSAdvertiser {
	return &MDNSAdvertiser{config: config}
}

// Advertise registers the device under ServiceType, replacing any earlier
// registration.
func (a *MDNSAdvertiser) Advertise(ctx context.Context, info *AdvertiseInfo) error {
	if err := ValidateInstanceName(info.Name); err != nil {
		return err
	}
	txtRecords, err := EncodePeerTXT(info)
	if err != nil {
		return err
	}
	txtStrings := TXTRecordsToStrings(txtRecords)

	port := int(info.Port)
	if port == 0 {
		port = transport.DefaultPort
	}

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	server, err := zeroconf.Register(
		info.Name,
		ServiceType,
		Domain,
		port,
		txtStrings,
		interfaces(a.config.Interface),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	a.server = server
	a.debugLog("discovery: advertising", "name", info.Name, "port", port, "txt", strings.Join(txtStrings, " "))
	return nil
}

// Update replaces the TXT records of the running advertisement.
func (a *MDNSAdvertiser) Update(info *AdvertiseInfo) error {
	txtRecords, err := EncodePeerTXT(info)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server == nil {
		return ErrNotFound
	}
	a.server.SetText(TXTRecordsToStrings(txtRecords))
	return nil
}

// Stop withdraws the advertisement.
func (a *MDNSAdvertiser) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
		a.debugLog("discovery: advertisement withdrawn")
	}
	return nil
}

func (a *MDNSAdvertiser) debugLog(msg string, args ...any) {
	if a.config.Logger != nil {
		a.config.Logger.Debug(msg, args...)
	}
}

// MDNSBrowser implements the Browser interface using zeroconf.
type MDNSBrowser struct {
	config BrowserConfig
}

// NewMDNSBrowser creates a new mDNS browser.
func NewMDNSBrowser(config BrowserConfig) *MDNSBrowser {
	return &MDNSBrowser{config: config}
}

// Browse searches for devices until ctx is done. Each instance is reported
// once, when it is first seen; entries without a valid address record are
// ignored. An error is returned if the multicast connections cannot be
// opened.
func (b *MDNSBrowser) Browse(ctx context.Context) (<-chan Peer, error) {
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	factory := b.config.ConnFactory
	if factory == nil {
		factory = zeroconf.NewConnectionFactory()
	}
	started := &startWatcher{ConnectionFactory: factory, ready: make(chan struct{})}

	opts := []zeroconf.ClientOption{zeroconf.WithClientConnFactory(started)}
	if ifaces := interfaces(b.config.Interface); ifaces != nil {
		opts = append(opts, zeroconf.SelectIfaces(ifaces))
	}

	failed := make(chan error, 1)
	go func() {
		err := zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, opts...)
		if err != nil {
			b.debugLog("discovery: browse failed", "error", err)
		}
		failed <- err
	}()

	select {
	case <-started.ready:
	case err := <-failed:
		if err == nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("failed to start browsing: %w", err)
	}

	out := make(chan Peer)
	go func() {
		defer close(out)

		seen := make(map[string]struct{})
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				peer, err := entryToPeer(entry)
				if err != nil {
					b.debugLog("discovery: ignoring entry", "instance", entry.Instance, "error", err)
					continue
				}
				if _, dup := seen[entry.Instance]; dup {
					continue
				}
				seen[entry.Instance] = struct{}{}

				select {
				case out <- peer:
				case <-ctx.Done():
					return
				}

			case entry, ok := <-removed:
				if !ok {
					removed = nil
					continue
				}
				// Allow a peer that comes back to be reported again.
				delete(seen, entry.Instance)

			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// startWatcher closes ready once both multicast connections are open.
// The client is created on the browse goroutine, so no locking is needed.
type startWatcher struct {
	api.ConnectionFactory
	opened int
	ready  chan struct{}
}

func (w *startWatcher) CreateIPv4Conn(ifaces []net.Interface) (api.PacketConn, error) {
	conn, err := w.ConnectionFactory.CreateIPv4Conn(ifaces)
	if err == nil {
		w.markOpened()
	}
	return conn, err
}

func (w *startWatcher) CreateIPv6Conn(ifaces []net.Interface) (api.PacketConn, error) {
	conn, err := w.ConnectionFactory.CreateIPv6Conn(ifaces)
	if err == nil {
		w.markOpened()
	}
	return conn, err
}

func (w *startWatcher) markOpened() {
	w.opened++
	if w.opened == 2 {
		close(w.ready)
	}
}

func (b *MDNSBrowser) debugLog(msg string, args ...any) {
	if b.config.Logger != nil {
		b.config.Logger.Debug(msg, args...)
	}
}

// entryToPeer converts a zeroconf entry to a Peer.
func entryToPeer(entry *zeroconf.ServiceEntry) (Peer, error) {
	peer, err := DecodePeerTXT(StringsToTXTRecords(entry.Text))
	if err != nil {
		return Peer{}, err
	}

	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}

	peer.Name = entry.Instance
	peer.Port = uint16(entry.Port)
	peer.Addrs = addrs
	if len(addrs) == 0 {
		peer.Host = strings.TrimSuffix(entry.HostName, ".")
	}
	return peer, nil
}

// interfaces returns the interface list for zeroconf, or nil for all.
func interfaces(name string) []net.Interface {
	if name == "" {
		return nil
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

var (
	_ Advertiser = (*MDNSAdvertiser)(nil)
	_ Browser    = (*MDNSBrowser)(nil)
)
