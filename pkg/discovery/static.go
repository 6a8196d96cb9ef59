package discovery

import (
	"context"
	"sync"
)

// StaticTable is a fixed set of known peers keyed by hardware address.
// It implements Browser by reporting every entry in insertion order.
// Safe for concurrent use.
type StaticTable struct {
	mu    sync.RWMutex
	order []string
	peers map[string]Peer
}

// NewStaticTable creates a table holding peers. Addresses are normalised;
// peers with invalid addresses are rejected.
func NewStaticTable(peers ...Peer) (*StaticTable, error) {
	t := &StaticTable{peers: make(map[string]Peer)}
	for _, p := range peers {
		if err := t.Add(p); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Add inserts or replaces the entry for p's address.
func (t *StaticTable) Add(p Peer) error {
	addr, err := NormalizeAddress(p.Address)
	if err != nil {
		return err
	}
	p.Address = addr

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.peers[addr]; !exists {
		t.order = append(t.order, addr)
	}
	t.peers[addr] = p
	return nil
}

// Lookup returns the entry for a hardware address in any accepted notation.
func (t *StaticTable) Lookup(address string) (Peer, bool) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return Peer{}, false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.peers[addr]
	return p, ok
}

// Peers returns all entries in insertion order.
func (t *StaticTable) Peers() []Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Peer, 0, len(t.order))
	for _, addr := range t.order {
		out = append(out, t.peers[addr])
	}
	return out
}

// Len returns the number of entries.
func (t *StaticTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}

// Browse reports every entry and closes the channel.
func (t *StaticTable) Browse(ctx context.Context) (<-chan Peer, error) {
	peers := t.Peers()
	out := make(chan Peer)
	go func() {
		defer close(out)
		for _, p := range peers {
			select {
			case out <- p:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

var _ Browser = (*StaticTable)(nil)
