package discovery

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// Browser streams peers visible on some medium.
type Browser interface {
	// Browse returns a channel of peers. Each peer appears at most once per
	// call. The channel is closed when ctx is done or the medium has
	// nothing more to report.
	Browse(ctx context.Context) (<-chan Peer, error)
}

// Search browses until ctx ends or the browser closes its channel and
// returns the peers whose name contains filter, in the order the browser
// reported them. An empty filter matches every peer. The end of ctx is the
// normal way for a search to finish and is not an error.
func Search(ctx context.Context, browser Browser, filter string) ([]Peer, error) {
	peers, err := browser.Browse(ctx)
	if err != nil {
		return nil, err
	}

	var matches []Peer
	for {
		select {
		case p, ok := <-peers:
			if !ok {
				return clip(matches), nil
			}
			if strings.Contains(p.Name, filter) {
				matches = append(matches, p)
			}
		case <-ctx.Done():
			return clip(matches), nil
		}
	}
}

// FindByAddress browses until it sees the peer with the given hardware
// address. It returns ErrNotFound if the browser finishes first, or the
// context error if ctx ends first.
func FindByAddress(ctx context.Context, browser Browser, address string) (Peer, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return Peer{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	peers, err := browser.Browse(ctx)
	if err != nil {
		return Peer{}, err
	}

	for {
		select {
		case p, ok := <-peers:
			if !ok {
				return Peer{}, ErrNotFound
			}
			if p.Address == addr {
				return p, nil
			}
		case <-ctx.Done():
			return Peer{}, ctx.Err()
		}
	}
}

// clip returns s sized to its length, never nil.
func clip(s []Peer) []Peer {
	if s == nil {
		return []Peer{}
	}
	return slices.Clip(s)
}

// Combine returns a Browser that merges several browsers. A peer reported
// by more than one browser is emitted once, from whichever reports it
// first. Browsers that fail to start are skipped unless all fail.
func Combine(browsers ...Browser) Browser {
	return multiBrowser(browsers)
}

type multiBrowser []Browser

func (m multiBrowser) Browse(ctx context.Context) (<-chan Peer, error) {
	var (
		sources  []<-chan Peer
		firstErr error
	)
	for _, b := range m {
		ch, err := b.Browse(ctx)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		sources = append(sources, ch)
	}
	if len(sources) == 0 && firstErr != nil {
		return nil, firstErr
	}

	out := make(chan Peer)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]struct{})
	)
	for _, src := range sources {
		wg.Add(1)
		go func(src <-chan Peer) {
			defer wg.Done()
			for p := range src {
				mu.Lock()
				_, dup := seen[p.Address]
				seen[p.Address] = struct{}{}
				mu.Unlock()
				if dup {
					continue
				}
				select {
				case out <- p:
				case <-ctx.Done():
					return
				}
			}
		}(src)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out, nil
}

var _ Browser = multiBrowser(nil)
