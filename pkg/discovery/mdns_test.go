package discovery_test

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/enbility/zeroconf/v3/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nxblue/nxblue-go/pkg/discovery"
)

// connFactory hands out idle connections, or fails with err.
type connFactory struct {
	err error
}

func (f connFactory) CreateIPv4Conn([]net.Interface) (api.PacketConn, error) {
	if f.err != nil {
		return nil, f.err
	}
	return newIdleConn(), nil
}

func (f connFactory) CreateIPv6Conn([]net.Interface) (api.PacketConn, error) {
	if f.err != nil {
		return nil, f.err
	}
	return newIdleConn(), nil
}

// idleConn never receives anything and accepts every write.
type idleConn struct {
	once   sync.Once
	closed chan struct{}
}

func newIdleConn() *idleConn {
	return &idleConn{closed: make(chan struct{})}
}

func (c *idleConn) ReadFrom([]byte) (int, int, net.Addr, error) {
	<-c.closed
	return 0, 0, nil, net.ErrClosed
}

func (c *idleConn) WriteTo(b []byte, _ int, _ net.Addr) (int, error) { return len(b), nil }

func (c *idleConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *idleConn) JoinGroup(*net.Interface, net.Addr) error  { return nil }
func (c *idleConn) LeaveGroup(*net.Interface, net.Addr) error { return nil }
func (c *idleConn) SetMulticastTTL(int) error                  { return nil }
func (c *idleConn) SetMulticastHopLimit(int) error             { return nil }
func (c *idleConn) SetMulticastInterface(*net.Interface) error { return nil }

func TestMDNSBrowserStartFailure(t *testing.T) {
	want := errors.New("multicast unavailable")
	browser := discovery.NewMDNSBrowser(discovery.BrowserConfig{ConnFactory: connFactory{err: want}})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	peers, err := discovery.Search(ctx, browser, "")
	assert.ErrorIs(t, err, want)
	assert.Nil(t, peers)
	assert.Less(t, time.Since(start), time.Second, "start failure must not wait for the timeout")
}

func TestMDNSBrowserClosesOnCancel(t *testing.T) {
	browser := discovery.NewMDNSBrowser(discovery.BrowserConfig{ConnFactory: connFactory{}})

	ctx, cancel := context.WithCancel(context.Background())
	out, err := browser.Browse(ctx)
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-out:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("peer channel not closed after cancel")
	}
}
