package transport

import (
	"context"
	"fmt"
	"net"
	"time"
)

// DefaultConnectTimeout bounds a dial when the context has no deadline.
const DefaultConnectTimeout = 10 * time.Second

// Dialer is a Connector that opens a TCP connection to a fixed address.
type Dialer struct {
	// Address is the host:port to dial.
	Address string

	// Timeout applies when the context passed to Connect has no deadline
	// (default: DefaultConnectTimeout).
	Timeout time.Duration
}

// Connect dials the configured address.
func (d *Dialer) Connect(ctx context.Context) (Stream, error) {
	if d.Address == "" {
		return nil, fmt.Errorf("dial failed: no address")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		timeout := d.Timeout
		if timeout <= 0 {
			timeout = DefaultConnectTimeout
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var nd net.Dialer
	nc, err := nd.DialContext(ctx, "tcp", d.Address)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}
	return newConn(nc, nil), nil
}
