package transport

import (
	"context"
	"errors"
	"net"
	"sync"
)

// ErrStreamConsumed is returned by an Accepted connector after its stream
// has been handed out.
var ErrStreamConsumed = errors.New("stream already consumed")

// Pipe returns the two ends of a synchronous in-memory stream.
// Closing either end unblocks pending reads on both.
func Pipe() (Stream, Stream) {
	a, b := net.Pipe()
	return a, b
}

// Accepted returns a Connector that yields stream on its first Connect and
// ErrStreamConsumed afterwards. It wraps a connection that already exists,
// such as one returned by Server.Accept.
func Accepted(stream Stream) Connector {
	var once sync.Once
	return ConnectorFunc(func(ctx context.Context) (Stream, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var s Stream
		once.Do(func() { s = stream })
		if s == nil {
			return nil, ErrStreamConsumed
		}
		return s, nil
	})
}
