package transport

import (
	"context"
	"io"
	"net"
)

// Stream is a connected bidirectional byte stream. Close must unblock a
// pending Read.
type Stream = io.ReadWriteCloser

// Connector establishes a Stream. It is called once per socket open.
type Connector interface {
	Connect(ctx context.Context) (Stream, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context) (Stream, error)

// Connect calls f(ctx).
func (f ConnectorFunc) Connect(ctx context.Context) (Stream, error) {
	return f(ctx)
}

// MessageReader reads one framed message at a time.
// Implemented by LineReader and UTFReader.
type MessageReader interface {
	// ReadMessage blocks until a complete message has been read.
	ReadMessage() (string, error)
}

// MessageWriter writes one framed message at a time.
// Implemented by LineWriter and UTFWriter.
type MessageWriter interface {
	// WriteMessage frames msg, writes it and flushes.
	WriteMessage(msg string) error
}

// MessageReadWriter provides framed message I/O.
// Implemented by Framer.
type MessageReadWriter interface {
	MessageReader
	MessageWriter
}

// RemoteAddresser is implemented by streams that know their peer address.
type RemoteAddresser interface {
	RemoteAddr() net.Addr
}

// Compile-time interface satisfaction checks.
var (
	_ MessageReader     = (*LineReader)(nil)
	_ MessageReader     = (*UTFReader)(nil)
	_ MessageWriter     = (*LineWriter)(nil)
	_ MessageWriter     = (*UTFWriter)(nil)
	_ MessageReadWriter = (*Framer)(nil)
	_ Stream            = (*Conn)(nil)
	_ RemoteAddresser   = (*Conn)(nil)
	_ Connector         = (*Dialer)(nil)
	_ Connector         = ConnectorFunc(nil)
)
