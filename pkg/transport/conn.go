package transport

import (
	"net"
	"sync"
	"time"
)

// Conn is a TCP stream produced by Server or Dialer.
type Conn struct {
	conn net.Conn

	closeOnce sync.Once
	closeErr  error
	onClose   func(*Conn)
}

func newConn(conn net.Conn, onClose func(*Conn)) *Conn {
	return &Conn{conn: conn, onClose: onClose}
}

// Read reads from the connection.
func (c *Conn) Read(p []byte) (int, error) {
	return c.conn.Read(p)
}

// Write writes to the connection.
func (c *Conn) Write(p []byte) (int, error) {
	return c.conn.Write(p)
}

// Close closes the connection. A pending Read returns with an error.
// Only the first call has an effect.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
		if c.onClose != nil {
			c.onClose(c)
		}
	})
	return c.closeErr
}

// LocalAddr returns the local network address.
func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// SetReadDeadline sets the deadline for future Read calls.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline sets the deadline for future Write calls.
func (c *Conn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}
