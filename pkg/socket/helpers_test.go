package socket_test

import (
	"bytes"
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nxblue/nxblue-go/pkg/command"
	"github.com/nxblue/nxblue-go/pkg/socket"
	"github.com/nxblue/nxblue-go/pkg/transport"
)

// stubStream is a scripted stream. Reads return the script; afterwards they
// either return io.EOF (eofAtEnd) or block until Close. Writes fail after
// Close.
type stubStream struct {
	script   io.Reader
	eofAtEnd bool
	writeErr error

	mu      sync.Mutex
	written bytes.Buffer

	closeOnce  sync.Once
	closed     chan struct{}
	closeCalls atomic.Int32
}

func newStubStream(script string, eofAtEnd bool) *stubStream {
	return &stubStream{
		script:   bytes.NewBufferString(script),
		eofAtEnd: eofAtEnd,
		closed:   make(chan struct{}),
	}
}

func (s *stubStream) Read(p []byte) (int, error) {
	if s.script != nil {
		n, err := s.script.Read(p)
		if n > 0 || err != io.EOF || s.eofAtEnd {
			return n, err
		}
		s.script = nil
	}
	<-s.closed
	return 0, io.ErrClosedPipe
}

func (s *stubStream) Write(p []byte) (int, error) {
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	select {
	case <-s.closed:
		return 0, io.ErrClosedPipe
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written.Write(p)
}

func (s *stubStream) Close() error {
	s.closeCalls.Add(1)
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *stubStream) Written() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written.String()
}

// streamConnector returns a fixed stream and counts Connect calls.
type streamConnector struct {
	stream transport.Stream
	err    error
	calls  atomic.Int32
}

func (c *streamConnector) Connect(ctx context.Context) (transport.Stream, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.stream, nil
}

// recorder is a Listener that records notifications as strings.
type recorder struct {
	mu     sync.Mutex
	events []string
	cmds   []command.Command
}

func (r *recorder) OnConnect(s *socket.Socket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "connect")
}

func (r *recorder) OnCommandReceived(s *socket.Socket, cmd command.Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "command:"+cmd.Operation())
	r.cmds = append(r.cmds, cmd)
}

func (r *recorder) OnDisconnect(s *socket.Socket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "disconnect")
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) Commands() []command.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]command.Command(nil), r.cmds...)
}

func (r *recorder) count(event string) int {
	n := 0
	for _, e := range r.Events() {
		if e == event {
			n++
		}
	}
	return n
}

// openPipeSocket opens a socket over an in-memory pipe and returns the
// peer end wrapped in a framer.
func openPipeSocket(t *testing.T, cfg socket.Config, listeners ...socket.Listener) (*socket.Socket, *transport.Framer, transport.Stream) {
	t.Helper()

	local, remote := transport.Pipe()
	t.Cleanup(func() { remote.Close() })

	s := socket.New(transport.Accepted(local), cfg)
	for _, l := range listeners {
		if err := s.AddListener(l); err != nil {
			t.Fatalf("AddListener failed: %v", err)
		}
	}
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return s, transport.NewFramer(remote, cfg.Framing, cfg.MaxMessageSize), remote
}

func waitDone(t *testing.T, s *socket.Socket) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("receive loop did not finish")
	}
}

func nextEvent(t *testing.T, ch <-chan socket.Event) socket.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("event channel closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return socket.Event{}
}
