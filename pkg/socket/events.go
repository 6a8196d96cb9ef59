package socket

import (
	"sync"

	"github.com/nxblue/nxblue-go/pkg/command"
)

// EventType identifies a socket event.
type EventType uint8

const (
	EventConnect EventType = iota + 1
	EventCommand
	EventDisconnect
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventConnect:
		return "CONNECT"
	case EventCommand:
		return "COMMAND"
	case EventDisconnect:
		return "DISCONNECT"
	default:
		return "UNKNOWN"
	}
}

// Event is a listener notification delivered over a channel.
type Event struct {
	Type   EventType
	Socket *Socket

	// Command is set for EventCommand.
	Command command.Command
}

// EventChannel is a Listener that publishes notifications on a channel.
// It serves a single socket: the channel is closed after the disconnect
// event, and events arriving later are discarded.
//
// Sends block the receive loop once the buffer is full, so the consumer
// must keep draining C.
type EventChannel struct {
	ch     chan Event
	mu     sync.Mutex
	closed bool
}

// NewEventChannel creates an event channel with the given buffer size.
func NewEventChannel(buffer int) *EventChannel {
	if buffer < 0 {
		buffer = 0
	}
	return &EventChannel{ch: make(chan Event, buffer)}
}

// C returns the receive side of the channel.
func (e *EventChannel) C() <-chan Event {
	return e.ch
}

// OnConnect publishes EventConnect.
func (e *EventChannel) OnConnect(s *Socket) {
	e.publish(Event{Type: EventConnect, Socket: s}, false)
}

// OnCommandReceived publishes EventCommand.
func (e *EventChannel) OnCommandReceived(s *Socket, cmd command.Command) {
	e.publish(Event{Type: EventCommand, Socket: s, Command: cmd}, false)
}

// OnDisconnect publishes EventDisconnect and closes the channel.
func (e *EventChannel) OnDisconnect(s *Socket) {
	e.publish(Event{Type: EventDisconnect, Socket: s}, true)
}

func (e *EventChannel) publish(ev Event, last bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.ch <- ev
	if last {
		e.closed = true
		close(e.ch)
	}
}

var (
	_ Listener = (*EventChannel)(nil)
	_ Listener = (*ListenerFuncs)(nil)
)
