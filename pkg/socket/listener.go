package socket

import (
	"errors"
	"reflect"
	"slices"

	"github.com/nxblue/nxblue-go/pkg/command"
)

// Listener registry errors.
var (
	ErrNilListener           = errors.New("nil listener")
	ErrListenerRegistered    = errors.New("listener already registered")
	ErrListenerNotRegistered = errors.New("listener not registered")
	ErrListenerNotComparable = errors.New("listener type is not comparable")
)

// Listener observes a socket. All methods are called from the socket's
// receive goroutine.
type Listener interface {
	// OnConnect is called once when the receive loop starts.
	OnConnect(s *Socket)

	// OnCommandReceived is called for every decoded inbound command.
	OnCommandReceived(s *Socket, cmd command.Command)

	// OnDisconnect is called once after the socket has closed.
	OnDisconnect(s *Socket)
}

// ListenerFuncs adapts optional functions to the Listener interface.
// Register it by pointer; nil fields are skipped.
type ListenerFuncs struct {
	Connect         func(s *Socket)
	CommandReceived func(s *Socket, cmd command.Command)
	Disconnect      func(s *Socket)
}

// OnConnect calls f.Connect if set.
func (f *ListenerFuncs) OnConnect(s *Socket) {
	if f.Connect != nil {
		f.Connect(s)
	}
}

// OnCommandReceived calls f.CommandReceived if set.
func (f *ListenerFuncs) OnCommandReceived(s *Socket, cmd command.Command) {
	if f.CommandReceived != nil {
		f.CommandReceived(s, cmd)
	}
}

// OnDisconnect calls f.Disconnect if set.
func (f *ListenerFuncs) OnDisconnect(s *Socket) {
	if f.Disconnect != nil {
		f.Disconnect(s)
	}
}

// AddListener registers l. Listeners are compared by identity, so the same
// listener cannot be registered twice.
//
// Must not be called from a callback of this socket.
func (s *Socket) AddListener(l Listener) error {
	if l == nil {
		return ErrNilListener
	}
	if !reflect.TypeOf(l).Comparable() {
		return ErrListenerNotComparable
	}

	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	if slices.Contains(s.listeners, l) {
		return ErrListenerRegistered
	}
	s.listeners = append(s.listeners, l)
	return nil
}

// RemoveListener unregisters l.
//
// Must not be called from a callback of this socket.
func (s *Socket) RemoveListener(l Listener) error {
	if l == nil {
		return ErrNilListener
	}
	if !reflect.TypeOf(l).Comparable() {
		return ErrListenerNotRegistered
	}

	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	i := slices.Index(s.listeners, l)
	if i < 0 {
		return ErrListenerNotRegistered
	}
	s.listeners = slices.Delete(s.listeners, i, i+1)
	return nil
}

// ListenerCount returns the number of registered listeners.
func (s *Socket) ListenerCount() int {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	return len(s.listeners)
}

func (s *Socket) notifyConnect() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	for _, l := range s.listeners {
		l.OnConnect(s)
	}
}

func (s *Socket) notifyCommand(cmd command.Command) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	for _, l := range s.listeners {
		l.OnCommandReceived(s, cmd)
	}
}

func (s *Socket) notifyDisconnect() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	for _, l := range s.listeners {
		l.OnDisconnect(s)
	}
}
