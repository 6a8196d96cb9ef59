package socket

import (
	"time"

	"github.com/nxblue/nxblue-go/pkg/command"
	"github.com/nxblue/nxblue-go/pkg/log"
)

// newEvent fills the fields shared by every protocol event of this socket.
func (s *Socket) newEvent(layer log.Layer, category log.Category) log.Event {
	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.id,
		Layer:        layer,
		Category:     category,
		LocalRole:    s.config.Role,
		RemoteAddr:   addrString(s.RemoteAddr()),
		PeerName:     s.config.Name,
		PeerAddress:  s.config.Address,
	}
}

func (s *Socket) logState(from, to State, reason string) {
	if s.config.ProtocolLogger == nil {
		return
	}
	event := s.newEvent(log.LayerSocket, log.CategoryState)
	event.StateChange = &log.StateChangeEvent{
		OldState: from.String(),
		NewState: to.String(),
		Reason:   reason,
	}
	s.config.ProtocolLogger.Log(event)
}

func (s *Socket) logCommand(cmd command.Command, direction log.Direction) {
	if s.config.ProtocolLogger == nil {
		return
	}
	event := s.newEvent(log.LayerCommand, log.CategoryMessage)
	event.Direction = direction
	event.Command = &log.CommandEvent{
		Operation: cmd.Operation(),
		Params:    cmd.Params(),
	}
	s.config.ProtocolLogger.Log(event)
}

func (s *Socket) logError(layer log.Layer, err error, context string) {
	if s.config.ProtocolLogger == nil {
		return
	}
	event := s.newEvent(layer, log.CategoryError)
	event.Error = &log.ErrorEventData{
		Layer:   layer,
		Message: err.Error(),
		Context: context,
	}
	s.config.ProtocolLogger.Log(event)
}
