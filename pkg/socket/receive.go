package socket

import (
	"context"
	"errors"
	"io"

	"github.com/nxblue/nxblue-go/pkg/command"
	"github.com/nxblue/nxblue-go/pkg/log"
	"github.com/nxblue/nxblue-go/pkg/transport"
)

// receiveLoop is the only source of listener notifications. It runs until
// the stream fails or is closed, then closes the socket, delivers
// OnDisconnect and closes done.
func (s *Socket) receiveLoop(ctx context.Context) {
	defer close(s.done)

	s.notifyConnect()

	for {
		msg, err := s.framer.ReadMessage()
		if err != nil {
			if errors.Is(err, transport.ErrInvalidMessage) && ctx.Err() == nil {
				// The frame was consumed; the stream is still aligned.
				s.logError(log.LayerTransport, err, "receive")
				continue
			}
			s.readFailed(ctx, err)
			break
		}

		// Messages read after Close are dropped.
		if ctx.Err() != nil {
			continue
		}

		cmd, err := command.Decode(msg)
		if err != nil {
			s.logError(log.LayerCommand, err, "decode")
			s.debugLog("socket: dropping undecodable message", "error", err)
			continue
		}

		s.logCommand(cmd, log.DirectionIn)
		s.notifyCommand(cmd)
	}

	s.notifyDisconnect()
}

func (s *Socket) readFailed(ctx context.Context, err error) {
	if ctx.Err() != nil {
		// Close released the stream; the read error is expected.
		return
	}

	reason := "read: " + err.Error()
	if err == io.EOF {
		reason = "remote closed"
	} else {
		s.logError(log.LayerTransport, err, "receive")
	}
	s.closeWithReason(reason)
}
