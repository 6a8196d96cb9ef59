package main

import (
	"log"
	"strconv"
	"sync"

	"github.com/nxblue/nxblue-go/pkg/command"
	"github.com/nxblue/nxblue-go/pkg/socket"
)

// brick is a simulated NXT: two motors, a speaker and a name.
type brick struct {
	mu     sync.Mutex
	name   string
	left   int
	right  int
	lastHz int
}

func newBrick(name string) *brick {
	return &brick{name: name}
}

// handle executes one command and returns the reply.
//
//	PING            -> PONG
//	NAME            -> NAME;<name>
//	ECHO;a;b        -> ECHO;a;b
//	MOVE;<l>;<r>    -> OK;MOVE     (motor powers, -100..100)
//	STOP            -> OK;STOP
//	BEEP;<hz>       -> OK;BEEP
//	STATUS          -> STATUS;<l>;<r>
func (b *brick) handle(cmd command.Command) command.Command {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch cmd.Operation() {
	case "PING":
		return command.New("PONG")
	case "NAME":
		return command.New("NAME", b.name)
	case "ECHO":
		return command.New("ECHO", cmd.Params()...)
	case "MOVE":
		if cmd.NumParams() != 2 {
			return errReply("MOVE", "expected 2 parameters")
		}
		left, err := motorPower(cmd, 0)
		if err != nil {
			return errReply("MOVE", err.Error())
		}
		right, err := motorPower(cmd, 1)
		if err != nil {
			return errReply("MOVE", err.Error())
		}
		b.left, b.right = left, right
		return command.New("OK", "MOVE")
	case "STOP":
		b.left, b.right = 0, 0
		return command.New("OK", "STOP")
	case "BEEP":
		hz, err := cmd.IntParam(0)
		if err != nil || hz <= 0 {
			return errReply("BEEP", "expected frequency in Hz")
		}
		b.lastHz = hz
		return command.New("OK", "BEEP")
	case "STATUS":
		return command.New("STATUS", strconv.Itoa(b.left), strconv.Itoa(b.right))
	default:
		return errReply(cmd.Operation(), "unknown command")
	}
}

func motorPower(cmd command.Command, i int) (int, error) {
	p, err := cmd.IntParam(i)
	if err != nil {
		return 0, err
	}
	if p < -100 || p > 100 {
		return 0, strconv.ErrRange
	}
	return p, nil
}

func errReply(op, msg string) command.Command {
	return command.New("ERR", op, msg)
}

// listener returns the socket listener that serves the brick.
func (b *brick) listener() socket.Listener {
	return &socket.ListenerFuncs{
		Connect: func(s *socket.Socket) {
			log.Printf("[EVENT] Controller connected: %s", remote(s))
		},
		CommandReceived: func(s *socket.Socket, cmd command.Command) {
			log.Printf("[CMD] %s", cmd)
			if err := s.SendCommand(b.handle(cmd)); err != nil {
				log.Printf("Reply failed: %v", err)
			}
		},
		Disconnect: func(s *socket.Socket) {
			b.mu.Lock()
			b.left, b.right = 0, 0
			b.mu.Unlock()
			log.Printf("[EVENT] Controller disconnected: %s (motors stopped)", remote(s))
		},
	}
}

func remote(s *socket.Socket) string {
	if addr := s.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}
