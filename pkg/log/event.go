package log

import (
	"time"
)

// Event is a protocol log entry. CBOR encoding uses integer keys.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the socket (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	Direction Direction `cbor:"3,keyasint"`
	Layer     Layer     `cbor:"4,keyasint"`
	Category  Category  `cbor:"5,keyasint"`

	// LocalRole is the side of the link that wrote the event.
	LocalRole Role `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer network address, when known.
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// PeerName and PeerAddress identify the remote brick, when known.
	PeerName    string `cbor:"8,keyasint,omitempty"`
	PeerAddress string `cbor:"9,keyasint,omitempty"`

	// Exactly one of these is set.
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Command     *CommandEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	DirectionIn  Direction = 0
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which part of the stack captured the event.
type Layer uint8

const (
	// LayerTransport is the framing layer.
	LayerTransport Layer = 0
	// LayerCommand is the command codec layer.
	LayerCommand Layer = 1
	// LayerSocket is the socket lifecycle layer.
	LayerSocket Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerCommand:
		return "COMMAND"
	case LayerSocket:
		return "SOCKET"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event.
type Category uint8

const (
	CategoryMessage Category = 0
	CategoryState   Category = 1
	CategoryError   Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Role indicates which end of the link logged the event.
type Role uint8

const (
	RoleDevice     Role = 0
	RoleController Role = 1
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleDevice:
		return "DEVICE"
	case RoleController:
		return "CONTROLLER"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures one framed message at the transport layer.
type FrameEvent struct {
	// Size is the frame size in bytes including framing overhead.
	Size int `cbor:"1,keyasint"`

	// Data is the message payload, possibly truncated.
	Data []byte `cbor:"2,keyasint,omitempty"`

	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// CommandEvent captures a decoded or encoded command.
type CommandEvent struct {
	Operation string   `cbor:"1,keyasint"`
	Params    []string `cbor:"2,keyasint,omitempty"`
}

// StateChangeEvent captures socket lifecycle transitions.
type StateChangeEvent struct {
	OldState string `cbor:"1,keyasint,omitempty"`
	NewState string `cbor:"2,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"3,keyasint,omitempty"`
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}

// Kind returns a short label for the populated payload.
func (e Event) Kind() string {
	switch {
	case e.Frame != nil:
		return "Frame"
	case e.Command != nil:
		return "Command"
	case e.StateChange != nil:
		return "State"
	case e.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}
