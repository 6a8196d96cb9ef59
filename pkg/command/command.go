package command

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Command errors.
var (
	// ErrEmptyOperation indicates a command without an operation name.
	ErrEmptyOperation = errors.New("empty operation")

	// ErrBadEscape indicates a line ending in an unterminated escape.
	ErrBadEscape = errors.New("unterminated escape sequence")

	// ErrNoParam indicates a parameter index out of range.
	ErrNoParam = errors.New("no such parameter")
)

// Command is a single application-level message. It is immutable once
// constructed.
type Command struct {
	op     string
	params []string
}

// New creates a command. The parameter slice is copied.
func New(op string, params ...string) Command {
	return Command{
		op:     op,
		params: slices.Clone(params),
	}
}

// Operation returns the operation name.
func (c Command) Operation() string {
	return c.op
}

// Params returns a copy of the parameters.
func (c Command) Params() []string {
	if len(c.params) == 0 {
		return nil
	}
	return slices.Clone(c.params)
}

// NumParams returns the number of parameters.
func (c Command) NumParams() int {
	return len(c.params)
}

// Param returns the parameter at index i.
func (c Command) Param(i int) (string, bool) {
	if i < 0 || i >= len(c.params) {
		return "", false
	}
	return c.params[i], true
}

// IntParam parses the parameter at index i as a base-10 integer.
func (c Command) IntParam(i int) (int, error) {
	p, ok := c.Param(i)
	if !ok {
		return 0, fmt.Errorf("%w: %d of %d", ErrNoParam, i, len(c.params))
	}
	n, err := strconv.Atoi(p)
	if err != nil {
		return 0, fmt.Errorf("parameter %d: %w", i, err)
	}
	return n, nil
}

// Validate checks that the command can be sent.
func (c Command) Validate() error {
	if c.op == "" {
		return ErrEmptyOperation
	}
	return nil
}

// Equal reports whether both commands have the same operation and parameters.
func (c Command) Equal(other Command) bool {
	return c.op == other.op && slices.Equal(c.params, other.params)
}

// String returns the wire form of the command. Invalid commands are rendered
// in a debug form instead.
func (c Command) String() string {
	line, err := Encode(c)
	if err != nil {
		return fmt.Sprintf("<invalid command %q %q>", c.op, c.params)
	}
	return line
}

// Is reports whether the command has the given operation, ignoring case.
func (c Command) Is(op string) bool {
	return strings.EqualFold(c.op, op)
}
