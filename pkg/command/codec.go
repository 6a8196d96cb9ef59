package command

import (
	"strings"
)

// Wire format characters.
const (
	// Delimiter separates the operation and parameters.
	Delimiter = ';'

	// Escape introduces an escaped character.
	Escape = '\\'
)

// Encode returns the single-line wire form of c.
func Encode(c Command) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}

	var b strings.Builder
	writeField(&b, c.op)
	for _, p := range c.params {
		b.WriteByte(Delimiter)
		writeField(&b, p)
	}
	return b.String(), nil
}

// MustEncode is like Encode but panics on invalid commands.
// Intended for tests and constant commands.
func MustEncode(c Command) string {
	line, err := Encode(c)
	if err != nil {
		panic(err)
	}
	return line
}

func writeField(b *strings.Builder, s string) {
	if !strings.ContainsAny(s, "\\;\n\r") {
		b.WriteString(s)
		return
	}
	for i := 0; i < len(s); i++ {
		switch ch := s[i]; ch {
		case Escape, Delimiter:
			b.WriteByte(Escape)
			b.WriteByte(ch)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteByte(ch)
		}
	}
}

// Decode parses a wire line into a command. The first field is the
// operation and the remaining fields are the parameters in order.
// An empty line decodes to a command with an empty operation and no
// parameters.
func Decode(line string) (Command, error) {
	if line == "" {
		return Command{}, nil
	}

	var (
		fields []string
		cur    strings.Builder
	)
	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch ch {
		case Escape:
			i++
			if i == len(line) {
				return Command{}, ErrBadEscape
			}
			switch esc := line[i]; esc {
			case 'n':
				cur.WriteByte('\n')
			case 'r':
				cur.WriteByte('\r')
			default:
				cur.WriteByte(esc)
			}
		case Delimiter:
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(ch)
		}
	}
	fields = append(fields, cur.String())

	c := Command{op: fields[0]}
	if len(fields) > 1 {
		c.params = fields[1:]
	}
	return c, nil
}
