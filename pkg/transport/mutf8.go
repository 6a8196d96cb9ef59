package transport

import (
	"fmt"
	"unicode/utf16"
)

// encodeModifiedUTF8 encodes s the way DataOutputStream.writeUTF does:
// UTF-16 code units, NUL as two bytes, supplementary characters as
// surrogate pairs of three bytes each.
func encodeModifiedUTF8(s string) []byte {
	if isPlainASCII(s) {
		return []byte(s)
	}

	out := make([]byte, 0, len(s)+len(s)/2)
	for _, u := range utf16.Encode([]rune(s)) {
		switch {
		case u != 0 && u < 0x80:
			out = append(out, byte(u))
		case u < 0x800:
			out = append(out, byte(0xC0|u>>6), byte(0x80|u&0x3F))
		default:
			out = append(out, byte(0xE0|u>>12), byte(0x80|(u>>6)&0x3F), byte(0x80|u&0x3F))
		}
	}
	return out
}

// decodeModifiedUTF8 is the inverse of encodeModifiedUTF8. It also accepts
// a raw NUL byte, as DataInputStream.readUTF does.
func decodeModifiedUTF8(b []byte) (string, error) {
	if isPlainASCII(string(b)) {
		return string(b), nil
	}

	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80:
			units = append(units, uint16(c))
			i++
		case c&0xE0 == 0xC0:
			if i+1 >= len(b) || b[i+1]&0xC0 != 0x80 {
				return "", fmt.Errorf("%w: malformed input around byte %d", ErrInvalidMessage, i)
			}
			units = append(units, uint16(c&0x1F)<<6|uint16(b[i+1]&0x3F))
			i += 2
		case c&0xF0 == 0xE0:
			if i+2 >= len(b) || b[i+1]&0xC0 != 0x80 || b[i+2]&0xC0 != 0x80 {
				return "", fmt.Errorf("%w: malformed input around byte %d", ErrInvalidMessage, i)
			}
			units = append(units, uint16(c&0x0F)<<12|uint16(b[i+1]&0x3F)<<6|uint16(b[i+2]&0x3F))
			i += 3
		default:
			return "", fmt.Errorf("%w: malformed input around byte %d", ErrInvalidMessage, i)
		}
	}
	return string(utf16.Decode(units)), nil
}

func isPlainASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == 0 || s[i] >= 0x80 {
			return false
		}
	}
	return true
}
