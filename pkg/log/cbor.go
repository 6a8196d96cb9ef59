package log

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Protocol log file identification. Every .nxlog file starts with a
// FileHeader item followed by Event items.
const (
	FileMagic   = "NXLOG"
	FileVersion = 1
)

// File format errors.
var (
	ErrNotProtocolLog     = errors.New("not an nxblue protocol log")
	ErrUnsupportedVersion = errors.New("unsupported protocol log version")
)

// FileHeader is the first item of a protocol log file.
type FileHeader struct {
	Magic   string    `cbor:"1,keyasint"`
	Version uint16    `cbor:"2,keyasint"`
	Created time.Time `cbor:"3,keyasint"`
}

var (
	logEncMode cbor.EncMode
	logDecMode cbor.DecMode
)

func init() {
	var err error

	// Deterministic output with nanosecond timestamps
	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	logEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create log CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	logDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create log CBOR decoder mode: %v", err))
	}
}

// EncodeEvent encodes an event to CBOR.
func EncodeEvent(event Event) ([]byte, error) {
	return logEncMode.Marshal(event)
}

// DecodeEvent decodes a CBOR-encoded event.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	if err := logDecMode.Unmarshal(data, &event); err != nil {
		return Event{}, err
	}
	return event, nil
}

// NewEncoder returns a streaming event encoder writing to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return logEncMode.NewEncoder(w)
}

// NewDecoder returns a streaming event decoder reading from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return logDecMode.NewDecoder(r)
}

// NewFileHeader returns a header for a file created now.
func NewFileHeader() FileHeader {
	return FileHeader{Magic: FileMagic, Version: FileVersion, Created: time.Now()}
}

// Validate checks the magic and that the version can be read.
func (h FileHeader) Validate() error {
	if h.Magic != FileMagic {
		return ErrNotProtocolLog
	}
	if h.Version == 0 || h.Version > FileVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	return nil
}

// readHeader decodes and validates the first item of a log file. An
// empty file yields io.EOF.
func readHeader(dec *cbor.Decoder) (FileHeader, error) {
	var raw cbor.RawMessage
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return FileHeader{}, io.EOF
		}
		return FileHeader{}, fmt.Errorf("%w: %w", ErrNotProtocolLog, err)
	}

	var h FileHeader
	if err := logDecMode.Unmarshal(raw, &h); err != nil {
		return FileHeader{}, ErrNotProtocolLog
	}
	if err := h.Validate(); err != nil {
		return FileHeader{}, err
	}
	return h, nil
}
