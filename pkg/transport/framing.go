package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/nxblue/nxblue-go/pkg/log"
)

// Framing selects how messages are delimited on a stream.
type Framing uint8

const (
	// FramingLine terminates each message with LF.
	FramingLine Framing = iota

	// FramingUTF prefixes each message with a 2-byte big-endian length.
	FramingUTF
)

// String returns the framing name as used in configuration files.
func (f Framing) String() string {
	switch f {
	case FramingLine:
		return "line"
	case FramingUTF:
		return "utf"
	default:
		return "unknown"
	}
}

// ParseFraming parses a framing name. The empty string selects FramingLine.
func ParseFraming(s string) (Framing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "line":
		return FramingLine, nil
	case "utf":
		return FramingUTF, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFraming, s)
	}
}

// Framing constants.
const (
	// DefaultMaxMessageSize is the default maximum message size in bytes,
	// excluding the terminator or length prefix.
	DefaultMaxMessageSize = 4096

	// MaxUTFMessageSize is the largest message a 2-byte length prefix can carry.
	MaxUTFMessageSize = 65535

	// UTFLengthPrefixSize is the size of the UTF length prefix in bytes.
	UTFLengthPrefixSize = 2

	// MaxLogFrameDataSize is the maximum frame data size to include in logs.
	// Larger frames are truncated in log events.
	MaxLogFrameDataSize = 4096
)

// Framing errors.
var (
	// ErrMessageTooLarge indicates the message exceeds the maximum size.
	ErrMessageTooLarge = errors.New("message too large")

	// ErrFrameTruncated indicates the stream ended inside a frame.
	ErrFrameTruncated = errors.New("frame truncated")

	// ErrInvalidMessage indicates a message that cannot be framed or decoded.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrUnknownFraming indicates an unrecognised framing name.
	ErrUnknownFraming = errors.New("unknown framing")
)

// frameLog emits transport-layer protocol events. The zero value logs nothing.
type frameLog struct {
	logger log.Logger
	connID string
}

// SetLogger configures logging. Pass nil to disable logging.
func (fl *frameLog) SetLogger(logger log.Logger, connID string) {
	fl.logger = logger
	fl.connID = connID
}

func (fl *frameLog) logFrame(data []byte, frameSize int, direction log.Direction) {
	if fl.logger == nil {
		return
	}

	frameData := data
	truncated := false
	if len(data) > MaxLogFrameDataSize {
		frameData = data[:MaxLogFrameDataSize]
		truncated = true
	}

	fl.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: fl.connID,
		Direction:    direction,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Frame: &log.FrameEvent{
			Size:      frameSize,
			Data:      frameData,
			Truncated: truncated,
		},
	})
}

func normalizeMaxSize(size, limit int) int {
	if size <= 0 {
		size = DefaultMaxMessageSize
	}
	if limit > 0 && size > limit {
		size = limit
	}
	return size
}

// LineReader reads LF-terminated messages.
type LineReader struct {
	r              *bufio.Reader
	maxMessageSize int
	frameLog
}

// NewLineReader creates a line reader. A maxSize of zero selects
// DefaultMaxMessageSize.
func NewLineReader(r io.Reader, maxSize int) *LineReader {
	return &LineReader{
		r:              bufio.NewReader(r),
		maxMessageSize: normalizeMaxSize(maxSize, 0),
	}
}

// ReadMessage reads up to and including the next LF and returns the line
// without its terminator. A trailing CR is stripped.
func (lr *LineReader) ReadMessage() (string, error) {
	var line []byte
	for {
		chunk, err := lr.r.ReadSlice('\n')
		// Two extra bytes for an optional CR and the LF.
		if len(line)+len(chunk) > lr.maxMessageSize+2 {
			return "", fmt.Errorf("%w: exceeds %d bytes", ErrMessageTooLarge, lr.maxMessageSize)
		}
		line = append(line, chunk...)
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err == io.EOF {
			if len(line) == 0 {
				return "", io.EOF
			}
			return "", ErrFrameTruncated
		}
		return "", fmt.Errorf("failed to read message: %w", err)
	}

	frameSize := len(line)
	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	if len(line) > lr.maxMessageSize {
		return "", fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(line), lr.maxMessageSize)
	}

	lr.logFrame(line, frameSize, log.DirectionIn)
	return string(line), nil
}

// LineWriter writes LF-terminated messages.
// Thread-safe: can be called from multiple goroutines.
type LineWriter struct {
	out            io.Writer
	w              *bufio.Writer
	maxMessageSize int
	mu             sync.Mutex
	frameLog
}

// NewLineWriter creates a line writer. A maxSize of zero selects
// DefaultMaxMessageSize.
func NewLineWriter(w io.Writer, maxSize int) *LineWriter {
	return &LineWriter{
		out:            w,
		w:              bufio.NewWriter(w),
		maxMessageSize: normalizeMaxSize(maxSize, 0),
	}
}

// WriteMessage writes msg followed by LF and flushes.
func (lw *LineWriter) WriteMessage(msg string) error {
	if strings.ContainsRune(msg, '\n') {
		return fmt.Errorf("%w: line message contains LF", ErrInvalidMessage)
	}
	if len(msg) > lw.maxMessageSize {
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(msg), lw.maxMessageSize)
	}

	lw.mu.Lock()
	defer lw.mu.Unlock()

	lw.w.WriteString(msg)
	lw.w.WriteByte('\n')
	if err := lw.w.Flush(); err != nil {
		// bufio.Writer keeps a write error forever; start over on the next call.
		lw.w.Reset(lw.out)
		return fmt.Errorf("failed to write message: %w", err)
	}

	lw.logFrame([]byte(msg), len(msg)+1, log.DirectionOut)
	return nil
}

// UTFReader reads messages in the writeUTF layout: a 2-byte big-endian
// length followed by that many bytes of modified UTF-8.
type UTFReader struct {
	r              io.Reader
	maxMessageSize int
	lengthBuf      [UTFLengthPrefixSize]byte
	frameLog
}

// NewUTFReader creates a UTF reader. A maxSize of zero selects
// DefaultMaxMessageSize; sizes above MaxUTFMessageSize are capped.
func NewUTFReader(r io.Reader, maxSize int) *UTFReader {
	return &UTFReader{
		r:              r,
		maxMessageSize: normalizeMaxSize(maxSize, MaxUTFMessageSize),
	}
}

// ReadMessage reads one length-prefixed message.
func (ur *UTFReader) ReadMessage() (string, error) {
	if _, err := io.ReadFull(ur.r, ur.lengthBuf[:]); err != nil {
		if err == io.EOF {
			return "", err
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return "", ErrFrameTruncated
		}
		return "", fmt.Errorf("failed to read length prefix: %w", err)
	}

	length := int(ur.lengthBuf[0])<<8 | int(ur.lengthBuf[1])
	if length > ur.maxMessageSize {
		return "", fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, length, ur.maxMessageSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(ur.r, payload); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || err == io.EOF {
			return "", ErrFrameTruncated
		}
		return "", fmt.Errorf("failed to read payload: %w", err)
	}

	ur.logFrame(payload, UTFLengthPrefixSize+length, log.DirectionIn)

	msg, err := decodeModifiedUTF8(payload)
	if err != nil {
		return "", err
	}
	return msg, nil
}

// UTFWriter writes messages in the writeUTF layout.
// Thread-safe: can be called from multiple goroutines.
type UTFWriter struct {
	w              io.Writer
	maxMessageSize int
	mu             sync.Mutex
	frameLog
}

// NewUTFWriter creates a UTF writer. A maxSize of zero selects
// DefaultMaxMessageSize; sizes above MaxUTFMessageSize are capped.
func NewUTFWriter(w io.Writer, maxSize int) *UTFWriter {
	return &UTFWriter{
		w:              w,
		maxMessageSize: normalizeMaxSize(maxSize, MaxUTFMessageSize),
	}
}

// WriteMessage writes the length prefix and the encoded message in a
// single Write call.
func (uw *UTFWriter) WriteMessage(msg string) error {
	payload := encodeModifiedUTF8(msg)
	if len(payload) > uw.maxMessageSize {
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(payload), uw.maxMessageSize)
	}

	frame := make([]byte, UTFLengthPrefixSize+len(payload))
	frame[0] = byte(len(payload) >> 8)
	frame[1] = byte(len(payload))
	copy(frame[UTFLengthPrefixSize:], payload)

	uw.mu.Lock()
	defer uw.mu.Unlock()

	if _, err := uw.w.Write(frame); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	uw.logFrame(payload, len(frame), log.DirectionOut)
	return nil
}

// frameReader and frameWriter are the per-framing halves of a Framer.
type frameReader interface {
	MessageReader
	SetLogger(logger log.Logger, connID string)
}

type frameWriter interface {
	MessageWriter
	SetLogger(logger log.Logger, connID string)
}

// Framer combines message reading and writing over one stream.
type Framer struct {
	framing Framing
	reader  frameReader
	writer  frameWriter
}

// NewFramer creates a framer for bidirectional communication. Unknown
// framings fall back to FramingLine.
func NewFramer(rw io.ReadWriter, framing Framing, maxSize int) *Framer {
	f := &Framer{framing: framing}
	switch framing {
	case FramingUTF:
		f.reader = NewUTFReader(rw, maxSize)
		f.writer = NewUTFWriter(rw, maxSize)
	default:
		f.framing = FramingLine
		f.reader = NewLineReader(rw, maxSize)
		f.writer = NewLineWriter(rw, maxSize)
	}
	return f
}

// Framing returns the framing in use.
func (f *Framer) Framing() Framing {
	return f.framing
}

// ReadMessage reads one message.
func (f *Framer) ReadMessage() (string, error) {
	return f.reader.ReadMessage()
}

// WriteMessage writes one message and flushes.
func (f *Framer) WriteMessage(msg string) error {
	return f.writer.WriteMessage(msg)
}

// SetLogger configures logging for both reader and writer.
// Pass nil to disable logging.
func (f *Framer) SetLogger(logger log.Logger, connID string) {
	f.reader.SetLogger(logger, connID)
	f.writer.SetLogger(logger, connID)
}
