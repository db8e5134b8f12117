package transport

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tktech/zik-go/pkg/log"
)

// Framing constants.
const (
	// HeaderSize is the frame header size: a 2-byte big-endian length
	// (counting the header itself) followed by the packet type byte.
	HeaderSize = 3

	// DefaultMaxFrameSize is the default maximum frame size. Zik
	// messages are small; the largest observed is the equalizer preset
	// list at a few hundred bytes.
	DefaultMaxFrameSize = 8192

	// MaxFrameSize is the hard ceiling imposed by the 16-bit length field.
	MaxFrameSize = 0xFFFF

	// MaxLogFrameDataSize is the maximum frame body size to include in
	// log events. Larger bodies are truncated in the event only.
	MaxLogFrameDataSize = 1024
)

// Packet types.
const (
	// PacketAck is the handshake packet and its acknowledgement.
	PacketAck byte = 0x00

	// PacketData carries a request, answer, or notify body.
	PacketData byte = 0x80
)

// Framing errors.
var (
	// ErrFrameTooLarge indicates a frame exceeds the maximum size.
	// On read the oversized frame is discarded and the stream
	// resynchronizes at the next header.
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrInvalidHeader indicates a frame header with an impossible
	// length. The bytes are skipped and reading continues.
	ErrInvalidHeader = errors.New("invalid frame header")

	// ErrFrameTruncated indicates the stream ended mid-frame.
	ErrFrameTruncated = errors.New("frame truncated")
)

// FrameWriter writes length-prefixed frames to an underlying writer.
type FrameWriter struct {
	w            io.Writer
	maxFrameSize int
	mu           sync.Mutex

	// Logging support (optional)
	logger    log.Logger
	sessionID string
}

// NewFrameWriter creates a new frame writer.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{
		w:            w,
		maxFrameSize: DefaultMaxFrameSize,
	}
}

// NewFrameWriterWithMaxSize creates a frame writer with a custom max size.
func NewFrameWriterWithMaxSize(w io.Writer, maxSize int) *FrameWriter {
	if maxSize <= 0 || maxSize > MaxFrameSize {
		maxSize = DefaultMaxFrameSize
	}
	return &FrameWriter{
		w:            w,
		maxFrameSize: maxSize,
	}
}

// SetLogger configures logging for this writer.
// Pass nil to disable logging.
func (fw *FrameWriter) SetLogger(logger log.Logger, sessionID string) {
	fw.logger = logger
	fw.sessionID = sessionID
}

// WriteFrame writes a frame with the given packet type and body.
// The header and body go out in a single Write so concurrent senders
// never interleave partial frames.
// Thread-safe: can be called from multiple goroutines.
func (fw *FrameWriter) WriteFrame(packetType byte, body []byte) error {
	total := HeaderSize + len(body)
	if total > fw.maxFrameSize {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, total, fw.maxFrameSize)
	}

	frame := make([]byte, total)
	binary.BigEndian.PutUint16(frame[:2], uint16(total))
	frame[2] = packetType
	copy(frame[HeaderSize:], body)

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if _, err := fw.w.Write(frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	if fw.logger != nil {
		fw.logger.Log(makeFrameEvent(fw.sessionID, packetType, body, log.DirectionOut))
	}

	return nil
}

// FrameReader reads length-prefixed frames from an underlying reader.
// Not safe for concurrent use; the session reader loop is the only reader.
type FrameReader struct {
	r            *bufio.Reader
	maxFrameSize int
	headerBuf    [HeaderSize]byte

	// Logging support (optional)
	logger    log.Logger
	sessionID string
}

// NewFrameReader creates a new frame reader.
func NewFrameReader(r io.Reader) *FrameReader {
	return NewFrameReaderWithMaxSize(r, DefaultMaxFrameSize)
}

// NewFrameReaderWithMaxSize creates a frame reader with a custom max size.
func NewFrameReaderWithMaxSize(r io.Reader, maxSize int) *FrameReader {
	if maxSize <= 0 || maxSize > MaxFrameSize {
		maxSize = DefaultMaxFrameSize
	}
	return &FrameReader{
		r:            bufio.NewReader(r),
		maxFrameSize: maxSize,
	}
}

// SetLogger configures logging for this reader.
// Pass nil to disable logging.
func (fr *FrameReader) SetLogger(logger log.Logger, sessionID string) {
	fr.logger = logger
	fr.sessionID = sessionID
}

// ReadFrame reads one frame and returns its packet type and body.
//
// ErrFrameTooLarge and ErrInvalidHeader are recoverable: the offending
// bytes have been consumed and the next call continues at the next
// frame boundary. io.EOF and ErrFrameTruncated are terminal.
func (fr *FrameReader) ReadFrame() (byte, []byte, error) {
	if _, err := io.ReadFull(fr.r, fr.headerBuf[:]); err != nil {
		if err == io.EOF {
			return 0, nil, err
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, nil, ErrFrameTruncated
		}
		return 0, nil, fmt.Errorf("failed to read frame header: %w", err)
	}

	total := int(binary.BigEndian.Uint16(fr.headerBuf[:2]))
	packetType := fr.headerBuf[2]

	if total < HeaderSize {
		// Garbage length; the three header bytes are skipped and the
		// next read rescans from here.
		return 0, nil, fmt.Errorf("%w: declared length %d", ErrInvalidHeader, total)
	}
	if total > fr.maxFrameSize {
		// Discard the declared body so the stream resynchronizes at the
		// next frame boundary.
		if _, err := io.CopyN(io.Discard, fr.r, int64(total-HeaderSize)); err != nil {
			return 0, nil, ErrFrameTruncated
		}
		return 0, nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, total, fr.maxFrameSize)
	}

	body := make([]byte, total-HeaderSize)
	if _, err := io.ReadFull(fr.r, body); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || err == io.EOF {
			return 0, nil, ErrFrameTruncated
		}
		return 0, nil, fmt.Errorf("failed to read frame body: %w", err)
	}

	if fr.logger != nil {
		fr.logger.Log(makeFrameEvent(fr.sessionID, packetType, body, log.DirectionIn))
	}

	return packetType, body, nil
}

// makeFrameEvent creates a log event for a frame.
func makeFrameEvent(sessionID string, packetType byte, body []byte, direction log.Direction) log.Event {
	data := body
	truncated := false
	if len(body) > MaxLogFrameDataSize {
		data = body[:MaxLogFrameDataSize]
		truncated = true
	}

	return log.Event{
		Timestamp: time.Now(),
		SessionID: sessionID,
		Direction: direction,
		Layer:     log.LayerTransport,
		Category:  log.CategoryMessage,
		Frame: &log.FrameEvent{
			Size:       HeaderSize + len(body),
			PacketType: packetType,
			Data:       data,
			Truncated:  truncated,
		},
	}
}
