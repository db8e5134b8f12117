package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tktech/zik-go/pkg/log"
)

// Session states.
type State int32

const (
	// StateConnecting means the handshake has not completed yet.
	StateConnecting State = iota

	// StateReady means frames flow in both directions.
	StateReady

	// StateDraining means the session is shutting down; pending work is
	// failing out and new sends are rejected.
	StateDraining

	// StateClosed is terminal. A new Session must be constructed to
	// resume control.
	StateClosed
)

// String returns the session state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateReady:
		return "READY"
	case StateDraining:
		return "DRAINING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Session errors.
var (
	// ErrNotConnected indicates the session is not in the Ready state.
	ErrNotConnected = errors.New("session not connected")

	// ErrTransportLost indicates the underlying stream died. Terminal
	// to the session; the owner decides whether to build a new one.
	ErrTransportLost = errors.New("transport lost")

	// ErrHandshakeFailed indicates the device did not acknowledge the
	// session-open handshake.
	ErrHandshakeFailed = errors.New("handshake failed")
)

// Handler receives session events. All callbacks run on the session's
// reader goroutine and must not block.
type Handler interface {
	// OnFrame is called with the body of each complete data frame.
	OnFrame(body []byte)

	// OnStateChange is called when the session state changes.
	OnStateChange(oldState, newState State)

	// OnError is called for recoverable frame errors and for the
	// terminal transport loss.
	OnError(err error)
}

// Config configures a Session.
type Config struct {
	// MaxFrameSize is the maximum accepted frame size (default 8 KB).
	MaxFrameSize int

	// HandshakeTimeout bounds the wait for the device's handshake ack
	// (default 5s).
	HandshakeTimeout time.Duration

	// Logger receives protocol events. Nil disables logging.
	Logger log.Logger

	// DeviceAddr is the headset's Bluetooth address, for log events only.
	DeviceAddr string
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		MaxFrameSize:     DefaultMaxFrameSize,
		HandshakeTimeout: 5 * time.Second,
	}
}

// Session owns one connected control-channel stream for its lifetime.
// It is the sole reader and writer of the raw bytes; everything above
// it deals in frames and messages.
type Session struct {
	id      string
	cfg     Config
	handler Handler

	stream io.ReadWriteCloser
	fr     *FrameReader
	fw     *FrameWriter

	state     atomic.Int32
	closeOnce sync.Once
	opened    atomic.Bool

	// reading is set once the reader loop has started; only then will
	// done be closed.
	reading atomic.Bool

	// done is closed when the reader loop has exited.
	done chan struct{}
}

// NewSession creates a session over an already-open stream.
// The session starts in Connecting; call Open to perform the handshake.
func NewSession(stream io.ReadWriteCloser, handler Handler, cfg Config) *Session {
	if cfg.MaxFrameSize == 0 {
		cfg.MaxFrameSize = DefaultMaxFrameSize
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 5 * time.Second
	}

	s := &Session{
		id:      uuid.NewString(),
		cfg:     cfg,
		handler: handler,
		stream:  stream,
		fr:      NewFrameReaderWithMaxSize(stream, cfg.MaxFrameSize),
		fw:      NewFrameWriterWithMaxSize(stream, cfg.MaxFrameSize),
		done:    make(chan struct{}),
	}
	s.state.Store(int32(StateConnecting))

	if cfg.Logger != nil {
		s.fr.SetLogger(cfg.Logger, s.id)
		s.fw.SetLogger(cfg.Logger, s.id)
	}

	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current session state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Open performs the session-open handshake and starts the reader loop.
// On failure the stream is closed and the session is Closed.
func (s *Session) Open(ctx context.Context) error {
	if s.State() != StateConnecting || !s.opened.CompareAndSwap(false, true) {
		return ErrNotConnected
	}

	if err := s.fw.WriteFrame(PacketAck, nil); err != nil {
		s.abortOpen()
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	type ackResult struct {
		packetType byte
		err        error
	}
	ackCh := make(chan ackResult, 1)
	go func() {
		typ, _, err := s.fr.ReadFrame()
		ackCh <- ackResult{packetType: typ, err: err}
	}()

	select {
	case <-ctx.Done():
		s.abortOpen()
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, ctx.Err())
	case <-time.After(s.cfg.HandshakeTimeout):
		s.abortOpen()
		return fmt.Errorf("%w: no ack within %v", ErrHandshakeFailed, s.cfg.HandshakeTimeout)
	case res := <-ackCh:
		if res.err != nil {
			s.abortOpen()
			return fmt.Errorf("%w: %v", ErrHandshakeFailed, res.err)
		}
		if res.packetType != PacketAck {
			s.abortOpen()
			return fmt.Errorf("%w: unexpected packet type 0x%02x", ErrHandshakeFailed, res.packetType)
		}
	}

	s.setState(StateReady, "handshake complete")
	s.reading.Store(true)
	go s.readLoop()

	return nil
}

// Send writes one data frame. Fails fast with ErrNotConnected unless
// the session is Ready. Safe for concurrent use; concurrent frames are
// never interleaved on the wire.
func (s *Session) Send(body []byte) error {
	if s.State() != StateReady {
		return ErrNotConnected
	}

	err := s.fw.WriteFrame(PacketData, body)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrFrameTooLarge) {
		// Local rejection; the session is still healthy.
		return err
	}

	// The stream is gone; tear down.
	lost := fmt.Errorf("%w: %v", ErrTransportLost, err)
	s.terminate(lost)
	return lost
}

// Close drains and closes the session. Safe to call multiple times.
// It returns once the reader loop has stopped and the session is Closed.
func (s *Session) Close() error {
	if !s.reading.Load() {
		// The reader loop never started, either because Open was never
		// called or because the handshake failed. There is nothing to
		// wait for.
		s.closeOnce.Do(func() {
			s.stream.Close()
			s.setState(StateClosed, "closed before open")
		})
		return nil
	}

	s.terminate(nil)
	<-s.done
	return nil
}

// abortOpen closes a session whose handshake failed.
func (s *Session) abortOpen() {
	s.closeOnce.Do(func() {
		s.stream.Close()
		s.setState(StateClosed, "handshake failed")
	})
}

// terminate moves the session to Draining and closes the stream, which
// unblocks the reader loop. The reader loop performs the final
// transition to Closed. A non-nil cause is reported to the handler.
func (s *Session) terminate(cause error) {
	s.closeOnce.Do(func() {
		s.setState(StateDraining, reasonFor(cause))
		if cause != nil && s.handler != nil {
			s.handler.OnError(cause)
		}
		s.stream.Close()
	})
}

func reasonFor(cause error) string {
	if cause == nil {
		return "close requested"
	}
	return cause.Error()
}

// readLoop reads frames until the stream dies or the session drains.
func (s *Session) readLoop() {
	defer func() {
		s.setState(StateClosed, "")
		close(s.done)
	}()

	for {
		packetType, body, err := s.fr.ReadFrame()
		switch {
		case err == nil:
			if packetType != PacketData {
				// Stray handshake acks carry nothing actionable.
				continue
			}
			if s.handler != nil {
				s.handler.OnFrame(body)
			}

		case errors.Is(err, ErrFrameTooLarge) || errors.Is(err, ErrInvalidHeader):
			// Recoverable: the frame was dropped and the reader has
			// already resynchronized.
			s.logError(log.LayerTransport, err)
			if s.handler != nil {
				s.handler.OnError(err)
			}

		default:
			if s.State() == StateDraining {
				// Expected during Close.
				return
			}
			s.terminate(fmt.Errorf("%w: %v", ErrTransportLost, err))
			return
		}
	}
}

// setState transitions the session state and notifies the handler and
// logger. No-op if the state is unchanged.
func (s *Session) setState(newState State, reason string) {
	oldState := State(s.state.Swap(int32(newState)))
	if oldState == newState {
		return
	}

	if s.cfg.Logger != nil {
		s.cfg.Logger.Log(log.Event{
			Timestamp:  time.Now(),
			SessionID:  s.id,
			Direction:  log.DirectionIn,
			Layer:      log.LayerSession,
			Category:   log.CategoryState,
			DeviceAddr: s.cfg.DeviceAddr,
			StateChange: &log.StateChangeEvent{
				OldState: oldState.String(),
				NewState: newState.String(),
				Reason:   reason,
			},
		})
	}
	if s.handler != nil {
		s.handler.OnStateChange(oldState, newState)
	}
}

// logError records a recoverable error in the protocol log.
func (s *Session) logError(layer log.Layer, err error) {
	if s.cfg.Logger == nil {
		return
	}
	s.cfg.Logger.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  s.id,
		Direction:  log.DirectionIn,
		Layer:      layer,
		Category:   log.CategoryError,
		DeviceAddr: s.cfg.DeviceAddr,
		Error: &log.ErrorEvent{
			Layer:   layer,
			Message: err.Error(),
		},
	})
}
