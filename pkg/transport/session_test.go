package transport

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

// captureHandler records session events for assertions.
type captureHandler struct {
	mu     sync.Mutex
	frames [][]byte
	states []State
	errs   []error

	frameCh chan []byte
	stateCh chan State
}

func newCaptureHandler() *captureHandler {
	return &captureHandler{
		frameCh: make(chan []byte, 16),
		stateCh: make(chan State, 16),
	}
}

func (h *captureHandler) OnFrame(body []byte) {
	h.mu.Lock()
	h.frames = append(h.frames, append([]byte(nil), body...))
	h.mu.Unlock()
	h.frameCh <- append([]byte(nil), body...)
}

func (h *captureHandler) OnStateChange(oldState, newState State) {
	h.mu.Lock()
	h.states = append(h.states, newState)
	h.mu.Unlock()
	h.stateCh <- newState
}

func (h *captureHandler) OnError(err error) {
	h.mu.Lock()
	h.errs = append(h.errs, err)
	h.mu.Unlock()
}

func (h *captureHandler) errorCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.errs)
}

func (h *captureHandler) waitState(t *testing.T, want State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-h.stateCh:
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %v", want)
		}
	}
}

func (h *captureHandler) waitFrame(t *testing.T) []byte {
	t.Helper()
	select {
	case f := <-h.frameCh:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

// deviceEnd drives the device side of a net.Pipe for tests.
type deviceEnd struct {
	conn net.Conn
	fr   *FrameReader
	fw   *FrameWriter
}

func newDeviceEnd(conn net.Conn) *deviceEnd {
	return &deviceEnd{
		conn: conn,
		fr:   NewFrameReader(conn),
		fw:   NewFrameWriter(conn),
	}
}

// ackHandshake consumes the client handshake and replies with an ack.
func (d *deviceEnd) ackHandshake(t *testing.T) {
	t.Helper()
	packetType, _, err := d.fr.ReadFrame()
	if err != nil {
		t.Errorf("device: read handshake failed: %v", err)
		return
	}
	if packetType != PacketAck {
		t.Errorf("device: handshake packet type = 0x%02x", packetType)
	}
	if err := d.fw.WriteFrame(PacketAck, nil); err != nil {
		t.Errorf("device: write ack failed: %v", err)
	}
}

func openTestSession(t *testing.T) (*Session, *deviceEnd, *captureHandler) {
	t.Helper()
	client, device := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		device.Close()
	})

	dev := newDeviceEnd(device)
	go dev.ackHandshake(t)

	handler := newCaptureHandler()
	sess := NewSession(client, handler, DefaultConfig())

	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	handler.waitState(t, StateReady)
	return sess, dev, handler
}

func TestSessionOpenHandshake(t *testing.T) {
	sess, _, _ := openTestSession(t)
	defer sess.Close()

	if sess.State() != StateReady {
		t.Errorf("state = %v, want READY", sess.State())
	}
	if sess.ID() == "" {
		t.Error("session ID is empty")
	}
}

func TestSessionSendBeforeOpen(t *testing.T) {
	client, device := net.Pipe()
	defer client.Close()
	defer device.Close()

	sess := NewSession(client, newCaptureHandler(), DefaultConfig())
	if err := sess.Send([]byte("GET /api/system/battery/get")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestSessionHandshakeTimeout(t *testing.T) {
	client, device := net.Pipe()
	defer client.Close()
	defer device.Close()

	// Device consumes the handshake but never acks.
	go func() {
		buf := make([]byte, 3)
		device.Read(buf)
	}()

	cfg := DefaultConfig()
	cfg.HandshakeTimeout = 50 * time.Millisecond
	sess := NewSession(client, newCaptureHandler(), cfg)

	err := sess.Open(context.Background())
	if !errors.Is(err, ErrHandshakeFailed) {
		t.Errorf("expected ErrHandshakeFailed, got %v", err)
	}
	if sess.State() != StateClosed {
		t.Errorf("state after failed handshake = %v, want CLOSED", sess.State())
	}
}

func TestSessionCloseAfterFailedOpen(t *testing.T) {
	client, device := net.Pipe()
	defer client.Close()
	defer device.Close()

	// Device consumes the handshake but never acks.
	go func() {
		buf := make([]byte, 3)
		device.Read(buf)
	}()

	cfg := DefaultConfig()
	cfg.HandshakeTimeout = 50 * time.Millisecond
	sess := NewSession(client, newCaptureHandler(), cfg)

	if err := sess.Open(context.Background()); !errors.Is(err, ErrHandshakeFailed) {
		t.Fatalf("expected ErrHandshakeFailed, got %v", err)
	}

	// Close must return even though the reader loop never started.
	closed := make(chan error, 1)
	go func() { closed <- sess.Close() }()
	select {
	case err := <-closed:
		if err != nil {
			t.Errorf("Close failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close hung after failed Open")
	}
	if sess.State() != StateClosed {
		t.Errorf("state = %v, want CLOSED", sess.State())
	}
}

func TestSessionFrameDelivery(t *testing.T) {
	sess, dev, handler := openTestSession(t)
	defer sess.Close()

	want := `<answer path="/api/software/version/get"><software version="2.05"/></answer>`
	go func() {
		dev.fw.WriteFrame(PacketData, []byte(want))
	}()

	got := handler.waitFrame(t)
	if string(got) != want {
		t.Errorf("frame body = %q", got)
	}
}

func TestSessionRecoversFromOversizedFrame(t *testing.T) {
	client, device := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		device.Close()
	})

	dev := newDeviceEnd(device)
	go dev.ackHandshake(t)

	handler := newCaptureHandler()
	cfg := DefaultConfig()
	cfg.MaxFrameSize = 64
	sess := NewSession(client, handler, cfg)
	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer sess.Close()

	go func() {
		dev.fw.WriteFrame(PacketData, []byte("first"))
		// Hand-rolled oversized frame: the device-side writer would
		// reject it, the session reader must skip it.
		var buf bytes.Buffer
		big := bytes.Repeat([]byte("z"), 200)
		var header [HeaderSize]byte
		binary.BigEndian.PutUint16(header[:2], uint16(HeaderSize+len(big)))
		header[2] = PacketData
		buf.Write(header[:])
		buf.Write(big)
		device.Write(buf.Bytes())
		dev.fw.WriteFrame(PacketData, []byte("second"))
	}()

	if got := handler.waitFrame(t); string(got) != "first" {
		t.Errorf("first frame = %q", got)
	}
	if got := handler.waitFrame(t); string(got) != "second" {
		t.Errorf("second frame = %q", got)
	}
	if handler.errorCount() != 1 {
		t.Errorf("error count = %d, want 1", handler.errorCount())
	}
	if sess.State() != StateReady {
		t.Errorf("state = %v, want READY", sess.State())
	}
}

func TestSessionTransportLost(t *testing.T) {
	sess, dev, handler := openTestSession(t)

	dev.conn.Close()
	handler.waitState(t, StateClosed)

	handler.mu.Lock()
	sawLost := false
	for _, err := range handler.errs {
		if errors.Is(err, ErrTransportLost) {
			sawLost = true
		}
	}
	handler.mu.Unlock()
	if !sawLost {
		t.Error("handler never saw ErrTransportLost")
	}

	if err := sess.Send([]byte("GET /api/system/battery/get")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send after loss = %v, want ErrNotConnected", err)
	}
}

func TestSessionClose(t *testing.T) {
	sess, _, handler := openTestSession(t)

	if err := sess.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if sess.State() != StateClosed {
		t.Errorf("state = %v, want CLOSED", sess.State())
	}

	handler.mu.Lock()
	var sawDraining bool
	for _, s := range handler.states {
		if s == StateDraining {
			sawDraining = true
		}
	}
	handler.mu.Unlock()
	if !sawDraining {
		t.Error("session skipped the DRAINING state")
	}

	// Idempotent.
	if err := sess.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}
