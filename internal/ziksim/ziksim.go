// Package ziksim implements a scriptable fake headset for tests. It
// speaks the real frame and message formats over any byte stream, so
// the client stack above it cannot tell it from hardware.
package ziksim

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/tktech/zik-go/pkg/transport"
	"github.com/tktech/zik-go/pkg/wire"
)

// Device is a fake headset. Zero value is not usable, call New.
type Device struct {
	mu sync.Mutex

	Version        string
	Battery        wire.BatteryStatus
	NoiseCanceling bool
	SpecificMode   bool
	HeadDetection  bool
	AutoConnection bool
	Equalizer      wire.EqualizerState
	Presets        []wire.EqualizerPreset

	reject  map[string]bool
	silence map[string]bool

	requests []wire.Request

	writeMu sync.Mutex
	conn    io.Writer
	fw      *transport.FrameWriter
}

// New returns a device with plausible factory state.
func New() *Device {
	return &Device{
		Version: "2.05",
		Battery: wire.BatteryStatus{State: wire.BatteryInUse, Level: 80},
		Equalizer: wire.EqualizerState{
			Enabled:  false,
			PresetID: 0,
		},
		Presets: []wire.EqualizerPreset{
			{ID: 0, Name: "neutral"},
			{ID: 1, Name: "vocal"},
			{ID: 2, Name: "club"},
		},
		reject:  make(map[string]bool),
		silence: make(map[string]bool),
	}
}

// Update mutates device state under the device lock. Use it when the
// device is already serving.
func (d *Device) Update(fn func(*Device)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d)
}

// Reject makes the device answer requests for path with its error flag
// set.
func (d *Device) Reject(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reject[path] = true
}

// Silence makes the device swallow requests for path without answering.
func (d *Device) Silence(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.silence[path] = true
}

// Requests returns every request the device has received, in order.
func (d *Device) Requests() []wire.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]wire.Request(nil), d.requests...)
}

// RequestCount reports how many requests arrived for the given path.
func (d *Device) RequestCount(path string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, r := range d.requests {
		if r.Path == path {
			n++
		}
	}
	return n
}

// Serve runs the device protocol on conn until the stream ends. It
// performs the handshake, then answers requests against the device
// state. Serve returns nil when the peer closes the stream.
func (d *Device) Serve(conn io.ReadWriteCloser) error {
	fr := transport.NewFrameReader(conn)
	fw := transport.NewFrameWriter(conn)

	// Client handshake, then our ack.
	packetType, _, err := fr.ReadFrame()
	if err != nil {
		return fmt.Errorf("ziksim: handshake read: %w", err)
	}
	if packetType != transport.PacketAck {
		return fmt.Errorf("ziksim: unexpected handshake packet 0x%02x", packetType)
	}
	if err := fw.WriteFrame(transport.PacketAck, nil); err != nil {
		return fmt.Errorf("ziksim: handshake ack: %w", err)
	}

	d.writeMu.Lock()
	d.conn = conn
	d.fw = fw
	d.writeMu.Unlock()

	for {
		packetType, body, err := fr.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return err
		}
		if packetType != transport.PacketData {
			continue
		}
		req, err := wire.ParseRequest(body)
		if err != nil {
			continue
		}
		d.handle(req)
	}
}

// Notify pushes an unsolicited change event to the client.
func (d *Device) Notify(path string) error {
	body, err := wire.EncodeNotify(path)
	if err != nil {
		return err
	}
	return d.writeData(body)
}

// SendRaw writes arbitrary bytes to the stream, bypassing framing.
// Used to inject corrupt input.
func (d *Device) SendRaw(raw []byte) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	if d.conn == nil {
		return errors.New("ziksim: not serving")
	}
	_, err := d.conn.Write(raw)
	return err
}

func (d *Device) writeData(body []byte) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	if d.fw == nil {
		return errors.New("ziksim: not serving")
	}
	return d.fw.WriteFrame(transport.PacketData, body)
}

func (d *Device) handle(req *wire.Request) {
	d.mu.Lock()
	d.requests = append(d.requests, *req)
	if d.silence[req.Path] {
		d.mu.Unlock()
		return
	}
	if d.reject[req.Path] {
		d.mu.Unlock()
		d.answer(fmt.Sprintf(`<answer path=%q error="true"/>`, req.Path))
		return
	}
	if req.Method == wire.MethodSet {
		d.applySet(req)
	}
	doc := d.answerDoc(req.Path)
	d.mu.Unlock()

	d.answer(doc)
}

func (d *Device) answer(doc string) {
	body := append(make([]byte, wire.DataPreludeSize), doc...)
	d.writeData(body)
}

// applySet mutates device state. Caller holds d.mu.
func (d *Device) applySet(req *wire.Request) {
	on := req.Arg == "true"
	switch req.Path {
	case wire.PathNoiseCancellationSet:
		d.NoiseCanceling = on
	case wire.PathSpecificModeSet:
		d.SpecificMode = on
	case wire.PathHeadDetectionSet:
		d.HeadDetection = on
	case wire.PathAutoConnectionSet:
		d.AutoConnection = on
	case wire.PathEqualizerEnabledSet:
		d.Equalizer.Enabled = on
	case wire.PathEqualizerPresetSet:
		var id int
		fmt.Sscanf(req.Arg, "%d", &id)
		d.Equalizer.PresetID = id
	}
}

// answerDoc renders the XML reply for a path. Caller holds d.mu.
func (d *Device) answerDoc(path string) string {
	switch path {
	case wire.PathBatteryGet:
		level := ""
		if d.Battery.State == wire.BatteryInUse {
			level = fmt.Sprintf("%d", d.Battery.Level)
		}
		return fmt.Sprintf(
			`<answer path=%q><system><battery state=%q level=%q/></system></answer>`,
			path, d.Battery.State, level)
	case wire.PathVersionGet:
		return fmt.Sprintf(`<answer path=%q><software version=%q/></answer>`, path, d.Version)
	case wire.PathNoiseCancellationGet:
		return enabledDoc(path, "audio", "noise_cancellation", d.NoiseCanceling)
	case wire.PathSpecificModeGet:
		return enabledDoc(path, "audio", "specific_mode", d.SpecificMode)
	case wire.PathHeadDetectionGet:
		return enabledDoc(path, "system", "head_detection", d.HeadDetection)
	case wire.PathAutoConnectionGet:
		return enabledDoc(path, "system", "auto_connection", d.AutoConnection)
	case wire.PathEqualizerGet:
		return fmt.Sprintf(
			`<answer path=%q><audio><equalizer enabled="%t" preset_id="%d"/></audio></answer>`,
			path, d.Equalizer.Enabled, d.Equalizer.PresetID)
	case wire.PathEqualizerPresetsGet:
		var sb strings.Builder
		fmt.Fprintf(&sb,
			`<answer path=%q><audio><equalizer enabled="%t" preset_id="%d"><presets_list>`,
			path, d.Equalizer.Enabled, d.Equalizer.PresetID)
		for _, p := range d.Presets {
			fmt.Fprintf(&sb, `<preset id="%d" name=%q/>`, p.ID, p.Name)
		}
		sb.WriteString(`</presets_list></equalizer></audio></answer>`)
		return sb.String()
	default:
		// SET confirmations and unmodeled paths get a bare answer.
		return fmt.Sprintf(`<answer path=%q/>`, path)
	}
}

func enabledDoc(path, section, element string, on bool) string {
	return fmt.Sprintf(`<answer path=%q><%s><%s enabled="%t"/></%s></answer>`,
		path, section, element, on, section)
}
