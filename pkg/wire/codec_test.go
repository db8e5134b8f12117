package wire

import (
	"errors"
	"testing"
)

func TestEncodeRequest(t *testing.T) {
	tests := []struct {
		name string
		req  *Request
		want string
	}{
		{
			name: "get battery",
			req:  NewGet(PathBatteryGet),
			want: "GET /api/system/battery/get",
		},
		{
			name: "set noise cancellation on",
			req:  NewSetBool(PathNoiseCancellationSet, true),
			want: "SET /api/audio/noise_cancellation/enabled/set?arg=true",
		},
		{
			name: "set noise cancellation off",
			req:  NewSetBool(PathNoiseCancellationSet, false),
			want: "SET /api/audio/noise_cancellation/enabled/set?arg=false",
		},
		{
			name: "set equalizer preset",
			req:  NewSetInt(PathEqualizerPresetSet, 3),
			want: "SET /api/audio/equalizer/preset_id/set?arg=3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeRequest(tt.req)
			if err != nil {
				t.Fatalf("EncodeRequest failed: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("EncodeRequest = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncodeRequestValidation(t *testing.T) {
	tests := []struct {
		name string
		req  *Request
	}{
		{
			name: "unknown path",
			req:  NewGet("/api/system/unobtainium/get"),
		},
		{
			name: "method mismatch",
			req:  &Request{Method: MethodSet, Path: PathBatteryGet, Arg: "true"},
		},
		{
			name: "bool path with junk argument",
			req:  &Request{Method: MethodSet, Path: PathNoiseCancellationSet, Arg: "maybe"},
		},
		{
			name: "int path with negative argument",
			req:  &Request{Method: MethodSet, Path: PathEqualizerPresetSet, Arg: "-1"},
		},
		{
			name: "int path with non-numeric argument",
			req:  &Request{Method: MethodSet, Path: PathEqualizerPresetSet, Arg: "loud"},
		},
		{
			name: "get with argument",
			req:  &Request{Method: MethodGet, Path: PathBatteryGet, Arg: "1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeRequest(tt.req)
			if !errors.Is(err, ErrEncode) {
				t.Errorf("expected ErrEncode, got %v", err)
			}
		})
	}
}

func TestRequestRoundTrip(t *testing.T) {
	reqs := []*Request{
		NewGet(PathBatteryGet),
		NewGet(PathVersionGet),
		NewSetBool(PathSpecificModeSet, true),
		NewSetBool(PathHeadDetectionSet, false),
		NewSetInt(PathEqualizerPresetSet, 0),
		NewSetInt(PathEqualizerPresetSet, 12),
	}

	for _, req := range reqs {
		body, err := EncodeRequest(req)
		if err != nil {
			t.Fatalf("EncodeRequest(%v) failed: %v", req, err)
		}
		got, err := ParseRequest(body)
		if err != nil {
			t.Fatalf("ParseRequest(%q) failed: %v", body, err)
		}
		if *got != *req {
			t.Errorf("round trip mismatch: got %+v, want %+v", got, req)
		}
	}
}

func TestDecodeAnswerBattery(t *testing.T) {
	tests := []struct {
		name string
		xml  string
		want BatteryStatus
	}{
		{
			name: "in use",
			xml:  `<answer path="/api/system/battery/get"><system><battery state="in-use" level="82"/></system></answer>`,
			want: BatteryStatus{State: BatteryInUse, Level: 82},
		},
		{
			name: "charging",
			xml:  `<answer path="/api/system/battery/get"><system><battery state="charging" level=""/></system></answer>`,
			want: BatteryStatus{State: BatteryCharging},
		},
		{
			name: "calculating",
			xml:  `<answer path="/api/system/battery/get"><system><battery state="in-use" level=""/></system></answer>`,
			want: BatteryStatus{State: BatteryCalculating},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := decodeBody(t, tt.xml)
			if msg.Kind != KindAnswer {
				t.Fatalf("kind = %v, want answer", msg.Kind)
			}
			got, ok := msg.Answer.Battery()
			if !ok {
				t.Fatal("Battery() reported no payload")
			}
			if got != tt.want {
				t.Errorf("Battery() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeAnswerFeatures(t *testing.T) {
	msg := decodeBody(t, `<answer path="/api/audio/noise_cancellation/enabled/get"><audio><noise_cancellation enabled="true"/></audio></answer>`)
	if on, ok := msg.Answer.NoiseCancellation(); !ok || !on {
		t.Errorf("NoiseCancellation() = %v, %v, want true, true", on, ok)
	}

	msg = decodeBody(t, `<answer path="/api/software/version/get"><software version="2.05"/></answer>`)
	if v, ok := msg.Answer.SoftwareVersion(); !ok || v != "2.05" {
		t.Errorf("SoftwareVersion() = %q, %v, want 2.05, true", v, ok)
	}

	msg = decodeBody(t, `<answer path="/api/audio/equalizer/get"><audio><equalizer enabled="true" preset_id="4"/></audio></answer>`)
	if eq, ok := msg.Answer.Equalizer(); !ok || eq != (EqualizerState{Enabled: true, PresetID: 4}) {
		t.Errorf("Equalizer() = %+v, %v", eq, ok)
	}

	msg = decodeBody(t, `<answer path="/api/audio/equalizer/presets_list/get"><audio><equalizer enabled="false" preset_id="0"><presets_list><preset id="0" name="Vocal"/><preset id="1" name="Club"/></presets_list></equalizer></audio></answer>`)
	presets, ok := msg.Answer.EqualizerPresets()
	if !ok || len(presets) != 2 {
		t.Fatalf("EqualizerPresets() = %v, %v", presets, ok)
	}
	if presets[1] != (EqualizerPreset{ID: 1, Name: "Club"}) {
		t.Errorf("preset[1] = %+v", presets[1])
	}
}

func TestDecodeIgnoresUnknownFields(t *testing.T) {
	// A future firmware adds elements and attributes; decoding must not care.
	msg := decodeBody(t, `<answer path="/api/system/battery/get" firmware="9.99"><system><battery state="in-use" level="50" voltage="3812"/><thermal level="ok"/></system><flight_mode enabled="false"/></answer>`)
	got, ok := msg.Answer.Battery()
	if !ok {
		t.Fatal("Battery() reported no payload")
	}
	if got != (BatteryStatus{State: BatteryInUse, Level: 50}) {
		t.Errorf("Battery() = %+v", got)
	}
}

func TestDecodeNotify(t *testing.T) {
	msg := decodeBody(t, `<notify path="/api/system/battery/get"/>`)
	if msg.Kind != KindNotify {
		t.Fatalf("kind = %v, want notify", msg.Kind)
	}
	if msg.Path != PathBatteryGet {
		t.Errorf("path = %q", msg.Path)
	}
	if msg.Answer != nil {
		t.Error("notify should carry no answer")
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{
			name: "empty body",
			body: nil,
		},
		{
			name: "prelude only",
			body: make([]byte, DataPreludeSize),
		},
		{
			name: "truncated xml",
			body: withPrelude(`<answer path="/api/system/battery/get"><system>`),
		},
		{
			name: "missing path attribute",
			body: withPrelude(`<answer><system><battery state="in-use" level="10"/></system></answer>`),
		},
		{
			name: "unknown root element",
			body: withPrelude(`<command path="/api/system/battery/get"/>`),
		},
		{
			name: "not xml at all",
			body: withPrelude("GET /api/system/battery/get"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeMessage(tt.body)
			if !errors.Is(err, ErrDecode) {
				t.Errorf("expected ErrDecode, got %v", err)
			}
		})
	}
}

func TestEncodeAnswerRoundTrip(t *testing.T) {
	a := &Answer{
		Path: PathBatteryGet,
		System: &systemNode{
			Battery: &batteryNode{State: "in-use", Level: "64"},
		},
	}
	body, err := EncodeAnswer(a)
	if err != nil {
		t.Fatalf("EncodeAnswer failed: %v", err)
	}
	msg, err := DecodeMessage(body)
	if err != nil {
		t.Fatalf("DecodeMessage failed: %v", err)
	}
	if msg.Path != PathBatteryGet {
		t.Errorf("path = %q", msg.Path)
	}
	got, ok := msg.Answer.Battery()
	if !ok || got != (BatteryStatus{State: BatteryInUse, Level: 64}) {
		t.Errorf("Battery() = %+v, %v", got, ok)
	}
}

func TestRejectedAnswer(t *testing.T) {
	msg := decodeBody(t, `<answer path="/api/audio/equalizer/preset_id/set" error="true"/>`)
	if !msg.Answer.Rejected() {
		t.Error("Rejected() = false, want true")
	}
}

// decodeBody wraps an XML document with the data prelude and decodes it.
func decodeBody(t *testing.T, doc string) *Message {
	t.Helper()
	msg, err := DecodeMessage(withPrelude(doc))
	if err != nil {
		t.Fatalf("DecodeMessage failed: %v", err)
	}
	return msg
}

func withPrelude(doc string) []byte {
	body := make([]byte, DataPreludeSize, DataPreludeSize+len(doc))
	return append(body, doc...)
}
