package wire

import (
	"encoding/xml"
	"strconv"
)

// Method is the request method sent on the wire.
type Method string

const (
	// MethodGet queries the current value of a path.
	MethodGet Method = "GET"

	// MethodSet writes a value to a path.
	MethodSet Method = "SET"
)

// Kind classifies a decoded incoming message.
type Kind uint8

const (
	// KindAnswer is a direct reply; its path echoes the request path.
	KindAnswer Kind = iota

	// KindNotify is an unsolicited change event carrying no values.
	KindNotify
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindAnswer:
		return "answer"
	case KindNotify:
		return "notify"
	default:
		return "unknown"
	}
}

// Request is an outgoing command or query.
type Request struct {
	Method Method
	Path   string

	// Arg is the rendered argument for SET requests ("true", "false",
	// or a decimal integer). Empty for GET requests.
	Arg string
}

// NewGet builds a query request for a path.
func NewGet(path string) *Request {
	return &Request{Method: MethodGet, Path: path}
}

// NewSetBool builds a SET request with a boolean argument.
func NewSetBool(path string, value bool) *Request {
	arg := "false"
	if value {
		arg = "true"
	}
	return &Request{Method: MethodSet, Path: path, Arg: arg}
}

// NewSetInt builds a SET request with an integer argument.
func NewSetInt(path string, value int) *Request {
	return &Request{Method: MethodSet, Path: path, Arg: strconv.Itoa(value)}
}

// Message is a decoded incoming protocol unit.
type Message struct {
	Kind Kind

	// Path identifies the device attribute the message concerns.
	Path string

	// Answer holds the decoded reply body. Nil for notifications.
	Answer *Answer
}

// Answer is the XML document a Zik sends in reply to a request.
//
// Only elements the client understands are declared; encoding/xml
// drops everything else, which is the forward-compatibility behavior
// the protocol requires.
type Answer struct {
	XMLName xml.Name `xml:"answer"`
	Path    string   `xml:"path,attr"`

	// ErrorFlag is "true" when the device rejected the request.
	ErrorFlag string `xml:"error,attr"`

	System   *systemNode   `xml:"system"`
	Audio    *audioNode    `xml:"audio"`
	Software *softwareNode `xml:"software"`
}

// Rejected reports whether the device refused the request this answer
// replies to.
func (a *Answer) Rejected() bool {
	return a.ErrorFlag == "true"
}

// Notify is the XML document for an unsolicited change event.
type Notify struct {
	XMLName xml.Name `xml:"notify"`
	Path    string   `xml:"path,attr"`
}

type systemNode struct {
	Battery        *batteryNode `xml:"battery"`
	HeadDetection  *enabledNode `xml:"head_detection"`
	AutoConnection *enabledNode `xml:"auto_connection"`
}

type audioNode struct {
	NoiseCancellation *enabledNode   `xml:"noise_cancellation"`
	SpecificMode      *enabledNode   `xml:"specific_mode"`
	Equalizer         *equalizerNode `xml:"equalizer"`
}

type softwareNode struct {
	Version string `xml:"version,attr"`
}

type batteryNode struct {
	State string `xml:"state,attr"`
	Level string `xml:"level,attr"`
}

type enabledNode struct {
	Enabled string `xml:"enabled,attr"`
}

type equalizerNode struct {
	Enabled  string           `xml:"enabled,attr"`
	PresetID string           `xml:"preset_id,attr"`
	Presets  *presetsListNode `xml:"presets_list"`
}

type presetsListNode struct {
	Presets []presetNode `xml:"preset"`
}

type presetNode struct {
	ID   string `xml:"id,attr"`
	Name string `xml:"name,attr"`
}

// BatteryState describes how the battery is currently reporting.
type BatteryState uint8

const (
	// BatteryInUse means the headset runs on battery and reports a level.
	BatteryInUse BatteryState = iota

	// BatteryCharging means the headset is plugged in and charging.
	BatteryCharging

	// BatteryCalculating means the headset was just unplugged and has
	// not yet estimated the remaining level. A follow-up notify arrives
	// once the level is known.
	BatteryCalculating
)

// String returns the battery state name.
func (s BatteryState) String() string {
	switch s {
	case BatteryInUse:
		return "in-use"
	case BatteryCharging:
		return "charging"
	case BatteryCalculating:
		return "calculating"
	default:
		return "unknown"
	}
}

// BatteryStatus is the decoded battery attribute.
type BatteryStatus struct {
	State BatteryState

	// Level is the charge percentage. Only meaningful when State is
	// BatteryInUse.
	Level int
}

// String renders the status for display, e.g. "82% (in-use)".
func (b BatteryStatus) String() string {
	if b.State == BatteryInUse {
		return strconv.Itoa(b.Level) + "% (in-use)"
	}
	return b.State.String()
}

// EqualizerState is the decoded equalizer attribute.
type EqualizerState struct {
	Enabled  bool
	PresetID int
}

// EqualizerPreset is one entry of the device's preset list.
type EqualizerPreset struct {
	ID   int
	Name string
}

// Battery extracts the battery status from an answer.
// Reports false when the answer carries no parseable battery payload.
func (a *Answer) Battery() (BatteryStatus, bool) {
	if a.System == nil || a.System.Battery == nil {
		return BatteryStatus{}, false
	}
	b := a.System.Battery
	if b.State == "charging" {
		return BatteryStatus{State: BatteryCharging}, true
	}
	if b.Level == "" {
		// Unplugged but the estimate is not ready yet.
		return BatteryStatus{State: BatteryCalculating}, true
	}
	level, err := strconv.Atoi(b.Level)
	if err != nil {
		return BatteryStatus{}, false
	}
	return BatteryStatus{State: BatteryInUse, Level: level}, true
}

// NoiseCancellation extracts the noise cancellation flag from an answer.
func (a *Answer) NoiseCancellation() (bool, bool) {
	if a.Audio == nil || a.Audio.NoiseCancellation == nil {
		return false, false
	}
	return a.Audio.NoiseCancellation.Enabled == "true", true
}

// SpecificMode extracts the specific mode ("Lou Reed" mode) flag.
func (a *Answer) SpecificMode() (bool, bool) {
	if a.Audio == nil || a.Audio.SpecificMode == nil {
		return false, false
	}
	return a.Audio.SpecificMode.Enabled == "true", true
}

// HeadDetection extracts the head detection flag from an answer.
func (a *Answer) HeadDetection() (bool, bool) {
	if a.System == nil || a.System.HeadDetection == nil {
		return false, false
	}
	return a.System.HeadDetection.Enabled == "true", true
}

// AutoConnection extracts the auto connection flag from an answer.
func (a *Answer) AutoConnection() (bool, bool) {
	if a.System == nil || a.System.AutoConnection == nil {
		return false, false
	}
	return a.System.AutoConnection.Enabled == "true", true
}

// SoftwareVersion extracts the firmware version string from an answer.
func (a *Answer) SoftwareVersion() (string, bool) {
	if a.Software == nil || a.Software.Version == "" {
		return "", false
	}
	return a.Software.Version, true
}

// Equalizer extracts the equalizer state from an answer.
func (a *Answer) Equalizer() (EqualizerState, bool) {
	if a.Audio == nil || a.Audio.Equalizer == nil {
		return EqualizerState{}, false
	}
	eq := a.Audio.Equalizer
	id, err := strconv.Atoi(eq.PresetID)
	if err != nil {
		return EqualizerState{}, false
	}
	return EqualizerState{Enabled: eq.Enabled == "true", PresetID: id}, true
}

// EqualizerPresets extracts the preset list from an answer.
// Presets with a malformed id are skipped.
func (a *Answer) EqualizerPresets() ([]EqualizerPreset, bool) {
	if a.Audio == nil || a.Audio.Equalizer == nil || a.Audio.Equalizer.Presets == nil {
		return nil, false
	}
	raw := a.Audio.Equalizer.Presets.Presets
	presets := make([]EqualizerPreset, 0, len(raw))
	for _, p := range raw {
		id, err := strconv.Atoi(p.ID)
		if err != nil {
			continue
		}
		presets = append(presets, EqualizerPreset{ID: id, Name: p.Name})
	}
	return presets, true
}
