package wire

// Zik API paths. Each queryable or settable device attribute lives at a
// fixed path; SET paths take a single ?arg= value.
const (
	PathBatteryGet    = "/api/system/battery/get"
	PathDeviceTypeGet = "/api/system/device_type/get"
	PathVersionGet    = "/api/software/version/get"

	PathHeadDetectionGet = "/api/system/head_detection/enabled/get"
	PathHeadDetectionSet = "/api/system/head_detection/enabled/set"

	PathAutoConnectionGet = "/api/system/auto_connection/enabled/get"
	PathAutoConnectionSet = "/api/system/auto_connection/enabled/set"

	PathNoiseCancellationGet = "/api/audio/noise_cancellation/enabled/get"
	PathNoiseCancellationSet = "/api/audio/noise_cancellation/enabled/set"

	PathSpecificModeGet = "/api/audio/specific_mode/enabled/get"
	PathSpecificModeSet = "/api/audio/specific_mode/enabled/set"

	PathEqualizerGet        = "/api/audio/equalizer/get"
	PathEqualizerPresetsGet = "/api/audio/equalizer/presets_list/get"
	PathEqualizerEnabledSet = "/api/audio/equalizer/enabled/set"
	PathEqualizerPresetSet  = "/api/audio/equalizer/preset_id/set"
)

// ArgKind describes the value domain of a SET path's argument.
type ArgKind uint8

const (
	// ArgNone indicates the path takes no argument (all GET paths).
	ArgNone ArgKind = iota

	// ArgBool indicates the argument must be "true" or "false".
	ArgBool

	// ArgInt indicates the argument must be a non-negative integer.
	ArgInt
)

// pathInfo records the method and argument domain for a known path.
type pathInfo struct {
	method Method
	arg    ArgKind
}

// pathRegistry is the versioned contract between this client and the
// device firmware. Paths absent from the registry are rejected on
// encode; unknown paths in incoming messages are passed through so a
// newer firmware can still be observed.
var pathRegistry = map[string]pathInfo{
	PathBatteryGet:    {MethodGet, ArgNone},
	PathDeviceTypeGet: {MethodGet, ArgNone},
	PathVersionGet:    {MethodGet, ArgNone},

	PathHeadDetectionGet: {MethodGet, ArgNone},
	PathHeadDetectionSet: {MethodSet, ArgBool},

	PathAutoConnectionGet: {MethodGet, ArgNone},
	PathAutoConnectionSet: {MethodSet, ArgBool},

	PathNoiseCancellationGet: {MethodGet, ArgNone},
	PathNoiseCancellationSet: {MethodSet, ArgBool},

	PathSpecificModeGet: {MethodGet, ArgNone},
	PathSpecificModeSet: {MethodSet, ArgBool},

	PathEqualizerGet:        {MethodGet, ArgNone},
	PathEqualizerPresetsGet: {MethodGet, ArgNone},
	PathEqualizerEnabledSet: {MethodSet, ArgBool},
	PathEqualizerPresetSet:  {MethodSet, ArgInt},
}

// KnownPath reports whether the path is part of the known API contract.
func KnownPath(path string) bool {
	_, ok := pathRegistry[path]
	return ok
}

// KnownPaths returns all registered paths. The order is unspecified.
func KnownPaths() []string {
	paths := make([]string, 0, len(pathRegistry))
	for p := range pathRegistry {
		paths = append(paths, p)
	}
	return paths
}
