package state

import (
	"sync"
	"time"

	"github.com/tktech/zik-go/pkg/wire"
)

// Attribute identifies a cached device property.
type Attribute int

const (
	AttrBattery Attribute = iota
	AttrDeviceType
	AttrSoftwareVersion
	AttrHeadDetection
	AttrAutoConnection
	AttrNoiseCancellation
	AttrSpecificMode
	AttrEqualizer
	AttrEqualizerPresets
)

func (a Attribute) String() string {
	switch a {
	case AttrBattery:
		return "battery"
	case AttrDeviceType:
		return "device_type"
	case AttrSoftwareVersion:
		return "software_version"
	case AttrHeadDetection:
		return "head_detection"
	case AttrAutoConnection:
		return "auto_connection"
	case AttrNoiseCancellation:
		return "noise_cancellation"
	case AttrSpecificMode:
		return "specific_mode"
	case AttrEqualizer:
		return "equalizer"
	case AttrEqualizerPresets:
		return "equalizer_presets"
	default:
		return "unknown"
	}
}

// QueryPath returns the GET path that refreshes this attribute.
func (a Attribute) QueryPath() string {
	switch a {
	case AttrBattery:
		return wire.PathBatteryGet
	case AttrDeviceType:
		return wire.PathDeviceTypeGet
	case AttrSoftwareVersion:
		return wire.PathVersionGet
	case AttrHeadDetection:
		return wire.PathHeadDetectionGet
	case AttrAutoConnection:
		return wire.PathAutoConnectionGet
	case AttrNoiseCancellation:
		return wire.PathNoiseCancellationGet
	case AttrSpecificMode:
		return wire.PathSpecificModeGet
	case AttrEqualizer:
		return wire.PathEqualizerGet
	case AttrEqualizerPresets:
		return wire.PathEqualizerPresetsGet
	default:
		return ""
	}
}

// attrByPath maps every known request path, get and set alike, to the
// attribute it reflects. Notifications arrive on either form.
var attrByPath = map[string]Attribute{
	wire.PathBatteryGet:           AttrBattery,
	wire.PathDeviceTypeGet:        AttrDeviceType,
	wire.PathVersionGet:           AttrSoftwareVersion,
	wire.PathHeadDetectionGet:     AttrHeadDetection,
	wire.PathHeadDetectionSet:     AttrHeadDetection,
	wire.PathAutoConnectionGet:    AttrAutoConnection,
	wire.PathAutoConnectionSet:    AttrAutoConnection,
	wire.PathNoiseCancellationGet: AttrNoiseCancellation,
	wire.PathNoiseCancellationSet: AttrNoiseCancellation,
	wire.PathSpecificModeGet:      AttrSpecificMode,
	wire.PathSpecificModeSet:      AttrSpecificMode,
	wire.PathEqualizerGet:         AttrEqualizer,
	wire.PathEqualizerPresetsGet:  AttrEqualizerPresets,
	wire.PathEqualizerEnabledSet:  AttrEqualizer,
	wire.PathEqualizerPresetSet:   AttrEqualizer,
}

// AttributeForPath resolves a protocol path to the attribute it affects.
func AttributeForPath(path string) (Attribute, bool) {
	attr, ok := attrByPath[path]
	return attr, ok
}

// Freshness describes how much a cached value can be trusted.
type Freshness int

const (
	// FreshnessUnknown means no value has been observed yet.
	FreshnessUnknown Freshness = iota
	// FreshnessFresh means the value was observed recently and no
	// notification has invalidated it since.
	FreshnessFresh
	// FreshnessStale means a value exists but has aged out or was
	// invalidated by a device notification.
	FreshnessStale
)

func (f Freshness) String() string {
	switch f {
	case FreshnessFresh:
		return "fresh"
	case FreshnessStale:
		return "stale"
	default:
		return "unknown"
	}
}

// DefaultTTL is how long an observed value counts as fresh.
const DefaultTTL = 30 * time.Second

type entry struct {
	value       any
	observedAt  time.Time
	invalidated bool
}

// Cache holds the last observed value per attribute.
//
// All methods are safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[Attribute]*entry
}

// NewCache returns an empty cache with the given freshness window.
// A zero ttl selects DefaultTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[Attribute]*entry),
	}
}

// Put records a value observed at the given time. It returns false when
// the cache already holds a newer observation, in which case the stored
// value is kept.
func (c *Cache) Put(attr Attribute, value any, observedAt time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[attr]; ok && e.observedAt.After(observedAt) {
		return false
	}
	c.entries[attr] = &entry{value: value, observedAt: observedAt}
	return true
}

// Invalidate marks an attribute stale without discarding its value.
// Used when the device announces a change but does not say what changed
// to.
func (c *Cache) Invalidate(attr Attribute) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[attr]; ok {
		e.invalidated = true
	}
}

// Get returns the cached value and its freshness. The value is nil when
// freshness is FreshnessUnknown.
func (c *Cache) Get(attr Attribute) (any, Freshness) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[attr]
	if !ok {
		return nil, FreshnessUnknown
	}
	if e.invalidated || c.now().Sub(e.observedAt) > c.ttl {
		return e.value, FreshnessStale
	}
	return e.value, FreshnessFresh
}

// ObservedAt reports when the attribute was last written.
func (c *Cache) ObservedAt(attr Attribute) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[attr]
	if !ok {
		return time.Time{}, false
	}
	return e.observedAt, true
}

// Battery returns the cached battery status.
func (c *Cache) Battery() (wire.BatteryStatus, Freshness) {
	v, f := c.Get(AttrBattery)
	status, ok := v.(wire.BatteryStatus)
	if !ok {
		return wire.BatteryStatus{}, FreshnessUnknown
	}
	return status, f
}

// SoftwareVersion returns the cached firmware version string.
func (c *Cache) SoftwareVersion() (string, Freshness) {
	v, f := c.Get(AttrSoftwareVersion)
	version, ok := v.(string)
	if !ok {
		return "", FreshnessUnknown
	}
	return version, f
}

// NoiseCancellation returns the cached noise cancellation flag.
func (c *Cache) NoiseCancellation() (bool, Freshness) {
	return c.boolAttr(AttrNoiseCancellation)
}

// SpecificMode returns the cached concert hall mode flag.
func (c *Cache) SpecificMode() (bool, Freshness) {
	return c.boolAttr(AttrSpecificMode)
}

// HeadDetection returns the cached head detection flag.
func (c *Cache) HeadDetection() (bool, Freshness) {
	return c.boolAttr(AttrHeadDetection)
}

// AutoConnection returns the cached auto connection flag.
func (c *Cache) AutoConnection() (bool, Freshness) {
	return c.boolAttr(AttrAutoConnection)
}

// Equalizer returns the cached equalizer state.
func (c *Cache) Equalizer() (wire.EqualizerState, Freshness) {
	v, f := c.Get(AttrEqualizer)
	eq, ok := v.(wire.EqualizerState)
	if !ok {
		return wire.EqualizerState{}, FreshnessUnknown
	}
	return eq, f
}

// EqualizerPresets returns the cached preset list.
func (c *Cache) EqualizerPresets() ([]wire.EqualizerPreset, Freshness) {
	v, f := c.Get(AttrEqualizerPresets)
	presets, ok := v.([]wire.EqualizerPreset)
	if !ok {
		return nil, FreshnessUnknown
	}
	return presets, f
}

func (c *Cache) boolAttr(attr Attribute) (bool, Freshness) {
	v, f := c.Get(attr)
	b, ok := v.(bool)
	if !ok {
		return false, FreshnessUnknown
	}
	return b, f
}
