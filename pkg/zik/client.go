package zik

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tktech/zik-go/pkg/interaction"
	"github.com/tktech/zik-go/pkg/log"
	"github.com/tktech/zik-go/pkg/state"
	"github.com/tktech/zik-go/pkg/transport"
	"github.com/tktech/zik-go/pkg/wire"
)

// ErrUnexpectedAnswer is returned when the device answered on the
// right path but the payload carried no usable value.
var ErrUnexpectedAnswer = errors.New("zik: answer carried no usable payload")

// DefaultNotificationBuffer is the capacity of the Notifications
// channel. Events beyond it are dropped for slow consumers.
const DefaultNotificationBuffer = 16

// Config parameterizes a Client. The zero value works.
type Config struct {
	// RequestTimeout bounds each request/answer exchange.
	RequestTimeout time.Duration

	// HandshakeTimeout bounds Connect's protocol handshake.
	HandshakeTimeout time.Duration

	// CacheTTL is how long an observed value is served without
	// re-querying the device.
	CacheTTL time.Duration

	// MaxFrameSize caps accepted frames.
	MaxFrameSize int

	// NotificationBuffer is the Notifications channel capacity.
	NotificationBuffer int

	// DeviceAddr is the headset's Bluetooth address, for log events.
	DeviceAddr string

	// Logger receives protocol events. Nil disables logging.
	Logger log.Logger
}

// Notification is a device-initiated change event. By the time a
// consumer sees it the cache re-query may already be in flight.
type Notification struct {
	Attr state.Attribute
	Path string
}

// Client is the typed control surface over one connected headset.
// All methods are safe for concurrent use.
type Client struct {
	cfg    Config
	logger log.Logger

	session    *transport.Session
	correlator *interaction.Correlator
	cache      *state.Cache

	notifications chan Notification
	notifyOnce    sync.Once
	bg            sync.WaitGroup
}

// sessionSender adapts the transport session to the correlator.
type sessionSender struct {
	session *transport.Session
}

func (s sessionSender) Send(body []byte) error {
	return s.session.Send(body)
}

// NewClient wraps an already connected byte stream. The stream is
// owned by the client from here on; Close closes it.
func NewClient(stream io.ReadWriteCloser, cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NoopLogger{}
	}
	buffer := cfg.NotificationBuffer
	if buffer <= 0 {
		buffer = DefaultNotificationBuffer
	}

	c := &Client{
		cfg:           cfg,
		logger:        logger,
		cache:         state.NewCache(cfg.CacheTTL),
		notifications: make(chan Notification, buffer),
	}

	sessionCfg := transport.DefaultConfig()
	sessionCfg.Logger = cfg.Logger
	sessionCfg.DeviceAddr = cfg.DeviceAddr
	if cfg.MaxFrameSize > 0 {
		sessionCfg.MaxFrameSize = cfg.MaxFrameSize
	}
	if cfg.HandshakeTimeout > 0 {
		sessionCfg.HandshakeTimeout = cfg.HandshakeTimeout
	}
	c.session = transport.NewSession(stream, c, sessionCfg)

	c.correlator = interaction.New(sessionSender{c.session}, interaction.Config{
		RequestTimeout: cfg.RequestTimeout,
		Unsolicited:    c.handleUnsolicited,
	})
	return c
}

// Connect performs the protocol handshake and primes the cache with a
// full status sweep. Sweep queries that fail individually are left for
// later; Connect only fails when the session cannot be established or
// the context ends.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.session.Open(ctx); err != nil {
		return err
	}

	sweep := []state.Attribute{
		state.AttrSoftwareVersion,
		state.AttrBattery,
		state.AttrNoiseCancellation,
		state.AttrSpecificMode,
		state.AttrHeadDetection,
		state.AttrAutoConnection,
		state.AttrEqualizer,
		state.AttrEqualizerPresets,
	}
	var wg sync.WaitGroup
	for _, attr := range sweep {
		wg.Add(1)
		go func(attr state.Attribute) {
			defer wg.Done()
			c.refresh(ctx, attr)
		}(attr)
	}
	wg.Wait()
	return ctx.Err()
}

// Notifications returns the feed of device-initiated change events.
// The channel closes when the session ends.
func (c *Client) Notifications() <-chan Notification {
	return c.notifications
}

// SessionID returns the transport session identifier.
func (c *Client) SessionID() string {
	return c.session.ID()
}

// State returns the current transport session state.
func (c *Client) State() transport.State {
	return c.session.State()
}

// Close drains the session and releases the stream. Pending requests
// fail, and every call afterwards returns ErrNotConnected.
func (c *Client) Close() error {
	err := c.session.Close()
	c.bg.Wait()
	return err
}

// BatteryStatus returns the battery state, served from cache when
// fresh.
func (c *Client) BatteryStatus(ctx context.Context) (wire.BatteryStatus, error) {
	if err := c.ready(); err != nil {
		return wire.BatteryStatus{}, err
	}
	if v, f := c.cache.Battery(); f == state.FreshnessFresh {
		return v, nil
	}
	ans, err := c.do(ctx, wire.NewGet(wire.PathBatteryGet))
	if err != nil {
		return wire.BatteryStatus{}, err
	}
	status, ok := ans.Battery()
	if !ok {
		return wire.BatteryStatus{}, fmt.Errorf("%w: %s", ErrUnexpectedAnswer, wire.PathBatteryGet)
	}
	c.cache.Put(state.AttrBattery, status, time.Now())
	return status, nil
}

// FirmwareVersion returns the device firmware version.
func (c *Client) FirmwareVersion(ctx context.Context) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	if v, f := c.cache.SoftwareVersion(); f == state.FreshnessFresh {
		return v, nil
	}
	ans, err := c.do(ctx, wire.NewGet(wire.PathVersionGet))
	if err != nil {
		return "", err
	}
	version, ok := ans.SoftwareVersion()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnexpectedAnswer, wire.PathVersionGet)
	}
	c.cache.Put(state.AttrSoftwareVersion, version, time.Now())
	return version, nil
}

// NoiseCancellation reports whether active noise cancellation is on.
func (c *Client) NoiseCancellation(ctx context.Context) (bool, error) {
	return c.boolFeature(ctx, state.AttrNoiseCancellation)
}

// SetNoiseCancellation switches active noise cancellation.
func (c *Client) SetNoiseCancellation(ctx context.Context, on bool) error {
	return c.setBool(ctx, wire.PathNoiseCancellationSet, state.AttrNoiseCancellation, on)
}

// LouReedMode reports whether the Lou Reed listening mode is on.
func (c *Client) LouReedMode(ctx context.Context) (bool, error) {
	return c.boolFeature(ctx, state.AttrSpecificMode)
}

// SetLouReedMode switches the Lou Reed listening mode.
func (c *Client) SetLouReedMode(ctx context.Context, on bool) error {
	return c.setBool(ctx, wire.PathSpecificModeSet, state.AttrSpecificMode, on)
}

// HeadDetection reports whether the headset pauses on removal.
func (c *Client) HeadDetection(ctx context.Context) (bool, error) {
	return c.boolFeature(ctx, state.AttrHeadDetection)
}

// SetHeadDetection switches head detection.
func (c *Client) SetHeadDetection(ctx context.Context, on bool) error {
	return c.setBool(ctx, wire.PathHeadDetectionSet, state.AttrHeadDetection, on)
}

// AutoConnect reports whether the headset reconnects to known hosts on
// its own.
func (c *Client) AutoConnect(ctx context.Context) (bool, error) {
	return c.boolFeature(ctx, state.AttrAutoConnection)
}

// SetAutoConnect switches automatic connection.
func (c *Client) SetAutoConnect(ctx context.Context, on bool) error {
	return c.setBool(ctx, wire.PathAutoConnectionSet, state.AttrAutoConnection, on)
}

// EqualizerState returns the equalizer flag and active preset.
func (c *Client) EqualizerState(ctx context.Context) (wire.EqualizerState, error) {
	if err := c.ready(); err != nil {
		return wire.EqualizerState{}, err
	}
	if v, f := c.cache.Equalizer(); f == state.FreshnessFresh {
		return v, nil
	}
	ans, err := c.do(ctx, wire.NewGet(wire.PathEqualizerGet))
	if err != nil {
		return wire.EqualizerState{}, err
	}
	eq, ok := ans.Equalizer()
	if !ok {
		return wire.EqualizerState{}, fmt.Errorf("%w: %s", ErrUnexpectedAnswer, wire.PathEqualizerGet)
	}
	c.cache.Put(state.AttrEqualizer, eq, time.Now())
	return eq, nil
}

// SetEqualizerEnabled switches the equalizer on or off.
func (c *Client) SetEqualizerEnabled(ctx context.Context, on bool) error {
	if err := c.ready(); err != nil {
		return err
	}
	if _, err := c.do(ctx, wire.NewSetBool(wire.PathEqualizerEnabledSet, on)); err != nil {
		return err
	}
	if eq, f := c.cache.Equalizer(); f != state.FreshnessUnknown {
		eq.Enabled = on
		c.cache.Put(state.AttrEqualizer, eq, time.Now())
	}
	return nil
}

// SetEqualizerPreset selects an equalizer preset by id.
func (c *Client) SetEqualizerPreset(ctx context.Context, id int) error {
	if err := c.ready(); err != nil {
		return err
	}
	if _, err := c.do(ctx, wire.NewSetInt(wire.PathEqualizerPresetSet, id)); err != nil {
		return err
	}
	if eq, f := c.cache.Equalizer(); f != state.FreshnessUnknown {
		eq.PresetID = id
		c.cache.Put(state.AttrEqualizer, eq, time.Now())
	}
	return nil
}

// EqualizerPresets returns the device's preset list.
func (c *Client) EqualizerPresets(ctx context.Context) ([]wire.EqualizerPreset, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if v, f := c.cache.EqualizerPresets(); f == state.FreshnessFresh {
		return v, nil
	}
	ans, err := c.do(ctx, wire.NewGet(wire.PathEqualizerPresetsGet))
	if err != nil {
		return nil, err
	}
	presets, ok := ans.EqualizerPresets()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedAnswer, wire.PathEqualizerPresetsGet)
	}
	now := time.Now()
	c.cache.Put(state.AttrEqualizerPresets, presets, now)
	if eq, ok := ans.Equalizer(); ok {
		c.cache.Put(state.AttrEqualizer, eq, now)
	}
	return presets, nil
}

// OnFrame decodes an incoming frame body and routes the message. Part
// of the transport.Handler contract, called from the session read loop.
func (c *Client) OnFrame(body []byte) {
	msg, err := wire.DecodeMessage(body)
	if err != nil {
		c.logError(err)
		return
	}
	c.logMessage(log.DirectionIn, msg)
	c.correlator.HandleMessage(msg)
}

// OnStateChange tracks the session lifecycle. When the session ends,
// pending requests fail and the notification feed closes.
func (c *Client) OnStateChange(oldState, newState transport.State) {
	if newState == transport.StateClosed {
		c.correlator.Close()
		c.notifyOnce.Do(func() { close(c.notifications) })
	}
}

// OnError records transport-level failures.
func (c *Client) OnError(err error) {
	c.logError(err)
}

func (c *Client) ready() error {
	if c.session.State() != transport.StateReady {
		return transport.ErrNotConnected
	}
	return nil
}

func (c *Client) do(ctx context.Context, req *wire.Request) (*wire.Answer, error) {
	c.logger.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  c.session.ID(),
		Direction:  log.DirectionOut,
		Layer:      log.LayerWire,
		Category:   log.CategoryMessage,
		DeviceAddr: c.cfg.DeviceAddr,
		Message: &log.MessageEvent{
			Type:   log.MessageTypeRequest,
			Method: string(req.Method),
			Path:   req.Path,
			Arg:    req.Arg,
		},
	})
	return c.correlator.Do(ctx, req)
}

func (c *Client) boolFeature(ctx context.Context, attr state.Attribute) (bool, error) {
	if err := c.ready(); err != nil {
		return false, err
	}
	if v, f := c.cache.Get(attr); f == state.FreshnessFresh {
		if b, ok := v.(bool); ok {
			return b, nil
		}
	}
	ans, err := c.do(ctx, wire.NewGet(attr.QueryPath()))
	if err != nil {
		return false, err
	}
	b, ok := boolFromAnswer(attr, ans)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnexpectedAnswer, attr.QueryPath())
	}
	c.cache.Put(attr, b, time.Now())
	return b, nil
}

func (c *Client) setBool(ctx context.Context, setPath string, attr state.Attribute, on bool) error {
	if err := c.ready(); err != nil {
		return err
	}
	if _, err := c.do(ctx, wire.NewSetBool(setPath, on)); err != nil {
		return err
	}
	c.cache.Put(attr, on, time.Now())
	return nil
}

// handleUnsolicited receives messages that matched no pending request.
// Notifications invalidate the cache, go out on the feed, and start a
// background re-query. Stray answers still feed the cache.
func (c *Client) handleUnsolicited(msg *wire.Message) {
	attr, known := state.AttributeForPath(msg.Path)
	if !known {
		return
	}
	switch msg.Kind {
	case wire.KindNotify:
		c.cache.Invalidate(attr)
		select {
		case c.notifications <- Notification{Attr: attr, Path: msg.Path}:
		default:
		}
		c.bg.Add(1)
		go func() {
			defer c.bg.Done()
			c.refresh(context.Background(), attr)
		}()
	case wire.KindAnswer:
		c.storeAnswer(attr, msg.Answer)
	}
}

// refresh queries one attribute and stores the answer. Failures are
// swallowed; the cache entry simply stays stale.
func (c *Client) refresh(ctx context.Context, attr state.Attribute) {
	path := attr.QueryPath()
	if path == "" {
		return
	}
	ans, err := c.do(ctx, wire.NewGet(path))
	if err != nil {
		return
	}
	c.storeAnswer(attr, ans)
}

func (c *Client) storeAnswer(attr state.Attribute, ans *wire.Answer) {
	if ans == nil {
		return
	}
	now := time.Now()
	switch attr {
	case state.AttrBattery:
		if v, ok := ans.Battery(); ok {
			c.cache.Put(attr, v, now)
		}
	case state.AttrSoftwareVersion:
		if v, ok := ans.SoftwareVersion(); ok {
			c.cache.Put(attr, v, now)
		}
	case state.AttrEqualizer:
		if v, ok := ans.Equalizer(); ok {
			c.cache.Put(attr, v, now)
		}
	case state.AttrEqualizerPresets:
		if v, ok := ans.EqualizerPresets(); ok {
			c.cache.Put(attr, v, now)
		}
		if v, ok := ans.Equalizer(); ok {
			c.cache.Put(state.AttrEqualizer, v, now)
		}
	default:
		if v, ok := boolFromAnswer(attr, ans); ok {
			c.cache.Put(attr, v, now)
		}
	}
}

func boolFromAnswer(attr state.Attribute, ans *wire.Answer) (bool, bool) {
	switch attr {
	case state.AttrNoiseCancellation:
		return ans.NoiseCancellation()
	case state.AttrSpecificMode:
		return ans.SpecificMode()
	case state.AttrHeadDetection:
		return ans.HeadDetection()
	case state.AttrAutoConnection:
		return ans.AutoConnection()
	default:
		return false, false
	}
}

func (c *Client) logMessage(dir log.Direction, msg *wire.Message) {
	messageType := log.MessageTypeAnswer
	if msg.Kind == wire.KindNotify {
		messageType = log.MessageTypeNotify
	}
	c.logger.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  c.session.ID(),
		Direction:  dir,
		Layer:      log.LayerWire,
		Category:   log.CategoryMessage,
		DeviceAddr: c.cfg.DeviceAddr,
		Message: &log.MessageEvent{
			Type: messageType,
			Path: msg.Path,
		},
	})
}

func (c *Client) logError(err error) {
	c.logger.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  c.session.ID(),
		Direction:  log.DirectionIn,
		Layer:      log.LayerSession,
		Category:   log.CategoryError,
		DeviceAddr: c.cfg.DeviceAddr,
		Error:      &log.ErrorEvent{Layer: log.LayerSession, Message: err.Error()},
	})
}
