// Package bluez acquires an RFCOMM byte stream to a headset through
// the BlueZ D-Bus API on Linux.
//
// It registers a client role Profile1 for the headset's serial
// service, asks the device to connect that profile, and receives the
// connected socket as a file descriptor. The rest of the stack only
// ever sees the resulting io.ReadWriteCloser.
package bluez

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
)

// ServiceUUID is the Zik serial service exposed over RFCOMM.
const ServiceUUID = "0ef0f502-f0ee-46c9-986c-54ed027807fb"

const (
	busName             = "org.bluez"
	adapterPath         = "/org/bluez/hci0"
	deviceIface         = "org.bluez.Device1"
	profileIface        = "org.bluez.Profile1"
	profileManagerIface = "org.bluez.ProfileManager1"
	profileObjectPath   = dbus.ObjectPath("/io/zik/profile")
)

// deviceObjectPath converts a MAC address like "AA:BB:CC:DD:EE:FF" to
// "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF".
func deviceObjectPath(addr string) dbus.ObjectPath {
	escaped := strings.ReplaceAll(addr, ":", "_")
	return dbus.ObjectPath(adapterPath + "/dev_" + escaped)
}

// profile receives the Profile1 callbacks from BlueZ.
type profile struct {
	mu     sync.Mutex
	connCh chan *os.File
}

func (p *profile) NewConnection(device dbus.ObjectPath, fd dbus.UnixFD, props map[string]dbus.Variant) *dbus.Error {
	file := os.NewFile(uintptr(fd), "rfcomm:"+string(device))
	p.mu.Lock()
	ch := p.connCh
	p.mu.Unlock()
	select {
	case ch <- file:
	default:
		// Nobody is dialing; BlueZ reconnected on its own.
		file.Close()
	}
	return nil
}

func (p *profile) RequestDisconnection(device dbus.ObjectPath) *dbus.Error {
	return nil
}

func (p *profile) Release() *dbus.Error {
	return nil
}

// stream ties the RFCOMM file to the D-Bus resources behind it.
type stream struct {
	*os.File
	cleanup func()
	once    sync.Once
}

func (s *stream) Close() error {
	err := s.File.Close()
	s.once.Do(s.cleanup)
	return err
}

// Dial connects the headset's serial profile and returns the RFCOMM
// byte stream. Closing the stream also releases the profile
// registration and the bus connection.
func Dial(ctx context.Context, addr string) (io.ReadWriteCloser, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("bluez: connect to system bus: %w", err)
	}

	p := &profile{connCh: make(chan *os.File, 1)}
	if err := conn.Export(p, profileObjectPath, profileIface); err != nil {
		conn.Close()
		return nil, fmt.Errorf("bluez: export profile: %w", err)
	}

	manager := conn.Object(busName, "/org/bluez")
	opts := map[string]dbus.Variant{
		"Role":                 dbus.MakeVariant("client"),
		"AutoConnect":          dbus.MakeVariant(false),
		"RequireAuthorization": dbus.MakeVariant(false),
	}
	call := manager.CallWithContext(ctx, profileManagerIface+".RegisterProfile", 0,
		profileObjectPath, ServiceUUID, opts)
	if call.Err != nil {
		conn.Close()
		return nil, fmt.Errorf("bluez: register profile: %w", call.Err)
	}

	cleanup := func() {
		manager.Call(profileManagerIface+".UnregisterProfile", 0, profileObjectPath)
		conn.Close()
	}

	device := conn.Object(busName, deviceObjectPath(addr))
	call = device.CallWithContext(ctx, deviceIface+".ConnectProfile", 0, ServiceUUID)
	if call.Err != nil {
		cleanup()
		return nil, fmt.Errorf("bluez: connect profile on %s: %w", addr, call.Err)
	}

	select {
	case file := <-p.connCh:
		return &stream{File: file, cleanup: cleanup}, nil
	case <-ctx.Done():
		cleanup()
		return nil, fmt.Errorf("bluez: waiting for rfcomm socket: %w", ctx.Err())
	}
}
