package bluetooth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/chase3718/thr-comm/internal/logging"
)

const (
	bluezService     = "org.bluez"
	bluezRoot        = dbus.ObjectPath("/org/bluez")
	profileInterface = "org.bluez.Profile1"

	// ProfilePath is where the serial port profile object is exported.
	ProfilePath = dbus.ObjectPath("/org/thrcomm/spp")

	// ServiceName is advertised in the SDP record.
	ServiceName = "THR Controller"

	DefaultChannel = 11
)

// SerialPortUUID identifies the Serial Port Profile.
var SerialPortUUID = uuid.MustParse("00001101-0000-1000-8000-00805f9b34fb")

// Profile is an org.bluez.Profile1 implementation. BlueZ calls NewConnection
// with an RFCOMM socket for every phone that connects; Accept hands those
// sockets out.
type Profile struct {
	conn  *dbus.Conn
	conns chan io.ReadWriteCloser
	log   *slog.Logger
}

// RegisterProfile exports a Profile on conn and registers it with BlueZ as an
// SPP server on the given RFCOMM channel.
func RegisterProfile(conn *dbus.Conn, channel uint16) (*Profile, error) {
	p := &Profile{
		conn:  conn,
		conns: make(chan io.ReadWriteCloser, 1),
		log:   logging.Get(logging.Bluetooth),
	}
	if err := conn.Export(p, ProfilePath, profileInterface); err != nil {
		return nil, fmt.Errorf("export profile: %w", err)
	}

	opts := map[string]dbus.Variant{
		"Name":                  dbus.MakeVariant(ServiceName),
		"Role":                  dbus.MakeVariant("server"),
		"Channel":               dbus.MakeVariant(channel),
		"RequireAuthentication": dbus.MakeVariant(false),
		"RequireAuthorization":  dbus.MakeVariant(false),
		"AutoConnect":           dbus.MakeVariant(true),
	}
	obj := conn.Object(bluezService, bluezRoot)
	call := obj.Call("org.bluez.ProfileManager1.RegisterProfile", 0, ProfilePath, SerialPortUUID.String(), opts)
	if call.Err != nil {
		_ = conn.Export(nil, ProfilePath, profileInterface)
		return nil, fmt.Errorf("register profile: %w", call.Err)
	}
	p.log.Info("bluetooth: profile registered", "uuid", SerialPortUUID, "channel", channel)
	return p, nil
}

// Unregister removes the profile from BlueZ.
func (p *Profile) Unregister() error {
	obj := p.conn.Object(bluezService, bluezRoot)
	err := obj.Call("org.bluez.ProfileManager1.UnregisterProfile", 0, ProfilePath).Err
	_ = p.conn.Export(nil, ProfilePath, profileInterface)
	return err
}

// Accept blocks until BlueZ delivers a connection or ctx ends.
func (p *Profile) Accept(ctx context.Context) (io.ReadWriteCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case rw := <-p.conns:
		return rw, nil
	}
}

// Release is called by BlueZ when it unregisters the profile.
func (p *Profile) Release() *dbus.Error {
	p.log.Info("bluetooth: profile released")
	return nil
}

// NewConnection receives a connected RFCOMM socket. The descriptor is
// switched to blocking mode before use.
func (p *Profile) NewConnection(device dbus.ObjectPath, fd dbus.UnixFD, _ map[string]dbus.Variant) *dbus.Error {
	if err := unix.SetNonblock(int(fd), false); err != nil {
		_ = unix.Close(int(fd))
		p.log.Error("bluetooth: cannot set socket blocking", "device", device, "err", err)
		return dbus.MakeFailedError(err)
	}
	s := &socket{fd: int(fd), f: os.NewFile(uintptr(fd), string(device))}

	select {
	case p.conns <- s:
		p.log.Info("bluetooth: new connection", "device", device)
		return nil
	default:
		_ = s.Close()
		p.log.Warn("bluetooth: connection refused, previous one not accepted yet", "device", device)
		return dbus.MakeFailedError(errors.New("busy"))
	}
}

func (p *Profile) RequestDisconnection(device dbus.ObjectPath) *dbus.Error {
	p.log.Info("bluetooth: disconnection requested", "device", device)
	return nil
}

// socket is a blocking RFCOMM descriptor. A blocking read is not interrupted
// by closing the file, so Close shuts the socket down first.
type socket struct {
	fd int
	f  *os.File
}

func (s *socket) Read(b []byte) (int, error) { return s.f.Read(b) }

func (s *socket) Write(b []byte) (int, error) { return s.f.Write(b) }

func (s *socket) Close() error {
	_ = unix.Shutdown(s.fd, unix.SHUT_RDWR)
	return s.f.Close()
}
