// Package system talks to the host OS: powering the box off once the board
// has cut over to its shutdown sequence.
package system

import (
	"log/slog"

	"github.com/godbus/dbus/v5"

	"github.com/chase3718/thr-comm/internal/fault"
	"github.com/chase3718/thr-comm/internal/logging"
)

const (
	logindService   = "org.freedesktop.login1"
	logindPath      = dbus.ObjectPath("/org/freedesktop/login1")
	logindPowerOff  = "org.freedesktop.login1.Manager.PowerOff"
	interactiveAuth = false
)

// Logind powers off through systemd-logind on the system bus.
type Logind struct {
	obj dbus.BusObject
	log *slog.Logger
}

func NewLogind(conn *dbus.Conn) *Logind {
	return newLogind(conn.Object(logindService, logindPath))
}

func newLogind(obj dbus.BusObject) *Logind {
	return &Logind{obj: obj, log: logging.Get(logging.System)}
}

func (l *Logind) PowerOff() error {
	l.log.Warn("system: powering off")
	if err := l.obj.Call(logindPowerOff, 0, interactiveAuth).Err; err != nil {
		return fault.New(fault.IO, "system.PowerOff", err)
	}
	return nil
}

// NoopPower is used when there is no system bus. It only logs.
type NoopPower struct{}

func (NoopPower) PowerOff() error {
	logging.Get(logging.System).Warn("system: power off requested but no system bus, ignoring")
	return nil
}
