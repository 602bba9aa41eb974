package bluetooth

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/chase3718/thr-comm/internal/logging"
)

const (
	adapterInterface = "org.bluez.Adapter1"

	// DefaultAdapter is the first local controller.
	DefaultAdapter = dbus.ObjectPath("/org/bluez/hci0")
)

// Adapter controls the local Bluetooth controller's visibility.
type Adapter struct {
	obj dbus.BusObject
	log *slog.Logger
}

func NewAdapter(conn *dbus.Conn, path dbus.ObjectPath) *Adapter {
	return newAdapter(conn.Object(bluezService, path))
}

func newAdapter(obj dbus.BusObject) *Adapter {
	return &Adapter{obj: obj, log: logging.Get(logging.Bluetooth).With("adapter", obj.Path())}
}

func (a *Adapter) set(prop string, v any) error {
	if err := a.obj.SetProperty(adapterInterface+"."+prop, dbus.MakeVariant(v)); err != nil {
		return fmt.Errorf("set %s: %w", prop, err)
	}
	return nil
}

// PowerOn switches the controller on.
func (a *Adapter) PowerOn() error { return a.set("Powered", true) }

// OpenPairingWindow makes the box discoverable and pairable for d. BlueZ
// closes the window itself when the timeouts expire.
func (a *Adapter) OpenPairingWindow(d time.Duration) error {
	secs := uint32(d / time.Second)
	for _, step := range []struct {
		prop string
		v    any
	}{
		{"DiscoverableTimeout", secs},
		{"PairableTimeout", secs},
		{"Pairable", true},
		{"Discoverable", true},
	} {
		if err := a.set(step.prop, step.v); err != nil {
			return err
		}
	}
	a.log.Info("bluetooth: pairing window open", "for", d)
	return nil
}

// ClosePairingWindow hides the box again.
func (a *Adapter) ClosePairingWindow() error {
	if err := a.set("Discoverable", false); err != nil {
		return err
	}
	if err := a.set("Pairable", false); err != nil {
		return err
	}
	a.log.Info("bluetooth: pairing window closed")
	return nil
}
