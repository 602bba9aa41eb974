package bluetooth

import (
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"

	"github.com/chase3718/thr-comm/internal/logging"
)

const (
	agentInterface = "org.bluez.Agent1"

	// AgentPath is where the pairing agent is exported.
	AgentPath = dbus.ObjectPath("/org/thrcomm/agent")

	capability = "NoInputNoOutput"
)

// Agent is a headless org.bluez.Agent1: the box has no display or keypad, so
// every pairing is accepted while the pairing window is open, and the window
// is closed as soon as a device has been authorized.
type Agent struct {
	adapter *Adapter
	log     *slog.Logger
}

// RegisterAgent exports an Agent and makes it BlueZ's default agent.
func RegisterAgent(conn *dbus.Conn, adapter *Adapter) (*Agent, error) {
	a := &Agent{adapter: adapter, log: logging.Get(logging.Bluetooth)}
	if err := conn.Export(a, AgentPath, agentInterface); err != nil {
		return nil, fmt.Errorf("export agent: %w", err)
	}
	mgr := conn.Object(bluezService, bluezRoot)
	if err := mgr.Call("org.bluez.AgentManager1.RegisterAgent", 0, AgentPath, capability).Err; err != nil {
		return nil, fmt.Errorf("register agent: %w", err)
	}
	if err := mgr.Call("org.bluez.AgentManager1.RequestDefaultAgent", 0, AgentPath).Err; err != nil {
		return nil, fmt.Errorf("default agent: %w", err)
	}
	a.log.Info("bluetooth: agent registered", "capability", capability)
	return a, nil
}

func (a *Agent) Release() *dbus.Error { return nil }

func (a *Agent) RequestPinCode(device dbus.ObjectPath) (string, *dbus.Error) {
	a.log.Debug("bluetooth: pin code requested", "device", device)
	return "0000", nil
}

func (a *Agent) DisplayPinCode(device dbus.ObjectPath, pincode string) *dbus.Error {
	return nil
}

func (a *Agent) RequestPasskey(device dbus.ObjectPath) (uint32, *dbus.Error) {
	return 0, nil
}

func (a *Agent) DisplayPasskey(device dbus.ObjectPath, passkey uint32, entered uint16) *dbus.Error {
	return nil
}

func (a *Agent) RequestConfirmation(device dbus.ObjectPath, passkey uint32) *dbus.Error {
	a.log.Info("bluetooth: pairing confirmed", "device", device)
	return nil
}

// RequestAuthorization accepts the device and closes the pairing window.
func (a *Agent) RequestAuthorization(device dbus.ObjectPath) *dbus.Error {
	a.log.Info("bluetooth: device authorized", "device", device)
	if err := a.adapter.ClosePairingWindow(); err != nil {
		a.log.Warn("bluetooth: cannot close pairing window", "err", err)
	}
	return nil
}

func (a *Agent) AuthorizeService(device dbus.ObjectPath, uuid string) *dbus.Error {
	a.log.Debug("bluetooth: service authorized", "device", device, "uuid", uuid)
	return nil
}

func (a *Agent) Cancel() *dbus.Error {
	a.log.Debug("bluetooth: pairing cancelled")
	return nil
}
