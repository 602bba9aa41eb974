// Package uart talks to the board microcontroller over its line protocol:
// semicolon separated ASCII records, one per line.
package uart

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chase3718/thr-comm/internal/fault"
)

// Message is a record received from the board.
type Message interface {
	uartMessage()
}

// Button reports a press or release. PressedTime is how long the button was
// held, in milliseconds, and is only set on release.
type Button struct {
	ID          int   `json:"id"`
	Pressed     bool  `json:"pressed"`
	PressedTime int64 `json:"pressedTime"`
}

// Held returns PressedTime as a duration.
func (b Button) Held() time.Duration { return time.Duration(b.PressedTime) * time.Millisecond }

type FirmwareVersion struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

func (v FirmwareVersion) String() string { return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch) }

// Status is the board's hardware report. Current is in milliamps.
type Status struct {
	Uptime   int64       `json:"uptime"`
	Battery  int         `json:"battery"`
	Charging ChargeState `json:"charging"`
	Current  int         `json:"current"`
}

// Shutdown is sent by the board when it is about to cut power, either on its
// own or in reply to a shutdown request.
type Shutdown struct {
	OK bool `json:"ok"`
}

// HeartbeatAck is the reply to a heartbeat. It carries nothing.
type HeartbeatAck struct{}

func (Button) uartMessage()          {}
func (FirmwareVersion) uartMessage() {}
func (Status) uartMessage()          {}
func (Shutdown) uartMessage()        {}
func (HeartbeatAck) uartMessage()    {}

// ChargeState is the battery charger state.
type ChargeState int

const (
	Discharging ChargeState = iota
	Charging
	Full
)

var chargingWire = map[string]ChargeState{"dis": Discharging, "chg": Charging, "end": Full}

func (c ChargeState) String() string {
	switch c {
	case Discharging:
		return "DISCHARGING"
	case Charging:
		return "CHARGING"
	case Full:
		return "FULL"
	}
	return fmt.Sprintf("ChargeState(%d)", int(c))
}

func (c ChargeState) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *ChargeState) UnmarshalText(text []byte) error {
	for _, v := range []ChargeState{Discharging, Charging, Full} {
		if v.String() == string(text) {
			*c = v
			return nil
		}
	}
	return fmt.Errorf("uart: unknown charging state %q", text)
}

// Parse decodes one line. Acknowledgements are matched against q to learn
// which command they answer.
func Parse(line string, q *Queue) (Message, error) {
	const op = "uart.Parse"
	fields := strings.Split(strings.TrimRight(line, "\r\n"), ";")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	switch fields[0] {
	case "$btn":
		return parseButton(fields)
	case "$off":
		return Shutdown{OK: true}, nil
	case "$ok":
		cmd, ok := q.Pop()
		if !ok {
			return nil, fault.Errorf(fault.Protocol, op, "acknowledgement without outstanding command: %q", line)
		}
		return parseAck(cmd, fields[1:])
	}
	return nil, fault.Errorf(fault.Protocol, op, "unknown record %q", line)
}

func parseButton(f []string) (Message, error) {
	const op = "uart.Parse"
	if len(f) < 3 {
		return nil, fault.Errorf(fault.Protocol, op, "button record has %d fields", len(f))
	}
	id, err := strconv.Atoi(f[1])
	if err != nil {
		return nil, fault.New(fault.Protocol, op, fmt.Errorf("button id: %w", err))
	}
	state, err := strconv.Atoi(f[2])
	if err != nil {
		return nil, fault.New(fault.Protocol, op, fmt.Errorf("button state: %w", err))
	}
	b := Button{ID: id, Pressed: state == 1}
	if len(f) > 3 && f[3] != "" {
		if b.PressedTime, err = strconv.ParseInt(f[3], 10, 64); err != nil {
			return nil, fault.New(fault.Protocol, op, fmt.Errorf("button hold time: %w", err))
		}
	}
	return b, nil
}

func parseAck(cmd Command, f []string) (Message, error) {
	op := "uart.Parse " + string(cmd)
	switch cmd {
	case CmdFirmware:
		n, err := ints(f, 3)
		if err != nil {
			return nil, fault.New(fault.Protocol, op, err)
		}
		return FirmwareVersion{Major: n[0], Minor: n[1], Patch: n[2]}, nil

	case CmdStatus:
		if len(f) < 4 {
			return nil, fault.Errorf(fault.Protocol, op, "status reply has %d fields", len(f))
		}
		uptime, err := strconv.ParseInt(f[0], 10, 64)
		if err != nil {
			return nil, fault.New(fault.Protocol, op, fmt.Errorf("uptime: %w", err))
		}
		battery, err := strconv.Atoi(f[1])
		if err != nil {
			return nil, fault.New(fault.Protocol, op, fmt.Errorf("battery: %w", err))
		}
		charging, ok := chargingWire[f[2]]
		if !ok {
			return nil, fault.Errorf(fault.Protocol, op, "charging state %q", f[2])
		}
		current, err := strconv.Atoi(f[3])
		if err != nil {
			return nil, fault.New(fault.Protocol, op, fmt.Errorf("current: %w", err))
		}
		return Status{Uptime: uptime, Battery: battery, Charging: charging, Current: current}, nil

	case CmdHeartbeat:
		return HeartbeatAck{}, nil

	case CmdShutdown:
		return Shutdown{OK: true}, nil
	}
	return nil, fault.Errorf(fault.Protocol, op, "unknown command")
}

func ints(f []string, n int) ([]int, error) {
	if len(f) < n {
		return nil, fmt.Errorf("want %d fields, got %d", n, len(f))
	}
	out := make([]int, n)
	for i := range out {
		v, err := strconv.Atoi(f[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
