// Package bluetooth carries newline-delimited JSON messages between the box
// and the companion phone app over an RFCOMM socket, and registers the
// serial port service with BlueZ.
package bluetooth

import (
	"encoding/json"
	"fmt"

	"github.com/chase3718/thr-comm/internal/fault"
	"github.com/chase3718/thr-comm/internal/midi"
	"github.com/chase3718/thr-comm/internal/preset"
	"github.com/chase3718/thr-comm/internal/tagged"
	"github.com/chase3718/thr-comm/internal/uart"
)

// Message is any value with a registered kind: the phone's own requests and
// responses below, plus the amp and board messages that are passed through
// unchanged (midi.Dump, midi.Change, midi.HeartBeat, midi.Lamp,
// midi.WideStereo, uart.Button, uart.FirmwareVersion, uart.Status,
// uart.Shutdown).
type Message any

type (
	FwVersionRq          struct{}
	HwStatusRq           struct{}
	PresetsRq            struct{}
	CurrentPresetRq      struct{}
	CurrentPresetIndexRq struct{}
	ConnectedRq          struct{}

	// Connected reports whether the amp is reachable.
	Connected struct {
		Connected bool `json:"connected"`
	}

	RemovePresetRq struct {
		Index int `json:"index"`
	}

	AddPresetRq struct {
		Preset preset.Preset `json:"preset"`
	}

	// SetPresetsRq replaces the whole preset list.
	SetPresetsRq struct {
		Presets []preset.Preset `json:"presets"`
	}

	PresetsResponse struct {
		Presets []preset.Preset `json:"presets"`
	}

	// PresetSelect selects a preset when sent by the phone and reports the
	// current index when sent to it. -1 means no saved preset is active.
	PresetSelect struct {
		Index int `json:"index"`
	}
)

var decoders = map[string]func([]byte) (Message, error){
	"FwVersionRq":          decodeAs[FwVersionRq],
	"HwStatusRq":           decodeAs[HwStatusRq],
	"PresetsRq":            decodeAs[PresetsRq],
	"CurrentPresetRq":      decodeAs[CurrentPresetRq],
	"CurrentPresetIndexRq": decodeAs[CurrentPresetIndexRq],
	"ConnectedRq":          decodeAs[ConnectedRq],
	"Connected":            decodeAs[Connected],
	"RemovePresetRq":       decodeAs[RemovePresetRq],
	"AddPresetRq":          decodeAs[AddPresetRq],
	"SetPresetsRq":         decodeAs[SetPresetsRq],
	"PresetsResponse":      decodeAs[PresetsResponse],
	"PresetSelect":         decodeAs[PresetSelect],

	"Dump":       decodeAs[midi.Dump],
	"Change":     decodeAs[midi.Change],
	"HeartBeat":  decodeAs[midi.HeartBeat],
	"Lamp":       decodeAs[midi.Lamp],
	"WideStereo": decodeAs[midi.WideStereo],

	"Button":    decodeAs[uart.Button],
	"FwVersion": decodeAs[uart.FirmwareVersion],
	"HwStatus":  decodeAs[uart.Status],
	"Shutdown":  decodeAs[uart.Shutdown],
}

// Kind returns the discriminator m is sent with.
func Kind(m Message) (string, error) {
	switch m.(type) {
	case FwVersionRq:
		return "FwVersionRq", nil
	case HwStatusRq:
		return "HwStatusRq", nil
	case PresetsRq:
		return "PresetsRq", nil
	case CurrentPresetRq:
		return "CurrentPresetRq", nil
	case CurrentPresetIndexRq:
		return "CurrentPresetIndexRq", nil
	case ConnectedRq:
		return "ConnectedRq", nil
	case Connected:
		return "Connected", nil
	case RemovePresetRq:
		return "RemovePresetRq", nil
	case AddPresetRq:
		return "AddPresetRq", nil
	case SetPresetsRq:
		return "SetPresetsRq", nil
	case PresetsResponse:
		return "PresetsResponse", nil
	case PresetSelect:
		return "PresetSelect", nil
	case midi.Dump:
		return "Dump", nil
	case midi.Change:
		return "Change", nil
	case midi.HeartBeat:
		return "HeartBeat", nil
	case midi.Lamp:
		return "Lamp", nil
	case midi.WideStereo:
		return "WideStereo", nil
	case uart.Button:
		return "Button", nil
	case uart.FirmwareVersion:
		return "FwVersion", nil
	case uart.Status:
		return "HwStatus", nil
	case uart.Shutdown:
		return "Shutdown", nil
	}
	return "", fmt.Errorf("bluetooth: %T has no message kind", m)
}

// Encode renders m as one JSON object, without the trailing newline.
func Encode(m Message) ([]byte, error) {
	kind, err := Kind(m)
	if err != nil {
		return nil, err
	}
	return tagged.Marshal(kind, m)
}

// Decode parses one line. Any failure is a fault.Protocol.
func Decode(line []byte) (Message, error) {
	const op = "bluetooth.Decode"
	kind, err := tagged.Peek(line)
	if err != nil {
		return nil, fault.New(fault.Protocol, op, err)
	}
	decode, ok := decoders[kind]
	if !ok {
		return nil, fault.Errorf(fault.Protocol, op, "unknown message type %q", kind)
	}
	m, err := decode(line)
	if err != nil {
		return nil, fault.New(fault.Protocol, op, fmt.Errorf("%s: %w", kind, err))
	}
	return m, nil
}

func decodeAs[T any](data []byte) (Message, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
