// Package midi speaks the amplifier's sysex protocol: framing, classification
// of inbound payloads, and the fixed control messages sent to the amp.
package midi

import (
	"bytes"

	"github.com/chase3718/thr-comm/internal/fault"
	"github.com/chase3718/thr-comm/internal/preset"
)

var (
	heartbeatPayload   = []byte{0x43, 0x7D, 0x60, 0x44, 0x54, 0x41, 0x31}
	changePrefix       = []byte{0x43, 0x7D, 0x10, 0x41, 0x30, 0x01}
	dumpRequestPayload = []byte{0x43, 0x7D, 0x20, 0x44, 0x54, 0x41, 0x31, 0x41, 0x6C, 0x6C, 0x50}
	lampPrefix         = []byte{0x43, 0x7D, 0x30, 0x41, 0x30, 0x01}
	wideStereoPrefix   = []byte{0x43, 0x7D, 0x30, 0x41, 0x30, 0x00}
)

// Message is anything that travels as one sysex payload. Sysex returns the
// bytes between F0 and F7.
type Message interface {
	Sysex() []byte
}

// HeartBeat is the amp's periodic liveness ping.
type HeartBeat struct{}

// Change reports a single parameter edit made on the amp, or requests one.
type Change struct {
	Property byte `json:"property"`
	Value    int  `json:"value"`
}

// Dump is a full preset snapshot.
type Dump struct {
	preset.Preset
}

// DumpRequest asks the amp to send its current state as a Dump.
type DumpRequest struct{}

// Lamp switches the amp's panel lamp.
type Lamp struct {
	On bool `json:"on"`
}

// WideStereo switches the amp's stereo widening.
type WideStereo struct {
	On bool `json:"on"`
}

func (HeartBeat) Sysex() []byte { return bytes.Clone(heartbeatPayload) }

func (c Change) Sysex() []byte {
	hi, lo := preset.Split7(c.Value)
	return append(bytes.Clone(changePrefix), c.Property&0x7F, hi, lo)
}

func (d Dump) Sysex() []byte { return d.Preset.Encode() }

func (DumpRequest) Sysex() []byte { return bytes.Clone(dumpRequestPayload) }

func (l Lamp) Sysex() []byte {
	v := byte(0x00)
	if l.On {
		v = 0x01
	}
	return append(bytes.Clone(lampPrefix), v)
}

// The amp's wide-stereo flag is inverted: 0x00 enables it.
func (w WideStereo) Sysex() []byte {
	v := byte(0x01)
	if w.On {
		v = 0x00
	}
	return append(bytes.Clone(wideStereoPrefix), v)
}

// Classify turns a sysex payload into a typed message. Heartbeats are matched
// exactly, changes and dumps by prefix, in that order.
func Classify(payload []byte) (Message, error) {
	const op = "midi.Classify"
	switch {
	case bytes.Equal(payload, heartbeatPayload):
		return HeartBeat{}, nil

	case bytes.HasPrefix(payload, changePrefix) && len(payload) > len(changePrefix):
		rest := payload[len(changePrefix):]
		if len(rest) < 3 {
			return nil, fault.Errorf(fault.Protocol, op, "short change message: % X", payload)
		}
		return Change{Property: rest[0], Value: preset.Join7(rest[1], rest[2])}, nil

	case bytes.HasPrefix(payload, preset.DumpHeader()):
		p, err := preset.Decode(payload)
		if err != nil {
			return nil, err
		}
		return Dump{Preset: *p}, nil
	}
	return nil, fault.Errorf(fault.Protocol, op, "unrecognized sysex: % X", truncate(payload, 16))
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
