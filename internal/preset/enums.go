package preset

import "fmt"

// Status is the on/off byte shared by every switchable block. The amp uses
// 0x00 for on and 0x7F for off.
type Status byte

const (
	On  Status = 0x00
	Off Status = 0x7F
)

func (s Status) String() string {
	switch s {
	case On:
		return "ON"
	case Off:
		return "OFF"
	}
	return fmt.Sprintf("Status(0x%02X)", byte(s))
}

func (s Status) valid() bool { return s == On || s == Off }

func (s Status) MarshalText() ([]byte, error) {
	if !s.valid() {
		return nil, fmt.Errorf("preset: invalid status 0x%02X", byte(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "ON":
		*s = On
	case "OFF":
		*s = Off
	default:
		return fmt.Errorf("preset: unknown status %q", text)
	}
	return nil
}

// AmpType selects the amp model on the main panel.
type AmpType byte

const (
	Clean AmpType = iota
	Crunch
	Lead
	BritHi
	Modern
	Bass
	Aco
	Flat
)

var ampNames = []string{"CLEAN", "CRUNCH", "LEAD", "BRIT_HI", "MODERN", "BASS", "ACO", "FLAT"}

func (a AmpType) String() string                { return nameOf(ampNames, a) }
func (a AmpType) MarshalText() ([]byte, error)  { return marshalName(ampNames, a) }
func (a *AmpType) UnmarshalText(b []byte) error { return unmarshalName(ampNames, b, a) }

// HasCabinet reports whether the cabinet selector applies to this amp.
func (a AmpType) HasCabinet() bool { return a < Bass }

// CabinetType selects the speaker cabinet simulation.
type CabinetType byte

const (
	American4x12 CabinetType = iota
	American2x12
	British4x12
	British2x12
	Cab1x12
	Cab4x10
)

var cabinetNames = []string{"AMERICAN_4X12", "AMERICAN_2X12", "BRITISH_4X12", "BRITISH_2X12", "CAB_1X12", "CAB_4X10"}

func (c CabinetType) String() string                { return nameOf(cabinetNames, c) }
func (c CabinetType) MarshalText() ([]byte, error)  { return marshalName(cabinetNames, c) }
func (c *CabinetType) UnmarshalText(b []byte) error { return unmarshalName(cabinetNames, b, c) }

// CompressorType is the discriminator byte of the compressor block.
type CompressorType byte

const (
	StompType CompressorType = iota
	RackType
)

var compressorNames = []string{"Stomp", "Rack"}

func (c CompressorType) String() string { return nameOf(compressorNames, c) }

// EffectType is the discriminator byte of the modulation effect block.
type EffectType byte

const (
	ChorusType EffectType = iota
	FlangerType
	TremoloType
	PhaserType
)

var effectNames = []string{"Chorus", "Flanger", "Tremolo", "Phaser"}

func (e EffectType) String() string { return nameOf(effectNames, e) }

// ReverbType is the discriminator byte of the reverb block.
type ReverbType byte

const (
	HallType ReverbType = iota
	RoomType
	PlateType
	SpringType
)

var reverbNames = []string{"Hall", "Room", "Plate", "Spring"}

func (r ReverbType) String() string { return nameOf(reverbNames, r) }

func nameOf[T ~byte](names []string, v T) string {
	if int(v) < len(names) {
		return names[v]
	}
	return fmt.Sprintf("0x%02X", byte(v))
}

func marshalName[T ~byte](names []string, v T) ([]byte, error) {
	if int(v) >= len(names) {
		return nil, fmt.Errorf("preset: value 0x%02X has no name", byte(v))
	}
	return []byte(names[v]), nil
}

func unmarshalName[T ~byte](names []string, text []byte, v *T) error {
	for i, n := range names {
		if n == string(text) {
			*v = T(i)
			return nil
		}
	}
	return fmt.Errorf("preset: unknown name %q", text)
}
