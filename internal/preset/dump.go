package preset

import (
	"bytes"
	"fmt"

	"github.com/chase3718/thr-comm/internal/fault"
)

const (
	// DumpSize is the length of a full patch dump payload (without F0/F7).
	DumpSize = dumpHeaderLen + 257

	dumpHeaderLen  = 17
	nameOffset     = dumpHeaderLen
	nameSize       = 64
	checksumOffset = DumpSize - 1

	// lastField is the highest offset Decode reads.
	lastField = 240
)

// dumpHeader starts every patch dump the amp sends and accepts.
var dumpHeader = [dumpHeaderLen]byte{0x43, 0x7D, 0x00, 0x02, 0x0C, 0x44, 0x54, 0x41, 0x31, 0x41, 0x6C, 0x6C, 0x50, 0x00, 0x00, 0x7F, 0x7F}

// DumpHeader returns a copy of the prefix identifying a patch dump.
func DumpHeader() []byte { return bytes.Clone(dumpHeader[:]) }

// Checksum computes the dump checksum over data, which is everything after
// the header up to (not including) the checksum byte. Bytes are summed as
// signed values starting from 0x71; the result is the low seven bits of the
// negated sum.
func Checksum(data []byte) byte {
	sum := 0x71
	for _, b := range data {
		sum += int(int8(b))
	}
	return byte(-sum) & 0x7F
}

// VerifyChecksum reports whether a full dump carries the checksum it should.
func VerifyChecksum(dump []byte) bool {
	if len(dump) != DumpSize {
		return false
	}
	return dump[checksumOffset] == Checksum(dump[nameOffset:checksumOffset])
}

// Encode lays p out as a DumpSize-byte payload and fills in the checksum.
// Blocks the preset leaves out are written switched off (see offBlocks).
// Name bytes outside seven-bit ASCII are replaced with '?'.
func (p *Preset) Encode() []byte {
	dump := make([]byte, DumpSize)
	copy(dump, dumpHeader[:])

	name := []byte(p.Name)
	if len(name) > nameSize {
		name = name[:nameSize]
	}
	for i, b := range name {
		if b > 0x7F {
			name[i] = '?'
		}
	}
	copy(dump[nameOffset:], name)

	mp := p.MainPanel
	AmpProp.put(dump, int(mp.Amp))
	GainProp.put(dump, int(mp.Gain))
	MasterProp.put(dump, int(mp.Master))
	BassProp.put(dump, int(mp.Bass))
	MiddleProp.put(dump, int(mp.Middle))
	TrebleProp.put(dump, int(mp.Treble))
	if mp.Cabinet != nil {
		CabinetProp.put(dump, int(*mp.Cabinet))
	}

	off := offBlocks()
	if p.Compressor == nil {
		off.Compressor.encode(dump)
	} else {
		p.Compressor.encode(dump)
	}
	if p.Effect == nil {
		off.Effect.encode(dump)
	} else {
		p.Effect.encode(dump)
	}
	if p.Delay == nil {
		off.Delay.encode(dump)
	} else {
		p.Delay.encode(dump)
	}
	if p.Reverb == nil {
		off.Reverb.encode(dump)
	} else {
		p.Reverb.encode(dump)
	}
	if p.Gate == nil {
		off.Gate.encode(dump)
	} else {
		p.Gate.encode(dump)
	}

	dump[checksumOffset] = Checksum(dump[nameOffset:checksumOffset])
	return dump
}

// Decode parses a patch dump payload. A checksum mismatch is not an error;
// use VerifyChecksum when that matters.
func Decode(dump []byte) (*Preset, error) {
	const op = "preset.Decode"
	if !bytes.HasPrefix(dump, dumpHeader[:]) {
		return nil, fault.Errorf(fault.Protocol, op, "missing dump header")
	}
	if len(dump) <= lastField {
		return nil, fault.Errorf(fault.Protocol, op, "dump too short: %d bytes", len(dump))
	}

	p := &Preset{Name: decodeName(dump)}

	amp := AmpType(AmpProp.get(dump))
	if int(amp) >= len(ampNames) {
		return nil, fault.Errorf(fault.Protocol, op, "unknown amp type 0x%02X", byte(amp))
	}
	p.MainPanel = MainPanel{
		Amp:    amp,
		Gain:   byte(GainProp.get(dump)),
		Master: byte(MasterProp.get(dump)),
		Bass:   byte(BassProp.get(dump)),
		Middle: byte(MiddleProp.get(dump)),
		Treble: byte(TrebleProp.get(dump)),
	}
	if amp.HasCabinet() {
		if cab := CabinetType(CabinetProp.get(dump)); int(cab) < len(cabinetNames) {
			p.MainPanel.Cabinet = &cab
		}
	}

	var err error
	if p.Compressor, err = decodeCompressor(dump); err != nil {
		return nil, fault.New(fault.Protocol, op, err)
	}
	if p.Effect, err = decodeEffect(dump); err != nil {
		return nil, fault.New(fault.Protocol, op, err)
	}
	if p.Delay, err = decodeDelay(dump); err != nil {
		return nil, fault.New(fault.Protocol, op, err)
	}
	if p.Reverb, err = decodeReverb(dump); err != nil {
		return nil, fault.New(fault.Protocol, op, err)
	}
	if p.Gate, err = decodeGate(dump); err != nil {
		return nil, fault.New(fault.Protocol, op, err)
	}
	return p, nil
}

// offBlocks returns the blocks Encode writes for sections a preset omits.
// The amp has no "absent" state, so they are switched off and hold in-range
// values. Decoding such a dump yields these blocks, not nil.
func offBlocks() Preset {
	return Preset{
		Compressor: Stomp{Status: Off},
		Effect:     Chorus{Status: Off},
		Delay: &Delay{
			Status:  Off,
			Time:    DelayTime.Min,
			HighCut: DelayHighCut.Min,
			LowCut:  DelayLowCut.Min,
		},
		Reverb: Spring{Status: Off},
		Gate:   &Gate{Status: Off},
	}
}

func decodeName(dump []byte) string {
	raw := dump[nameOffset : nameOffset+nameSize]
	return string(bytes.TrimRight(raw, "\x00"))
}

func status(dump []byte, p Property) (Status, error) {
	s := Status(dump[p.Offset])
	if !s.valid() {
		return 0, fmt.Errorf("%s: invalid status 0x%02X", p.Name, byte(s))
	}
	return s, nil
}

func decodeCompressor(dump []byte) (Compressor, error) {
	st, err := status(dump, CompressorStatus)
	if err != nil {
		return nil, err
	}
	switch t := CompressorType(CompressorTypeProp.get(dump)); t {
	case StompType:
		return Stomp{
			Status:  st,
			Sustain: byte(StompSustain.get(dump)),
			Output:  byte(StompOutput.get(dump)),
		}, nil
	case RackType:
		return Rack{
			Status:    st,
			Threshold: RackThreshold.get(dump),
			Attack:    byte(RackAttack.get(dump)),
			Release:   byte(RackRelease.get(dump)),
			Ratio:     byte(RackRatio.get(dump)),
			Knee:      byte(RackKnee.get(dump)),
			Output:    RackOutput.get(dump),
		}, nil
	default:
		return nil, fmt.Errorf("unknown compressor type 0x%02X", byte(t))
	}
}

func decodeEffect(dump []byte) (Effect, error) {
	st, err := status(dump, EffectStatus)
	if err != nil {
		return nil, err
	}
	switch t := EffectType(EffectTypeProp.get(dump)); t {
	case ChorusType:
		return Chorus{
			Status: st,
			Speed:  byte(ChorusSpeed.get(dump)),
			Depth:  byte(ChorusDepth.get(dump)),
			Mix:    byte(ChorusMix.get(dump)),
		}, nil
	case FlangerType:
		return Flanger{
			Status:   st,
			Speed:    byte(FlangerSpeed.get(dump)),
			Manual:   byte(FlangerManual.get(dump)),
			Depth:    byte(FlangerDepth.get(dump)),
			Feedback: byte(FlangerFeedback.get(dump)),
			Spread:   byte(FlangerSpread.get(dump)),
		}, nil
	case TremoloType:
		return Tremolo{
			Status: st,
			Freq:   byte(TremoloFreq.get(dump)),
			Depth:  byte(TremoloDepth.get(dump)),
		}, nil
	case PhaserType:
		return Phaser{
			Status:   st,
			Speed:    byte(PhaserSpeed.get(dump)),
			Manual:   byte(PhaserManual.get(dump)),
			Depth:    byte(PhaserDepth.get(dump)),
			Feedback: byte(PhaserFeedback.get(dump)),
		}, nil
	default:
		return nil, fmt.Errorf("unknown effect type 0x%02X", byte(t))
	}
}

func decodeDelay(dump []byte) (*Delay, error) {
	st, err := status(dump, DelayStatus)
	if err != nil {
		return nil, err
	}
	return &Delay{
		Status:   st,
		Time:     DelayTime.get(dump),
		Feedback: byte(DelayFeedback.get(dump)),
		HighCut:  DelayHighCut.get(dump),
		LowCut:   DelayLowCut.get(dump),
		Level:    byte(DelayLevel.get(dump)),
	}, nil
}

func decodeReverb(dump []byte) (Reverb, error) {
	st, err := status(dump, ReverbStatus)
	if err != nil {
		return nil, err
	}
	space := func() Space {
		return Space{
			Status:    st,
			Time:      SpaceTime.get(dump),
			PreDelay:  SpacePreDelay.get(dump),
			LowCut:    SpaceLowCut.get(dump),
			HighCut:   SpaceHighCut.get(dump),
			HighRatio: byte(SpaceHighRatio.get(dump)),
			LowRatio:  byte(SpaceLowRatio.get(dump)),
			Level:     byte(SpaceLevel.get(dump)),
		}
	}
	switch t := ReverbType(ReverbTypeProp.get(dump)); t {
	case HallType:
		return Hall{space()}, nil
	case RoomType:
		return Room{space()}, nil
	case PlateType:
		return Plate{space()}, nil
	case SpringType:
		return Spring{
			Status: st,
			Reverb: byte(SpringReverb.get(dump)),
			Filter: byte(SpringFilter.get(dump)),
		}, nil
	default:
		return nil, fmt.Errorf("unknown reverb type 0x%02X", byte(t))
	}
}

func decodeGate(dump []byte) (*Gate, error) {
	st, err := status(dump, GateStatus)
	if err != nil {
		return nil, err
	}
	return &Gate{
		Status:    st,
		Threshold: byte(GateThreshold.get(dump)),
		Release:   byte(GateRelease.get(dump)),
	}, nil
}

func (s Stomp) encode(dump []byte) {
	CompressorTypeProp.put(dump, int(StompType))
	CompressorStatus.put(dump, int(s.Status))
	StompSustain.put(dump, int(s.Sustain))
	StompOutput.put(dump, int(s.Output))
}

func (r Rack) encode(dump []byte) {
	CompressorTypeProp.put(dump, int(RackType))
	CompressorStatus.put(dump, int(r.Status))
	RackThreshold.put(dump, r.Threshold)
	RackAttack.put(dump, int(r.Attack))
	RackRelease.put(dump, int(r.Release))
	RackRatio.put(dump, int(r.Ratio))
	RackKnee.put(dump, int(r.Knee))
	RackOutput.put(dump, r.Output)
}

func (c Chorus) encode(dump []byte) {
	EffectTypeProp.put(dump, int(ChorusType))
	EffectStatus.put(dump, int(c.Status))
	ChorusSpeed.put(dump, int(c.Speed))
	ChorusDepth.put(dump, int(c.Depth))
	ChorusMix.put(dump, int(c.Mix))
}

func (f Flanger) encode(dump []byte) {
	EffectTypeProp.put(dump, int(FlangerType))
	EffectStatus.put(dump, int(f.Status))
	FlangerSpeed.put(dump, int(f.Speed))
	FlangerManual.put(dump, int(f.Manual))
	FlangerDepth.put(dump, int(f.Depth))
	FlangerFeedback.put(dump, int(f.Feedback))
	FlangerSpread.put(dump, int(f.Spread))
}

func (t Tremolo) encode(dump []byte) {
	EffectTypeProp.put(dump, int(TremoloType))
	EffectStatus.put(dump, int(t.Status))
	TremoloFreq.put(dump, int(t.Freq))
	TremoloDepth.put(dump, int(t.Depth))
}

func (p Phaser) encode(dump []byte) {
	EffectTypeProp.put(dump, int(PhaserType))
	EffectStatus.put(dump, int(p.Status))
	PhaserSpeed.put(dump, int(p.Speed))
	PhaserManual.put(dump, int(p.Manual))
	PhaserDepth.put(dump, int(p.Depth))
	PhaserFeedback.put(dump, int(p.Feedback))
}

func (d *Delay) encode(dump []byte) {
	DelayStatus.put(dump, int(d.Status))
	DelayTime.put(dump, d.Time)
	DelayFeedback.put(dump, int(d.Feedback))
	DelayHighCut.put(dump, d.HighCut)
	DelayLowCut.put(dump, d.LowCut)
	DelayLevel.put(dump, int(d.Level))
}

func (s Space) encodeAs(dump []byte, t ReverbType) {
	ReverbTypeProp.put(dump, int(t))
	ReverbStatus.put(dump, int(s.Status))
	SpaceTime.put(dump, s.Time)
	SpacePreDelay.put(dump, s.PreDelay)
	SpaceLowCut.put(dump, s.LowCut)
	SpaceHighCut.put(dump, s.HighCut)
	SpaceHighRatio.put(dump, int(s.HighRatio))
	SpaceLowRatio.put(dump, int(s.LowRatio))
	SpaceLevel.put(dump, int(s.Level))
}

func (h Hall) encode(dump []byte)  { h.encodeAs(dump, HallType) }
func (r Room) encode(dump []byte)  { r.encodeAs(dump, RoomType) }
func (p Plate) encode(dump []byte) { p.encodeAs(dump, PlateType) }

func (s Spring) encode(dump []byte) {
	ReverbTypeProp.put(dump, int(SpringType))
	ReverbStatus.put(dump, int(s.Status))
	SpringReverb.put(dump, int(s.Reverb))
	SpringFilter.put(dump, int(s.Filter))
}

func (g *Gate) encode(dump []byte) {
	GateStatus.put(dump, int(g.Status))
	GateThreshold.put(dump, int(g.Threshold))
	GateRelease.put(dump, int(g.Release))
}
