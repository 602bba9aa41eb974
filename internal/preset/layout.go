package preset

// Property describes one editable amp parameter: the id the amp uses in
// change messages, the allowed range, and where the value sits in a dump.
// Wide properties span two bytes (hi, lo) of seven bits each.
type Property struct {
	Name   string
	ID     byte
	Min    int
	Max    int
	Offset int
	Wide   bool
}

// Status properties carry the block's on/off byte.
var (
	CompressorStatus = Property{Name: "compressor.status", ID: 0x1F, Max: 0x7F, Offset: 176}
	EffectStatus     = Property{Name: "effect.status", ID: 0x2F, Max: 0x7F, Offset: 192}
	DelayStatus      = Property{Name: "delay.status", ID: 0x3F, Max: 0x7F, Offset: 208}
	ReverbStatus     = Property{Name: "reverb.status", ID: 0x4F, Max: 0x7F, Offset: 224}
	GateStatus       = Property{Name: "gate.status", ID: 0x5F, Max: 0x7F, Offset: 240}
)

// Main panel.
var (
	AmpProp     = Property{Name: "amp", ID: 0x00, Max: 7, Offset: 145}
	GainProp    = Property{Name: "gain", ID: 0x01, Max: 100, Offset: 146}
	MasterProp  = Property{Name: "master", ID: 0x02, Max: 100, Offset: 147}
	BassProp    = Property{Name: "bass", ID: 0x03, Max: 100, Offset: 148}
	MiddleProp  = Property{Name: "middle", ID: 0x04, Max: 100, Offset: 149}
	TrebleProp  = Property{Name: "treble", ID: 0x05, Max: 100, Offset: 150}
	CabinetProp = Property{Name: "cabinet", ID: 0x06, Max: 5, Offset: 151}
)

// Compressor.
var (
	CompressorTypeProp = Property{Name: "compressor.type", ID: 0x10, Max: 1, Offset: 161}

	StompSustain = Property{Name: "stomp.sustain", ID: 0x11, Max: 100, Offset: 162}
	StompOutput  = Property{Name: "stomp.output", ID: 0x12, Max: 100, Offset: 163}

	RackThreshold = Property{Name: "rack.threshold", ID: 0x11, Max: 600, Offset: 162, Wide: true}
	RackAttack    = Property{Name: "rack.attack", ID: 0x13, Max: 100, Offset: 164}
	RackRelease   = Property{Name: "rack.release", ID: 0x14, Max: 100, Offset: 165}
	RackRatio     = Property{Name: "rack.ratio", ID: 0x15, Max: 5, Offset: 166}
	RackKnee      = Property{Name: "rack.knee", ID: 0x16, Max: 2, Offset: 167}
	RackOutput    = Property{Name: "rack.output", ID: 0x17, Max: 600, Offset: 168, Wide: true}
)

// Modulation effect.
var (
	EffectTypeProp = Property{Name: "effect.type", ID: 0x20, Max: 3, Offset: 177}

	ChorusSpeed = Property{Name: "chorus.speed", ID: 0x21, Max: 100, Offset: 178}
	ChorusDepth = Property{Name: "chorus.depth", ID: 0x22, Max: 100, Offset: 179}
	ChorusMix   = Property{Name: "chorus.mix", ID: 0x23, Max: 100, Offset: 180}

	FlangerSpeed    = Property{Name: "flanger.speed", ID: 0x21, Max: 100, Offset: 178}
	FlangerManual   = Property{Name: "flanger.manual", ID: 0x22, Max: 100, Offset: 179}
	FlangerDepth    = Property{Name: "flanger.depth", ID: 0x23, Max: 100, Offset: 180}
	FlangerFeedback = Property{Name: "flanger.feedback", ID: 0x24, Max: 100, Offset: 181}
	FlangerSpread   = Property{Name: "flanger.spread", ID: 0x25, Max: 100, Offset: 182}

	TremoloFreq  = Property{Name: "tremolo.freq", ID: 0x21, Max: 100, Offset: 178}
	TremoloDepth = Property{Name: "tremolo.depth", ID: 0x22, Max: 100, Offset: 179}

	PhaserSpeed    = Property{Name: "phaser.speed", ID: 0x21, Max: 100, Offset: 178}
	PhaserManual   = Property{Name: "phaser.manual", ID: 0x22, Max: 100, Offset: 179}
	PhaserDepth    = Property{Name: "phaser.depth", ID: 0x23, Max: 100, Offset: 180}
	PhaserFeedback = Property{Name: "phaser.feedback", ID: 0x24, Max: 100, Offset: 181}
)

// Delay.
var (
	DelayTime     = Property{Name: "delay.time", ID: 0x31, Min: 1, Max: 9999, Offset: 194, Wide: true}
	DelayFeedback = Property{Name: "delay.feedback", ID: 0x33, Max: 100, Offset: 196}
	DelayHighCut  = Property{Name: "delay.highCut", ID: 0x34, Min: 1000, Max: 16001, Offset: 197, Wide: true}
	DelayLowCut   = Property{Name: "delay.lowCut", ID: 0x36, Min: 21, Max: 8000, Offset: 199, Wide: true}
	DelayLevel    = Property{Name: "delay.level", ID: 0x38, Max: 100, Offset: 201}
)

// Reverb. Hall, room and plate share one parameter block.
var (
	ReverbTypeProp = Property{Name: "reverb.type", ID: 0x40, Max: 3, Offset: 209}

	SpaceTime      = Property{Name: "reverb.time", ID: 0x41, Min: 3, Max: 200, Offset: 210, Wide: true}
	SpacePreDelay  = Property{Name: "reverb.preDelay", ID: 0x43, Min: 1, Max: 2000, Offset: 212, Wide: true}
	SpaceLowCut    = Property{Name: "reverb.lowCut", ID: 0x45, Min: 21, Max: 8000, Offset: 214, Wide: true}
	SpaceHighCut   = Property{Name: "reverb.highCut", ID: 0x47, Min: 1000, Max: 16001, Offset: 216, Wide: true}
	SpaceHighRatio = Property{Name: "reverb.highRatio", ID: 0x49, Min: 1, Max: 10, Offset: 218}
	SpaceLowRatio  = Property{Name: "reverb.lowRatio", ID: 0x4A, Min: 1, Max: 14, Offset: 219}
	SpaceLevel     = Property{Name: "reverb.level", ID: 0x4B, Max: 100, Offset: 220}

	SpringReverb = Property{Name: "spring.reverb", ID: 0x41, Max: 100, Offset: 210}
	SpringFilter = Property{Name: "spring.filter", ID: 0x42, Max: 100, Offset: 211}
)

// Noise gate.
var (
	GateThreshold = Property{Name: "gate.threshold", ID: 0x51, Max: 100, Offset: 226}
	GateRelease   = Property{Name: "gate.release", ID: 0x52, Max: 100, Offset: 227}
)

// InRange reports whether v is an acceptable value for p.
func (p Property) InRange(v int) bool { return v >= p.Min && v <= p.Max }

func (p Property) put(dump []byte, v int) {
	if p.Wide {
		dump[p.Offset], dump[p.Offset+1] = Split7(v)
		return
	}
	dump[p.Offset] = byte(v) & 0x7F
}

func (p Property) get(dump []byte) int {
	if p.Wide {
		return Join7(dump[p.Offset], dump[p.Offset+1])
	}
	return int(dump[p.Offset])
}

// Split7 splits v into two seven-bit bytes, high first.
func Split7(v int) (hi, lo byte) {
	return byte(v/128) & 0x7F, byte(v % 128)
}

// Join7 is the inverse of Split7.
func Join7(hi, lo byte) int {
	return int(hi)*128 + int(lo)
}
