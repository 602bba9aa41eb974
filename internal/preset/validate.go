package preset

import (
	"errors"
	"fmt"

	"github.com/chase3718/thr-comm/internal/fault"
)

// Validate checks every value against its property range. All problems are
// reported together.
func (p *Preset) Validate() error {
	var errs []error
	check := func(prop Property, v int) {
		if !prop.InRange(v) {
			errs = append(errs, fmt.Errorf("%s: %d not in [%d, %d]", prop.Name, v, prop.Min, prop.Max))
		}
	}
	checkStatus := func(prop Property, s Status) {
		if !s.valid() {
			errs = append(errs, fmt.Errorf("%s: invalid 0x%02X", prop.Name, byte(s)))
		}
	}

	if len(p.Name) > nameSize {
		errs = append(errs, fmt.Errorf("name: longer than %d bytes", nameSize))
	}
	for i := 0; i < len(p.Name); i++ {
		if p.Name[i] > 0x7F {
			errs = append(errs, fmt.Errorf("name: byte 0x%02X at %d is not seven-bit ASCII", p.Name[i], i))
			break
		}
	}

	mp := p.MainPanel
	check(AmpProp, int(mp.Amp))
	check(GainProp, int(mp.Gain))
	check(MasterProp, int(mp.Master))
	check(BassProp, int(mp.Bass))
	check(MiddleProp, int(mp.Middle))
	check(TrebleProp, int(mp.Treble))
	if mp.Cabinet != nil {
		check(CabinetProp, int(*mp.Cabinet))
	}

	switch c := p.Compressor.(type) {
	case Stomp:
		checkStatus(CompressorStatus, c.Status)
		check(StompSustain, int(c.Sustain))
		check(StompOutput, int(c.Output))
	case Rack:
		checkStatus(CompressorStatus, c.Status)
		check(RackThreshold, c.Threshold)
		check(RackAttack, int(c.Attack))
		check(RackRelease, int(c.Release))
		check(RackRatio, int(c.Ratio))
		check(RackKnee, int(c.Knee))
		check(RackOutput, c.Output)
	}

	switch e := p.Effect.(type) {
	case Chorus:
		checkStatus(EffectStatus, e.Status)
		check(ChorusSpeed, int(e.Speed))
		check(ChorusDepth, int(e.Depth))
		check(ChorusMix, int(e.Mix))
	case Flanger:
		checkStatus(EffectStatus, e.Status)
		check(FlangerSpeed, int(e.Speed))
		check(FlangerManual, int(e.Manual))
		check(FlangerDepth, int(e.Depth))
		check(FlangerFeedback, int(e.Feedback))
		check(FlangerSpread, int(e.Spread))
	case Tremolo:
		checkStatus(EffectStatus, e.Status)
		check(TremoloFreq, int(e.Freq))
		check(TremoloDepth, int(e.Depth))
	case Phaser:
		checkStatus(EffectStatus, e.Status)
		check(PhaserSpeed, int(e.Speed))
		check(PhaserManual, int(e.Manual))
		check(PhaserDepth, int(e.Depth))
		check(PhaserFeedback, int(e.Feedback))
	}

	if d := p.Delay; d != nil {
		checkStatus(DelayStatus, d.Status)
		check(DelayTime, d.Time)
		check(DelayFeedback, int(d.Feedback))
		check(DelayHighCut, d.HighCut)
		check(DelayLowCut, d.LowCut)
		check(DelayLevel, int(d.Level))
	}

	checkSpace := func(s Space) {
		checkStatus(ReverbStatus, s.Status)
		check(SpaceTime, s.Time)
		check(SpacePreDelay, s.PreDelay)
		check(SpaceLowCut, s.LowCut)
		check(SpaceHighCut, s.HighCut)
		check(SpaceHighRatio, int(s.HighRatio))
		check(SpaceLowRatio, int(s.LowRatio))
		check(SpaceLevel, int(s.Level))
	}
	switch r := p.Reverb.(type) {
	case Hall:
		checkSpace(r.Space)
	case Room:
		checkSpace(r.Space)
	case Plate:
		checkSpace(r.Space)
	case Spring:
		checkStatus(ReverbStatus, r.Status)
		check(SpringReverb, int(r.Reverb))
		check(SpringFilter, int(r.Filter))
	}

	if g := p.Gate; g != nil {
		checkStatus(GateStatus, g.Status)
		check(GateThreshold, int(g.Threshold))
		check(GateRelease, int(g.Release))
	}

	if len(errs) > 0 {
		return fault.New(fault.Validation, "preset.Validate", errors.Join(errs...))
	}
	return nil
}
