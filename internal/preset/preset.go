// Package preset models one saved amplifier configuration and converts it to
// and from the amp's fixed-layout sysex dump.
package preset

// Preset is a complete amp configuration. Optional blocks are nil when the
// preset does not carry them; a decoded dump always has every block because
// the amp always sends them.
type Preset struct {
	Name       string
	MainPanel  MainPanel
	Compressor Compressor
	Effect     Effect
	Delay      *Delay
	Reverb     Reverb
	Gate       *Gate
}

// MainPanel holds the front-panel knobs.
type MainPanel struct {
	Amp     AmpType      `json:"amp"`
	Gain    byte         `json:"gain"`
	Master  byte         `json:"master"`
	Bass    byte         `json:"bass"`
	Middle  byte         `json:"middle"`
	Treble  byte         `json:"treble"`
	Cabinet *CabinetType `json:"cabinet"`
}

// Compressor is either a Stomp or a Rack.
type Compressor interface {
	Type() CompressorType
	encode(dump []byte)
}

type Stomp struct {
	Status  Status `json:"status"`
	Sustain byte   `json:"sustain"`
	Output  byte   `json:"output"`
}

type Rack struct {
	Status    Status `json:"status"`
	Threshold int    `json:"threshold"`
	Attack    byte   `json:"attack"`
	Release   byte   `json:"release"`
	Ratio     byte   `json:"ratio"`
	Knee      byte   `json:"knee"`
	Output    int    `json:"output"`
}

func (Stomp) Type() CompressorType { return StompType }
func (Rack) Type() CompressorType  { return RackType }

// Effect is one of Chorus, Flanger, Tremolo or Phaser.
type Effect interface {
	Type() EffectType
	encode(dump []byte)
}

type Chorus struct {
	Status Status `json:"status"`
	Speed  byte   `json:"speed"`
	Depth  byte   `json:"depth"`
	Mix    byte   `json:"mix"`
}

type Flanger struct {
	Status   Status `json:"status"`
	Speed    byte   `json:"speed"`
	Manual   byte   `json:"manual"`
	Depth    byte   `json:"depth"`
	Feedback byte   `json:"feedback"`
	Spread   byte   `json:"spread"`
}

type Tremolo struct {
	Status Status `json:"status"`
	Freq   byte   `json:"freq"`
	Depth  byte   `json:"depth"`
}

type Phaser struct {
	Status   Status `json:"status"`
	Speed    byte   `json:"speed"`
	Manual   byte   `json:"manual"`
	Depth    byte   `json:"depth"`
	Feedback byte   `json:"feedback"`
}

func (Chorus) Type() EffectType  { return ChorusType }
func (Flanger) Type() EffectType { return FlangerType }
func (Tremolo) Type() EffectType { return TremoloType }
func (Phaser) Type() EffectType  { return PhaserType }

type Delay struct {
	Status   Status `json:"status"`
	Time     int    `json:"time"`
	Feedback byte   `json:"feedback"`
	HighCut  int    `json:"highCut"`
	LowCut   int    `json:"lowCut"`
	Level    byte   `json:"level"`
}

// Reverb is one of Hall, Room, Plate or Spring. Hall, Room and Plate share
// the same parameter block.
type Reverb interface {
	Type() ReverbType
	encode(dump []byte)
}

// Space holds the parameters common to the hall, room and plate reverbs.
type Space struct {
	Status    Status `json:"status"`
	Time      int    `json:"time"`
	PreDelay  int    `json:"preDelay"`
	LowCut    int    `json:"lowCut"`
	HighCut   int    `json:"highCut"`
	HighRatio byte   `json:"highRatio"`
	LowRatio  byte   `json:"lowRatio"`
	Level     byte   `json:"level"`
}

type Hall struct{ Space }
type Room struct{ Space }
type Plate struct{ Space }

type Spring struct {
	Status Status `json:"status"`
	Reverb byte   `json:"reverb"`
	Filter byte   `json:"filter"`
}

func (Hall) Type() ReverbType   { return HallType }
func (Room) Type() ReverbType   { return RoomType }
func (Plate) Type() ReverbType  { return PlateType }
func (Spring) Type() ReverbType { return SpringType }

type Gate struct {
	Status    Status `json:"status"`
	Threshold byte   `json:"threshold"`
	Release   byte   `json:"release"`
}
