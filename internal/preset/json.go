package preset

import (
	"encoding/json"
	"fmt"

	"github.com/chase3718/thr-comm/internal/tagged"
)

// presetJSON is the wire and storage shape of a Preset. Variant blocks are
// objects tagged with their concrete type.
type presetJSON struct {
	Name       string          `json:"name"`
	MainPanel  MainPanel       `json:"mainPanel"`
	Compressor json.RawMessage `json:"compressor"`
	Effect     json.RawMessage `json:"effect"`
	Delay      *Delay          `json:"delay"`
	Reverb     json.RawMessage `json:"reverb"`
	Gate       *Gate           `json:"gate"`
}

var null = json.RawMessage("null")

func (p Preset) MarshalJSON() ([]byte, error) {
	out := presetJSON{
		Name:       p.Name,
		MainPanel:  p.MainPanel,
		Delay:      p.Delay,
		Gate:       p.Gate,
		Compressor: null,
		Effect:     null,
		Reverb:     null,
	}
	var err error
	if p.Compressor != nil {
		if out.Compressor, err = tagged.Marshal(p.Compressor.Type().String(), p.Compressor); err != nil {
			return nil, err
		}
	}
	if p.Effect != nil {
		if out.Effect, err = tagged.Marshal(p.Effect.Type().String(), p.Effect); err != nil {
			return nil, err
		}
	}
	if p.Reverb != nil {
		if out.Reverb, err = tagged.Marshal(p.Reverb.Type().String(), p.Reverb); err != nil {
			return nil, err
		}
	}
	return json.Marshal(out)
}

func (p *Preset) UnmarshalJSON(data []byte) error {
	var in presetJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*p = Preset{
		Name:      in.Name,
		MainPanel: in.MainPanel,
		Delay:     in.Delay,
		Gate:      in.Gate,
	}

	var err error
	if p.Compressor, err = unmarshalVariant(in.Compressor, map[string]func([]byte) (Compressor, error){
		"Stomp": decodeAs[Stomp, Compressor],
		"Rack":  decodeAs[Rack, Compressor],
	}); err != nil {
		return fmt.Errorf("compressor: %w", err)
	}
	if p.Effect, err = unmarshalVariant(in.Effect, map[string]func([]byte) (Effect, error){
		"Chorus":  decodeAs[Chorus, Effect],
		"Flanger": decodeAs[Flanger, Effect],
		"Tremolo": decodeAs[Tremolo, Effect],
		"Phaser":  decodeAs[Phaser, Effect],
	}); err != nil {
		return fmt.Errorf("effect: %w", err)
	}
	if p.Reverb, err = unmarshalVariant(in.Reverb, map[string]func([]byte) (Reverb, error){
		"Hall":   decodeAs[Hall, Reverb],
		"Room":   decodeAs[Room, Reverb],
		"Plate":  decodeAs[Plate, Reverb],
		"Spring": decodeAs[Spring, Reverb],
	}); err != nil {
		return fmt.Errorf("reverb: %w", err)
	}
	return nil
}

func unmarshalVariant[I any](raw json.RawMessage, variants map[string]func([]byte) (I, error)) (I, error) {
	var zero I
	if len(raw) == 0 || string(raw) == "null" {
		return zero, nil
	}
	tag, err := tagged.Peek(raw)
	if err != nil {
		return zero, err
	}
	decode, ok := variants[tag]
	if !ok {
		return zero, fmt.Errorf("unknown type %q", tag)
	}
	return decode(raw)
}

// decodeAs decodes into the concrete variant T and returns it as interface I.
func decodeAs[T any, I any](raw []byte) (I, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		var zero I
		return zero, err
	}
	return any(v).(I), nil
}
