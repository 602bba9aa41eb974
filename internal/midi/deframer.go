package midi

import (
	"bufio"
	"bytes"
	"io"
)

const (
	sysexStart = 0xF0
	sysexEnd   = 0xF7
)

// State is the position of a Deframer within the byte stream.
type State int

const (
	WaitingForStart State = iota
	Accumulating
)

func (s State) String() string {
	if s == Accumulating {
		return "accumulating"
	}
	return "waiting"
}

// Deframer extracts sysex payloads from a raw MIDI byte stream. Bytes outside
// an F0..F7 frame are discarded; an F0 seen mid-frame restarts the frame.
type Deframer struct {
	r     io.ByteReader
	state State
	buf   []byte
}

// NewDeframer reads from r, buffering it unless it is already an io.ByteReader.
func NewDeframer(r io.Reader) *Deframer {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Deframer{r: br, buf: make([]byte, 0, 512)}
}

// State returns the current framing state.
func (d *Deframer) State() State { return d.state }

// Next blocks until a complete frame has been read and returns its payload.
// Read errors are returned as is.
func (d *Deframer) Next() ([]byte, error) {
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return nil, err
		}
		switch d.state {
		case WaitingForStart:
			if b == sysexStart {
				d.buf = d.buf[:0]
				d.state = Accumulating
			}
		case Accumulating:
			switch b {
			case sysexStart:
				d.buf = d.buf[:0]
			case sysexEnd:
				d.state = WaitingForStart
				return bytes.Clone(d.buf), nil
			default:
				d.buf = append(d.buf, b)
			}
		}
	}
}
