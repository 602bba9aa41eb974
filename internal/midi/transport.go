package midi

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"

	"github.com/chase3718/thr-comm/internal/fault"
	"github.com/chase3718/thr-comm/internal/logging"
	"github.com/chase3718/thr-comm/internal/preset"
)

// Conn is the sending half of an amp connection as seen by the router.
type Conn interface {
	Send(Message) error
	Close() error
}

// Transport is one open connection to the amp.
type Transport struct {
	name string
	rw   io.ReadWriteCloser
	df   *Deframer
	log  *slog.Logger

	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewTransport wraps an already open byte stream.
func NewTransport(name string, rw io.ReadWriteCloser) *Transport {
	return &Transport{
		name: name,
		rw:   rw,
		df:   NewDeframer(rw),
		log:  logging.Get(logging.MIDI).With("device", name),
	}
}

// Open opens a raw MIDI character device such as /dev/midi1.
func Open(device string) (*Transport, error) {
	f, err := os.OpenFile(device, os.O_RDWR, 0)
	if err != nil {
		return nil, fault.New(fault.Disconnected, "midi.Open", err)
	}
	return NewTransport(device, f), nil
}

// PortPrefix selects a named gomidi port instead of a character device.
const PortPrefix = "port:"

// Dial opens device, which is either a character device path or
// "port:<name>" for a USB-MIDI port found through rtmidi.
func Dial(device string) (*Transport, error) {
	if name, ok := strings.CutPrefix(device, PortPrefix); ok {
		return OpenPort(name)
	}
	return Open(device)
}

func (t *Transport) String() string { return t.name }

// Receive blocks for the next message. A fault.Protocol error means one
// payload was not understood and the caller may keep reading; any other error
// is a fault.Disconnected and the transport is unusable.
func (t *Transport) Receive() (Message, error) {
	payload, err := t.df.Next()
	if err != nil {
		return nil, fault.New(fault.Disconnected, "midi.Receive", err)
	}
	msg, err := Classify(payload)
	if err != nil {
		return nil, err
	}
	if _, ok := msg.(Dump); ok && !preset.VerifyChecksum(payload) {
		t.log.Warn("midi: dump checksum mismatch", "bytes", len(payload))
	}
	return msg, nil
}

// Send frames m and writes it in one call. A failed or empty write is
// reported as fault.Disconnected.
func (t *Transport) Send(m Message) error {
	frame := gomidi.SysEx(m.Sysex())

	t.wmu.Lock()
	defer t.wmu.Unlock()
	n, err := t.rw.Write(frame)
	if err != nil {
		return fault.New(fault.Disconnected, "midi.Send", err)
	}
	if n == 0 {
		return fault.Errorf(fault.Disconnected, "midi.Send", "zero-length write")
	}
	if n != len(frame) {
		return fault.Errorf(fault.Disconnected, "midi.Send", "short write: %d of %d bytes", n, len(frame))
	}
	t.log.Debug("midi: sent", "type", fmt.Sprintf("%T", m), "bytes", n)
	return nil
}

// Close releases the underlying stream. It is safe to call more than once and
// unblocks a pending Receive.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.rw.Close()
	})
	return t.closeErr
}
