package midi

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/chase3718/thr-comm/internal/logging"
)

// excludedPorts are virtual/system ports that are never matched by name.
var excludedPorts = []string{"Midi Through", "Through Port", "Dummy"}

// OpenPort connects to a USB-MIDI port pair through rtmidi. name matches a
// port exactly or, failing that, as a case-insensitive substring.
func OpenPort(name string) (*Transport, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}
	ins, err := drv.Ins()
	if err != nil {
		drv.Close()
		return nil, fmt.Errorf("list inputs: %w", err)
	}
	outs, err := drv.Outs()
	if err != nil {
		drv.Close()
		return nil, fmt.Errorf("list outputs: %w", err)
	}

	in, ok := findPort(ins, name)
	if !ok {
		drv.Close()
		return nil, fmt.Errorf("input %q not found", name)
	}
	out, ok := findPort(outs, name)
	if !ok {
		drv.Close()
		return nil, fmt.Errorf("output %q not found", name)
	}

	s, err := newPortStream(in, out, drv.Close)
	if err != nil {
		drv.Close()
		return nil, err
	}
	return NewTransport(PortPrefix+in.String(), s), nil
}

func findPort[P drivers.Port](ports []P, name string) (P, bool) {
	var candidates []P
	for _, p := range ports {
		if isExcluded(p.String()) {
			continue
		}
		if p.String() == name {
			return p, true
		}
		candidates = append(candidates, p)
	}
	for _, p := range candidates {
		if containsCI(p.String(), name) {
			return p, true
		}
	}
	var zero P
	return zero, false
}

func isExcluded(name string) bool {
	for _, pat := range excludedPorts {
		if containsCI(name, pat) {
			return true
		}
	}
	return false
}

func containsCI(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// portStream presents a gomidi port pair as a raw byte stream so the same
// Deframer serves both character devices and USB ports. Only sysex messages
// are passed through.
type portStream struct {
	in      drivers.In
	out     drivers.Out
	send    func(gomidi.Message) error
	stop    func()
	pr      *io.PipeReader
	pw      *io.PipeWriter
	release func() error
	log     *slog.Logger
}

func newPortStream(in drivers.In, out drivers.Out, release func() error) (*portStream, error) {
	pr, pw := io.Pipe()
	s := &portStream{
		in:      in,
		out:     out,
		pr:      pr,
		pw:      pw,
		release: release,
		log:     logging.Get(logging.MIDI).With("port", in.String()),
	}

	send, err := gomidi.SendTo(out)
	if err != nil {
		return nil, fmt.Errorf("open output %q: %w", out.String(), err)
	}
	s.send = send

	stop, err := gomidi.ListenTo(in, s.onMessage,
		gomidi.UseSysEx(),
		gomidi.SysExBufferSize(1024),
		gomidi.HandleError(s.onError),
	)
	if err != nil {
		_ = out.Close()
		return nil, fmt.Errorf("listen %q: %w", in.String(), err)
	}
	s.stop = stop
	s.log.Info("midi: port opened")
	return s, nil
}

func (s *portStream) onMessage(msg gomidi.Message, _ int32) {
	var data []byte
	if !msg.GetSysEx(&data) {
		s.log.Debug("midi: ignoring non-sysex message", "msg", msg.String())
		return
	}
	if _, err := s.pw.Write(gomidi.SysEx(data)); err != nil {
		s.log.Debug("midi: dropped message after close", "err", err)
	}
}

func (s *portStream) onError(err error) {
	s.log.Warn("midi: listener error", "err", err)
	s.pw.CloseWithError(err)
}

func (s *portStream) Read(p []byte) (int, error) { return s.pr.Read(p) }

func (s *portStream) Write(p []byte) (int, error) {
	if err := s.send(gomidi.Message(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *portStream) Close() error {
	if s.stop != nil {
		s.stop()
	}
	s.pw.Close()
	_ = s.in.Close()
	err := s.out.Close()
	if s.release != nil {
		if rerr := s.release(); err == nil {
			err = rerr
		}
	}
	return err
}
