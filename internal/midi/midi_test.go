package midi

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/chase3718/thr-comm/internal/fault"
	"github.com/chase3718/thr-comm/internal/preset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(payload ...byte) []byte {
	return append(append([]byte{0xF0}, payload...), 0xF7)
}

func TestDeframerSkipsNoiseAndKeepsOrder(t *testing.T) {
	var stream []byte
	stream = append(stream, 0x01, 0x02, 0x7F)
	stream = append(stream, frame(0x10, 0x11)...)
	stream = append(stream, 0x55, 0xF7, 0x66)
	stream = append(stream, frame(0x20)...)
	stream = append(stream, 0xF0, 0x30, 0x31)
	stream = append(stream, frame(0x40, 0x41)...)
	stream = append(stream, 0x99)

	d := NewDeframer(bytes.NewReader(stream))
	var got [][]byte
	for {
		p, err := d.Next()
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
			break
		}
		got = append(got, p)
	}
	assert.Equal(t, [][]byte{{0x10, 0x11}, {0x20}, {0x40, 0x41}}, got)
	assert.Equal(t, WaitingForStart, d.State())
}

func TestDeframerEmptyFrame(t *testing.T) {
	d := NewDeframer(bytes.NewReader(frame()))
	p, err := d.Next()
	require.NoError(t, err)
	assert.Empty(t, p)
}

func TestClassify(t *testing.T) {
	msg, err := Classify(HeartBeat{}.Sysex())
	require.NoError(t, err)
	assert.Equal(t, HeartBeat{}, msg)

	msg, err = Classify([]byte{0x43, 0x7D, 0x10, 0x41, 0x30, 0x01, 0x31, 0x4E, 0x0F})
	require.NoError(t, err)
	assert.Equal(t, Change{Property: 0x31, Value: 9999}, msg)

	p := preset.Preset{
		Name:       "Amp Dump",
		MainPanel:  preset.MainPanel{Amp: preset.Modern, Gain: 10},
		Compressor: preset.Stomp{},
		Effect:     preset.Chorus{},
		Delay:      &preset.Delay{},
		Reverb:     preset.Spring{},
		Gate:       &preset.Gate{},
	}
	cab := preset.American4x12
	p.MainPanel.Cabinet = &cab
	msg, err = Classify(p.Encode())
	require.NoError(t, err)
	assert.Equal(t, Dump{Preset: p}, msg)
}

func TestClassifyErrors(t *testing.T) {
	cases := map[string][]byte{
		"unknown":        {0x43, 0x7D, 0x55},
		"empty":          {},
		"short change":   {0x43, 0x7D, 0x10, 0x41, 0x30, 0x01, 0x31},
		"truncated dump": preset.DumpHeader(),
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Classify(payload)
			require.Error(t, err)
			assert.True(t, fault.Is(err, fault.Protocol))
		})
	}

	// A heartbeat with trailing bytes is not a heartbeat.
	_, err := Classify(append(HeartBeat{}.Sysex(), 0x00))
	assert.True(t, fault.Is(err, fault.Protocol))
}

func TestControlMessages(t *testing.T) {
	assert.Equal(t, []byte{0x43, 0x7D, 0x30, 0x41, 0x30, 0x01, 0x01}, Lamp{On: true}.Sysex())
	assert.Equal(t, []byte{0x43, 0x7D, 0x30, 0x41, 0x30, 0x01, 0x00}, Lamp{On: false}.Sysex())
	assert.Equal(t, []byte{0x43, 0x7D, 0x30, 0x41, 0x30, 0x00, 0x00}, WideStereo{On: true}.Sysex())
	assert.Equal(t, []byte{0x43, 0x7D, 0x30, 0x41, 0x30, 0x00, 0x01}, WideStereo{On: false}.Sysex())
	assert.Equal(t, []byte{0x43, 0x7D, 0x20, 0x44, 0x54, 0x41, 0x31, 0x41, 0x6C, 0x6C, 0x50}, DumpRequest{}.Sysex())
	assert.Equal(t, []byte{0x43, 0x7D, 0x10, 0x41, 0x30, 0x01, 0x01, 0x00, 0x48}, Change{Property: 0x01, Value: 72}.Sysex())
}

type fakeStream struct {
	r      io.Reader
	w      bytes.Buffer
	zero   bool
	closed bool
}

func (f *fakeStream) Read(p []byte) (int, error) { return f.r.Read(p) }
func (f *fakeStream) Write(p []byte) (int, error) {
	if f.zero {
		return 0, nil
	}
	return f.w.Write(p)
}
func (f *fakeStream) Close() error { f.closed = true; return nil }

func TestTransportReceive(t *testing.T) {
	var in []byte
	in = append(in, frame(HeartBeat{}.Sysex()...)...)
	in = append(in, frame(0x01, 0x02)...)
	in = append(in, frame(Change{Property: 0x02, Value: 50}.Sysex()...)...)

	tr := NewTransport("test", &fakeStream{r: bytes.NewReader(in)})

	msg, err := tr.Receive()
	require.NoError(t, err)
	assert.Equal(t, HeartBeat{}, msg)

	_, err = tr.Receive()
	assert.True(t, fault.Is(err, fault.Protocol))

	msg, err = tr.Receive()
	require.NoError(t, err)
	assert.Equal(t, Change{Property: 0x02, Value: 50}, msg)

	_, err = tr.Receive()
	assert.True(t, fault.Is(err, fault.Disconnected))
}

func TestTransportSend(t *testing.T) {
	fs := &fakeStream{r: bytes.NewReader(nil)}
	tr := NewTransport("test", fs)

	require.NoError(t, tr.Send(DumpRequest{}))
	assert.Equal(t, frame(DumpRequest{}.Sysex()...), fs.w.Bytes())

	fs.zero = true
	err := tr.Send(Lamp{On: true})
	assert.True(t, fault.Is(err, fault.Disconnected))

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.True(t, fs.closed)
}

type pipeStream struct {
	*io.PipeReader
}

func (pipeStream) Write(p []byte) (int, error) { return len(p), nil }

type event struct {
	kind string
	conn Conn
	msg  Message
}

type recordingSink struct {
	mu     sync.Mutex
	events []event
}

func (s *recordingSink) add(e event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) AmpConnected(c Conn) { s.add(event{kind: "connected", conn: c}) }
func (s *recordingSink) AmpDisconnected(c Conn) { s.add(event{kind: "disconnected", conn: c}) }
func (s *recordingSink) AmpMessage(c Conn, m Message) { s.add(event{kind: "message", conn: c, msg: m}) }

func (s *recordingSink) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.events {
		out = append(out, e.kind)
	}
	return out
}

func TestLinkReconnects(t *testing.T) {
	pr, pw := io.Pipe()
	var mu sync.Mutex
	dials := 0
	link := NewLink("/dev/fake")
	link.Retry = 5 * time.Millisecond
	link.Dial = func(device string) (*Transport, error) {
		mu.Lock()
		defer mu.Unlock()
		dials++
		if dials == 2 {
			return NewTransport(device, pipeStream{pr}), nil
		}
		return nil, errors.New("no such device")
	}

	sink := &recordingSink{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- link.Run(ctx, sink) }()

	require.Eventually(t, func() bool { return len(sink.kinds()) == 1 }, time.Second, time.Millisecond)

	_, err := pw.Write(frame(HeartBeat{}.Sysex()...))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(sink.kinds()) == 2 }, time.Second, time.Millisecond)

	pw.Close()
	require.Eventually(t, func() bool { return len(sink.kinds()) == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"connected", "message", "disconnected"}, sink.kinds())

	sink.mu.Lock()
	assert.Same(t, sink.events[0].conn, sink.events[2].conn)
	assert.Equal(t, HeartBeat{}, sink.events[1].msg)
	sink.mu.Unlock()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return dials >= 3
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("link did not stop")
	}
}
