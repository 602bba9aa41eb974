package router

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chase3718/thr-comm/internal/bluetooth"
	"github.com/chase3718/thr-comm/internal/fault"
	"github.com/chase3718/thr-comm/internal/midi"
	"github.com/chase3718/thr-comm/internal/preset"
	"github.com/chase3718/thr-comm/internal/store"
	"github.com/chase3718/thr-comm/internal/uart"
)

const wait = 2 * time.Second

type recorder[T any] struct {
	mu   sync.Mutex
	msgs []T
	err  error
}

func (r *recorder[T]) record(m T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, m)
	return nil
}

func (r *recorder[T]) all() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.msgs...)
}

func (r *recorder[T]) contains(m T) bool {
	for _, got := range r.all() {
		if assert.ObjectsAreEqual(m, got) {
			return true
		}
	}
	return false
}

func (r *recorder[T]) fail(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

type fakeAmp struct{ recorder[midi.Message] }

func (a *fakeAmp) Send(m midi.Message) error { return a.record(m) }
func (a *fakeAmp) Close() error              { return nil }

type fakePhone struct{ recorder[bluetooth.Message] }

func (p *fakePhone) Send(m bluetooth.Message) error { return p.record(m) }
func (p *fakePhone) Close() error                   { return nil }

type fakeBoard struct{ recorder[uart.Command] }

func (b *fakeBoard) RequestFirmware() error { return b.record(uart.CmdFirmware) }
func (b *fakeBoard) RequestStatus() error   { return b.record(uart.CmdStatus) }
func (b *fakeBoard) Heartbeat() error       { return b.record(uart.CmdHeartbeat) }
func (b *fakeBoard) RequestShutdown() error { return b.record(uart.CmdShutdown) }

type fakeRadio struct{ recorder[time.Duration] }

func (r *fakeRadio) OpenPairingWindow(d time.Duration) error { return r.record(d) }

type fakePower struct{ recorder[string] }

func (p *fakePower) PowerOff() error { return p.record("off") }

type fakePrinter struct{ recorder[string] }

func (p *fakePrinter) Printf(format string, args ...any) { p.record(fmt.Sprintf(format, args...)) }

type harness struct {
	r       *Router
	store   *store.Store
	path    string
	amp     *fakeAmp
	phone   *fakePhone
	board   *fakeBoard
	radio   *fakeRadio
	power   *fakePower
	printer *fakePrinter
	errc    chan error
	cancel  context.CancelFunc
}

func named(name string) preset.Preset {
	return preset.Preset{
		Name:      name,
		MainPanel: preset.MainPanel{Amp: preset.Crunch, Gain: 40, Master: 70},
		Effect:    preset.Phaser{Speed: 30},
	}
}

func testOptions() Options {
	return Options{LongPress: time.Hour, PairingWindow: 90 * time.Second, QueueSize: 8}
}

func newHarness(t *testing.T, presets int, opts Options) *harness {
	t.Helper()
	path := filepath.Join(t.TempDir(), "presets.json")
	s, err := store.Open(path)
	require.NoError(t, err)
	for i := range presets {
		require.NoError(t, s.Add(named(fmt.Sprintf("preset %d", i))))
	}

	h := &harness{
		store:   s,
		path:    path,
		amp:     &fakeAmp{},
		phone:   &fakePhone{},
		board:   &fakeBoard{},
		radio:   &fakeRadio{},
		power:   &fakePower{},
		printer: &fakePrinter{},
		errc:    make(chan error, 1),
	}
	h.r = New(opts, s, h.board, h.radio, h.power, h.printer)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.errc <- h.r.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-h.errc
	})
	return h
}

// connect attaches the fake amp and phone and waits until the router has
// seen both.
func (h *harness) connect(t *testing.T) {
	t.Helper()
	h.r.AmpConnected(h.amp)
	require.Eventually(t, func() bool { return h.amp.contains(midi.DumpRequest{}) }, wait, time.Millisecond)

	h.r.PhoneConnected(h.phone)
	h.r.PhoneMessage(h.phone, bluetooth.ConnectedRq{})
	require.Eventually(t, func() bool {
		return h.phone.contains(bluetooth.Connected{Connected: true})
	}, wait, time.Millisecond)
}

func (h *harness) press(id int) {
	h.r.BoardMessage(uart.Button{ID: id, Pressed: true})
}

func (h *harness) release(id int) {
	h.r.BoardMessage(uart.Button{ID: id, Pressed: false, PressedTime: 120})
}

func dumpOf(t *testing.T, s *store.Store, i int) midi.Dump {
	t.Helper()
	p, err := s.Get(i)
	require.NoError(t, err)
	return midi.Dump{Preset: p}
}

func TestPreviousFromNoPresetSelectsLast(t *testing.T) {
	h := newHarness(t, 3, testOptions())
	h.connect(t)
	before, err := os.ReadFile(h.path)
	require.NoError(t, err)

	h.press(ButtonPrevious)
	h.release(ButtonPrevious)

	want := dumpOf(t, h.store, 2)
	require.Eventually(t, func() bool { return h.amp.contains(want) }, wait, time.Millisecond)
	require.Eventually(t, func() bool {
		return h.phone.contains(bluetooth.PresetSelect{Index: 2})
	}, wait, time.Millisecond)

	after, err := os.ReadFile(h.path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestNextWrapsAround(t *testing.T) {
	h := newHarness(t, 3, testOptions())
	h.connect(t)

	for range 4 {
		h.press(ButtonNext)
		h.release(ButtonNext)
	}
	require.Eventually(t, func() bool {
		var got []int
		for _, m := range h.phone.all() {
			if sel, ok := m.(bluetooth.PresetSelect); ok {
				got = append(got, sel.Index)
			}
		}
		return assert.ObjectsAreEqual([]int{0, 1, 2, 0}, got)
	}, wait, time.Millisecond)
}

func TestButtonsWithoutPresets(t *testing.T) {
	h := newHarness(t, 0, testOptions())
	h.connect(t)

	h.press(ButtonNext)
	h.release(ButtonNext)
	h.r.PhoneMessage(h.phone, bluetooth.CurrentPresetIndexRq{})
	require.Eventually(t, func() bool {
		return h.phone.contains(bluetooth.PresetSelect{Index: NoPreset})
	}, wait, time.Millisecond)

	for _, m := range h.amp.all() {
		_, isDump := m.(midi.Dump)
		assert.False(t, isDump)
	}
}

func TestLongPressNextOpensPairingWindow(t *testing.T) {
	opts := testOptions()
	opts.LongPress = 20 * time.Millisecond
	h := newHarness(t, 2, opts)
	h.connect(t)

	h.press(ButtonNext)
	require.Eventually(t, func() bool {
		return h.radio.contains(90 * time.Second)
	}, wait, time.Millisecond)
	h.release(ButtonNext)

	// The press itself still advanced the preset.
	assert.True(t, h.amp.contains(dumpOf(t, h.store, 0)))
	assert.Len(t, h.radio.all(), 1)
}

func TestLongPressPreviousTogglesLamp(t *testing.T) {
	opts := testOptions()
	opts.LongPress = 20 * time.Millisecond
	h := newHarness(t, 1, opts)
	h.connect(t)

	h.press(ButtonPrevious)
	require.Eventually(t, func() bool { return h.amp.contains(midi.Lamp{On: true}) }, wait, time.Millisecond)
	h.release(ButtonPrevious)
	assert.Empty(t, h.radio.all())
}

func TestShortPressDoesNotTriggerLongPress(t *testing.T) {
	opts := testOptions()
	opts.LongPress = 100 * time.Millisecond
	h := newHarness(t, 2, opts)
	h.connect(t)

	h.press(ButtonNext)
	h.release(ButtonNext)
	require.Eventually(t, func() bool {
		return h.phone.contains(bluetooth.PresetSelect{Index: 0})
	}, wait, time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, h.radio.all())
}

func TestAddPresetPersists(t *testing.T) {
	h := newHarness(t, 2, testOptions())
	h.connect(t)

	h.r.PhoneMessage(h.phone, bluetooth.AddPresetRq{Preset: named("new")})
	var resp bluetooth.PresetsResponse
	require.Eventually(t, func() bool {
		for _, m := range h.phone.all() {
			if r, ok := m.(bluetooth.PresetsResponse); ok {
				resp = r
				return true
			}
		}
		return false
	}, wait, time.Millisecond)
	require.Len(t, resp.Presets, 3)

	onDisk, err := store.LoadFile(h.path)
	require.NoError(t, err)
	assert.Equal(t, resp.Presets, onDisk)
	assert.Equal(t, "new", onDisk[2].Name)
}

func TestInvalidPresetIsRejected(t *testing.T) {
	h := newHarness(t, 1, testOptions())
	h.connect(t)

	bad := named("loud")
	bad.MainPanel.Gain = 200
	h.r.PhoneMessage(h.phone, bluetooth.AddPresetRq{Preset: bad})
	h.r.PhoneMessage(h.phone, bluetooth.PresetsRq{})
	require.Eventually(t, func() bool {
		return h.phone.contains(bluetooth.PresetsResponse{Presets: h.store.All()})
	}, wait, time.Millisecond)
	assert.Equal(t, 1, h.store.Len())
}

func TestRemovePresetAdjustsIndex(t *testing.T) {
	h := newHarness(t, 3, testOptions())
	h.connect(t)

	h.r.PhoneMessage(h.phone, bluetooth.PresetSelect{Index: 2})
	require.Eventually(t, func() bool { return h.amp.contains(dumpOf(t, h.store, 2)) }, wait, time.Millisecond)

	h.r.PhoneMessage(h.phone, bluetooth.RemovePresetRq{Index: 0})
	require.Eventually(t, func() bool {
		return h.phone.contains(bluetooth.PresetSelect{Index: 1})
	}, wait, time.Millisecond)

	h.r.PhoneMessage(h.phone, bluetooth.RemovePresetRq{Index: 1})
	require.Eventually(t, func() bool {
		return h.phone.contains(bluetooth.PresetSelect{Index: NoPreset})
	}, wait, time.Millisecond)
	assert.Equal(t, 1, h.store.Len())
}

func TestSetPresetsReplacesListAndDeselects(t *testing.T) {
	h := newHarness(t, 2, testOptions())
	h.connect(t)
	h.press(ButtonNext)
	require.Eventually(t, func() bool {
		return h.phone.contains(bluetooth.PresetSelect{Index: 0})
	}, wait, time.Millisecond)

	list := []preset.Preset{named("x"), named("y"), named("z")}
	h.r.PhoneMessage(h.phone, bluetooth.SetPresetsRq{Presets: list})
	require.Eventually(t, func() bool {
		return h.phone.contains(bluetooth.PresetsResponse{Presets: list})
	}, wait, time.Millisecond)
	assert.True(t, h.phone.contains(bluetooth.PresetSelect{Index: NoPreset}))

	onDisk, err := store.LoadFile(h.path)
	require.NoError(t, err)
	assert.Equal(t, list, onDisk)
}

func TestAmpReconnectNotifiesPhone(t *testing.T) {
	h := newHarness(t, 1, testOptions())
	h.connect(t)

	h.r.AmpDisconnected(h.amp)
	require.Eventually(t, func() bool {
		return h.phone.contains(bluetooth.Connected{Connected: false})
	}, wait, time.Millisecond)

	second := &fakeAmp{}
	h.r.AmpConnected(second)
	require.Eventually(t, func() bool { return second.contains(midi.DumpRequest{}) }, wait, time.Millisecond)

	n := len(h.phone.all())
	assert.Equal(t, bluetooth.Connected{Connected: true}, h.phone.all()[n-1])
}

func TestStaleAmpDisconnectIsIgnored(t *testing.T) {
	h := newHarness(t, 1, testOptions())
	h.connect(t)

	second := &fakeAmp{}
	h.r.AmpConnected(second)
	h.r.AmpDisconnected(h.amp)
	dump := dumpOf(t, h.store, 0)
	h.r.AmpMessage(second, dump)
	require.Eventually(t, func() bool { return h.phone.contains(dump) }, wait, time.Millisecond)

	assert.False(t, h.phone.contains(bluetooth.Connected{Connected: false}))
}

func TestAmpChangeResetsIndex(t *testing.T) {
	h := newHarness(t, 2, testOptions())
	h.connect(t)

	h.r.PhoneMessage(h.phone, bluetooth.PresetSelect{Index: 1})
	require.Eventually(t, func() bool { return h.amp.contains(dumpOf(t, h.store, 1)) }, wait, time.Millisecond)

	change := midi.Change{Property: preset.GainProp.ID, Value: 64}
	h.r.AmpMessage(h.amp, change)
	require.Eventually(t, func() bool {
		return h.phone.contains(bluetooth.PresetSelect{Index: NoPreset})
	}, wait, time.Millisecond)
	assert.True(t, h.phone.contains(change))
	assert.False(t, h.phone.contains(midi.HeartBeat{}))
}

func TestPhoneEditsGoToAmp(t *testing.T) {
	h := newHarness(t, 1, testOptions())
	h.connect(t)

	h.r.PhoneMessage(h.phone, midi.Lamp{On: true})
	h.r.PhoneMessage(h.phone, midi.WideStereo{On: false})
	h.r.PhoneMessage(h.phone, midi.Change{Property: 0x02, Value: 10})
	require.Eventually(t, func() bool {
		return h.amp.contains(midi.Change{Property: 0x02, Value: 10})
	}, wait, time.Millisecond)
	assert.True(t, h.amp.contains(midi.Lamp{On: true}))
	assert.True(t, h.amp.contains(midi.WideStereo{On: false}))
}

func TestCurrentPresetRequest(t *testing.T) {
	h := newHarness(t, 2, testOptions())
	h.connect(t)

	h.r.PhoneMessage(h.phone, bluetooth.CurrentPresetRq{})
	require.Eventually(t, func() bool {
		n := 0
		for _, m := range h.amp.all() {
			if m == (midi.DumpRequest{}) {
				n++
			}
		}
		return n == 2
	}, wait, time.Millisecond)

	h.r.PhoneMessage(h.phone, bluetooth.PresetSelect{Index: 1})
	h.r.PhoneMessage(h.phone, bluetooth.CurrentPresetRq{})
	want := dumpOf(t, h.store, 1)
	require.Eventually(t, func() bool { return h.phone.contains(want) }, wait, time.Millisecond)
}

func TestConsoleReplyGoesToPrinter(t *testing.T) {
	h := newHarness(t, 0, testOptions())
	h.connect(t)

	h.r.Submit(CmdVersion)
	require.Eventually(t, func() bool { return h.board.contains(uart.CmdFirmware) }, wait, time.Millisecond)
	h.r.BoardMessage(uart.FirmwareVersion{Major: 1, Minor: 4, Patch: 2})
	require.Eventually(t, func() bool { return h.printer.contains("firmware 1.4.2") }, wait, time.Millisecond)
	assert.False(t, h.phone.contains(uart.FirmwareVersion{Major: 1, Minor: 4, Patch: 2}))

	// Without a pending console request the answer goes to the phone.
	h.r.PhoneMessage(h.phone, bluetooth.FwVersionRq{})
	require.Eventually(t, func() bool { return len(h.board.all()) == 2 }, wait, time.Millisecond)
	h.r.BoardMessage(uart.FirmwareVersion{Major: 1, Minor: 4, Patch: 3})
	require.Eventually(t, func() bool {
		return h.phone.contains(uart.FirmwareVersion{Major: 1, Minor: 4, Patch: 3})
	}, wait, time.Millisecond)
}

func TestActiveIndexCommand(t *testing.T) {
	h := newHarness(t, 2, testOptions())
	h.r.Submit(CmdActiveIndex)
	require.Eventually(t, func() bool {
		return h.printer.contains("active preset index: -1 of 2")
	}, wait, time.Millisecond)
}

func TestBoardShutdownPowersOff(t *testing.T) {
	h := newHarness(t, 0, testOptions())
	h.connect(t)

	h.r.BoardMessage(uart.Shutdown{OK: true})
	require.Eventually(t, func() bool { return len(h.power.all()) == 1 }, wait, time.Millisecond)
	assert.True(t, h.phone.contains(uart.Shutdown{OK: true}))
}

func TestPhoneShutdownRequest(t *testing.T) {
	h := newHarness(t, 0, testOptions())
	h.connect(t)

	h.r.PhoneMessage(h.phone, uart.Shutdown{})
	require.Eventually(t, func() bool { return h.board.contains(uart.CmdShutdown) }, wait, time.Millisecond)
}

func TestBoardWriteFailureStopsRouter(t *testing.T) {
	h := newHarness(t, 0, testOptions())
	h.board.fail(fault.New(fault.IO, "uart.send", os.ErrClosed))

	h.r.Submit(CmdStatus)
	select {
	case err := <-h.errc:
		assert.True(t, fault.Is(err, fault.IO))
		h.errc <- err
	case <-time.After(wait):
		t.Fatal("router kept running")
	}
}

func TestHeartbeats(t *testing.T) {
	opts := testOptions()
	opts.HeartbeatInterval = 10 * time.Millisecond
	h := newHarness(t, 0, opts)
	require.Eventually(t, func() bool { return len(h.board.all()) >= 3 }, wait, time.Millisecond)
	for _, c := range h.board.all() {
		assert.Equal(t, uart.CmdHeartbeat, c)
	}
}

func TestWithoutBoard(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "presets.json"))
	require.NoError(t, err)
	printer := &fakePrinter{}
	r := New(testOptions(), s, nil, nil, nil, printer)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()

	r.Submit(CmdStatus)
	require.Eventually(t, func() bool { return printer.contains("board is disabled") }, wait, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}
