// Package router is the box's control loop. It owns the current preset
// index, the amp and phone connections and the preset store, and translates
// messages between the amp, the phone and the board. All of that state is
// touched from the Run goroutine only; transports hand events over through
// bounded channels.
package router

import (
	"context"
	"log/slog"
	"time"

	"github.com/chase3718/thr-comm/internal/bluetooth"
	"github.com/chase3718/thr-comm/internal/logging"
	"github.com/chase3718/thr-comm/internal/midi"
	"github.com/chase3718/thr-comm/internal/preset"
	"github.com/chase3718/thr-comm/internal/uart"
)

// Presets is the persisted preset list. *store.Store implements it.
type Presets interface {
	Len() int
	All() []preset.Preset
	Get(index int) (preset.Preset, error)
	Add(p preset.Preset) error
	RemoveAt(index int) error
	ReplaceAll(list []preset.Preset) error
}

// Board is the command side of the board microcontroller. *uart.Transport
// implements it. Every error is treated as fatal.
type Board interface {
	RequestFirmware() error
	RequestStatus() error
	Heartbeat() error
	RequestShutdown() error
}

// Radio controls Bluetooth visibility. *bluetooth.Adapter implements it.
type Radio interface {
	OpenPairingWindow(d time.Duration) error
}

// Power turns the machine off.
type Power interface {
	PowerOff() error
}

// Printer shows replies to console commands.
type Printer interface {
	Printf(format string, args ...any)
}

// Command is a console request.
type Command int

const (
	CmdStatus Command = iota
	CmdVersion
	CmdShutdown
	CmdActiveIndex
)

func (c Command) String() string {
	switch c {
	case CmdStatus:
		return "status"
	case CmdVersion:
		return "version"
	case CmdShutdown:
		return "shutdown"
	case CmdActiveIndex:
		return "activeIndex"
	}
	return "unknown"
}

// Options tunes timing and buffering.
type Options struct {
	// LongPress is how long a button must be held to trigger its long-press
	// action.
	LongPress time.Duration
	// PairingWindow is how long the radio stays discoverable.
	PairingWindow time.Duration
	// HeartbeatInterval is the board heartbeat period; zero disables it.
	HeartbeatInterval time.Duration
	// QueueSize bounds each inbound channel.
	QueueSize int
}

func DefaultOptions() Options {
	return Options{
		LongPress:         2 * time.Second,
		PairingWindow:     2 * time.Minute,
		HeartbeatInterval: 2 * time.Second,
		QueueSize:         32,
	}
}

// Buttons on the board.
const (
	ButtonPrevious = 1
	ButtonNext     = 2
)

// NoPreset is the current index when the amp does not match a saved preset.
const NoPreset = -1

type eventKind int

const (
	connected eventKind = iota
	disconnected
	received
)

type ampEvent struct {
	kind eventKind
	conn midi.Conn
	msg  midi.Message
}

type phoneEvent struct {
	kind   eventKind
	sender bluetooth.Sender
	msg    bluetooth.Message
}

type longPress struct {
	button int
	seq    uint64
}

type press struct {
	seq    uint64
	cancel context.CancelFunc
}

// Router wires the transports together. Create it with New, start Run, then
// hand it to the transports as their sink.
type Router struct {
	opts    Options
	store   Presets
	board   Board
	radio   Radio
	power   Power
	printer Printer
	log     *slog.Logger

	ampCh   chan ampEvent
	phoneCh chan phoneEvent
	boardCh chan uart.Message
	cmdCh   chan Command
	timerCh chan longPress
	done    chan struct{}

	// Owned by Run.
	current    int
	amp        midi.Conn
	phone      bluetooth.Sender
	cliPending bool
	lampOn     bool
	presses    map[int]press
	pressSeq   uint64
}

// New builds a Router. board, radio, power and printer may be nil when the
// corresponding hardware or UI is not available.
func New(opts Options, store Presets, board Board, radio Radio, power Power, printer Printer) *Router {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultOptions().QueueSize
	}
	return &Router{
		opts:    opts,
		store:   store,
		board:   board,
		radio:   radio,
		power:   power,
		printer: printer,
		log:     logging.Get(logging.Router),

		ampCh:   make(chan ampEvent, opts.QueueSize),
		phoneCh: make(chan phoneEvent, opts.QueueSize),
		boardCh: make(chan uart.Message, opts.QueueSize),
		cmdCh:   make(chan Command, opts.QueueSize),
		timerCh: make(chan longPress, 4),
		done:    make(chan struct{}),

		current: NoPreset,
		presses: map[int]press{},
	}
}

// Sink methods. They are called from transport goroutines and block only
// while the corresponding channel is full.

func (r *Router) AmpConnected(c midi.Conn) { r.postAmp(ampEvent{kind: connected, conn: c}) }

func (r *Router) AmpDisconnected(c midi.Conn) { r.postAmp(ampEvent{kind: disconnected, conn: c}) }

func (r *Router) AmpMessage(c midi.Conn, m midi.Message) {
	r.postAmp(ampEvent{kind: received, conn: c, msg: m})
}

func (r *Router) PhoneConnected(s bluetooth.Sender) {
	r.postPhone(phoneEvent{kind: connected, sender: s})
}

func (r *Router) PhoneDisconnected(s bluetooth.Sender) {
	r.postPhone(phoneEvent{kind: disconnected, sender: s})
}

func (r *Router) PhoneMessage(s bluetooth.Sender, m bluetooth.Message) {
	r.postPhone(phoneEvent{kind: received, sender: s, msg: m})
}

func (r *Router) BoardMessage(m uart.Message) {
	select {
	case r.boardCh <- m:
	case <-r.done:
	}
}

// Submit queues a console command.
func (r *Router) Submit(c Command) {
	select {
	case r.cmdCh <- c:
	case <-r.done:
	}
}

func (r *Router) postAmp(ev ampEvent) {
	select {
	case r.ampCh <- ev:
	case <-r.done:
	}
}

func (r *Router) postPhone(ev phoneEvent) {
	select {
	case r.phoneCh <- ev:
	case <-r.done:
	}
}

// Run processes events until ctx is cancelled or the board fails. A board
// failure is returned as is (a fault.IO from the uart package).
func (r *Router) Run(ctx context.Context) error {
	defer close(r.done)
	defer r.cancelPresses()

	var heartbeat <-chan time.Time
	if r.board != nil && r.opts.HeartbeatInterval > 0 {
		t := time.NewTicker(r.opts.HeartbeatInterval)
		defer t.Stop()
		heartbeat = t.C
	}

	r.log.Info("router: running", "presets", r.store.Len())
	for {
		var err error
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-r.ampCh:
			r.handleAmp(ev)
		case ev := <-r.phoneCh:
			err = r.handlePhone(ev)
		case m := <-r.boardCh:
			err = r.handleBoard(ctx, m)
		case c := <-r.cmdCh:
			err = r.handleCommand(c)
		case lp := <-r.timerCh:
			r.handleLongPress(lp)
		case <-heartbeat:
			err = r.board.Heartbeat()
		}
		if err != nil {
			r.log.Error("router: board failure", "err", err)
			return err
		}
	}
}

func (r *Router) cancelPresses() {
	for id, p := range r.presses {
		p.cancel()
		delete(r.presses, id)
	}
}
