package uart

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"go.bug.st/serial"

	"github.com/chase3718/thr-comm/internal/fault"
	"github.com/chase3718/thr-comm/internal/logging"
)

const (
	DefaultDevice = "/dev/ttyS0"
	DefaultBaud   = 115200
)

// Command is a request sent to the board. Every command is answered by an
// "$ok" line.
type Command string

const (
	CmdFirmware  Command = "$fwv"
	CmdStatus    Command = "$sta"
	CmdHeartbeat Command = "$hbt"
	CmdShutdown  Command = "$off"
)

// MaxOutstanding bounds the Queue. Commands beyond it were never answered
// and are dropped oldest first.
const MaxOutstanding = 8

// Queue records commands sent but not yet acknowledged. The board answers in
// order, so the oldest entry is the one an acknowledgement belongs to.
type Queue struct {
	mu    sync.Mutex
	items []Command
}

// Push appends c. When the queue already holds MaxOutstanding commands the
// oldest is discarded and returned with ok set.
func (q *Queue) Push(c Command) (dropped Command, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= MaxOutstanding {
		dropped, ok = q.items[0], true
		q.items = q.items[1:]
	}
	q.items = append(q.items, c)
	return dropped, ok
}

// Pop removes and returns the oldest outstanding command.
func (q *Queue) Pop() (Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", false
	}
	c := q.items[0]
	q.items = q.items[1:]
	return c, true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Transport is the open line to the board.
type Transport struct {
	rw  io.ReadWriteCloser
	r   *bufio.Reader
	q   Queue
	wmu sync.Mutex
	log *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewTransport wraps an open line to the board.
func NewTransport(rw io.ReadWriteCloser) *Transport {
	return &Transport{
		rw:  rw,
		r:   bufio.NewReader(rw),
		log: logging.Get(logging.UART),
	}
}

// OpenPort opens the serial device at baud, 8N1.
func OpenPort(device string, baud int) (*Transport, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(device, mode)
	if err != nil {
		return nil, fault.New(fault.IO, "uart.Open "+device, err)
	}
	logging.Get(logging.UART).Info("uart: port opened", "device", device, "baud", baud)
	return NewTransport(p), nil
}

// Receive blocks for the next record. Blank lines are skipped. A
// fault.Protocol error concerns one line only; a fault.Disconnected error
// means the line is gone.
func (t *Transport) Receive() (Message, error) {
	for {
		line, err := t.r.ReadString('\n')
		if err != nil {
			return nil, fault.New(fault.Disconnected, "uart.Receive", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		t.log.Debug("uart: line received", "line", line)
		return Parse(line, &t.q)
	}
}

// The board commands. Each is queued until the board acknowledges it.
func (t *Transport) RequestFirmware() error { return t.send(CmdFirmware) }
func (t *Transport) RequestStatus() error   { return t.send(CmdStatus) }
func (t *Transport) Heartbeat() error       { return t.send(CmdHeartbeat) }
func (t *Transport) RequestShutdown() error { return t.send(CmdShutdown) }

// Outstanding returns the number of commands awaiting acknowledgement.
func (t *Transport) Outstanding() int { return t.q.Len() }

// send records cmd as outstanding and writes it. The board has no way to
// recover from a lost command, so a failed write is a fault.IO.
func (t *Transport) send(cmd Command) error {
	t.wmu.Lock()
	defer t.wmu.Unlock()

	if dropped, ok := t.q.Push(cmd); ok {
		t.log.Warn("uart: board is not acknowledging, dropped oldest command",
			"dropped", string(dropped), "outstanding", MaxOutstanding)
	}
	if _, err := io.WriteString(t.rw, string(cmd)+"\r\n"); err != nil {
		return fault.New(fault.IO, "uart.Send "+string(cmd), err)
	}
	if cmd != CmdHeartbeat {
		t.log.Debug("uart: command sent", "cmd", string(cmd))
	}
	return nil
}

// Close closes the port once; later calls return the first result.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.log.Info("uart: closing port")
		t.closeErr = t.rw.Close()
	})
	return t.closeErr
}

// Sink receives parsed records from Run.
type Sink interface {
	BoardMessage(Message)
}

// Run reads records until the line fails or ctx is cancelled. Bad lines are
// logged and skipped.
func (t *Transport) Run(ctx context.Context, sink Sink) error {
	stop := context.AfterFunc(ctx, func() { _ = t.Close() })
	defer stop()
	for {
		msg, err := t.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if fault.Is(err, fault.Protocol) {
				t.log.Warn("uart: bad line", "err", err)
				continue
			}
			return err
		}
		sink.BoardMessage(msg)
	}
}
