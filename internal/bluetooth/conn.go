package bluetooth

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/chase3718/thr-comm/internal/fault"
	"github.com/chase3718/thr-comm/internal/logging"
)

const readChunk = 1024

// LineSplitter reassembles newline-terminated lines from arbitrary chunks.
type LineSplitter struct {
	partial []byte
}

// Feed appends chunk and returns every line completed by it, without the
// newline. Whatever follows the last newline is kept for the next call.
func (s *LineSplitter) Feed(chunk []byte) [][]byte {
	s.partial = append(s.partial, chunk...)
	last := bytes.LastIndexByte(s.partial, '\n')
	if last < 0 {
		return nil
	}
	var lines [][]byte
	for _, l := range bytes.Split(s.partial[:last], []byte{'\n'}) {
		if l = bytes.TrimSpace(l); len(l) > 0 {
			lines = append(lines, bytes.Clone(l))
		}
	}
	s.partial = append(s.partial[:0], s.partial[last+1:]...)
	return lines
}

// Pending returns the bytes of the unfinished line.
func (s *LineSplitter) Pending() []byte { return s.partial }

// Conn is one phone connection.
type Conn struct {
	id  string
	rw  io.ReadWriteCloser
	log *slog.Logger

	split LineSplitter
	lines [][]byte

	wmu       sync.Mutex
	closeOnce sync.Once
}

// NewConn wraps an accepted phone socket and tags it with a fresh id for logging.
func NewConn(rw io.ReadWriteCloser) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:  id,
		rw:  rw,
		log: logging.Get(logging.Bluetooth).With("session", id),
	}
}

// ID is a random identifier used to tell connections apart in logs.
func (c *Conn) ID() string { return c.id }

// Receive returns the next message. A fault.Protocol error concerns one line
// and the connection stays usable; fault.Disconnected means it is closed.
func (c *Conn) Receive() (Message, error) {
	buf := make([]byte, readChunk)
	for len(c.lines) == 0 {
		n, err := c.rw.Read(buf)
		if n > 0 {
			c.lines = c.split.Feed(buf[:n])
		}
		if err != nil && len(c.lines) == 0 {
			return nil, fault.New(fault.Disconnected, "bluetooth.Receive", err)
		}
	}
	line := c.lines[0]
	c.lines = c.lines[1:]
	c.log.Debug("bluetooth: line received", "line", string(line))
	return Decode(line)
}

// Send writes m followed by a newline. Any write failure closes the
// connection from the caller's point of view.
func (c *Conn) Send(m Message) error {
	data, err := Encode(m)
	if err != nil {
		return fault.New(fault.Protocol, "bluetooth.Send", err)
	}
	data = append(data, '\n')

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.rw.Write(data); err != nil {
		return fault.New(fault.Disconnected, "bluetooth.Send", err)
	}
	c.log.Debug("bluetooth: sent", "line", string(data[:len(data)-1]))
	return nil
}

func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.rw.Close() })
	return err
}

// Sender is the half of a phone connection the router writes to.
type Sender interface {
	Send(Message) error
	Close() error
}

// Sink receives connection events and messages from Server.
type Sink interface {
	PhoneConnected(Sender)
	PhoneDisconnected(Sender)
	PhoneMessage(Sender, Message)
}

// Acceptor hands out new phone sockets. Profile implements it.
type Acceptor interface {
	Accept(ctx context.Context) (io.ReadWriteCloser, error)
}

// Server serves one phone at a time. A new connection replaces the current
// one, which is usually stale by the time the phone reconnects.
type Server struct {
	acceptor Acceptor
	log      *slog.Logger
}

// NewServer serves the connections a hands out.
func NewServer(a Acceptor) *Server {
	return &Server{acceptor: a, log: logging.Get(logging.Bluetooth)}
}

// Run accepts connections until ctx is cancelled.
func (s *Server) Run(ctx context.Context, sink Sink) error {
	var (
		wg      sync.WaitGroup
		current *Conn
	)
	defer func() {
		if current != nil {
			_ = current.Close()
		}
		wg.Wait()
	}()

	for {
		rw, err := s.acceptor.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if current != nil {
			s.log.Info("bluetooth: replacing connection", "old", current.ID())
			_ = current.Close()
		}
		current = NewConn(rw)
		s.log.Info("bluetooth: phone connected", "session", current.ID())

		wg.Add(1)
		go func(c *Conn) {
			defer wg.Done()
			s.serve(c, sink)
		}(current)
	}
}

func (s *Server) serve(c *Conn, sink Sink) {
	sink.PhoneConnected(c)
	defer func() {
		_ = c.Close()
		c.log.Info("bluetooth: phone disconnected")
		sink.PhoneDisconnected(c)
	}()
	for {
		msg, err := c.Receive()
		if err != nil {
			if fault.Is(err, fault.Protocol) {
				c.log.Warn("bluetooth: bad message", "err", err)
				continue
			}
			return
		}
		sink.PhoneMessage(c, msg)
	}
}
