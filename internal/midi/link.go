package midi

import (
	"context"
	"log/slog"
	"time"

	"github.com/chase3718/thr-comm/internal/fault"
	"github.com/chase3718/thr-comm/internal/logging"
)

// DefaultRetryInterval is how long Link waits between connection attempts.
const DefaultRetryInterval = time.Second

// Sink receives everything a Link observes. Calls come from the Link's
// goroutine and must not block for long.
type Sink interface {
	AmpConnected(Conn)
	AmpDisconnected(Conn)
	AmpMessage(Conn, Message)
}

// Link keeps a connection to the amp alive: it dials, reads until the
// connection drops, reports the loss and dials again.
type Link struct {
	Device string
	Retry  time.Duration

	// Dial defaults to the package Dial; tests replace it.
	Dial func(device string) (*Transport, error)

	log *slog.Logger
}

// NewLink returns a link to device using the default retry interval.
func NewLink(device string) *Link {
	return &Link{
		Device: device,
		Retry:  DefaultRetryInterval,
		Dial:   Dial,
		log:    logging.Get(logging.MIDI).With("device", device),
	}
}

// Run blocks until ctx is cancelled.
func (l *Link) Run(ctx context.Context, sink Sink) error {
	failures := 0
	for {
		t, err := l.Dial(l.Device)
		if err != nil {
			if failures == 0 {
				l.log.Warn("midi: amp not reachable, retrying", "err", err, "every", l.Retry)
			} else {
				l.log.Debug("midi: connect failed", "attempt", failures+1, "err", err)
			}
			failures++
			if !sleep(ctx, l.Retry) {
				return ctx.Err()
			}
			continue
		}
		failures = 0

		l.log.Info("midi: amp connected")
		sink.AmpConnected(t)

		stop := context.AfterFunc(ctx, func() { _ = t.Close() })
		l.receive(t, sink)
		stop()
		_ = t.Close()

		l.log.Warn("midi: amp disconnected")
		sink.AmpDisconnected(t)

		if !sleep(ctx, l.Retry) {
			return ctx.Err()
		}
	}
}

func (l *Link) receive(t *Transport, sink Sink) {
	for {
		msg, err := t.Receive()
		if err != nil {
			if fault.Is(err, fault.Protocol) {
				l.log.Warn("midi: bad message", "err", err)
				continue
			}
			l.log.Debug("midi: receive loop ended", "err", err)
			return
		}
		sink.AmpMessage(t, msg)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
