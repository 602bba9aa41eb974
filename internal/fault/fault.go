// Package fault classifies errors crossing transport boundaries so callers can
// tell a dropped connection from a bad message without inspecting strings.
package fault

import (
	"errors"
	"fmt"
)

// Kind is the category of a failure.
type Kind int

const (
	// Unknown is reported for errors that were never classified.
	Unknown Kind = iota
	// Disconnected means the underlying stream is gone and the handle must be dropped.
	Disconnected
	// Protocol means a single message could not be understood; the stream is still usable.
	Protocol
	// Validation means a request referenced something out of range; nothing was changed.
	Validation
	// IO means a local resource (file, serial line) failed.
	IO
)

func (k Kind) String() string {
	switch k {
	case Disconnected:
		return "disconnected"
	case Protocol:
		return "protocol"
	case Validation:
		return "validation"
	case IO:
		return "io"
	}
	return "unknown"
}

// Error carries a Kind together with the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with kind and op.
func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the Kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
