// Package logging hands out per-subsystem slog loggers that share one handler
// configuration and can have their levels adjusted independently.
package logging

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

// Category names the subsystem a log line comes from.
type Category string

const (
	Meta      Category = "meta"
	MIDI      Category = "midi"
	UART      Category = "uart"
	Bluetooth Category = "bluetooth"
	Router    Category = "router"
	Store     Category = "store"
	Console   Category = "console"
	System    Category = "system"
)

var (
	mu      sync.Mutex
	out     io.Writer = os.Stderr
	source  bool
	base    = slog.LevelInfo
	levels  = map[Category]*slog.LevelVar{}
	loggers = map[Category]*slog.Logger{}
)

// Init configures the shared handler and calls slog.SetDefault so the stdlib
// log package also routes through it. Debug lowers every category to Debug
// and adds file:line to each record.
func Init(debug bool) {
	InitWriter(os.Stderr, debug)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, debug bool) {
	mu.Lock()
	defer mu.Unlock()

	out = w
	source = debug
	base = slog.LevelInfo
	if debug {
		base = slog.LevelDebug
	}
	for _, lv := range levels {
		lv.Set(base)
	}
	loggers = map[Category]*slog.Logger{}

	slog.SetDefault(newLogger(Meta))
}

// Get returns the logger for category, creating it on first use. Every record
// carries a "category" attribute.
func Get(category Category) *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := newLogger(category)
	loggers[category] = l
	return l
}

// SetLevel changes the minimum level of one category at runtime.
func SetLevel(category Category, level slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	levelVar(category).Set(level)
}

func levelVar(category Category) *slog.LevelVar {
	lv, ok := levels[category]
	if !ok {
		lv = new(slog.LevelVar)
		lv.Set(base)
		levels[category] = lv
	}
	return lv
}

func newLogger(category Category) *slog.Logger {
	h := slog.NewTextHandler(out, &slog.HandlerOptions{
		Level:     levelVar(category),
		AddSource: source,
	})
	return slog.New(h).With("category", string(category))
}
