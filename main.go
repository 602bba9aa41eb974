// Command thr-comm runs on the amp controller box. It bridges the amp's MIDI
// port, the board microcontroller's UART and the phone app's Bluetooth
// serial link.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/godbus/dbus/v5"

	"github.com/chase3718/thr-comm/internal/bluetooth"
	"github.com/chase3718/thr-comm/internal/config"
	"github.com/chase3718/thr-comm/internal/console"
	"github.com/chase3718/thr-comm/internal/logging"
	"github.com/chase3718/thr-comm/internal/midi"
	"github.com/chase3718/thr-comm/internal/router"
	"github.com/chase3718/thr-comm/internal/store"
	"github.com/chase3718/thr-comm/internal/system"
	"github.com/chase3718/thr-comm/internal/uart"
)

func main() {
	cfg, err := config.Parse(os.Args[1:], os.Stderr)
	if errors.Is(err, config.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "thr-comm:", err)
		os.Exit(2)
	}

	logging.Init(cfg.Debug)
	log := logging.Get(logging.Meta)
	log.Info("thr-comm starting",
		"midi", cfg.MIDIDevice,
		"uart", cfg.UARTDevice,
		"baud", cfg.Baud,
		"no_uart", cfg.NoUART,
		"heartbeat", !cfg.NoHeartbeat,
		"heartbeat_interval", cfg.HeartbeatInterval,
		"presets", cfg.PresetsPath,
		"console", cfg.Console,
		"bt_channel", cfg.BTChannel,
		"debug", cfg.Debug,
	)

	if err := run(cfg, log); err != nil {
		log.Error("thr-comm stopped", "err", err)
		os.Exit(1)
	}
	log.Info("thr-comm stopped")
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	presets, err := store.Open(cfg.PresetsPath)
	if err != nil {
		return err
	}

	var (
		board     router.Board
		boardLink *uart.Transport
	)
	if !cfg.NoUART {
		boardLink, err = uart.OpenPort(cfg.UARTDevice, cfg.Baud)
		if err != nil {
			return err
		}
		defer boardLink.Close()
		board = boardLink
	}

	var (
		power    router.Power = system.NoopPower{}
		radio    router.Radio
		acceptor bluetooth.Acceptor
	)
	bus, err := dbus.ConnectSystemBus()
	if err != nil {
		log.Warn("no system bus, running without bluetooth and power off", "err", err)
	} else {
		defer bus.Close()
		power = system.NewLogind(bus)
		if adapter, profile := setupBluetooth(bus, cfg, log); profile != nil {
			defer profile.Unregister()
			radio, acceptor = adapter, profile
		}
	}

	opts := router.Options{
		LongPress:         cfg.LongPress,
		PairingWindow:     cfg.PairingWindow,
		HeartbeatInterval: cfg.HeartbeatInterval,
		QueueSize:         router.DefaultOptions().QueueSize,
	}
	if cfg.NoHeartbeat {
		opts.HeartbeatInterval = 0
	}

	var (
		r       *router.Router
		con     *console.Console
		printer router.Printer
	)
	if cfg.Console {
		con = console.New(ctx, func(c router.Command) { r.Submit(c) }, nil, nil)
		printer = con
	}
	r = router.New(opts, presets, board, radio, power, printer)

	var wg sync.WaitGroup
	errc := make(chan error, 5)
	spawn := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := fn()
			if err != nil && !errors.Is(err, context.Canceled) {
				errc <- fmt.Errorf("%s: %w", name, err)
			}
			cancel()
		}()
	}

	spawn("router", func() error { return r.Run(ctx) })
	spawn("midi", func() error { return midi.NewLink(cfg.MIDIDevice).Run(ctx, r) })
	if boardLink != nil {
		spawn("uart", func() error { return boardLink.Run(ctx, r) })
	}
	if acceptor != nil {
		spawn("bluetooth", func() error { return bluetooth.NewServer(acceptor).Run(ctx, r) })
	}
	if con != nil {
		spawn("console", con.Run)
	}

	<-ctx.Done()
	log.Info("shutting down")
	wg.Wait()
	select {
	case err := <-errc:
		return err
	default:
		return nil
	}
}

// setupBluetooth powers the adapter, installs the pairing agent and
// registers the serial port profile. A nil profile means bluetooth is not
// available; the failure has been logged.
func setupBluetooth(bus *dbus.Conn, cfg *config.Config, log *slog.Logger) (*bluetooth.Adapter, *bluetooth.Profile) {
	adapter := bluetooth.NewAdapter(bus, dbus.ObjectPath(cfg.BTAdapter))
	if err := adapter.PowerOn(); err != nil {
		log.Warn("bluetooth adapter not powered", "adapter", cfg.BTAdapter, "err", err)
	}
	if _, err := bluetooth.RegisterAgent(bus, adapter); err != nil {
		log.Warn("pairing agent not registered", "err", err)
	}
	profile, err := bluetooth.RegisterProfile(bus, uint16(cfg.BTChannel))
	if err != nil {
		log.Error("bluetooth unavailable", "err", err)
		return nil, nil
	}
	return adapter, profile
}
