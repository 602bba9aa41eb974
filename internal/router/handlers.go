package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chase3718/thr-comm/internal/bluetooth"
	"github.com/chase3718/thr-comm/internal/fault"
	"github.com/chase3718/thr-comm/internal/midi"
	"github.com/chase3718/thr-comm/internal/uart"
)

var errNoBoard = errors.New("board is disabled")

func (r *Router) handleAmp(ev ampEvent) {
	switch ev.kind {
	case connected:
		r.amp = ev.conn
		r.log.Info("router: amp connected")
		r.toPhone(bluetooth.Connected{Connected: true})
		r.toAmp(midi.DumpRequest{})
	case disconnected:
		if ev.conn != r.amp {
			r.log.Debug("router: ignoring stale amp disconnect")
			return
		}
		r.amp = nil
		r.log.Warn("router: amp disconnected")
		r.toPhone(bluetooth.Connected{Connected: false})
	case received:
		if ev.conn != r.amp {
			return
		}
		switch m := ev.msg.(type) {
		case midi.HeartBeat:
			r.log.Debug("router: amp heartbeat")
		case midi.Change:
			r.toPhone(m)
			r.selectIndex(NoPreset)
		case midi.Dump:
			r.log.Info("router: amp sent its settings", "name", m.Name)
			r.toPhone(m)
		default:
			r.log.Debug("router: unhandled amp message", "type", typeName(m))
		}
	}
}

func (r *Router) handlePhone(ev phoneEvent) error {
	switch ev.kind {
	case connected:
		if r.phone != nil && r.phone != ev.sender {
			r.phone.Close()
		}
		r.phone = ev.sender
		r.log.Info("router: phone connected")
		return nil
	case disconnected:
		if ev.sender == r.phone {
			r.phone = nil
			r.log.Info("router: phone disconnected")
		}
		return nil
	}
	if ev.sender != r.phone {
		return nil
	}

	log := r.log.With("type", typeName(ev.msg))
	log.Debug("router: phone request")
	switch m := ev.msg.(type) {
	case bluetooth.FwVersionRq:
		return r.boardCall(Board.RequestFirmware)
	case bluetooth.HwStatusRq:
		return r.boardCall(Board.RequestStatus)
	case uart.Shutdown:
		return r.boardCall(Board.RequestShutdown)

	case bluetooth.PresetsRq:
		r.sendPresets()
	case bluetooth.CurrentPresetIndexRq:
		r.toPhone(bluetooth.PresetSelect{Index: r.current})
	case bluetooth.ConnectedRq:
		r.toPhone(bluetooth.Connected{Connected: r.amp != nil})
	case bluetooth.CurrentPresetRq:
		if p, err := r.store.Get(r.current); err == nil {
			r.toPhone(midi.Dump{Preset: p})
		} else if r.amp != nil {
			// The amp answers with a dump, which is forwarded as usual.
			r.toAmp(midi.DumpRequest{})
		} else {
			log.Warn("router: no current preset and no amp")
		}

	case bluetooth.AddPresetRq:
		if err := m.Preset.Validate(); err != nil {
			log.Warn("router: rejected preset", "err", err)
			return nil
		}
		r.storeErr(r.store.Add(m.Preset))
		r.sendPresets()
	case bluetooth.RemovePresetRq:
		if err := r.store.RemoveAt(m.Index); err != nil {
			if fault.Is(err, fault.Validation) {
				log.Warn("router: rejected removal", "err", err)
				return nil
			}
			r.storeErr(err)
		}
		switch {
		case m.Index == r.current:
			r.selectIndex(NoPreset)
		case m.Index < r.current:
			r.selectIndex(r.current - 1)
		}
		r.sendPresets()
	case bluetooth.SetPresetsRq:
		for i := range m.Presets {
			if err := m.Presets[i].Validate(); err != nil {
				log.Warn("router: rejected preset list", "index", i, "err", err)
				return nil
			}
		}
		r.storeErr(r.store.ReplaceAll(m.Presets))
		r.selectIndex(NoPreset)
		r.sendPresets()

	case bluetooth.PresetSelect:
		switch {
		case m.Index == NoPreset:
			r.current = NoPreset
		case m.Index >= 0 && m.Index < r.store.Len():
			p, _ := r.store.Get(m.Index)
			r.toAmp(midi.Dump{Preset: p})
			r.current = m.Index
		default:
			log.Warn("router: preset index out of range", "index", m.Index, "count", r.store.Len())
		}

	case midi.Lamp:
		r.lampOn = m.On
		r.toAmp(m)
	case midi.WideStereo:
		r.toAmp(m)
	case midi.Dump:
		if err := m.Validate(); err != nil {
			log.Warn("router: rejected dump", "err", err)
			return nil
		}
		r.toAmp(m)
		r.current = NoPreset
	case midi.Change:
		r.toAmp(m)
		r.current = NoPreset

	default:
		log.Warn("router: unexpected message from phone")
	}
	return nil
}

func (r *Router) handleBoard(ctx context.Context, m uart.Message) error {
	switch m := m.(type) {
	case uart.Button:
		r.handleButton(ctx, m)
	case uart.FirmwareVersion:
		r.reply(m, "firmware %s", m)
	case uart.Status:
		r.reply(m, "uptime %ds, battery %d%% (%s), %d mA", m.Uptime, m.Battery, m.Charging, m.Current)
	case uart.Shutdown:
		r.log.Warn("router: board is shutting down", "ok", m.OK)
		r.toPhone(m)
		if r.power != nil {
			if err := r.power.PowerOff(); err != nil {
				r.log.Error("router: power off failed", "err", err)
			}
		}
	case uart.HeartbeatAck:
		r.log.Debug("router: heartbeat acknowledged")
	}
	return nil
}

// reply routes a board answer to the console when the console asked for it,
// and to the phone otherwise.
func (r *Router) reply(m bluetooth.Message, format string, args ...any) {
	if r.cliPending {
		r.cliPending = false
		r.print(format, args...)
		return
	}
	r.toPhone(m)
}

func (r *Router) handleCommand(c Command) error {
	r.log.Debug("router: console command", "cmd", c)
	switch c {
	case CmdStatus:
		if r.board == nil {
			r.print("%v", errNoBoard)
			return nil
		}
		r.cliPending = true
		return r.boardCall(Board.RequestStatus)
	case CmdVersion:
		if r.board == nil {
			r.print("%v", errNoBoard)
			return nil
		}
		r.cliPending = true
		return r.boardCall(Board.RequestFirmware)
	case CmdShutdown:
		if r.board == nil {
			r.print("%v", errNoBoard)
			return nil
		}
		return r.boardCall(Board.RequestShutdown)
	case CmdActiveIndex:
		r.print("active preset index: %d of %d", r.current, r.store.Len())
	}
	return nil
}

// Buttons cycle presets on press. Holding one past LongPress also triggers
// its long action: pairing for next, the amp lamp for previous.
func (r *Router) handleButton(ctx context.Context, b uart.Button) {
	if !b.Pressed {
		if p, ok := r.presses[b.ID]; ok {
			p.cancel()
			delete(r.presses, b.ID)
		}
		return
	}

	switch b.ID {
	case ButtonPrevious:
		r.cycle(-1)
	case ButtonNext:
		r.cycle(+1)
	default:
		r.log.Warn("router: unknown button", "id", b.ID)
		return
	}

	if p, ok := r.presses[b.ID]; ok {
		p.cancel()
	}
	r.pressSeq++
	pctx, cancel := context.WithCancel(ctx)
	r.presses[b.ID] = press{seq: r.pressSeq, cancel: cancel}
	go r.armLongPress(pctx, longPress{button: b.ID, seq: r.pressSeq})
}

func (r *Router) armLongPress(ctx context.Context, lp longPress) {
	t := time.NewTimer(r.opts.LongPress)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
		select {
		case r.timerCh <- lp:
		case <-ctx.Done():
		}
	}
}

func (r *Router) handleLongPress(lp longPress) {
	p, ok := r.presses[lp.button]
	if !ok || p.seq != lp.seq {
		return
	}
	delete(r.presses, lp.button)
	p.cancel()

	switch lp.button {
	case ButtonNext:
		if r.radio == nil {
			r.log.Warn("router: bluetooth unavailable, cannot pair")
			return
		}
		r.log.Info("router: opening pairing window", "for", r.opts.PairingWindow)
		if err := r.radio.OpenPairingWindow(r.opts.PairingWindow); err != nil {
			r.log.Error("router: pairing window failed", "err", err)
		}
	case ButtonPrevious:
		r.lampOn = !r.lampOn
		r.toAmp(midi.Lamp{On: r.lampOn})
	}
}

// cycle moves the current index by step with wrap-around, sends the new
// preset to the amp and reports the index to the phone. From NoPreset, next
// lands on the first preset and previous on the last.
func (r *Router) cycle(step int) {
	n := r.store.Len()
	if n == 0 {
		r.log.Info("router: no presets to cycle through")
		return
	}
	var next int
	switch {
	case r.current == NoPreset && step > 0:
		next = 0
	case r.current == NoPreset:
		next = n - 1
	default:
		next = ((r.current+step)%n + n) % n
	}
	p, err := r.store.Get(next)
	if err != nil {
		r.log.Error("router: preset lookup failed", "index", next, "err", err)
		return
	}
	r.log.Info("router: preset selected", "index", next, "name", p.Name)
	r.current = next
	r.toAmp(midi.Dump{Preset: p})
	r.toPhone(bluetooth.PresetSelect{Index: next})
}

// selectIndex updates the current index and tells the phone when it changed.
func (r *Router) selectIndex(i int) {
	if i == r.current {
		return
	}
	r.current = i
	r.toPhone(bluetooth.PresetSelect{Index: i})
}

func (r *Router) sendPresets() {
	r.toPhone(bluetooth.PresetsResponse{Presets: r.store.All()})
}

func (r *Router) storeErr(err error) {
	if err != nil {
		r.log.Error("router: preset list not saved", "err", err)
	}
}

func (r *Router) boardCall(call func(Board) error) error {
	if r.board == nil {
		r.log.Warn("router: board request dropped", "err", errNoBoard)
		return nil
	}
	return call(r.board)
}

func (r *Router) toAmp(m midi.Message) {
	if r.amp == nil {
		r.log.Debug("router: amp not connected, dropping", "type", typeName(m))
		return
	}
	if err := r.amp.Send(m); err != nil {
		r.log.Warn("router: amp send failed", "err", err)
		r.amp.Close()
		r.amp = nil
		r.toPhone(bluetooth.Connected{Connected: false})
	}
}

func (r *Router) toPhone(m bluetooth.Message) {
	if r.phone == nil {
		return
	}
	if err := r.phone.Send(m); err != nil {
		r.log.Warn("router: phone send failed", "err", err)
		r.phone.Close()
		r.phone = nil
	}
}

func (r *Router) print(format string, args ...any) {
	if r.printer == nil {
		r.log.Info("router: console reply", "text", fmt.Sprintf(format, args...))
		return
	}
	r.printer.Printf(format, args...)
}

func typeName(m any) string {
	if kind, err := bluetooth.Kind(m); err == nil {
		return kind
	}
	switch m.(type) {
	case midi.DumpRequest:
		return "DumpRequest"
	}
	return "?"
}
