// Package orchestrator implements the tick loop of spec.md §4.1: the
// single thread that owns RuntimeState and Keymap, drains input, ticks the
// layered state machine and auxiliary engines in a fixed order, and
// flushes synthetic output to the Output Sink.
package orchestrator

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kidandcat/kanata-go/internal/adapter"
	"github.com/kidandcat/kanata-go/internal/chord"
	"github.com/kidandcat/kanata-go/internal/control"
	"github.com/kidandcat/kanata-go/internal/engine"
	"github.com/kidandcat/kanata-go/internal/keymap"
	"github.com/kidandcat/kanata-go/internal/macromachine"
	"github.com/kidandcat/kanata-go/internal/sequence"
	"github.com/kidandcat/kanata-go/internal/sink"
)

const (
	tickInterval = time.Millisecond
	queueCap     = 128
)

// commandReq pairs one control.Command with the channel its Response goes
// back on; this is the single-slot "command channel" spec.md §5 names
// (buffered to depth 1, so a caller's send never blocks past one slot).
type commandReq struct {
	cmd  control.Command
	resp chan control.Response
}

// Orchestrator owns the engine.Machine and every auxiliary engine for one
// running configuration, plus the adapters feeding it and the sink it
// writes to.
type Orchestrator struct {
	log *logrus.Entry

	adapters []adapter.Adapter
	sink     sink.Sink
	queue    *inputQueue

	km       *keymap.Keymap
	filter   atomic.Pointer[adapter.Filter] // read from pump goroutines, written on reload
	machine  *engine.Machine
	chords   *chord.Recognizer
	sequence *sequence.Engine
	macros   *macromachine.Player

	commands chan commandReq
	reload   chan *keymap.Keymap
	stop     chan struct{}
	done     chan struct{}
}

// New builds an Orchestrator around an initial Keymap; call Run to start
// its tick loop.
func New(log *logrus.Entry, km *keymap.Keymap, adapters []adapter.Adapter, out sink.Sink) *Orchestrator {
	o := &Orchestrator{
		log:      log,
		adapters: adapters,
		sink:     out,
		queue:    newInputQueue(queueCap),
		km:       km,
		machine:  engine.New(km),
		chords:   chord.New(km.Chords),
		sequence: sequence.New(km.Seq, km.Options),
		macros:   macromachine.New(),
		commands: make(chan commandReq, 1),
		reload:   make(chan *keymap.Keymap, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	o.filter.Store(adapter.NewFilter(km.Defsrc, km.Options.ProcessUnmappedKeys))
	return o
}

// Submit enqueues a control command and blocks for its response. Safe to
// call from any goroutine (e.g. the transport thread, spec.md §5).
func (o *Orchestrator) Submit(cmd control.Command) control.Response {
	req := commandReq{cmd: cmd, resp: make(chan control.Response, 1)}
	o.commands <- req
	return <-req.resp
}

// RequestReload queues newKm to be installed at the start of the next
// tick, after draining in-flight macros and releasing orphaned synthetic
// keys (spec.md §4.1 reload sequence, §3 Lifecycle).
func (o *Orchestrator) RequestReload(newKm *keymap.Keymap) error {
	if err := newKm.Validate(); err != nil {
		return fmt.Errorf("orchestrator: reload rejected: %w", err)
	}
	select {
	case o.reload <- newKm:
	default:
		<-o.reload
		o.reload <- newKm
	}
	return nil
}

// Run opens the adapters and starts the tick loop in the background, then
// returns. It returns an error, without starting the loop, if no adapter
// could be opened.
func (o *Orchestrator) Run() error {
	opened := 0
	for _, a := range o.adapters {
		if err := a.Open(); err != nil {
			o.log.WithError(err).Warn("orchestrator: adapter failed to open")
			continue
		}
		opened++
		go o.pump(a)
	}
	if opened == 0 {
		return fmt.Errorf("orchestrator: no input adapter could be opened")
	}

	go o.loop()
	return nil
}

// Stop requests a graceful shutdown and blocks until the tick loop has
// played every pending macro to its end (press atoms included, not only
// releases) and released every key the state machine holds (spec.md §5
// Cancellation).
func (o *Orchestrator) Stop() {
	close(o.stop)
	<-o.done
}

func (o *Orchestrator) pump(a adapter.Adapter) {
	for ev := range a.Events() {
		if !o.filter.Load().Allow(ev.Code) {
			continue
		}
		o.queue.push(ev)
	}
}

// loop is the tick loop itself: the seven steps of spec.md §4.1, run once
// per tickInterval. Panics are never allowed to escape this goroutine
// (spec.md §7 "Panics are disallowed anywhere in the Orchestrator
// thread").
func (o *Orchestrator) loop() {
	defer close(o.done)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	var lastTick time.Time
	for {
		select {
		case <-o.stop:
			o.shutdown()
			return
		case <-ticker.C:
			o.safeTick(lastTick)
			lastTick = time.Now()
		}
	}
}

func (o *Orchestrator) safeTick(lastTick time.Time) {
	defer func() {
		if r := recover(); r != nil {
			o.log.WithField("panic", r).Error("orchestrator: recovered panic in tick, continuing")
		}
	}()
	o.tick(lastTick)
}

func (o *Orchestrator) tick(lastTick time.Time) {
	// 1. install a pending reload, draining in-flight macros and releasing
	// orphaned synthetic keys first.
	select {
	case newKm := <-o.reload:
		o.applyReload(newKm)
	default:
	}

	// 2. drain input.
	for _, ev := range o.queue.drain() {
		o.route(ev)
	}

	// 3. drain control commands.
	o.drainCommands()

	// 4. tick the layered state machine.
	delta := int64(1)
	if !lastTick.IsZero() {
		if d := time.Since(lastTick).Milliseconds(); d > 0 {
			delta = d
		}
	}
	res := o.machine.Tick(delta)
	o.flush(res.Outputs)

	// 5. tick auxiliary engines, in the fixed order spec.md §4.1 names:
	// chord, sequence, macro. (zippy-chord has no operational definition
	// anywhere in spec.md; see SPEC_FULL.md Open Question 4.)
	now := o.machine.NowMs()
	if _, fwd := o.chords.Tick(now); fwd != nil {
		o.forwardToMachine(fwd)
	}
	if o.sequence.Tick(now) {
		o.log.Debug("orchestrator: sequence timed out")
	}
	o.flush(o.macros.Tick(now))

	// 6/7. flush already happened incrementally above; sleep-if-idle is
	// the ticker itself.
}

func (o *Orchestrator) route(ev adapter.RawEvent) {
	if o.sequence.Active() {
		if ev.Dir == engine.Down {
			act, fired, aborted := o.sequence.HandlePress(ev.Code, ev.TsMs)
			if fired {
				o.flush(engine.DispatchSimple(act, engine.Down))
				o.flush(engine.DispatchSimple(act, engine.Up))
			} else if aborted {
				o.log.Debug("orchestrator: sequence aborted on unmatched step")
			}
		} else {
			o.sequence.HandleRelease(ev.Code)
		}
		return
	}

	if len(o.km.Chords) > 0 {
		var outs []engine.OutputEvent
		var fwd []engine.InputEvent
		if ev.Dir == engine.Down {
			outs, fwd = o.chords.HandlePress(ev.Code, ev.TsMs)
		} else {
			outs, fwd = o.chords.HandleRelease(ev.Code, ev.TsMs)
		}
		o.flush(outs)
		if fwd != nil {
			o.forwardToMachine(fwd)
		}
		return
	}

	o.forwardToMachine([]engine.InputEvent{{Code: ev.Code, Dir: ev.Dir, TsMs: ev.TsMs}})
}

func (o *Orchestrator) forwardToMachine(events []engine.InputEvent) {
	for _, ev := range events {
		res := o.machine.HandleEvent(ev.Code, ev.Dir, ev.TsMs)
		o.flush(res.Outputs)
		for _, mac := range res.MacroTriggers {
			o.macros.Submit(mac.Script, mac.Cleanup, ev.TsMs)
		}
		if res.Sequence != nil {
			o.sequence.Enter(ev.TsMs)
		}
	}
}

func (o *Orchestrator) flush(outs []engine.OutputEvent) {
	for _, ev := range outs {
		if err := sink.Write(o.sink, ev); err != nil {
			o.log.WithError(err).Debug("orchestrator: sink write failed, dropping")
		}
	}
	if len(outs) > 0 {
		if err := o.sink.Flush(); err != nil {
			o.log.WithError(err).Debug("orchestrator: sink flush failed")
		}
	}
}

func (o *Orchestrator) applyReload(newKm *keymap.Keymap) {
	for now := o.machine.NowMs(); o.macros.Active(); now++ {
		o.flush(o.macros.Tick(now))
	}
	o.flush(o.machine.ReleaseOrphaned())
	o.machine.Reload(newKm)
	o.km = newKm
	o.filter.Store(adapter.NewFilter(newKm.Defsrc, newKm.Options.ProcessUnmappedKeys))
	o.chords = chord.New(newKm.Chords)
	o.sequence = sequence.New(newKm.Seq, newKm.Options)
	o.log.Info("orchestrator: reload applied")
}

func (o *Orchestrator) drainCommands() {
	for {
		select {
		case req := <-o.commands:
			req.resp <- o.handleCommand(req.cmd)
		default:
			return
		}
	}
}

func (o *Orchestrator) handleCommand(cmd control.Command) control.Response {
	switch c := cmd.(type) {
	case control.ChangeLayer:
		if err := o.machine.ChangeLayer(c.Name); err != nil {
			return control.Response{Error: err.Error()}
		}
		return control.Response{Ok: true}

	case control.RequestLayerNames:
		return control.Response{Ok: true, Names: o.machine.LayerNames()}

	case control.RequestCurrentLayerName:
		return control.Response{Ok: true, Name: o.machine.CurrentLayerName()}

	case control.RequestCurrentLayerInfo:
		return control.Response{Ok: true, Name: o.machine.CurrentLayerName(), Info: o.machine.SnapshotActiveLayer()}

	case control.FakeKeyOp:
		o.flush(o.machine.InjectFakeKeyOp(c.Ref, c.Op))
		return control.Response{Ok: true}

	case control.SetMouse:
		abs, ok := o.sink.(sink.AbsoluteMouser)
		if !ok {
			return control.Response{Error: "sink does not support absolute mouse positioning"}
		}
		if err := abs.WriteMouseAbsolute(c.X, c.Y); err != nil {
			return control.Response{Error: err.Error()}
		}
		return control.Response{Ok: true}

	case control.Reload, control.ReloadNext, control.ReloadPrev, control.ReloadNum, control.ReloadFile:
		// Selecting which source to reparse is outside the core (spec.md
		// §6); the caller re-parses and calls RequestReload directly.
		return control.Response{Error: "reload selection is not resolved by the core; call RequestReload with a parsed Keymap"}

	default:
		return control.Response{Error: fmt.Sprintf("unknown command %T", cmd)}
	}
}

func (o *Orchestrator) shutdown() {
	deadline := o.machine.NowMs() + 1
	for o.macros.Active() {
		o.flush(o.macros.Tick(deadline))
		deadline++
	}
	o.flush(o.machine.ReleaseAll())
	for _, a := range o.adapters {
		if err := a.Close(); err != nil {
			o.log.WithError(err).Debug("orchestrator: adapter close failed")
		}
	}
}
