package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/airboard/internal/canvas"
	"github.com/ayusman/airboard/internal/mode"
	"github.com/ayusman/airboard/internal/shape"
	"github.com/ayusman/airboard/internal/stroke"
)

type eventKind uint8

const (
	evFrame eventKind = iota
	evGesture
	evSkip
	evControl
)

type reply struct {
	res Result
	err error
}

type event struct {
	kind    eventKind
	frame   Frame
	gesture GestureEvent
	cmd     ControlCommand
	reply   chan reply
}

func newControlEvent(cmd ControlCommand) event {
	return event{kind: evControl, cmd: cmd, reply: make(chan reply, 1)}
}

// StartOptions seeds the drawing settings of a new session.
type StartOptions struct {
	Color     string
	BrushSize int
}

// Coordinator is one live drawing session.
type Coordinator struct {
	id        string
	cfg       Config
	createdAt time.Time
	logger    *slog.Logger
	saver     Saver

	queue  chan event
	ctx    context.Context
	cancel context.CancelCauseFunc
	done   chan struct{}
	onExit func(*Coordinator)
	saves  sync.WaitGroup

	// Owned by the loop goroutine.
	machine     *mode.Machine
	strokes     *stroke.Log
	normalizer  *shape.Normalizer
	seq         *sequencer
	frameSeq    uint64
	hand        bool
	lastGesture time.Time

	projector *canvas.Projector
	cache     *canvas.Cache
	snap      atomic.Pointer[Snapshot]
	frame     atomic.Pointer[Frame]
	fan       *fanout

	framesDropped   atomic.Uint64
	gesturesDropped atomic.Uint64
	gapsSkipped     atomic.Uint64
	discarded       atomic.Uint64
	timeouts        atomic.Uint64
}

func newCoordinator(id string, cfg Config, saver Saver, opts StartOptions) *Coordinator {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = DefaultConfig().QueueCapacity
	}
	ctx, cancel := context.WithCancelCause(context.Background())
	projector := canvas.NewProjector(cfg.Width, cfg.Height, cfg.Background)

	c := &Coordinator{
		id:         id,
		cfg:        cfg,
		createdAt:  time.Now(),
		logger:     slog.Default().With("component", "session", "session_id", id),
		saver:      saver,
		queue:      make(chan event, cfg.QueueCapacity),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		machine:    mode.NewMachine(cfg.Drawing),
		strokes:    stroke.NewLog(),
		normalizer: shape.New(cfg.Shape),
		seq:        newSequencer(cfg.ReorderWindow, cfg.ReorderDelay),
		projector:  projector,
		cache:      canvas.NewCache(projector),
		fan:        newFanout(),
	}

	if opts.Color != "" {
		if err := c.machine.SetColor(opts.Color); err != nil {
			c.logger.Warn("ignoring start color", "error", err)
		}
	}
	if opts.BrushSize > 0 {
		if err := c.machine.SetBrushSize(opts.BrushSize); err != nil {
			c.logger.Warn("ignoring start brush size", "error", err)
		}
	}
	c.publish()
	return c
}

func (c *Coordinator) start() {
	go c.run()
}

// ID returns the session id.
func (c *Coordinator) ID() string { return c.id }

// CreatedAt returns when the session started.
func (c *Coordinator) CreatedAt() time.Time { return c.createdAt }

// Projector returns the projector used for this session's canvas size.
func (c *Coordinator) Projector() *canvas.Projector { return c.projector }

// SubmitFrame queues a video frame. Frames must carry increasing sequence
// numbers starting at 1; older frames are dropped.
func (c *Coordinator) SubmitFrame(f Frame) error {
	if f.Seq == 0 {
		return fmt.Errorf("%w: frame without sequence number", ErrInvalidEvent)
	}
	return c.enqueue(event{kind: evFrame, frame: f})
}

// SubmitGesture queues a gesture event. It is applied once every earlier
// frame's event has been applied or given up on.
func (c *Coordinator) SubmitGesture(g GestureEvent) error {
	if g.FrameSeq == 0 {
		return fmt.Errorf("%w: gesture without frame sequence number", ErrInvalidEvent)
	}
	if _, err := mode.ParseLabel(string(g.Label)); err != nil {
		return err
	}
	return c.enqueue(event{kind: evGesture, gesture: g})
}

// SkipGesture reports that no gesture event will be produced for frame seq,
// so later events need not wait for it.
func (c *Coordinator) SkipGesture(seq uint64) error {
	if seq == 0 {
		return fmt.Errorf("%w: skip without frame sequence number", ErrInvalidEvent)
	}
	return c.enqueue(event{kind: evSkip, gesture: GestureEvent{FrameSeq: seq}})
}

// Submit queues a control command and waits for its result.
func (c *Coordinator) Submit(ctx context.Context, cmd ControlCommand) (Result, error) {
	if err := cmd.Validate(); err != nil {
		return Result{}, err
	}
	ev := newControlEvent(cmd)
	if err := c.enqueue(ev); err != nil {
		return Result{}, err
	}

	select {
	case r := <-ev.reply:
		return r.res, r.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-c.done:
		select {
		case r := <-ev.reply:
			return r.res, r.err
		default:
			return Result{}, c.stopErr()
		}
	}
}

func (c *Coordinator) enqueue(ev event) error {
	if c.ctx.Err() != nil {
		return c.stopErr()
	}
	select {
	case c.queue <- ev:
		return nil
	default:
		c.logger.Error("event queue full, terminating session", "capacity", cap(c.queue))
		c.cancel(ErrQueueOverflow)
		return ErrQueueOverflow
	}
}

// Status returns the status of the latest snapshot.
func (c *Coordinator) Status() Status {
	return c.snap.Load().Status
}

// Snapshot returns the latest consistent state.
func (c *Coordinator) Snapshot() *Snapshot {
	return c.snap.Load()
}

// Subscribe registers a new subscriber. It immediately holds the current
// state.
func (c *Coordinator) Subscribe() *Subscriber {
	return c.fan.subscribe(Update{Frame: c.frame.Load(), Snapshot: c.snap.Load()})
}

// Render draws snap, including its in-progress stroke. The caller must
// close the returned surface.
func (c *Coordinator) Render(snap *Snapshot) *canvas.Surface {
	return c.cache.View(snap.Version, snap.Strokes, snap.Pending)
}

// Stop ends the session. Queued events are discarded.
func (c *Coordinator) Stop() {
	c.cancel(ErrSessionStopped)
}

// Done is closed when the session loop has exited.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// Wait blocks until the loop and any running saves have finished.
func (c *Coordinator) Wait() {
	<-c.done
	c.saves.Wait()
}

// Err returns why the session ended, or nil while it is running.
func (c *Coordinator) Err() error {
	select {
	case <-c.done:
		return context.Cause(c.ctx)
	default:
		return nil
	}
}

func (c *Coordinator) stopErr() error {
	cause := context.Cause(c.ctx)
	if cause == nil || errors.Is(cause, ErrSessionStopped) {
		return ErrSessionStopped
	}
	return fmt.Errorf("%w: %w", ErrSessionStopped, cause)
}

// Stats returns the session counters.
func (c *Coordinator) Stats() Stats {
	return Stats{
		FramesDropped:    c.framesDropped.Load(),
		GesturesDropped:  c.gesturesDropped.Load(),
		GapsSkipped:      c.gapsSkipped.Load(),
		StrokesDiscarded: c.discarded.Load(),
		Timeouts:         c.timeouts.Load(),
		Subscribers:      c.fan.len(),
	}
}

func (c *Coordinator) run() {
	defer c.exit()
	c.logger.Info("session started")

	var tick <-chan time.Time
	if d := c.cfg.tick(); d > 0 {
		t := time.NewTicker(d)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.queue:
			if c.ctx.Err() != nil {
				c.abort(ev)
				return
			}
			c.dispatch(ev, time.Now())
		case now := <-tick:
			c.housekeep(now)
		}
	}
}

func (c *Coordinator) exit() {
	discarded := 0
drain:
	for {
		select {
		case ev := <-c.queue:
			c.abort(ev)
			discarded++
		default:
			break drain
		}
	}
	for _, ev := range c.seq.drain() {
		c.abort(ev)
		discarded++
	}
	c.machine.Reset()

	cause := context.Cause(c.ctx)
	c.fan.close(cause)
	c.cache.Close()
	close(c.done)
	c.logger.Info("session ended", "reason", cause, "discarded_events", discarded)

	if c.onExit != nil {
		c.onExit(c)
	}
}

func (c *Coordinator) abort(ev event) {
	if ev.reply != nil {
		ev.reply <- reply{err: c.stopErr()}
	}
}

func (c *Coordinator) dispatch(ev event, now time.Time) {
	switch ev.kind {
	case evFrame:
		c.applyFrame(ev.frame)
		return
	case evGesture:
		if !c.seq.push(ev.gesture.FrameSeq, classGesture, ev, now) {
			c.gesturesDropped.Add(1)
			c.logger.Debug("dropping stale gesture", "frame_seq", ev.gesture.FrameSeq, "label", ev.gesture.Label)
			return
		}
	case evSkip:
		c.seq.push(ev.gesture.FrameSeq, classGesture, ev, now)
	case evControl:
		if ev.cmd.Seq == 0 {
			c.applyControl(ev, now)
			return
		}
		c.seq.push(ev.cmd.Seq, classControl, ev, now)
	}
	c.release(now)
}

// release applies every event the sequencer lets through.
func (c *Coordinator) release(now time.Time) {
	for c.ctx.Err() == nil {
		ev, ok := c.seq.next(now)
		if !ok {
			break
		}
		switch ev.kind {
		case evGesture:
			c.applyGesture(ev.gesture, now)
		case evControl:
			c.applyControl(ev, now)
		}
	}
	c.gapsSkipped.Store(c.seq.skipped)
}

func (c *Coordinator) housekeep(now time.Time) {
	if c.seq.pending() > 0 {
		c.release(now)
	}

	timeout := c.cfg.ClassifierTimeout
	if timeout > 0 && c.hand && now.Sub(c.lastGesture) >= timeout {
		out, _ := c.machine.Handle(mode.LabelNone, stroke.Point{})
		c.hand = false
		c.timeouts.Add(1)
		c.absorb(out)
		c.logger.Debug("classifier timed out, assuming no hand", "after", timeout)
		c.publish()
	}
}

func (c *Coordinator) applyFrame(f Frame) {
	if f.Seq <= c.frameSeq {
		c.framesDropped.Add(1)
		return
	}
	c.frameSeq = f.Seq
	c.frame.Store(&f)
	c.publish()
}

func (c *Coordinator) applyGesture(g GestureEvent, now time.Time) {
	out, err := c.machine.Handle(g.Label, g.Position)
	if err != nil {
		c.logger.Warn("gesture rejected", "label", g.Label, "error", err)
		return
	}
	c.hand = g.Label != mode.LabelNone
	c.lastGesture = now
	c.absorb(out)
	c.publish()
}

func (c *Coordinator) absorb(out mode.Outcome) {
	if out.Committed != nil {
		c.strokes.Append(*out.Committed)
	}
	if out.Discarded {
		c.discarded.Add(1)
	}
}

func (c *Coordinator) applyControl(ev event, now time.Time) {
	cmd := ev.cmd
	res := Result{Applied: true}
	var err error

	switch cmd.Type {
	case CommandClear:
		c.machine.Reset()
		c.strokes.Clear()
	case CommandUndo:
		c.absorb(c.machine.Flush())
		if !c.strokes.Undo() {
			res.Applied = false
			res.Message = "nothing to undo"
		}
	case CommandRedo:
		c.absorb(c.machine.Flush())
		if !c.strokes.Redo() {
			res.Applied = false
			res.Message = "nothing to redo"
		}
	case CommandSetColor:
		err = c.machine.SetColor(cmd.Color)
	case CommandSetBrushSize:
		err = c.machine.SetBrushSize(cmd.Size)
	case CommandPerfectShape:
		c.absorb(c.machine.Flush())
		res.Applied, res.Message = c.perfectShape()
	case CommandSave:
		c.absorb(c.machine.Flush())
		snap := c.publish()
		c.save(ev, snap, now)
		return
	}

	if err != nil {
		res.Applied = false
		res.Message = err.Error()
	}
	res.Status = c.publish().Status
	ev.reply <- reply{res: res, err: err}
}

func (c *Coordinator) perfectShape() (bool, string) {
	slot, s, ok := c.strokes.Last()
	if !ok {
		return false, "nothing to normalize"
	}
	ns := c.normalizer.Normalize(s)
	if ns.Shape == s.Shape {
		return false, "no shape fits the last stroke"
	}
	if err := c.strokes.Replace(slot, ns); err != nil {
		return false, err.Error()
	}
	return true, "snapped to " + string(ns.Shape)
}

// save renders the visible strokes in the loop, at the command's position,
// and hands the surface to the saver on another goroutine.
func (c *Coordinator) save(ev event, snap *Snapshot, now time.Time) {
	if c.saver == nil {
		ev.reply <- reply{res: Result{Status: snap.Status, Message: ErrSaveUnavailable.Error()}, err: ErrSaveUnavailable}
		return
	}

	req := SaveRequest{
		SessionID: c.id,
		Surface:   c.projector.Render(slices.Values(snap.Strokes)),
		Strokes:   snap.Strokes,
		TakenAt:   now,
	}

	c.saves.Add(1)
	go func() {
		defer c.saves.Done()
		defer req.Surface.Close()

		name, err := c.saver.Save(context.WithoutCancel(c.ctx), req)
		res := Result{Status: snap.Status, Applied: err == nil, Filename: name}
		if err != nil {
			res.Message = err.Error()
			c.logger.Error("save failed", "error", err)
		} else {
			c.logger.Info("canvas saved", "filename", name, "strokes", len(req.Strokes))
		}
		ev.reply <- reply{res: res, err: err}
	}()
}

// publish stores a new snapshot and fans it out with the latest frame.
func (c *Coordinator) publish() *Snapshot {
	version := c.strokes.Version()

	var strokes []stroke.Stroke
	if prev := c.snap.Load(); prev != nil && prev.Version == version {
		strokes = prev.Strokes
	} else {
		strokes = c.strokes.Visible()
	}

	var pending *stroke.Stroke
	if s, ok := c.machine.InProgress(); ok {
		pending = &s
	}

	col := c.machine.Color()
	snap := &Snapshot{
		Status: Status{
			SessionID:    c.id,
			Mode:         c.machine.Mode(),
			Gesture:      c.machine.LastLabel(),
			Color:        col.Name,
			ColorHex:     col.Hex(),
			BrushSize:    c.machine.BrushSize(),
			CanUndo:      c.strokes.CanUndo(),
			CanRedo:      c.strokes.CanRedo(),
			HandDetected: c.hand,
			FrameSeq:     c.frameSeq,
			Strokes:      len(strokes),
		},
		Strokes: strokes,
		Pending: pending,
		Version: version,
	}
	c.snap.Store(snap)
	c.fan.publish(Update{Frame: c.frame.Load(), Snapshot: snap})
	return snap
}
