package app

import (
	"errors"
	"sync"
	"time"

	"github.com/ayusman/airboard/internal/capture"
	"github.com/ayusman/airboard/internal/gesture"
	"github.com/ayusman/airboard/internal/session"
	"github.com/ayusman/airboard/internal/stroke"
)

// job is a frame waiting for classification.
type job struct {
	seq  uint64
	jpeg []byte
	at   time.Time
}

// pipeline feeds one session. The capture loop reads, encodes and submits
// frames; a single classifier worker labels them. The worker only ever sees
// the newest frame: a frame replaced before it was classified is reported
// to the session as skipped so later gestures do not wait for it.
type pipeline struct {
	a     *App
	sink  Sink
	stop  chan struct{}
	once  sync.Once
	done  chan struct{}
	slot  chan job
	start time.Time
	seq   uint64
	stab  *gesture.Stabilizer
}

func newPipeline(a *App, s Sink) *pipeline {
	return &pipeline{
		a:     a,
		sink:  s,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
		slot:  make(chan job, 1),
		start: time.Now(),
		stab:  gesture.NewStabilizer(a.config.StableFrames),
	}
}

func (p *pipeline) halt() {
	p.once.Do(func() { close(p.stop) })
}

// run is the capture loop. It switches between idle and active frame
// rates based on motion in the feed.
func (p *pipeline) run() {
	defer close(p.done)
	defer p.a.detached(p)

	workerDone := make(chan struct{})
	go p.classify(workerDone)
	defer func() {
		close(p.slot)
		<-workerDone
	}()

	gate := capture.NewGate(p.a.config.IdleFPS, p.a.config.ActiveFPS, p.a.config.IdleTimeout)
	ticker := time.NewTicker(gate.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-p.sink.Done():
			return
		case now := <-ticker.C:
			if !p.a.IsEnabled() {
				continue
			}
			if err := p.step(gate, ticker, now); err != nil {
				p.a.logger.Warn("session rejected frame, stopping capture",
					"session_id", p.sink.ID(), "error", err)
				return
			}
		}
	}
}

// step captures and submits one frame. Only session errors are returned;
// camera hiccups are logged and skipped.
func (p *pipeline) step(gate *capture.Gate, ticker *time.Ticker, now time.Time) error {
	frame, err := p.a.camera.ReadFrame()
	if err != nil {
		if !errors.Is(err, capture.ErrNoFrame) {
			p.a.logger.Error("error reading frame", "error", err)
		}
		return nil
	}
	defer frame.Close()

	motion, _ := p.a.motion.Detect(frame)
	if fps, changed := gate.Observe(motion, now); changed {
		p.a.camera.SetFPS(fps)
		ticker.Reset(gate.Interval())
		p.a.logger.Debug("capture rate changed", "fps", fps, "active", gate.Active())
	}

	data, err := capture.EncodeJPEG(frame, p.a.config.JPEGQuality)
	if err != nil {
		p.a.logger.Error("error encoding frame", "error", err)
		return nil
	}

	p.seq++
	f := session.Frame{
		Seq:        p.seq,
		JPEG:       data,
		Width:      frame.Cols(),
		Height:     frame.Rows(),
		CapturedAt: now,
	}
	if err := p.sink.SubmitFrame(f); err != nil {
		return err
	}
	p.offer(job{seq: f.Seq, jpeg: data, at: now})
	return nil
}

// offer hands a frame to the classifier, replacing a frame still waiting.
// Only the capture loop sends on the slot, so the final send cannot block.
func (p *pipeline) offer(j job) {
	select {
	case p.slot <- j:
		return
	default:
	}
	select {
	case old := <-p.slot:
		p.skip(old.seq)
	default:
	}
	p.slot <- j
}

func (p *pipeline) skip(seq uint64) {
	if err := p.sink.SkipGesture(seq); err != nil {
		p.a.logger.Debug("skip not delivered", "seq", seq, "error", err)
	}
}

func (p *pipeline) classify(done chan<- struct{}) {
	defer close(done)

	for j := range p.slot {
		res, err := p.a.currentClassifier().ClassifyJPEG(j.jpeg)
		if err != nil {
			p.a.logger.Warn("classification failed", "seq", j.seq, "error", err)
			p.skip(j.seq)
			continue
		}

		ev := session.GestureEvent{
			Label: p.stab.Observe(res.Label),
			Position: stroke.Point{
				X:         res.Position.X,
				Y:         res.Position.Y,
				Timestamp: j.at.Sub(p.start).Milliseconds(),
			},
			FrameSeq: j.seq,
		}
		if err := p.sink.SubmitGesture(ev); err != nil {
			p.a.logger.Debug("gesture not delivered", "seq", j.seq, "error", err)
		}
	}
}
