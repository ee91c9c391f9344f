// Package pipeline turns the sensor stream into posture events: windowing,
// motion gating, feature extraction, classification, ratio smoothing and
// the dwell state machine, with sample and tick delivery serialised.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"posturewatch/internal/alerting"
	"posturewatch/internal/classifier"
	"posturewatch/internal/dsp"
	"posturewatch/internal/features"
	"posturewatch/internal/monitor"
	"posturewatch/internal/motion"
	"posturewatch/internal/source"
	"posturewatch/internal/storage"
	"posturewatch/internal/tracker"
	"posturewatch/internal/window"
)

// ErrClosed is returned by Start and Tick after Close.
var ErrClosed = errors.New("pipeline: closed")

// ClassificationRecorder receives every applied classification.
type ClassificationRecorder interface {
	InsertClassification(ctx context.Context, rec storage.ClassificationRecord) error
}

// Deps are the collaborators a pipeline is built from.
type Deps struct {
	Classifier *classifier.Classifier
	Notifier   alerting.Notifier
	Recorder   ClassificationRecorder
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Stats counts what happened during the current session.
type Stats struct {
	Session       string
	Windows       int
	Skipped       int
	Classified    int
	Dropped       int
	Failed        int
	Events        int
	EventsDropped int
}

type job struct {
	gen     uint64
	at      time.Time
	samples []float64
}

// Pipeline is the single per-wearer processing instance.
type Pipeline struct {
	settings   Settings
	gate       motion.Gate
	featurizer *Featurizer
	classifier *classifier.Classifier
	notifier   alerting.Notifier
	recorder   ClassificationRecorder
	clock      func() time.Time
	logger     zerolog.Logger

	mu       sync.Mutex
	ctx      context.Context
	running  bool
	launched bool
	closed   bool
	gen      uint64
	session  string

	accel     *window.Windower
	gyro      *window.Windower
	lastGyro  []float64
	physio    *window.PhysioBuffer
	tracker   *tracker.StaticRatio
	dwell     *monitor.Dwell
	accum     *monitor.AccumReporter
	latest    monitor.Posture
	lastLabel classifier.Label
	hasLabel  bool
	// decidedAt is when latest was last set by the gate or a classification.
	decidedAt time.Time
	stats     Stats

	slot   chan struct{}
	jobs   chan job
	events chan alerting.Event
	wg     sync.WaitGroup
}

// New validates settings and builds a stopped pipeline.
func New(settings Settings, deps Deps, logger zerolog.Logger) (*Pipeline, error) {
	if deps.Classifier == nil {
		return nil, errors.New("pipeline: classifier is required")
	}
	if settings.WindowSize < 2 {
		return nil, fmt.Errorf("pipeline: window size %d must be at least 2", settings.WindowSize)
	}
	if settings.TrackerSpan <= 0 {
		return nil, errors.New("pipeline: tracker span must be positive")
	}
	featurizer := NewFeaturizer(settings)
	if settings.PhysioWindow < featurizer.MinSamples() {
		return nil, fmt.Errorf("pipeline: physio window %d must be at least %d samples", settings.PhysioWindow, featurizer.MinSamples())
	}
	if settings.DispatchBuffer <= 0 {
		settings.DispatchBuffer = 32
	}
	if settings.StaleAfter <= 0 {
		settings.StaleAfter = DefaultStaleAfter
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = alerting.Multi{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	p := &Pipeline{
		settings:   settings,
		gate:       motion.NewGate(settings.SMAThreshold, settings.GyroRMSThreshold),
		featurizer: featurizer,
		classifier: deps.Classifier,
		notifier:   notifier,
		recorder:   deps.Recorder,
		clock:      clock,
		logger:     logger.With().Str("component", "pipeline").Str("subject", settings.Subject).Logger(),
		accel:      window.NewWindower(settings.WindowSize),
		gyro:       window.NewWindower(settings.WindowSize),
		physio:     window.NewPhysioBuffer(settings.PhysioWindow),
		tracker:    tracker.New(settings.TrackerSpan, settings.TrackerCoverage, clock),
		dwell:      monitor.NewDwell(settings.Policy, settings.Subject),
		accum:      monitor.NewAccumReporter(settings.Subject),
		slot:       make(chan struct{}, 1),
		jobs:       make(chan job, 1),
		events:     make(chan alerting.Event, settings.DispatchBuffer),
	}
	return p, nil
}

// Start begins a fresh session. Background goroutines are bound to the ctx
// of the first call and live until Close.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if !p.launched {
		p.launched = true
		p.ctx = ctx
		p.wg.Add(1)
		go p.dispatch(ctx)
		if !p.settings.Synchronous {
			p.wg.Add(1)
			go p.work(ctx)
		}
	}

	p.resetLocked()
	p.gen++
	p.session = uuid.NewString()
	p.stats = Stats{Session: p.session}
	p.running = true
	p.logger.Info().
		Str("session", p.session).
		Dur("threshold", p.dwell.Threshold()).
		Msg("pipeline started")
	return nil
}

// Stop ends the session. Partial windows are discarded; a classification
// still in flight is ignored when it completes.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// resetLocked returns everything a session owns to its initial state.
func (p *Pipeline) resetLocked() {
	p.accel.Reset()
	p.gyro.Reset()
	p.physio.Reset()
	p.lastGyro = nil
	p.tracker.Reset()
	p.dwell.Reset()
	p.accum.Reset()
	p.latest = monitor.Unknown
	p.lastLabel = classifier.Label(0)
	p.hasLabel = false
	p.decidedAt = time.Time{}
}

func (p *Pipeline) stopLocked() {
	if !p.running {
		return
	}
	p.running = false
	p.gen++
	p.accel.Reset()
	p.gyro.Reset()
	p.physio.Reset()
	p.logger.Info().
		Str("session", p.session).
		Int("windows", p.stats.Windows).
		Int("classified", p.stats.Classified).
		Int("events", p.stats.Events).
		Msg("pipeline stopped")
}

// Close stops the pipeline, delivers queued events and waits for the
// background goroutines.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.stopLocked()
	p.closed = true
	close(p.jobs)
	close(p.events)
	p.mu.Unlock()
	p.wg.Wait()
}

// Session returns the current session id.
func (p *Pipeline) Session() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

// Stats returns a snapshot of the session counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// HandleReading feeds one reading. It matches source.Handler.
func (p *Pipeline) HandleReading(r source.Reading) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	switch r.Kind {
	case source.KindAccel:
		if win, ok := p.accel.Add(r.Sample()); ok {
			p.onWindowLocked(win)
		}
	case source.KindGyro:
		if win, ok := p.gyro.Add(r.Sample()); ok {
			p.lastGyro = win
		}
	case source.KindPPG:
		p.physio.Push(r.V)
	}
}

func (p *Pipeline) onWindowLocked(acc []float64) {
	p.stats.Windows++

	skip := p.gate.ShouldSkip(acc)
	if p.settings.UseGyro && p.lastGyro != nil {
		skip = p.gate.ShouldSkipWithGyro(acc, p.lastGyro)
	}
	if skip {
		p.stats.Skipped++
		p.latest = monitor.Moving
		p.decidedAt = p.clock()
		p.logger.Debug().Float64("sma", motion.SMA(acc)).Msg("window skipped by motion gate")
		return
	}
	if !p.physio.Full() {
		p.logger.Debug().Msg("physio buffer not full; window not classified")
		return
	}

	j := job{gen: p.gen, at: p.clock(), samples: p.physio.Snapshot()}
	if p.settings.Synchronous {
		res, vec, err := p.infer(p.ctx, j)
		if rec, ok := p.applyLocked(j, res, vec, err); ok {
			p.record(p.ctx, rec)
		}
		return
	}

	select {
	case p.slot <- struct{}{}:
		p.jobs <- j
	default:
		p.stats.Dropped++
		p.logger.Warn().Msg("classification in flight; window dropped")
	}
}

func (p *Pipeline) work(ctx context.Context) {
	defer p.wg.Done()
	for j := range p.jobs {
		res, vec, err := p.infer(ctx, j)
		p.mu.Lock()
		rec, ok := p.applyLocked(j, res, vec, err)
		p.mu.Unlock()
		<-p.slot
		if ok {
			p.record(ctx, rec)
		}
	}
}

func (p *Pipeline) infer(ctx context.Context, j job) (classifier.Result, features.Vector, error) {
	raw, _ := p.classifier.Profile().RawStats()
	vec, err := p.featurizer.Features(j.samples, raw)
	if err != nil {
		return classifier.Result{}, features.Vector{}, err
	}
	res, err := p.classifier.Classify(ctx, vec)
	return res, vec, err
}

func (p *Pipeline) applyLocked(j job, res classifier.Result, vec features.Vector, err error) (storage.ClassificationRecord, bool) {
	if j.gen != p.gen || !p.running {
		return storage.ClassificationRecord{}, false
	}
	if err != nil {
		p.stats.Failed++
		if errors.Is(err, dsp.ErrInsufficientSamples) {
			p.logger.Warn().Err(err).Msg("window dropped")
		} else {
			p.logger.Error().Err(err).Msg("classification failed")
		}
		return storage.ClassificationRecord{}, false
	}

	p.stats.Classified++
	p.lastLabel = res.Label
	p.hasLabel = true
	p.latest = postureOf(res.Label)
	if j.at.After(p.decidedAt) {
		p.decidedAt = j.at
	}
	p.tracker.UpdateAt(j.at, p.latest.IsStatic())
	ratio := p.tracker.Ratio()

	p.logger.Debug().
		Stringer("label", res.Label).
		Float64("confidence", res.Confidence()).
		Float64("static_ratio", ratio).
		Msg("classification applied")

	return storage.ClassificationRecord{
		At:              j.at,
		SessionID:       p.session,
		Subject:         p.settings.Subject,
		Label:           res.Label.String(),
		Confidence:      decimal.NewFromFloat(res.Confidence()),
		StaticRatio:     decimal.NewFromFloat(ratio),
		MissingFeatures: vec.Missing(),
	}, true
}

func (p *Pipeline) record(ctx context.Context, rec storage.ClassificationRecord) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.InsertClassification(ctx, rec); err != nil {
		p.logger.Error().Err(err).Msg("failed to persist classification")
	}
}

// Tick 在 at 时刻推进久坐监测状态机，签名与 scheduler.TickFunc 一致。
// Ticks while stopped are ignored; ticks after Close return ErrClosed.
func (p *Pipeline) Tick(_ context.Context, at time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if !p.running {
		return nil
	}
	posture := p.monitorPostureLocked(at)
	events := p.dwell.Tick(at, posture)
	if p.settings.ReportAccumulated {
		events = append(events, p.accum.Tick(at, posture)...)
	}
	for _, ev := range events {
		p.emitLocked(ev)
	}
	return nil
}

// monitorPostureLocked resolves what the dwell monitor sees at time at.
// A decision older than StaleAfter freezes the monitor, as does a tracker
// without enough history. Otherwise motion wins, and a static label only
// counts when the smoothed ratio backs it.
func (p *Pipeline) monitorPostureLocked(at time.Time) monitor.Posture {
	switch {
	case p.decidedAt.IsZero() || at.Sub(p.decidedAt) > p.settings.StaleAfter:
		return monitor.Unknown
	case p.latest == monitor.Moving:
		return monitor.Moving
	case !p.hasLabel || !p.tracker.Ready():
		return monitor.Unknown
	case p.latest.IsStatic() && p.tracker.Ratio() >= p.settings.StaticRatio:
		return p.latest
	default:
		return monitor.Standing
	}
}

func (p *Pipeline) emitLocked(ev alerting.Event) {
	ev.ID = uuid.NewString()
	ev.Session = p.session
	p.stats.Events++
	p.logger.Info().
		Str("type", string(ev.Type)).
		Str("event_id", ev.ID).
		Int("duration_minutes", ev.DurationMinutes).
		Msg("posture event")

	select {
	case p.events <- ev:
	default:
		p.stats.EventsDropped++
		p.logger.Warn().Str("type", string(ev.Type)).Msg("dispatch queue full; event dropped")
	}
}

func (p *Pipeline) dispatch(ctx context.Context) {
	defer p.wg.Done()
	for ev := range p.events {
		if err := p.notifier.Notify(ctx, ev); err != nil {
			p.logger.Error().Err(err).Str("type", string(ev.Type)).Msg("failed to deliver event")
		}
	}
}

func postureOf(l classifier.Label) monitor.Posture {
	switch l {
	case classifier.Sitting:
		return monitor.Sitting
	case classifier.Lying:
		return monitor.Lying
	default:
		return monitor.Standing
	}
}
