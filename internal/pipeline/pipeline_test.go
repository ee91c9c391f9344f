package pipeline

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posturewatch/internal/alerting"
	"posturewatch/internal/calibration"
	"posturewatch/internal/classifier"
	"posturewatch/internal/monitor"
	"posturewatch/internal/source"
	"posturewatch/internal/storage"
)

var t0 = time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type stubModel struct {
	mu      sync.Mutex
	label   classifier.Label
	err     error
	started chan struct{}
	release chan struct{}
}

func (m *stubModel) setLabel(l classifier.Label) {
	m.mu.Lock()
	m.label = l
	m.mu.Unlock()
}

func (m *stubModel) Infer(_ context.Context, input []float64) ([]float64, error) {
	if m.started != nil {
		select {
		case m.started <- struct{}{}:
		default:
		}
	}
	if m.release != nil {
		<-m.release
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	logits := make([]float64, classifier.NumClasses)
	logits[m.label] = 5
	return logits, nil
}

type eventSink struct {
	mu     sync.Mutex
	events []alerting.Event
}

func (s *eventSink) Notify(_ context.Context, ev alerting.Event) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	return nil
}

func (s *eventSink) types() []alerting.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]alerting.EventType, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Type)
	}
	return out
}

type recorder struct {
	mu   sync.Mutex
	recs []storage.ClassificationRecord
}

func (r *recorder) InsertClassification(_ context.Context, rec storage.ClassificationRecord) error {
	r.mu.Lock()
	r.recs = append(r.recs, rec)
	r.mu.Unlock()
	return nil
}

func testSettings() Settings {
	return Settings{
		Subject:         "s1",
		WindowSize:      4,
		SampleRate:      25,
		PhysioWindow:    50,
		MinPeakDistance: 400 * time.Millisecond,
		Detrend:         true,
		Normalize:       true,
		TrackerSpan:     4 * time.Second,
		TrackerCoverage: 0.5,
		StaticRatio:     0.95,
		Policy:          monitor.DefaultPolicy(1),
		DispatchBuffer:  16,
		Synchronous:     true,
	}
}

type harness struct {
	p     *Pipeline
	model *stubModel
	sink  *eventSink
	rec   *recorder
	clock *fakeClock
	ppgN  int
}

func newHarness(t *testing.T, settings Settings, model *stubModel) *harness {
	t.Helper()
	h := &harness{model: model, sink: &eventSink{}, rec: &recorder{}, clock: &fakeClock{t: t0}}
	c := classifier.New(model, calibration.Identity("s1"), zerolog.Nop())
	p, err := New(settings, Deps{Classifier: c, Notifier: h.sink, Recorder: h.rec, Clock: h.clock.Now}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	h.p = p
	return h
}

func (h *harness) ppg(n int) {
	for i := 0; i < n; i++ {
		v := 500 + 20*math.Sin(2*math.Pi*1.2*float64(h.ppgN)/25)
		h.p.HandleReading(source.Reading{T: h.clock.Now(), Kind: source.KindPPG, V: v})
		h.ppgN++
	}
}

func (h *harness) accel(n int, magnitude float64) {
	for i := 0; i < n; i++ {
		h.p.HandleReading(source.Reading{T: h.clock.Now(), Kind: source.KindAccel, X: magnitude, Y: 0, Z: 0})
	}
}

// second advances one second of stillness (or motion) and ticks.
func (h *harness) second(sec int, magnitude float64) {
	at := t0.Add(time.Duration(sec) * time.Second)
	h.clock.Set(at)
	h.ppg(25)
	h.accel(2, magnitude)
	_ = h.p.Tick(context.Background(), at)
}

// tick advances the clock and ticks without feeding any readings.
func (h *harness) tick(sec int) {
	at := t0.Add(time.Duration(sec) * time.Second)
	h.clock.Set(at)
	_ = h.p.Tick(context.Background(), at)
}

func TestSittingWarningThenStretchReward(t *testing.T) {
	h := newHarness(t, testSettings(), &stubModel{label: classifier.Sitting})
	h.ppg(50)

	for sec := 0; sec <= 14; sec++ {
		h.second(sec, 0)
	}
	h.model.setLabel(classifier.Standing)
	h.second(15, 0)
	h.p.Close()

	assert.Equal(t, []alerting.EventType{alerting.SittingLong, alerting.StretchReward}, h.sink.types())
	warn := h.sink.events[0]
	assert.Equal(t, 1, warn.DurationMinutes)
	assert.NotEmpty(t, warn.ID)
	assert.Equal(t, h.p.Session(), warn.Session)

	stats := h.p.Stats()
	assert.Equal(t, 15, stats.Windows)
	assert.Equal(t, 15, stats.Classified)
	assert.Equal(t, 2, stats.Events)

	require.NotEmpty(t, h.rec.recs)
	assert.Equal(t, "sitting", h.rec.recs[0].Label)
}

func TestMotionGateMovesAndRewards(t *testing.T) {
	h := newHarness(t, testSettings(), &stubModel{label: classifier.Lying})
	h.ppg(50)
	for sec := 0; sec <= 14; sec++ {
		h.second(sec, 0)
	}
	h.second(15, 20)
	h.p.Close()

	assert.Equal(t, []alerting.EventType{alerting.LyingLong, alerting.StandupReward}, h.sink.types())
	assert.Equal(t, 1, h.p.Stats().Skipped)
}

func TestNoWarningBeforeTrackerReady(t *testing.T) {
	settings := testSettings()
	settings.TrackerSpan = time.Hour
	h := newHarness(t, settings, &stubModel{label: classifier.Sitting})
	h.ppg(50)
	for sec := 0; sec <= 30; sec++ {
		h.second(sec, 0)
	}
	h.p.Close()
	assert.Empty(t, h.sink.types())
}

func TestInferenceFailureLeavesGap(t *testing.T) {
	h := newHarness(t, testSettings(), &stubModel{err: errors.New("delegate crashed")})
	h.ppg(50)
	for sec := 0; sec <= 20; sec++ {
		h.second(sec, 0)
	}
	h.p.Close()

	stats := h.p.Stats()
	assert.Equal(t, 0, stats.Classified)
	assert.Equal(t, stats.Windows, stats.Failed)
	assert.Empty(t, h.sink.types())
	assert.Empty(t, h.rec.recs)
}

func TestWindowsWaitForPhysioBuffer(t *testing.T) {
	h := newHarness(t, testSettings(), &stubModel{label: classifier.Sitting})
	h.accel(8, 0)
	stats := h.p.Stats()
	h.p.Close()
	assert.Equal(t, 3, stats.Windows)
	assert.Equal(t, 0, stats.Classified)
}

func TestStopDiscardsAndStartResets(t *testing.T) {
	h := newHarness(t, testSettings(), &stubModel{label: classifier.Sitting})
	first := h.p.Session()
	h.ppg(50)
	h.accel(5, 0)
	require.Equal(t, 1, h.p.Stats().Windows)

	h.p.Stop()
	h.accel(10, 0)
	assert.Equal(t, 1, h.p.Stats().Windows, "readings after Stop are ignored")

	require.NoError(t, h.p.Start(context.Background()))
	assert.NotEqual(t, first, h.p.Session())
	assert.Equal(t, 0, h.p.Stats().Windows)
	h.accel(3, 0)
	assert.Equal(t, 0, h.p.Stats().Windows, "partial window was discarded")

	h.p.Close()
	assert.ErrorIs(t, h.p.Start(context.Background()), ErrClosed)
	assert.ErrorIs(t, h.p.Tick(context.Background(), t0), ErrClosed)
}

func TestRestartClearsPendingReward(t *testing.T) {
	settings := testSettings()
	settings.ReportAccumulated = true
	h := newHarness(t, settings, &stubModel{label: classifier.Sitting})
	h.ppg(50)
	for sec := 0; sec <= 14; sec++ {
		h.second(sec, 0)
	}
	require.Equal(t, monitor.PendingReward, h.p.dwell.State().Phase)

	h.p.Stop()
	require.NoError(t, h.p.Start(context.Background()))

	assert.Equal(t, monitor.Idle, h.p.dwell.State().Phase)
	assert.Zero(t, h.p.dwell.Accumulated())
	assert.False(t, h.p.tracker.Ready())
	assert.Equal(t, monitor.Unknown, h.p.latest)
	sitting, lying := h.p.accum.Pending()
	assert.Zero(t, sitting)
	assert.Zero(t, lying)

	h.model.setLabel(classifier.Standing)
	for sec := 15; sec <= 25; sec++ {
		h.second(sec, 0)
	}
	h.p.Close()

	assert.Equal(t, []alerting.EventType{alerting.SittingLong}, h.sink.types(),
		"a standing tick after restart must not pay out the previous session's reward")
}

func TestStalledFeedFreezesMonitor(t *testing.T) {
	settings := testSettings()
	settings.ReportAccumulated = true
	settings.StaleAfter = 2 * time.Second
	h := newHarness(t, settings, &stubModel{label: classifier.Sitting})
	h.ppg(50)
	for sec := 0; sec <= 5; sec++ {
		h.second(sec, 0)
	}
	require.Equal(t, monitor.Accumulating, h.p.dwell.State().Phase)
	accumulated := h.p.dwell.Accumulated()

	// The feed stops; the scheduler keeps ticking for half an hour.
	for sec := 6; sec <= 1800; sec++ {
		h.tick(sec)
	}

	// Only the ticks within StaleAfter of the last window still count.
	assert.Equal(t, monitor.Accumulating, h.p.dwell.State().Phase)
	assert.Equal(t, accumulated+2*time.Second, h.p.dwell.Accumulated())
	assert.False(t, h.p.tracker.Ready())
	h.p.Close()
	assert.Empty(t, h.sink.types())
}

func TestRepeatedInferenceFailureFreezesMonitor(t *testing.T) {
	h := newHarness(t, testSettings(), &stubModel{label: classifier.Sitting})
	h.ppg(50)
	for sec := 0; sec <= 5; sec++ {
		h.second(sec, 0)
	}
	h.model.mu.Lock()
	h.model.err = errors.New("delegate crashed")
	h.model.mu.Unlock()

	for sec := 6; sec <= 120; sec++ {
		h.second(sec, 0)
	}
	h.p.Close()

	assert.Positive(t, h.p.Stats().Failed)
	assert.Empty(t, h.sink.types())
}

func TestSingleSlotBackpressure(t *testing.T) {
	settings := testSettings()
	settings.Synchronous = false
	model := &stubModel{label: classifier.Sitting, started: make(chan struct{}, 1), release: make(chan struct{})}
	h := newHarness(t, settings, model)
	h.ppg(50)

	h.accel(4, 0)
	select {
	case <-model.started:
	case <-time.After(5 * time.Second):
		t.Fatal("inference never started")
	}
	h.accel(2, 0)
	assert.Equal(t, 1, h.p.Stats().Dropped)

	close(model.release)
	require.Eventually(t, func() bool { return h.p.Stats().Classified == 1 }, 5*time.Second, 5*time.Millisecond)
	h.p.Close()
	assert.Equal(t, 2, h.p.Stats().Windows)
}

func TestNewValidates(t *testing.T) {
	c := classifier.New(&stubModel{}, calibration.Identity("s1"), zerolog.Nop())

	_, err := New(testSettings(), Deps{}, zerolog.Nop())
	assert.Error(t, err)

	settings := testSettings()
	settings.PhysioWindow = 15
	_, err = New(settings, Deps{Classifier: c}, zerolog.Nop())
	assert.Error(t, err)

	settings = testSettings()
	settings.WindowSize = 1
	_, err = New(settings, Deps{Classifier: c}, zerolog.Nop())
	assert.Error(t, err)
}
