package app

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posturewatch/internal/alerting"
	"posturewatch/internal/calibration"
	"posturewatch/internal/config"
	"posturewatch/internal/storage"
)

const sittingModel = `{
  "id": "always-sitting",
  "labels": ["sitting", "lying", "standing"],
  "weights": [
    [0,0,0,0,0,0,0,0,0,0],
    [0,0,0,0,0,0,0,0,0,0],
    [0,0,0,0,0,0,0,0,0,0]
  ],
  "bias": [5, 0, 0]
}`

func newTestApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.json")
	require.NoError(t, os.WriteFile(modelPath, []byte(sittingModel), 0o600))

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Classifier.ModelPath = modelPath
	cfg.Classifier.ModelID = "always-sitting"
	cfg.Calibration.Source = "none"
	cfg.Monitor.NotificationMinutes = 1
	cfg.Monitor.ReportAccumulated = false
	return NewApp(cfg, zerolog.Nop())
}

// capture writes 25 Hz rows: a 1.2 Hz optical pulse and still linear
// acceleration, switching to strong motion from moveAt on.
func capture(seconds, moveAt float64) string {
	var b strings.Builder
	b.WriteString("t_ms,kind,x,y,z\n")
	n := int(seconds * 25)
	for i := 0; i < n; i++ {
		ms := i * 40
		ts := float64(i) / 25
		fmt.Fprintf(&b, "%d,ppg,%.4f,,\n", ms, 500+20*math.Sin(2*math.Pi*1.2*ts))
		acc := 0.0
		if moveAt > 0 && ts >= moveAt {
			acc = 20
		}
		fmt.Fprintf(&b, "%d,acc,%.1f,0,0\n", ms, acc)
	}
	return b.String()
}

func TestReplayEmitsWarningThenReward(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	clf, err := a.newClassifier(ctx, a.Logger)
	require.NoError(t, err)

	var types []alerting.EventType
	notifier := alerting.NotifierFunc(func(_ context.Context, ev alerting.Event) error {
		types = append(types, ev.Type)
		return nil
	})

	stats, err := a.replay(ctx, strings.NewReader(capture(100, 90)), clf, notifier, 0)
	require.NoError(t, err)

	assert.Equal(t, []alerting.EventType{alerting.SittingLong, alerting.StretchReward}, types)
	assert.Positive(t, stats.Classified)
	assert.Positive(t, stats.Skipped)
	assert.Equal(t, 0, stats.Failed)
}

func TestRegistryCachesModelAcrossCommands(t *testing.T) {
	a := newTestApp(t)
	_, err := a.loadModel(context.Background())
	require.NoError(t, err)
	_, err = a.loadModel(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, a.models.Len())
}

func TestBuildCalibration(t *testing.T) {
	a := newTestApp(t)
	doc, err := a.buildCalibration(context.Background(), strings.NewReader(capture(30, 0)), "alice", time.Now())
	require.NoError(t, err)

	assert.Equal(t, "alice", doc.SubjectID)
	assert.Equal(t, 5, doc.Windows)
	assert.InDelta(t, 12, doc.CalibMeans["n_peaks"], 1)
	raw := doc.StatsRaw[calibration.RawChannel]
	assert.InDelta(t, 500, raw.Mu, 0.5)
	assert.Positive(t, raw.Sigma)

	_, err = a.buildCalibration(context.Background(), strings.NewReader(capture(2, 0)), "alice", time.Now())
	assert.Error(t, err)
}

func TestCalibrateSavesToFileSource(t *testing.T) {
	a := newTestApp(t)
	dir := t.TempDir()
	a.Config.Calibration.Source = "file"
	a.Config.Calibration.Dir = dir

	path := filepath.Join(t.TempDir(), "capture.csv")
	require.NoError(t, os.WriteFile(path, []byte(capture(30, 0)), 0o600))

	require.NoError(t, a.Calibrate(context.Background(), CalibrateOptions{Path: path, Subject: "bob"}))

	data, err := calibration.NewFileSource(dir).Fetch(context.Background(), "bob")
	require.NoError(t, err)
	profile, err := calibration.Parse(data)
	require.NoError(t, err)
	_, ok := profile.RawStats()
	assert.True(t, ok)
}

func TestNewNotifierChannels(t *testing.T) {
	a := newTestApp(t)

	a.Config.Alerting.Channels = []string{"mqtt"}
	_, err := a.newNotifier(nil, nil)
	assert.Error(t, err, "mqtt channel needs a client")

	a.Config.Alerting.Channels = []string{"webhook"}
	a.Config.Alerting.Webhook.URL = "http://127.0.0.1:1/hook"
	n, err := a.newNotifier(nil, nil)
	require.NoError(t, err)
	assert.Len(t, n, 1)

	a.Config.Alerting.Channels = []string{"store"}
	_, err = a.newNotifier(nil, nil)
	assert.Error(t, err)

	a.Config.Alerting.Enabled = false
	n, err = a.newNotifier(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, n)
	assert.False(t, a.usesChannel("store"))
}

func TestSimulateWarnRejectsUnknownPosture(t *testing.T) {
	a := newTestApp(t)
	assert.Error(t, a.SimulateWarn(context.Background(), "standing", 5))
}

func TestWriteEventTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeEventTable(&buf, nil))
	assert.Contains(t, buf.String(), "no events found")

	buf.Reset()
	events := []storage.EventRecord{{
		Type:            "SITTING_LONG",
		DurationMinutes: 30,
		Subject:         "alice",
		SessionID:       "0123456789abcdef",
		OccurredAt:      time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC),
	}}
	require.NoError(t, writeEventTable(&buf, events))
	out := buf.String()
	assert.Contains(t, out, "SITTING_LONG")
	assert.Contains(t, out, "30m")
	assert.Contains(t, out, "01234567")
	assert.Contains(t, out, "2025-02-03T04:05:06Z")
}

func TestExportWriters(t *testing.T) {
	base := time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)
	records := make([]storage.ClassificationRecord, 20)
	for i := range records {
		records[i] = storage.ClassificationRecord{
			At:          base.Add(time.Duration(i) * time.Minute),
			Label:       "sitting",
			Confidence:  decimal.NewFromFloat(0.9),
			StaticRatio: decimal.NewFromFloat(float64(i) / 20),
		}
	}

	ds := downsample(records, 5)
	require.Len(t, ds, 5)
	assert.Equal(t, records[0].At, ds[0].At)
	assert.Equal(t, records[19].At, ds[4].At)
	assert.Len(t, downsample(records, 50), 20)

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out", "log.csv")
	require.NoError(t, writeClassificationsCSV(csvPath, ds))
	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[1], "2025-02-03T00:00:00Z,"))

	pngPath := filepath.Join(dir, "chart.png")
	require.NoError(t, writeClassificationsPNG(pngPath, records))
	info, err := os.Stat(pngPath)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
