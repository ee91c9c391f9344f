package pipeline

import (
	"time"

	"posturewatch/internal/config"
	"posturewatch/internal/monitor"
)

// DefaultStaleAfter applies when Settings.StaleAfter is unset.
const DefaultStaleAfter = 5 * time.Second

// Settings fixes every tunable at construction time.
type Settings struct {
	Subject string

	WindowSize       int
	SMAThreshold     float64
	GyroRMSThreshold float64
	UseGyro          bool

	SampleRate      float64
	PhysioWindow    int
	MinPeakDistance time.Duration
	Detrend         bool
	Normalize       bool

	TrackerSpan     time.Duration
	TrackerCoverage float64
	StaticRatio     float64

	Policy            monitor.Policy
	ReportAccumulated bool

	// StaleAfter is how old the latest gate or classifier decision may be
	// before ticks see Unknown. It should cover one classification period.
	StaleAfter     time.Duration
	DispatchBuffer int
	// Synchronous classifies on the caller's goroutine. Replay and tests use
	// it to get deterministic ordering against a virtual clock.
	Synchronous bool
}

// SettingsFrom maps loaded configuration onto pipeline settings.
func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		Subject:          cfg.App.SubjectID,
		WindowSize:       cfg.Window.Size,
		SMAThreshold:     cfg.Motion.SMAThreshold,
		GyroRMSThreshold: cfg.Motion.GyroRMSThreshold,
		UseGyro:          cfg.Motion.UseGyro,
		SampleRate:       cfg.Physio.SampleRate,
		PhysioWindow:     cfg.Physio.WindowSize,
		MinPeakDistance:  cfg.Physio.MinPeakDistance,
		Detrend:          cfg.Physio.Detrend,
		Normalize:        cfg.Physio.Normalize,
		TrackerSpan:      cfg.Tracker.Span,
		TrackerCoverage:  cfg.Tracker.Coverage,
		StaticRatio:      cfg.Tracker.StaticRatio,
		Policy: monitor.Policy{
			Minutes:      cfg.Monitor.NotificationMinutes,
			Margin:       cfg.Monitor.Margin,
			Floor:        cfg.Monitor.Floor,
			FloorMinutes: cfg.Monitor.FloorMinutes,
		},
		ReportAccumulated: cfg.Monitor.ReportAccumulated,
		StaleAfter:        cfg.Pipeline.StaleAfter,
		DispatchBuffer:    cfg.Pipeline.DispatchBuffer,
	}
}
