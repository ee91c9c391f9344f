package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gonum.org/v1/gonum/stat"

	"posturewatch/internal/calibration"
	"posturewatch/internal/pipeline"
	"posturewatch/internal/source"
)

// CalibrateOptions configure building a calibration profile from a capture.
type CalibrateOptions struct {
	Path    string
	Subject string
	// DryRun prints the document instead of saving it.
	DryRun bool
	Out    io.Writer
}

// Calibrate extracts feature windows from a resting capture and stores the
// resulting profile in the configured calibration source.
func (a *App) Calibrate(ctx context.Context, opts CalibrateOptions) error {
	subject := opts.Subject
	if subject == "" {
		subject = a.Config.App.SubjectID
	}

	file, err := os.Open(opts.Path)
	if err != nil {
		return fmt.Errorf("open capture: %w", err)
	}
	defer file.Close()

	doc, err := a.buildCalibration(ctx, file, subject, time.Now())
	if err != nil {
		return err
	}
	data, err := doc.Marshal()
	if err != nil {
		return err
	}

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	store, closeStore := a.calibrationStore()
	defer closeStore()
	if opts.DryRun || store == nil {
		if store == nil && !opts.DryRun {
			a.Logger.Warn().Msg("calibration.source is none; printing document instead of saving")
		}
		_, err := fmt.Fprintln(out, string(data))
		return err
	}

	if err := store.Save(ctx, subject, data); err != nil {
		return fmt.Errorf("save calibration: %w", err)
	}
	a.Logger.Info().
		Str("subject", subject).
		Str("source", a.Config.Calibration.Source).
		Int("windows", doc.Windows).
		Msg("calibration saved")
	return nil
}

// buildCalibration slides a half-overlapping physio window across every
// optical sample in r.
func (a *App) buildCalibration(ctx context.Context, r io.Reader, subject string, now time.Time) (calibration.Document, error) {
	var samples []float64
	src := source.NewCSVSource(r, 0, a.Logger)
	if err := src.Run(ctx, func(rd source.Reading) {
		if rd.Kind == source.KindPPG {
			samples = append(samples, rd.V)
		}
	}); err != nil {
		return calibration.Document{}, err
	}

	settings := pipeline.SettingsFrom(a.Config)
	size := settings.PhysioWindow
	if len(samples) < size {
		return calibration.Document{}, fmt.Errorf("capture holds %d optical samples, need at least %d", len(samples), size)
	}

	mu, sigma := stat.PopMeanStdDev(samples, nil)
	raw := calibration.RawStats{Mu: mu, Sigma: sigma}
	featurizer := pipeline.NewFeaturizer(settings)
	builder := calibration.NewBuilder(subject)
	builder.AddRaw(samples...)

	stride := max(size/2, 1)
	for start := 0; start+size <= len(samples); start += stride {
		v, err := featurizer.Features(samples[start:start+size], raw)
		if err != nil {
			return calibration.Document{}, err
		}
		builder.AddWindow(v)
	}

	doc, err := builder.Document(now)
	if errors.Is(err, calibration.ErrNoWindows) {
		return calibration.Document{}, fmt.Errorf("capture too short: %w", err)
	}
	return doc, err
}
