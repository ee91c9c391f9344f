package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"posturewatch/internal/alerting"
	"posturewatch/internal/broker"
	"posturewatch/internal/classifier"
	"posturewatch/internal/pipeline"
	"posturewatch/internal/source"
)

// ReplayOptions configure an offline run over a CSV capture.
type ReplayOptions struct {
	Path string
	// Speed scales recorded gaps; 0 replays as fast as possible.
	Speed float64
	// Notify also delivers events to the configured channels.
	Notify bool
	Out    io.Writer
}

// replayClock follows the timestamps of the replayed readings.
type replayClock struct {
	t time.Time
}

func (c *replayClock) Now() time.Time { return c.t }

// Replay runs the pipeline over a capture with dwell ticks driven by sample
// time and prints every event as one JSON line.
func (a *App) Replay(ctx context.Context, opts ReplayOptions) error {
	file, err := os.Open(opts.Path)
	if err != nil {
		return fmt.Errorf("open capture: %w", err)
	}
	defer file.Close()

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	printer := alerting.NotifierFunc(func(_ context.Context, ev alerting.Event) error {
		payload, err := ev.Payload()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "%s %s %s\n", ev.At.UTC().Format(time.RFC3339), ev.Type, payload)
		return err
	})
	notifier := alerting.Multi{printer}

	if opts.Notify {
		store, closeStore, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		if closeStore != nil {
			defer closeStore()
		}
		var pub alerting.Publisher
		if a.usesChannel("mqtt") {
			client, err := broker.Connect(ctx, a.Config.MQTT, "replay", a.Logger)
			if err != nil {
				return err
			}
			defer client.Disconnect(250)
			pub = client
		}
		extra, err := a.newNotifier(pub, store)
		if err != nil {
			return err
		}
		notifier = append(notifier, extra)
	}

	clf, err := a.newClassifier(ctx, a.Logger)
	if err != nil {
		return err
	}

	stats, err := a.replay(ctx, file, clf, notifier, opts.Speed)
	if err != nil {
		return err
	}
	a.Logger.Info().Interface("stats", stats).Msg("replay complete")
	return nil
}

func (a *App) replay(ctx context.Context, r io.Reader, clf *classifier.Classifier, notifier alerting.Notifier, speed float64) (pipeline.Stats, error) {
	clock := &replayClock{}
	settings := pipeline.SettingsFrom(a.Config)
	settings.Synchronous = true

	p, err := pipeline.New(settings, pipeline.Deps{Classifier: clf, Notifier: notifier, Clock: clock.Now}, a.Logger)
	if err != nil {
		return pipeline.Stats{}, err
	}
	if err := p.Start(ctx); err != nil {
		return pipeline.Stats{}, err
	}

	interval := a.Config.Monitor.TickInterval
	var next time.Time
	handle := func(rd source.Reading) {
		if next.IsZero() {
			next = rd.T.Add(interval)
		}
		for !rd.T.Before(next) {
			clock.t = next
			if err := p.Tick(ctx, next); err != nil {
				a.Logger.Error().Err(err).Time("at", next).Msg("replay tick failed")
			}
			next = next.Add(interval)
		}
		clock.t = rd.T
		p.HandleReading(rd)
	}

	src := source.NewCSVSource(r, speed, a.Logger)
	runErr := src.Run(ctx, handle)
	stats := p.Stats()
	p.Close()
	return stats, runErr
}
