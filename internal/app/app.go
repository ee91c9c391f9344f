package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"posturewatch/internal/alerting"
	"posturewatch/internal/broker"
	"posturewatch/internal/calibration"
	"posturewatch/internal/classifier"
	"posturewatch/internal/config"
	"posturewatch/internal/logging"
	"posturewatch/internal/pipeline"
	"posturewatch/internal/scheduler"
	"posturewatch/internal/source"
	"posturewatch/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	models *classifier.Registry
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config: cfg,
		Logger: logger.With().Str("component", "app").Logger(),
		models: classifier.NewRegistry(),
	}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) openRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})
}

type calibrationDocs interface {
	calibration.Source
	calibration.Sink
}

// calibrationStore returns the configured document store and a closer. The
// store is nil when calibration is disabled.
func (a *App) calibrationStore() (calibrationDocs, func()) {
	switch a.Config.Calibration.Source {
	case "file":
		return calibration.NewFileSource(a.Config.Calibration.Dir), func() {}
	case "redis":
		client := a.openRedis()
		return calibration.NewRedisSource(client, a.Config.Calibration.KeyPrefix), func() { _ = client.Close() }
	default:
		return nil, func() {}
	}
}

func (a *App) loadModel(ctx context.Context) (classifier.Model, error) {
	cfg := a.Config.Classifier
	return a.models.Get(ctx, cfg.ModelID, func(context.Context) (classifier.Model, error) {
		switch cfg.Backend {
		case "http":
			return classifier.NewHTTPModel(classifier.HTTPOptions{
				BaseURL:    cfg.HTTP.BaseURL,
				ModelID:    cfg.ModelID,
				Timeout:    cfg.HTTP.Timeout,
				RetryCount: cfg.HTTP.RetryCount,
			}), nil
		default:
			return classifier.LoadLinearModel(cfg.ModelPath)
		}
	})
}

// newClassifier loads the model and the subject's calibration once.
func (a *App) newClassifier(ctx context.Context, logger zerolog.Logger) (*classifier.Classifier, error) {
	model, err := a.loadModel(ctx)
	if err != nil {
		return nil, err
	}

	var src calibration.Source
	store, closeStore := a.calibrationStore()
	defer closeStore()
	if store != nil {
		src = store
	}
	profile := calibration.Load(ctx, src, a.Config.App.SubjectID, logger)
	return classifier.New(model, profile, logger), nil
}

// newNotifier fans events out to every configured channel. client may be
// nil when the mqtt channel is not used.
func (a *App) newNotifier(client alerting.Publisher, store *storage.Store) (alerting.Notifier, error) {
	if !a.Config.Alerting.Enabled {
		return alerting.Multi{}, nil
	}
	var multi alerting.Multi
	for _, ch := range a.Config.Alerting.Channels {
		switch ch {
		case "mqtt":
			if client == nil {
				return nil, errors.New("alerting channel mqtt requires a broker connection")
			}
			multi = append(multi, alerting.NewMQTTNotifier(client, a.Config.MQTT.EventTopic, a.Config.MQTT.QoS, a.Logger))
		case "webhook":
			cfg := a.Config.Alerting.Webhook
			multi = append(multi, alerting.NewWebhookNotifier(cfg.URL, cfg.Timeout, a.Logger))
		case "store":
			if store == nil {
				return nil, errors.New("alerting channel store requires a database")
			}
			multi = append(multi, alerting.NewStoreNotifier(store))
		default:
			return nil, fmt.Errorf("unknown alerting channel %q", ch)
		}
	}
	return multi, nil
}

func (a *App) usesChannel(name string) bool {
	if !a.Config.Alerting.Enabled {
		return false
	}
	for _, ch := range a.Config.Alerting.Channels {
		if ch == name {
			return true
		}
	}
	return false
}

// Run executes the long-running monitoring service: samples arrive over
// MQTT and the dwell monitor ticks on the wall clock.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := logging.WithSession(a.Logger, "", a.Config.App.SubjectID)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	} else {
		defer closeStore()
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	client, err := broker.Connect(ctx, a.Config.MQTT, "run", a.Logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	notifier, err := a.newNotifier(client, store)
	if err != nil {
		return err
	}

	clf, err := a.newClassifier(ctx, logger)
	if err != nil {
		return err
	}

	deps := pipeline.Deps{Classifier: clf, Notifier: notifier}
	if store != nil {
		deps.Recorder = store
	}
	p, err := pipeline.New(pipeline.SettingsFrom(a.Config), deps, logger)
	if err != nil {
		return err
	}
	if err := p.Start(ctx); err != nil {
		return err
	}
	defer p.Close()

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Monitor.TickInterval,
		AlignToStart: true,
	}, a.Logger)
	src := source.NewMQTTSource(client, a.Config.MQTT.SampleTopic, a.Config.MQTT.QoS, a.Logger)

	errs := make(chan error, 2)
	go func() { errs <- src.Run(ctx, p.HandleReading) }()
	go func() { errs <- sched.Run(ctx, p.Tick) }()

	a.Logger.Info().Str("session", p.Session()).Msg("starting posture monitor")
	err = <-errs
	cancel()
	<-errs

	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("monitor terminated with error")
		return err
	}
	a.Logger.Info().Interface("stats", p.Stats()).Msg("posture monitor stopped")
	return nil
}
