package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"posturewatch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Logging     logging.Config    `mapstructure:"logging"`
	Window      WindowConfig      `mapstructure:"window"`
	Motion      MotionConfig      `mapstructure:"motion"`
	Physio      PhysioConfig      `mapstructure:"physio"`
	Classifier  ClassifierConfig  `mapstructure:"classifier"`
	Calibration CalibrationConfig `mapstructure:"calibration"`
	Tracker     TrackerConfig     `mapstructure:"tracker"`
	Monitor     MonitorConfig     `mapstructure:"monitor"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	MQTT        MQTTConfig        `mapstructure:"mqtt"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Alerting    AlertingConfig    `mapstructure:"alerting"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Export      ExportConfig      `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	SubjectID   string `mapstructure:"subject_id"`
}

// WindowConfig sizes the accelerometer windows. Stride is always size/2.
type WindowConfig struct {
	Size int `mapstructure:"size"`
}

// MotionConfig carries the motion gate thresholds in SI units.
type MotionConfig struct {
	SMAThreshold     float64 `mapstructure:"sma_threshold"`
	GyroRMSThreshold float64 `mapstructure:"gyro_rms_threshold"`
	UseGyro          bool    `mapstructure:"use_gyro"`
}

// PhysioConfig describes the optical channel feeding feature extraction.
type PhysioConfig struct {
	SampleRate      float64       `mapstructure:"sample_rate"`
	WindowSize      int           `mapstructure:"window_size"`
	MinPeakDistance time.Duration `mapstructure:"min_peak_distance"`
	Detrend         bool          `mapstructure:"detrend"`
	Normalize       bool          `mapstructure:"normalize"`
}

// ClassifierConfig selects the inference backend.
type ClassifierConfig struct {
	Backend   string              `mapstructure:"backend"`
	ModelID   string              `mapstructure:"model_id"`
	ModelPath string              `mapstructure:"model_path"`
	HTTP      InferenceHTTPConfig `mapstructure:"http"`
}

// InferenceHTTPConfig configures the remote inference endpoint.
type InferenceHTTPConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RetryCount int           `mapstructure:"retry_count"`
}

// CalibrationConfig locates per-subject calibration documents.
type CalibrationConfig struct {
	Source    string `mapstructure:"source"`
	Dir       string `mapstructure:"dir"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// TrackerConfig tunes static ratio smoothing.
type TrackerConfig struct {
	Span        time.Duration `mapstructure:"span"`
	Coverage    float64       `mapstructure:"coverage"`
	StaticRatio float64       `mapstructure:"static_ratio"`
}

// MonitorConfig drives the dwell threshold policy.
type MonitorConfig struct {
	NotificationMinutes int           `mapstructure:"notification_minutes"`
	Margin              float64       `mapstructure:"margin"`
	Floor               time.Duration `mapstructure:"floor"`
	FloorMinutes        int           `mapstructure:"floor_minutes"`
	TickInterval        time.Duration `mapstructure:"tick_interval"`
	ReportAccumulated   bool          `mapstructure:"report_accumulated"`
}

// PipelineConfig sizes internal queues and bounds decision staleness.
type PipelineConfig struct {
	DispatchBuffer int           `mapstructure:"dispatch_buffer"`
	StaleAfter     time.Duration `mapstructure:"stale_after"`
}

// MQTTConfig covers broker connectivity for samples and events.
type MQTTConfig struct {
	Broker         string        `mapstructure:"broker"`
	ClientID       string        `mapstructure:"client_id"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	SampleTopic    string        `mapstructure:"sample_topic"`
	EventTopic     string        `mapstructure:"event_topic"`
	QoS            byte          `mapstructure:"qos"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// RedisConfig captures the calibration KV store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AlertingConfig defines event routing.
type AlertingConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Channels []string      `mapstructure:"channels"`
	Webhook  WebhookConfig `mapstructure:"webhook"`
}

// WebhookConfig 描述 HTTP 事件投递参数。
type WebhookConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	// ApplicationName shows up in pg_stat_activity.
	ApplicationName string        `mapstructure:"application_name"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("POSTUREWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "posturewatch")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.subject_id", "default")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("window.size", 125)

	// 0.30 g and 0.05 rad/s
	v.SetDefault("motion.sma_threshold", 0.30*9.80665)
	v.SetDefault("motion.gyro_rms_threshold", 0.05)
	v.SetDefault("motion.use_gyro", true)

	v.SetDefault("physio.sample_rate", 25.0)
	v.SetDefault("physio.window_size", 250)
	v.SetDefault("physio.min_peak_distance", "400ms")
	v.SetDefault("physio.detrend", true)
	v.SetDefault("physio.normalize", true)

	v.SetDefault("classifier.backend", "linear")
	v.SetDefault("classifier.model_id", "posture-v1")
	v.SetDefault("classifier.model_path", "models/posture-v1.json")
	v.SetDefault("classifier.http.timeout", "2s")
	v.SetDefault("classifier.http.retry_count", 1)

	v.SetDefault("calibration.source", "file")
	v.SetDefault("calibration.dir", "calibration")
	v.SetDefault("calibration.key_prefix", "posturewatch:calib:")

	v.SetDefault("tracker.span", "40s")
	v.SetDefault("tracker.coverage", 0.92)
	v.SetDefault("tracker.static_ratio", 0.95)

	v.SetDefault("monitor.notification_minutes", 30)
	v.SetDefault("monitor.margin", 0.95)
	v.SetDefault("monitor.floor", "10s")
	v.SetDefault("monitor.floor_minutes", 1)
	v.SetDefault("monitor.tick_interval", "1s")
	v.SetDefault("monitor.report_accumulated", true)

	v.SetDefault("pipeline.dispatch_buffer", 32)
	v.SetDefault("pipeline.stale_after", "5s")

	v.SetDefault("mqtt.broker", "tcp://127.0.0.1:1883")
	v.SetDefault("mqtt.client_id", "posturewatch")
	v.SetDefault("mqtt.sample_topic", "posturewatch/samples")
	v.SetDefault("mqtt.event_topic", "posturewatch/events")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.connect_timeout", "10s")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.channels", []string{"mqtt"})
	v.SetDefault("alerting.webhook.timeout", "5s")

	v.SetDefault("export.max_data_points", 5000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.conn_max_idle_time", "5m")
	v.SetDefault("database.application_name", "posturewatch")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Window.Size < 2 {
		return fmt.Errorf("window.size must be at least 2")
	}
	if c.Motion.SMAThreshold <= 0 {
		return fmt.Errorf("motion.sma_threshold must be greater than zero")
	}
	if c.Motion.UseGyro && c.Motion.GyroRMSThreshold <= 0 {
		return fmt.Errorf("motion.gyro_rms_threshold must be greater than zero")
	}
	if c.Physio.SampleRate <= 0 {
		return fmt.Errorf("physio.sample_rate must be greater than zero")
	}
	if c.Physio.WindowSize <= 0 {
		return fmt.Errorf("physio.window_size must be greater than zero")
	}
	switch c.Classifier.Backend {
	case "linear":
		if c.Classifier.ModelPath == "" {
			return fmt.Errorf("classifier.model_path is required for the linear backend")
		}
	case "http":
		if c.Classifier.HTTP.BaseURL == "" {
			return fmt.Errorf("classifier.http.base_url is required for the http backend")
		}
	default:
		return fmt.Errorf("classifier.backend %q is not supported", c.Classifier.Backend)
	}
	switch c.Calibration.Source {
	case "file", "redis", "none":
	default:
		return fmt.Errorf("calibration.source %q is not supported", c.Calibration.Source)
	}
	if c.Tracker.Span <= 0 {
		return fmt.Errorf("tracker.span must be greater than zero")
	}
	if c.Tracker.Coverage <= 0 || c.Tracker.Coverage > 1 {
		return fmt.Errorf("tracker.coverage must be in (0, 1]")
	}
	if c.Tracker.StaticRatio < 0 || c.Tracker.StaticRatio > 1 {
		return fmt.Errorf("tracker.static_ratio must be in [0, 1]")
	}
	if c.Monitor.NotificationMinutes < 0 {
		return fmt.Errorf("monitor.notification_minutes cannot be negative")
	}
	if c.Monitor.Margin <= 0 || c.Monitor.Margin > 1 {
		return fmt.Errorf("monitor.margin must be in (0, 1]")
	}
	if c.Monitor.TickInterval <= 0 {
		return fmt.Errorf("monitor.tick_interval must be greater than zero")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Enabled {
		for _, ch := range c.Alerting.Channels {
			switch ch {
			case "mqtt":
				if c.MQTT.Broker == "" {
					return fmt.Errorf("mqtt.broker is required for the mqtt channel")
				}
			case "webhook":
				if c.Alerting.Webhook.URL == "" {
					return fmt.Errorf("alerting.webhook.url 必须配置")
				}
			case "store":
				if c.Database.DSN == "" {
					return fmt.Errorf("database.dsn is required for the store channel")
				}
			default:
				return fmt.Errorf("alerting channel %q is not supported", ch)
			}
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
