// Package broker opens paho MQTT connections from configuration.
package broker

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"posturewatch/internal/config"
)

// Connect dials the broker and blocks until the connection is up, the
// configured timeout passes, or ctx is done. role is appended to the client
// id so the sample reader and the event publisher can share a config.
func Connect(ctx context.Context, cfg config.MQTTConfig, role string, logger zerolog.Logger) (mqtt.Client, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt.broker is required")
	}
	log := logger.With().Str("component", "mqtt").Str("role", role).Logger()

	clientID := cfg.ClientID
	if role != "" {
		clientID += "-" + role
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetMaxReconnectInterval(30 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn().Err(err).Msg("mqtt connection lost")
		}).
		SetOnConnectHandler(func(_ mqtt.Client) {
			log.Info().Str("broker", cfg.Broker).Msg("mqtt connected")
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-timer.C:
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connect %s: timed out after %s", cfg.Broker, timeout)
	case <-ctx.Done():
		client.Disconnect(0)
		return nil, ctx.Err()
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	return client, nil
}
