package source

import (
	"context"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// Subscriber is the part of a paho client MQTTSource needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

// MQTTSource reads JSON samples from a broker topic.
type MQTTSource struct {
	client Subscriber
	topic  string
	qos    byte
	logger zerolog.Logger
}

// NewMQTTSource wraps a connected client.
func NewMQTTSource(client Subscriber, topic string, qos byte, logger zerolog.Logger) *MQTTSource {
	return &MQTTSource{
		client: client,
		topic:  topic,
		qos:    qos,
		logger: logger.With().Str("component", "mqtt_source").Str("topic", topic).Logger(),
	}
}

// Run subscribes and blocks until ctx is done. Payloads that fail to decode
// are logged and dropped.
func (s *MQTTSource) Run(ctx context.Context, handle Handler) error {
	token := s.client.Subscribe(s.topic, s.qos, func(_ mqtt.Client, msg mqtt.Message) {
		r, err := ParseJSON(msg.Payload())
		if err != nil {
			s.logger.Warn().Err(err).Msg("dropping malformed sample")
			return
		}
		handle(r)
	})
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.topic, err)
	}
	s.logger.Info().Msg("subscribed to sample feed")

	<-ctx.Done()
	s.client.Unsubscribe(s.topic).Wait()
	return ctx.Err()
}

var _ SampleSource = (*MQTTSource)(nil)
