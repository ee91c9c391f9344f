package alerting

import (
	"context"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// Topic suffixes per event family.
const (
	topicWarn  = "static_warn"
	topicBreak = "static_break"
	topicAccum = "static_accum_time"
)

// Publisher is the part of a paho client the notifier needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTNotifier 把事件发布到 <base>/<subject>/<family>。
type MQTTNotifier struct {
	client Publisher
	base   string
	qos    byte
	logger zerolog.Logger
}

// NewMQTTNotifier 包装一个已连接的客户端。
func NewMQTTNotifier(client Publisher, baseTopic string, qos byte, logger zerolog.Logger) *MQTTNotifier {
	return &MQTTNotifier{
		client: client,
		base:   strings.TrimRight(baseTopic, "/"),
		qos:    qos,
		logger: logger.With().Str("component", "alert_mqtt").Logger(),
	}
}

// Topic returns the topic event is published on.
func (n *MQTTNotifier) Topic(event Event) string {
	family := topicBreak
	switch {
	case event.Type.IsWarning():
		family = topicWarn
	case event.Type == StaticAccum:
		family = topicAccum
	}
	subject := event.Subject
	if subject == "" {
		subject = "default"
	}
	return n.base + "/" + subject + "/" + family
}

// Notify 发布消息并等待 broker 确认或 ctx 结束。
func (n *MQTTNotifier) Notify(ctx context.Context, event Event) error {
	payload, err := event.Payload()
	if err != nil {
		return fmt.Errorf("marshal mqtt payload: %w", err)
	}
	topic := n.Topic(event)
	token := n.client.Publish(topic, n.qos, false, payload)

	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publish %s: %w", topic, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	n.logger.Info().Str("type", string(event.Type)).Str("topic", topic).Msg("事件已发送 (MQTT)")
	return nil
}

var _ Notifier = (*MQTTNotifier)(nil)
