// Package alerting delivers posture events to the companion device and to
// auxiliary sinks. Delivery is best effort and at most once.
package alerting

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Notifier 定义事件投递接口。
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// WebhookNotifier 以 JSON POST 方式把事件推送到固定 URL。
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

// NewWebhookNotifier 构造 HTTP 投递器。
func NewWebhookNotifier(url string, timeout time.Duration, logger zerolog.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{
		url:    strings.TrimRight(url, "/"),
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "alert_webhook").Logger(),
	}
}

// Notify 只发送一次请求，不重试。
func (n *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	body, err := event.Payload()
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", string(event.Type))
	if event.ID != "" {
		req.Header.Set("X-Event-Id", event.ID)
	}
	if event.Subject != "" {
		req.Header.Set("X-Subject-Id", event.Subject)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook 响应码异常: %d", resp.StatusCode)
	}

	n.logger.Info().Str("type", string(event.Type)).Str("event_id", event.ID).Msg("事件已发送 (webhook)")
	return nil
}

// Multi 把事件分发给所有投递器并合并错误。
type Multi []Notifier

// Notify calls every notifier even if an earlier one fails.
func (m Multi) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event Event) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, event Event) error { return f(ctx, event) }

var (
	_ Notifier = (*WebhookNotifier)(nil)
	_ Notifier = Multi(nil)
	_ Notifier = NotifierFunc(nil)
)
