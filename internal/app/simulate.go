package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"posturewatch/internal/alerting"
	"posturewatch/internal/broker"
)

// SimulateWarn 绕过处理流水线，通过已配置的通道发送一次模拟久坐/久卧告警。
func (a *App) SimulateWarn(ctx context.Context, kind string, minutes int) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}

	var evType alerting.EventType
	switch kind {
	case "sitting":
		evType = alerting.SittingLong
	case "lying":
		evType = alerting.LyingLong
	default:
		return fmt.Errorf("不支持的姿态 %q（可选 sitting 或 lying）", kind)
	}
	if minutes <= 0 {
		minutes = a.Config.Monitor.NotificationMinutes
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}
	var pub alerting.Publisher
	if a.usesChannel("mqtt") {
		client, err := broker.Connect(ctx, a.Config.MQTT, "simulate", a.Logger)
		if err != nil {
			return err
		}
		defer client.Disconnect(250)
		pub = client
	}
	notifier, err := a.newNotifier(pub, store)
	if err != nil {
		return err
	}

	event := alerting.Event{
		ID:              uuid.NewString(),
		Session:         "simulated",
		Type:            evType,
		At:              time.Now().UTC(),
		Subject:         a.Config.App.SubjectID,
		DurationMinutes: max(minutes, 1),
	}
	if err := notifier.Notify(ctx, event); err != nil {
		return fmt.Errorf("模拟告警发送失败: %w", err)
	}
	a.Logger.Info().Str("type", string(evType)).Int("duration_minutes", event.DurationMinutes).Msg("模拟告警已发送")
	return nil
}
