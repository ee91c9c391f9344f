package alerting

import (
	"context"
	"fmt"

	"posturewatch/internal/storage"
)

// EventInserter is the storage capability StoreNotifier needs.
type EventInserter interface {
	InsertEvent(ctx context.Context, rec storage.EventRecord) error
}

// StoreNotifier 把每个事件写入数据库审计表。
type StoreNotifier struct {
	store EventInserter
}

// NewStoreNotifier wraps store.
func NewStoreNotifier(store EventInserter) *StoreNotifier {
	return &StoreNotifier{store: store}
}

// Notify persists event.
func (n *StoreNotifier) Notify(ctx context.Context, event Event) error {
	payload, err := event.Payload()
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	rec := storage.EventRecord{
		EventID:         event.ID,
		SessionID:       event.Session,
		Subject:         event.Subject,
		Type:            string(event.Type),
		DurationMinutes: event.DurationMinutes,
		SittingMinutes:  event.SittingMinutes,
		LyingMinutes:    event.LyingMinutes,
		Payload:         payload,
		OccurredAt:      event.At,
	}
	if err := n.store.InsertEvent(ctx, rec); err != nil {
		return fmt.Errorf("persist event: %w", err)
	}
	return nil
}

var _ Notifier = (*StoreNotifier)(nil)
