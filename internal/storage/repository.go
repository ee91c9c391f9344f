package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

//go:embed schema.sql
var schemaSQL string

const (
	insertEventSQL = `INSERT INTO posture_events (
        event_id,
        session_id,
        subject_id,
        event_type,
        duration_minutes,
        sitting_minutes,
        lying_minutes,
        payload,
        occurred_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    )
    ON CONFLICT (event_id) DO NOTHING;`

	listRecentEventsSQL = `SELECT
        id,
        event_id,
        session_id,
        subject_id,
        event_type,
        duration_minutes,
        sitting_minutes,
        lying_minutes,
        payload,
        occurred_at,
        created_at
    FROM posture_events
    ORDER BY occurred_at DESC
    LIMIT $1;`

	countEventsSQL = `SELECT COUNT(*) FROM posture_events;`

	deleteEventsBeforeSQL = `DELETE FROM posture_events WHERE occurred_at < $1;`

	insertClassificationSQL = `INSERT INTO classifications (
        observed_at,
        session_id,
        subject_id,
        label,
        confidence,
        static_ratio,
        missing_features
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    ON CONFLICT (session_id, observed_at) DO UPDATE
    SET label            = EXCLUDED.label,
        confidence       = EXCLUDED.confidence,
        static_ratio     = EXCLUDED.static_ratio,
        missing_features = EXCLUDED.missing_features;`

	listClassificationsBetweenSQL = `SELECT
        observed_at,
        session_id,
        subject_id,
        label,
        confidence::text,
        static_ratio::text,
        missing_features,
        created_at
    FROM classifications
    WHERE observed_at >= $1
      AND observed_at < $2
    ORDER BY observed_at;`
)

// EventStore persists delivered posture events.
type EventStore interface {
	InsertEvent(ctx context.Context, rec EventRecord) error
	ListRecentEvents(ctx context.Context, limit int) ([]EventRecord, error)
	CountEvents(ctx context.Context) (int64, error)
	DeleteEventsBefore(ctx context.Context, olderThan time.Time) error
}

// ClassificationStore persists the per-window classification log.
type ClassificationStore interface {
	InsertClassification(ctx context.Context, rec ClassificationRecord) error
	ListClassificationsBetween(ctx context.Context, from, to time.Time) ([]ClassificationRecord, error)
}

// Store aggregates access to events and classifications.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the tables when they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// InsertEvent stores rec; replays of the same event id are ignored.
func (s *Store) InsertEvent(ctx context.Context, rec EventRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	payload := []byte(rec.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	_, execErr := pool.Exec(ctx, insertEventSQL,
		rec.EventID,
		rec.SessionID,
		rec.Subject,
		rec.Type,
		rec.DurationMinutes,
		rec.SittingMinutes,
		rec.LyingMinutes,
		payload,
		rec.OccurredAt,
	)
	if execErr != nil {
		return fmt.Errorf("insert event: %w", execErr)
	}
	return nil
}

// ListRecentEvents lists the newest events first.
func (s *Store) ListRecentEvents(ctx context.Context, limit int) ([]EventRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentEventsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent events: %w", queryErr)
	}
	defer rows.Close()

	events := make([]EventRecord, 0, limit)
	for rows.Next() {
		rec, scanErr := scanEvent(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		events = append(events, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return events, nil
}

// CountEvents counts stored events.
func (s *Store) CountEvents(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countEventsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count events: %w", scanErr)
	}
	return count, nil
}

// DeleteEventsBefore prunes history.
func (s *Store) DeleteEventsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteEventsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete events before: %w", execErr)
	}
	return nil
}

// InsertClassification upserts one classified window.
func (s *Store) InsertClassification(ctx context.Context, rec ClassificationRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	_, execErr := pool.Exec(ctx, insertClassificationSQL,
		rec.At,
		rec.SessionID,
		rec.Subject,
		rec.Label,
		rec.Confidence.StringFixed(5),
		rec.StaticRatio.StringFixed(5),
		rec.MissingFeatures,
	)
	if execErr != nil {
		return fmt.Errorf("insert classification: %w", execErr)
	}
	return nil
}

// ListClassificationsBetween lists classifications in [from, to).
func (s *Store) ListClassificationsBetween(ctx context.Context, from, to time.Time) ([]ClassificationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listClassificationsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list classifications between: %w", queryErr)
	}
	defer rows.Close()

	out := make([]ClassificationRecord, 0)
	for rows.Next() {
		rec, scanErr := scanClassification(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func scanEvent(rows pgx.Rows) (EventRecord, error) {
	var rec EventRecord
	var payload []byte
	if err := rows.Scan(
		&rec.ID,
		&rec.EventID,
		&rec.SessionID,
		&rec.Subject,
		&rec.Type,
		&rec.DurationMinutes,
		&rec.SittingMinutes,
		&rec.LyingMinutes,
		&payload,
		&rec.OccurredAt,
		&rec.CreatedAt,
	); err != nil {
		return EventRecord{}, err
	}
	rec.Payload = payload
	return rec, nil
}

func scanClassification(rows pgx.Rows) (ClassificationRecord, error) {
	var (
		rec           ClassificationRecord
		confidenceStr string
		ratioStr      string
	)
	if err := rows.Scan(
		&rec.At,
		&rec.SessionID,
		&rec.Subject,
		&rec.Label,
		&confidenceStr,
		&ratioStr,
		&rec.MissingFeatures,
		&rec.CreatedAt,
	); err != nil {
		return ClassificationRecord{}, err
	}

	var err error
	rec.Confidence, err = decimal.NewFromString(confidenceStr)
	if err != nil {
		return ClassificationRecord{}, fmt.Errorf("parse confidence: %w", err)
	}
	rec.StaticRatio, err = decimal.NewFromString(ratioStr)
	if err != nil {
		return ClassificationRecord{}, fmt.Errorf("parse static ratio: %w", err)
	}
	return rec, nil
}
