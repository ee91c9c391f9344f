package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"posturewatch/internal/config"
)

func TestUnconfiguredStoreReturnsErrNotConfigured(t *testing.T) {
	var s *Store
	ctx := context.Background()

	if err := s.InsertEvent(ctx, EventRecord{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("InsertEvent err = %v", err)
	}
	if _, err := s.ListRecentEvents(ctx, 10); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("ListRecentEvents err = %v", err)
	}
	if err := s.InsertClassification(ctx, ClassificationRecord{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("InsertClassification err = %v", err)
	}
	if _, err := NewStore(nil).ListClassificationsBetween(ctx, time.Time{}, time.Now()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("ListClassificationsBetween err = %v", err)
	}
	if err := s.EnsureSchema(ctx); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("EnsureSchema err = %v", err)
	}
	s.Close()
}

func TestSchemaDeclaresTables(t *testing.T) {
	for _, table := range []string{"posture_events", "classifications"} {
		if !strings.Contains(schemaSQL, "CREATE TABLE IF NOT EXISTS "+table) {
			t.Fatalf("schema is missing table %s", table)
		}
	}
}

func TestNewPoolRequiresDSN(t *testing.T) {
	if _, err := NewPool(context.Background(), config.DatabaseConfig{}); err == nil {
		t.Fatal("expected error for empty dsn")
	}
	if _, err := NewPool(context.Background(), config.DatabaseConfig{DSN: "postgres://user@localhost:notaport/db"}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestPoolConfigSessionSettings(t *testing.T) {
	cfg, err := poolConfigFrom(config.DatabaseConfig{
		DSN:             "postgres://user@localhost:5432/posture",
		MaxOpenConns:    4,
		ConnMaxIdleTime: time.Minute,
		ApplicationName: "posturewatch-test",
	})
	if err != nil {
		t.Fatalf("poolConfigFrom: %v", err)
	}
	if cfg.MaxConns != 4 || cfg.MaxConnIdleTime != time.Minute {
		t.Fatalf("pool limits = %d / %s", cfg.MaxConns, cfg.MaxConnIdleTime)
	}
	params := cfg.ConnConfig.RuntimeParams
	if params["application_name"] != "posturewatch-test" {
		t.Fatalf("application_name = %q", params["application_name"])
	}
	if params["timezone"] != "UTC" {
		t.Fatalf("timezone = %q", params["timezone"])
	}
}

func TestPoolConfigKeepsDSNTimeZone(t *testing.T) {
	cfg, err := poolConfigFrom(config.DatabaseConfig{DSN: "postgres://user@localhost:5432/posture?timezone=Europe/Berlin"})
	if err != nil {
		t.Fatalf("poolConfigFrom: %v", err)
	}
	if got := cfg.ConnConfig.RuntimeParams["timezone"]; got != "Europe/Berlin" {
		t.Fatalf("timezone = %q", got)
	}
}
