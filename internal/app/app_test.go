package app

import (
	"context"
	"testing"

	"github.com/campusattend/attendance/internal/config"
	"github.com/campusattend/attendance/internal/queue"
)

func sqliteConfig() config.App {
	return config.App{
		DBDriver:            "sqlite3",
		DatabaseURL:         ":memory:",
		QueueBackend:        "memory",
		FaceServiceURL:      "http://localhost:8000",
		MatchPolicy:         "best-match",
		MatchThreshold:      0.5,
		AttendanceThreshold: 75,
		CampusTZ:            "Asia/Kolkata",
	}
}

func TestOpen_Memory(t *testing.T) {
	a, err := Open(context.Background(), sqliteConfig())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.Close()

	if _, ok := a.Queue.(*queue.InMemory); !ok {
		t.Errorf("expected in-memory queue, got %T", a.Queue)
	}
	if a.Redis != nil {
		t.Error("redis should not be opened for the memory backend")
	}
	if _, err := a.Service.ListStudents(context.Background()); err != nil {
		t.Errorf("service not usable: %v", err)
	}
}

func TestOpen_Errors(t *testing.T) {
	cfg := sqliteConfig()
	cfg.QueueBackend = "redis"
	cfg.RedisAddr = ""
	if _, err := Open(context.Background(), cfg); err == nil {
		t.Error("expected error for redis backend without address")
	}

	cfg = sqliteConfig()
	cfg.MatchPolicy = "coin-flip"
	if _, err := Open(context.Background(), cfg); err == nil {
		t.Error("expected error for unknown policy")
	}

	cfg = sqliteConfig()
	cfg.DBDriver = "oracle"
	if _, err := Open(context.Background(), cfg); err == nil {
		t.Error("expected error for unsupported driver")
	}
}
