// Package app wires storage, recognition and the attendance service from config. It is
// shared by the api, worker and attendctl binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/campusattend/attendance/internal/attendance"
	"github.com/campusattend/attendance/internal/config"
	"github.com/campusattend/attendance/internal/faceclient"
	"github.com/campusattend/attendance/internal/queue"
	"github.com/campusattend/attendance/internal/recognition"
	"github.com/campusattend/attendance/internal/store"
)

// App holds the long-lived dependencies of one process.
type App struct {
	Config  config.App
	DB      *store.DB
	Redis   *store.Redis
	Repo    *attendance.Repository
	Face    *faceclient.Client
	Service *attendance.Service
	Queue   queue.Queue
}

// Open connects the database, migrates it, and builds the service. Redis is opened
// only when the queue backend needs it.
func Open(ctx context.Context, cfg config.App) (*App, error) {
	db, err := store.NewDB(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db migrate: %w", err)
	}

	a := &App{Config: cfg, DB: db}

	if cfg.QueueBackend == "memory" {
		a.Queue = queue.NewInMemory(256)
	} else {
		a.Redis = store.NewRedis(cfg.RedisAddr)
		if a.Redis == nil {
			db.Close()
			return nil, errors.New("QUEUE_BACKEND=redis requires REDIS_ADDR")
		}
		a.Queue = queue.NewRedisQueue(a.Redis.Client, queue.DefaultKey)
	}

	policy, err := recognition.ParsePolicy(cfg.MatchPolicy)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Face = faceclient.New(cfg.FaceServiceURL)
	rec := recognition.New(a.Face, recognition.Options{
		Policy:    policy,
		Threshold: cfg.MatchThreshold,
		Timeout:   cfg.RecognitionTimeout,
	})

	a.Repo = attendance.NewRepository(db.Client)
	a.Service = attendance.NewService(a.Repo, rec,
		attendance.WithLocation(cfg.Location()),
		attendance.WithThreshold(cfg.AttendanceThreshold),
	)
	log.Printf("attendance service ready: driver=%s queue=%s policy=%s tz=%s", cfg.DBDriver, cfg.QueueBackend, policy, cfg.CampusTZ)
	return a, nil
}

// Close releases the database and redis connections.
func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}
