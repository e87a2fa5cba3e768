package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/campusattend/attendance/internal/app"
	"github.com/campusattend/attendance/internal/config"
	"github.com/campusattend/attendance/internal/notify"
	"github.com/campusattend/attendance/internal/scheduler"
	"github.com/campusattend/attendance/internal/worker"
)

// Worker schedules the defaulter run and delivers the notices it queues.
func main() {
	runNow := flag.Bool("run-now", false, "queue defaulter notices once at startup")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer a.Close()

	n, err := notify.New(cfg.SMTP)
	if err != nil {
		log.Fatalf("notifier: %v", err)
	}

	var lock scheduler.Locker = scheduler.NoLock{}
	if a.Redis != nil {
		lock = scheduler.RedisLocker{Client: a.Redis.Client}
	}

	sched, err := scheduler.New(worker.DefaulterJob(a.Service, a.Queue), scheduler.Options{
		Name:     "defaulters",
		Spec:     scheduler.Spec(cfg.NotifySchedule, cfg.NotifyIntervalDays),
		Location: cfg.Location(),
		Lock:     lock,
		LockTTL:  time.Hour,
	})
	if err != nil {
		log.Fatalf("scheduler: %v", err)
	}
	sched.Start()

	if *runNow {
		sched.RunOnce(ctx, time.Hour)
	}

	log.Println("worker started, waiting for messages...")
	if err := worker.Consume(ctx, a.Queue, n); err != nil {
		log.Printf("consumer: %v", err)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sched.Stop(stopCtx)
	log.Println("worker stopped")
}
