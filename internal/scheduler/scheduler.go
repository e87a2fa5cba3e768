// Package scheduler runs the recurring defaulter job.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

// Job is one scheduled run. runID identifies the run in logs.
type Job func(ctx context.Context, runID string) error

// Locker guards a run so only one worker executes a given slot.
type Locker interface {
	Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
}

// RedisLocker takes a SET NX lock that expires on its own.
type RedisLocker struct {
	Client *redis.Client
}

// Acquire reports whether this owner got the lock.
func (l RedisLocker) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return l.Client.SetNX(ctx, key, owner, ttl).Result()
}

// NoLock always grants the lock; used when Redis is not available.
type NoLock struct{}

// Acquire always succeeds.
func (NoLock) Acquire(context.Context, string, string, time.Duration) (bool, error) {
	return true, nil
}

// Spec returns the cron spec: a fixed interval in days when intervalDays > 0,
// otherwise the calendar expression.
func Spec(calendar string, intervalDays int) string {
	if intervalDays > 0 {
		return fmt.Sprintf("@every %s", time.Duration(intervalDays)*24*time.Hour)
	}
	return calendar
}

// Scheduler wraps a cron runner with a lock and a per-run timeout.
type Scheduler struct {
	cron    *cron.Cron
	lock    Locker
	name    string
	timeout time.Duration
	job     Job
}

// Options configure a Scheduler.
type Options struct {
	Name     string
	Spec     string
	Location *time.Location
	Lock     Locker
	// LockTTL should exceed the job's run time and stay below the schedule period.
	LockTTL time.Duration
	Timeout time.Duration
}

// New registers job on spec. A panic inside the job is recovered and logged so the
// worker keeps running.
func New(job Job, opts Options) (*Scheduler, error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Lock == nil {
		opts.Lock = NoLock{}
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = time.Hour
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Minute
	}
	if opts.Name == "" {
		opts.Name = "job"
	}

	logger := cron.PrintfLogger(log.Default())
	c := cron.New(
		cron.WithLocation(opts.Location),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	s := &Scheduler{cron: c, lock: opts.Lock, name: opts.Name, timeout: opts.Timeout, job: job}

	if _, err := c.AddFunc(opts.Spec, func() { s.RunOnce(context.Background(), opts.LockTTL) }); err != nil {
		return nil, fmt.Errorf("schedule %s %q: %w", opts.Name, opts.Spec, err)
	}
	return s, nil
}

// Start begins firing on schedule.
func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		log.Printf("%s scheduled, next run %s", s.name, e.Next.Format(time.RFC3339))
	}
}

// Stop halts the schedule and waits for a running job until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// RunOnce executes the job now if the lock is free. It reports whether the job ran.
func (s *Scheduler) RunOnce(ctx context.Context, lockTTL time.Duration) bool {
	runID := ulid.Make().String()

	ok, err := s.lock.Acquire(ctx, "campusattend:lock:"+s.name, runID, lockTTL)
	if err != nil {
		log.Printf("%s run %s: lock failed: %v", s.name, runID, err)
		return false
	}
	if !ok {
		log.Printf("%s run %s: another worker holds the lock, skipping", s.name, runID)
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	log.Printf("%s run %s started", s.name, runID)
	if err := s.job(ctx, runID); err != nil {
		log.Printf("%s run %s failed after %s: %v", s.name, runID, time.Since(start).Round(time.Millisecond), err)
		return true
	}
	log.Printf("%s run %s finished in %s", s.name, runID, time.Since(start).Round(time.Millisecond))
	return true
}
