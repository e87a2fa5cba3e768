// Package worker holds the defaulter notice pipeline: a scheduled producer that queues
// one notice per defaulter, and a consumer that mails them.
package worker

import (
	"context"
	"fmt"
	"log"

	"github.com/campusattend/attendance/internal/attendance"
	"github.com/campusattend/attendance/internal/notify"
	"github.com/campusattend/attendance/internal/queue"
	"github.com/campusattend/attendance/internal/scheduler"
)

// DefaulterSource lists current defaulters with contact details.
type DefaulterSource interface {
	Defaulters(ctx context.Context) ([]attendance.Defaulter, error)
}

// DefaulterJob returns a scheduled job that queues a notice for every defaulter.
func DefaulterJob(src DefaulterSource, q queue.Queue) scheduler.Job {
	return func(ctx context.Context, runID string) error {
		ds, err := src.Defaulters(ctx)
		if err != nil {
			return fmt.Errorf("compute defaulters: %w", err)
		}
		n, err := queue.PublishDefaulters(ctx, q, ds)
		if err != nil {
			return fmt.Errorf("queued %d of %d notices: %w", n, len(ds), err)
		}
		log.Printf("run %s: queued %d defaulter notices", runID, n)
		return nil
	}
}

// Consume delivers queued notices until ctx is done. Undecodable messages and failed
// sends are logged and skipped.
func Consume(ctx context.Context, q queue.Queue, n notify.Notifier) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init: %w", err)
	}
	for msg := range messages {
		if msg.Type != queue.TypeDefaulterNotice {
			log.Printf("skipping message of type %q", msg.Type)
			continue
		}
		d, err := queue.DecodeDefaulter(msg)
		if err != nil {
			log.Printf("bad defaulter notice: %v", err)
			continue
		}
		_ = notify.Send(ctx, n, d)
	}
	return nil
}
