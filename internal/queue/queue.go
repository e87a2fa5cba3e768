package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/campusattend/attendance/internal/attendance"
)

// TypeDefaulterNotice carries one attendance.Defaulter as JSON.
const TypeDefaulterNotice = "defaulter.notice"

// DefaultKey is the Redis list holding notices.
const DefaultKey = "campusattend:notices"

// Message represents work to be processed.
type Message struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

// Queue is the abstraction over different backends.
type Queue interface {
	Publish(ctx context.Context, msg Message) error
	Consume(ctx context.Context) (<-chan Message, error)
}

// NewDefaulterNotice wraps a defaulter for publishing.
func NewDefaulterNotice(d attendance.Defaulter) (Message, error) {
	body, err := json.Marshal(d)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: TypeDefaulterNotice, Body: body}, nil
}

// DecodeDefaulter unpacks a defaulter notice.
func DecodeDefaulter(msg Message) (attendance.Defaulter, error) {
	var d attendance.Defaulter
	if msg.Type != TypeDefaulterNotice {
		return d, errors.New("not a defaulter notice: " + msg.Type)
	}
	err := json.Unmarshal(msg.Body, &d)
	return d, err
}

// PublishDefaulters enqueues one notice per defaulter and returns how many were queued.
func PublishDefaulters(ctx context.Context, q Queue, ds []attendance.Defaulter) (int, error) {
	for i, d := range ds {
		msg, err := NewDefaulterNotice(d)
		if err != nil {
			return i, err
		}
		if err := q.Publish(ctx, msg); err != nil {
			return i, err
		}
	}
	return len(ds), nil
}

// InMemory is a minimal channel-backed queue for dev/testing.
type InMemory struct {
	ch chan Message
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan Message, size)}
}

// Publish enqueues a message.
func (q *InMemory) Publish(ctx context.Context, msg Message) error {
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel for workers. It closes when ctx is done.
func (q *InMemory) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case msg := <-q.ch:
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisQueue implements a simple Redis list-backed queue.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue builds a queue using LPUSH/BRPOP semantics.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = DefaultKey
	}
	return &RedisQueue{client: client, key: key}
}

// Publish enqueues a message.
func (q *RedisQueue) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, payload).Err()
}

// Consume streams messages using BRPOP.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if !errors.Is(err, redis.Nil) {
					log.Printf("queue brpop failed: %v", err)
					time.Sleep(time.Second)
				}
				continue
			}
			if len(res) != 2 {
				continue
			}
			var msg Message
			if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
				log.Printf("queue: dropping malformed message: %v", err)
				continue
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
