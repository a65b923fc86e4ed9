package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TypeAttendanceEvent tags messages carrying a JSON encoded engine event.
const TypeAttendanceEvent = "attendance.event"

// Message represents work to be processed.
type Message struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

// Queue is the abstraction over different backends. Messages are delivered
// in publish order to a single consumer.
type Queue interface {
	Publish(ctx context.Context, msg Message) error
	Consume(ctx context.Context) (<-chan Message, error)
}

// ErrClosed is returned by Publish once the queue is closed.
var ErrClosed = errors.New("queue closed")

// InMemory is a bounded channel-backed queue for dev and tests.
type InMemory struct {
	ch        chan Message
	closed    chan struct{}
	closeOnce sync.Once
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	if size <= 0 {
		size = 64
	}
	return &InMemory{ch: make(chan Message, size), closed: make(chan struct{})}
}

// Publish enqueues a message, blocking while the queue is full.
func (q *InMemory) Publish(ctx context.Context, msg Message) error {
	select {
	case <-q.closed:
		return ErrClosed
	default:
	}
	select {
	case q.ch <- msg:
		return nil
	case <-q.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting messages. Consumers still receive what is queued,
// then their channel closes. Publish must not race Close.
func (q *InMemory) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}

// Consume returns a channel for workers. It closes when ctx is done, or
// once the queue is closed and drained.
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
			case <-q.closed:
				for {
					select {
					case msg := <-q.ch:
						select {
						case out <- msg:
						case <-ctx.Done():
							return
						}
					default:
						return
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Len reports queued messages not yet consumed.
func (q *InMemory) Len() int { return len(q.ch) }

// RedisQueue is a Redis list used with LPUSH/BRPOP, so the oldest message
// is popped first.
type RedisQueue struct {
	client *redis.Client
	key    string
	logf   func(format string, args ...any)
}

// NewRedisQueue builds a queue on key. logf receives undecodable payloads;
// nil discards them silently.
func NewRedisQueue(client *redis.Client, key string, logf func(format string, args ...any)) *RedisQueue {
	if key == "" {
		key = "attendance:events"
	}
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &RedisQueue{client: client, key: key, logf: logf}
}

// Publish enqueues a message.
func (q *RedisQueue) Publish(ctx context.Context, msg Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, b).Err()
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
					q.logf("queue %s: brpop: %v", q.key, err)
					time.Sleep(time.Second)
				}
				continue
			}
			if len(res) != 2 {
				continue
			}
			var msg Message
			if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
				q.logf("queue %s: drop undecodable message: %v", q.key, err)
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
