// Package journal applies engine events taken off the queue to durable
// storage.
package journal

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"qrattend/internal/attendance"
	"qrattend/internal/queue"
)

// Applier persists one event. Applying the same event twice must be a no-op.
type Applier interface {
	ApplyEvent(ctx context.Context, ev attendance.Event) error
}

// Consumer drains a queue into an Applier, one message at a time so the
// journal sees events in publish order.
type Consumer struct {
	queue   queue.Queue
	applier Applier
	logger  *log.Logger
	retries int
	backoff time.Duration
}

// NewConsumer creates a consumer that retries a failed apply a few times
// before logging and moving on.
func NewConsumer(q queue.Queue, applier Applier, logger *log.Logger) *Consumer {
	return &Consumer{queue: q, applier: applier, logger: logger, retries: 3, backoff: 200 * time.Millisecond}
}

// Run blocks until ctx is done or the queue closes. It returns the number
// of events applied.
func (c *Consumer) Run(ctx context.Context) (int, error) {
	messages, err := c.queue.Consume(ctx)
	if err != nil {
		return 0, err
	}
	applied := 0
	for msg := range messages {
		if msg.Type != queue.TypeAttendanceEvent {
			c.logger.Printf("skipping message of type %q", msg.Type)
			continue
		}
		var ev attendance.Event
		if err := json.Unmarshal(msg.Body, &ev); err != nil {
			c.logger.Printf("undecodable event: %v", err)
			continue
		}
		if err := c.apply(ctx, ev); err != nil {
			if ctx.Err() != nil {
				break
			}
			c.logger.Printf("event %d (%s) %s not applied: %v", ev.Seq, ev.Kind, ev.ID, err)
			continue
		}
		applied++
	}
	return applied, nil
}

func (c *Consumer) apply(ctx context.Context, ev attendance.Event) error {
	var err error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff * time.Duration(attempt)):
			}
		}
		if err = c.applier.ApplyEvent(ctx, ev); err == nil {
			return nil
		}
	}
	return err
}
