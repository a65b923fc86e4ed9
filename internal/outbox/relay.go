// Package outbox forwards the engine's ordered event log to a queue.
package outbox

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"qrattend/internal/attendance"
	"qrattend/internal/queue"
)

// Source is the part of the engine the relay drains.
type Source interface {
	EventsSince(after uint64, limit int) []attendance.Event
	AckEvents(seq uint64)
}

// Relay publishes engine events in Seq order. A failed publish ends the
// pass; the same event is retried on the next one, so nothing is skipped.
type Relay struct {
	source   Source
	queue    queue.Queue
	interval time.Duration
	batch    int
	logger   *log.Logger

	// OnPublished, when set, receives the number of events each pass sent.
	OnPublished func(n int)

	mu     sync.Mutex
	cursor uint64

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRelay creates a relay but does not start it.
func NewRelay(source Source, q queue.Queue, interval time.Duration, logger *log.Logger) *Relay {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Relay{
		source:   source,
		queue:    q,
		interval: interval,
		batch:    256,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start launches the relay loop in the background.
func (r *Relay) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	go r.loop(ctx)
	r.logger.Printf("outbox relay started (interval=%s)", r.interval)
}

// Stop signals the loop to exit, waits for it, then flushes what is left.
func (r *Relay) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := r.Flush(ctx); err != nil {
		r.logger.Printf("outbox final flush: %v", err)
	}
}

// Cursor returns the Seq of the last published event.
func (r *Relay) Cursor() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}

// Flush publishes pending events until none remain or a publish fails. It
// returns how many events were published.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sent := 0
	for {
		events := r.source.EventsSince(r.cursor, r.batch)
		if len(events) == 0 {
			return sent, nil
		}
		for _, ev := range events {
			body, err := json.Marshal(ev)
			if err != nil {
				// An event that cannot be encoded will never succeed; skip it.
				r.logger.Printf("outbox: encode event %d: %v", ev.Seq, err)
				r.advance(ev.Seq)
				continue
			}
			msg := queue.Message{Type: queue.TypeAttendanceEvent, Body: body}
			if err := r.queue.Publish(ctx, msg); err != nil {
				return sent, err
			}
			r.advance(ev.Seq)
			sent++
		}
	}
}

// advance moves the cursor and releases the engine's copy; callers hold r.mu.
func (r *Relay) advance(seq uint64) {
	r.cursor = seq
	r.source.AckEvents(seq)
}

func (r *Relay) loop(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.Flush(ctx)
			if n > 0 && r.OnPublished != nil {
				r.OnPublished(n)
			}
			if err != nil && ctx.Err() == nil {
				r.logger.Printf("outbox publish failed at seq %d: %v", r.Cursor()+1, err)
			}
		}
	}
}
