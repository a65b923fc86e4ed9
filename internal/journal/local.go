package journal

import (
	"context"
	"log"
	"sync"

	"qrattend/internal/queue"
)

// Local runs a Consumer over an in-process queue on its own context, so it
// outlives the request-serving context and can apply the relay's last flush.
type Local struct {
	queue    *queue.InMemory
	consumer *Consumer
	logger   *log.Logger

	mu      sync.Mutex
	applied int
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewLocal creates a local journal but does not start it.
func NewLocal(q *queue.InMemory, applier Applier, logger *log.Logger) *Local {
	return &Local{
		queue:    q,
		consumer: NewConsumer(q, applier, logger),
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start launches the consumer in the background.
func (l *Local) Start() {
	var ctx context.Context
	ctx, l.cancel = context.WithCancel(context.Background())
	go func() {
		defer close(l.done)
		n, err := l.consumer.Run(ctx)
		if err != nil {
			l.logger.Printf("local journal: %v", err)
		}
		l.mu.Lock()
		l.applied = n
		l.mu.Unlock()
	}()
}

// Stop closes the queue and waits until everything queued has been applied.
// Call it after the relay has stopped. If ctx ends first, the consumer is
// cancelled and whatever is still queued is lost.
func (l *Local) Stop(ctx context.Context) int {
	if l.cancel == nil {
		return 0
	}
	l.queue.Close()
	select {
	case <-l.done:
	case <-ctx.Done():
		l.logger.Printf("local journal: gave up with %d events queued", l.queue.Len())
		l.cancel()
		<-l.done
	}
	l.cancel()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Printf("local journal stopped after %d events", l.applied)
	return l.applied
}
