package attendance

import (
	"context"
	"log"
	"time"
)

// Ticker is the part of the engine the expiry loop drives.
type Ticker interface {
	Tick() []string
}

// Expirer calls Tick once per interval so that sessions close when their
// token validity runs out. It is safe to stop via its context or Stop.
type Expirer struct {
	engine   Ticker
	interval time.Duration
	logger   *log.Logger
	onClose  func(sessionID string)
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewExpirer creates an expiry loop but does not start it. onClose, when
// set, is called for every session the loop completes.
func NewExpirer(engine Ticker, interval time.Duration, logger *log.Logger, onClose func(sessionID string)) *Expirer {
	if interval <= 0 {
		interval = time.Second
	}
	return &Expirer{
		engine:   engine,
		interval: interval,
		logger:   logger,
		onClose:  onClose,
		done:     make(chan struct{}),
	}
}

// Start launches the loop in the background.
func (x *Expirer) Start(ctx context.Context) {
	ctx, x.cancel = context.WithCancel(ctx)
	go x.loop(ctx)
	x.logger.Printf("session expirer started (interval=%s)", x.interval)
}

// Stop signals the loop to exit and waits for it.
func (x *Expirer) Stop() {
	if x.cancel == nil {
		return
	}
	x.cancel()
	<-x.done
}

func (x *Expirer) loop(ctx context.Context) {
	defer close(x.done)

	ticker := time.NewTicker(x.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, id := range x.engine.Tick() {
				x.logger.Printf("session %s expired", id)
				if x.onClose != nil {
					x.onClose(id)
				}
			}
		}
	}
}
