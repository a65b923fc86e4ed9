package attendance

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventKind names an entry in the engine's event log.
type EventKind string

const (
	EventSessionCreated   EventKind = "session_created"
	EventSessionStarted   EventKind = "session_started"
	EventTokenIssued      EventKind = "token_issued"
	EventSessionCompleted EventKind = "session_completed"
	EventCheckedIn        EventKind = "checked_in"
	EventOverridden       EventKind = "overridden"
)

// Event is one applied engine write. Seq is assigned in application order
// and is what downstream consumers (the outbox relay, the journal worker)
// rely on for ordering.
type Event struct {
	ID      string      `json:"id"`
	Seq     uint64      `json:"seq"`
	Kind    EventKind   `json:"kind"`
	At      time.Time   `json:"at"`
	Session *Session    `json:"session,omitempty"`
	Records []Record    `json:"records,omitempty"`
	Change  *Change     `json:"change,omitempty"`
	Record  *Record     `json:"record,omitempty"`
	Audit   *AuditEntry `json:"audit,omitempty"`
}

// DefaultEventBuffer bounds the number of unacknowledged events kept.
const DefaultEventBuffer = 10000

type eventLog struct {
	mu      sync.Mutex
	seq     uint64
	limit   int
	dropped uint64
	events  []Event
}

func (l *eventLog) append(ev Event) Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	ev.Seq = l.seq
	ev.ID = uuid.NewString()
	l.events = append(l.events, ev)
	if over := len(l.events) - l.limit; l.limit > 0 && over > 0 {
		l.events = append([]Event(nil), l.events[over:]...)
		l.dropped += uint64(over)
	}
	return ev
}

func (l *eventLog) since(after uint64, limit int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, ev := range l.events {
		if ev.Seq <= after {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (l *eventLog) ack(upTo uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := 0
	for i < len(l.events) && l.events[i].Seq <= upTo {
		i++
	}
	l.events = append([]Event(nil), l.events[i:]...)
}

// EventsSince returns up to limit events with Seq greater than after, oldest first.
func (e *Engine) EventsSince(after uint64, limit int) []Event {
	return e.log.since(after, limit)
}

// AckEvents discards events up to and including seq.
func (e *Engine) AckEvents(seq uint64) {
	e.log.ack(seq)
}

// DroppedEvents reports how many events were discarded unacknowledged
// because the buffer was full.
func (e *Engine) DroppedEvents() uint64 {
	e.log.mu.Lock()
	defer e.log.mu.Unlock()
	return e.log.dropped
}
