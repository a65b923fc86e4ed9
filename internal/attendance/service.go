package attendance

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Options tunes an Engine. Zero values fall back to defaults.
type Options struct {
	// TokenWindow is the validity of each minted token.
	TokenWindow time.Duration
	// TickUnit is the duration one Tick represents.
	TickUnit time.Duration
	// Clock overrides time.Now, mainly for tests.
	Clock func() time.Time
	// EventBuffer bounds unacknowledged events; 0 uses DefaultEventBuffer.
	EventBuffer int
}

// Engine owns every session, its records and the audit trail.
type Engine struct {
	roster RosterStore
	issuer *Issuer
	window time.Duration
	unit   time.Duration
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*sessionState

	activeMu sync.Mutex
	active   map[string]string // section id -> in-progress session id

	auditMu sync.RWMutex
	audit   []AuditEntry

	log eventLog
}

type sessionState struct {
	mu      sync.Mutex
	info    Session
	records map[string]*Record
	order   []string
	history []Change
}

// NewEngine creates an engine backed by roster.
func NewEngine(roster RosterStore, opts Options) *Engine {
	if opts.TokenWindow <= 0 {
		opts.TokenWindow = DefaultTokenWindow
	}
	if opts.TickUnit <= 0 {
		opts.TickUnit = time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultEventBuffer
	}
	return &Engine{
		roster:   roster,
		issuer:   NewIssuer(opts.Clock),
		window:   opts.TokenWindow,
		unit:     opts.TickUnit,
		now:      opts.Clock,
		sessions: make(map[string]*sessionState),
		active:   make(map[string]string),
		log:      eventLog{limit: opts.EventBuffer},
	}
}

// TokenWindow returns the configured token validity.
func (e *Engine) TokenWindow() time.Duration { return e.window }

// CreateSession schedules a not-started session for an existing section.
func (e *Engine) CreateSession(ctx context.Context, p SessionParams) (Session, error) {
	sectionID := strings.TrimSpace(p.SectionID)
	if sectionID == "" {
		return Session{}, fmt.Errorf("%w: section id required", ErrSectionNotFound)
	}
	sec, err := e.roster.Section(ctx, sectionID)
	if err != nil {
		return Session{}, err
	}
	switch p.Mode {
	case "":
		p.Mode = ModeOnsite
	case ModeOnline, ModeOnsite:
	default:
		return Session{}, fmt.Errorf("%w: delivery mode %q", ErrInvalidSchedule, p.Mode)
	}
	if !p.EndsAt.IsZero() && p.EndsAt.Before(p.StartsAt) {
		return Session{}, fmt.Errorf("%w: session ends before it starts", ErrInvalidSchedule)
	}
	id := strings.TrimSpace(p.ID)
	if id == "" {
		id = uuid.NewString()
	}

	s := &sessionState{
		info: Session{
			ID:        id,
			SectionID: sec.ID,
			CourseID:  sec.CourseID,
			FacultyID: sec.FacultyID,
			StartsAt:  p.StartsAt.UTC(),
			EndsAt:    p.EndsAt.UTC(),
			Location:  p.Location,
			Mode:      p.Mode,
			State:     StateNotStarted,
		},
		records: make(map[string]*Record),
	}

	e.mu.Lock()
	if _, ok := e.sessions[id]; ok {
		e.mu.Unlock()
		return Session{}, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	e.sessions[id] = s
	e.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshot()
	e.log.append(Event{Kind: EventSessionCreated, At: e.now().UTC(), Session: &snap})
	return snap, nil
}

// Session returns a copy of the session.
func (e *Engine) Session(sessionID string) (Session, error) {
	s, err := e.lookup(sessionID)
	if err != nil {
		return Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(), nil
}

// Records returns the session's records ordered by student id.
func (e *Engine) Records(sessionID string) ([]Record, error) {
	s, err := e.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordList(), nil
}

// Changes returns every status write applied to the session, oldest first.
func (e *Engine) Changes(sessionID string) ([]Change, error) {
	s, err := e.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Change(nil), s.history...), nil
}

// ActiveSessions counts sessions currently in progress.
func (e *Engine) ActiveSessions() int {
	e.activeMu.Lock()
	defer e.activeMu.Unlock()
	return len(e.active)
}

func (e *Engine) lookup(sessionID string) (*sessionState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return s, nil
}

// all returns every session sorted by id so callers lock them in a stable order.
func (e *Engine) all() []*sessionState {
	e.mu.RLock()
	out := make([]*sessionState, 0, len(e.sessions))
	for _, s := range e.sessions {
		out = append(out, s)
	}
	e.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].info.ID < out[j].info.ID })
	return out
}

// snapshot copies the session; callers hold s.mu.
func (s *sessionState) snapshot() Session {
	out := s.info
	if s.info.Token != nil {
		tok := *s.info.Token
		out.Token = &tok
	}
	if s.info.StartedAt != nil {
		t := *s.info.StartedAt
		out.StartedAt = &t
	}
	if s.info.CompletedAt != nil {
		t := *s.info.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// recordList copies records in roster order; callers hold s.mu.
func (s *sessionState) recordList() []Record {
	out := make([]Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.records[id])
	}
	return out
}

// apply writes a status change and appends it to the session history and
// the event log. Callers hold s.mu, so history order is application order.
func (e *Engine) apply(s *sessionState, rec *Record, to Status, src Source, at time.Time, audit *AuditEntry) Change {
	ch := Change{
		At:        at,
		SessionID: s.info.ID,
		StudentID: rec.StudentID,
		From:      rec.Status,
		To:        to,
		Source:    src,
	}
	rec.Status = to
	rec.UpdatedAt = at
	s.history = append(s.history, ch)

	kind := EventCheckedIn
	if src != SourceCheckIn {
		kind = EventOverridden
	}
	recCopy := *rec
	chCopy := ch
	e.log.append(Event{Kind: kind, At: at, Change: &chCopy, Record: &recCopy, Audit: audit})
	return ch
}
