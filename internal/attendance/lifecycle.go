package attendance

import (
	"context"
	"fmt"
	"time"
)

// StartSession snapshots the section roster into pending records, mints a
// token and moves the session to in-progress.
func (e *Engine) StartSession(ctx context.Context, sessionID string) (Token, error) {
	s, err := e.lookup(sessionID)
	if err != nil {
		return Token{}, err
	}
	// Roster lookups may hit a database, so they happen before the session lock.
	sec, err := e.roster.Section(ctx, s.info.SectionID)
	if err != nil {
		return Token{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.info.State != StateNotStarted {
		return Token{}, fmt.Errorf("%w: session %s is %s", ErrInvalidState, sessionID, s.info.State)
	}
	if err := e.claimSection(s.info.SectionID, sessionID); err != nil {
		return Token{}, err
	}

	now := e.now().UTC()
	ids := uniqueIDs(sec.StudentIDs)
	s.records = make(map[string]*Record, len(ids))
	s.order = ids
	s.history = nil
	for _, id := range ids {
		s.records[id] = &Record{
			SessionID: sessionID,
			StudentID: id,
			Status:    StatusPending,
			UpdatedAt: now,
		}
	}

	tok := e.issuer.Issue(sessionID, s.info.CourseID, e.window)
	s.info.Token = &tok
	s.info.State = StateInProgress
	s.info.StartedAt = &now
	s.info.Remaining = e.ticksFor(e.window)

	snap := s.snapshot()
	e.log.append(Event{Kind: EventSessionStarted, At: now, Session: &snap, Records: s.recordList()})
	return tok, nil
}

// RotateToken replaces the active token and restarts the countdown. The old
// token stops validating before the new one is returned.
func (e *Engine) RotateToken(sessionID string) (Token, error) {
	s, err := e.lookup(sessionID)
	if err != nil {
		return Token{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.info.State != StateInProgress {
		return Token{}, fmt.Errorf("%w: session %s is %s", ErrInvalidState, sessionID, s.info.State)
	}
	tok := e.issuer.Issue(sessionID, s.info.CourseID, e.window)
	s.info.Token = &tok
	s.info.Remaining = e.ticksFor(e.window)

	snap := s.snapshot()
	e.log.append(Event{Kind: EventTokenIssued, At: tok.IssuedAt, Session: &snap})
	return tok, nil
}

// ActiveToken returns the token of an in-progress session.
func (e *Engine) ActiveToken(sessionID string) (Token, error) {
	s, err := e.lookup(sessionID)
	if err != nil {
		return Token{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.info.State != StateInProgress || s.info.Token == nil {
		return Token{}, fmt.Errorf("%w: session %s is %s", ErrInvalidState, sessionID, s.info.State)
	}
	return *s.info.Token, nil
}

// Tick advances every in-progress session by one unit and completes those
// whose validity ran out. It returns the ids of sessions completed by this
// call. Completed sessions are left alone, so repeated ticks are harmless.
func (e *Engine) Tick() []string {
	var completed []string
	for _, s := range e.all() {
		s.mu.Lock()
		if s.info.State == StateInProgress {
			s.info.Remaining--
			if s.info.Remaining <= 0 {
				e.complete(s)
				completed = append(completed, s.info.ID)
			}
		}
		s.mu.Unlock()
	}
	return completed
}

// StopSession closes an in-progress session early.
func (e *Engine) StopSession(sessionID string) (Session, error) {
	s, err := e.lookup(sessionID)
	if err != nil {
		return Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.info.State != StateInProgress {
		return Session{}, fmt.Errorf("%w: session %s is %s", ErrInvalidState, sessionID, s.info.State)
	}
	e.complete(s)
	return s.snapshot(), nil
}

// StopSessionAs stops a session on behalf of actor. Admins may stop any
// session; faculty only sessions of a section they teach, or of a section
// with no faculty assigned.
func (e *Engine) StopSessionAs(sessionID string, actor Actor) (Session, error) {
	if err := actor.validate(); err != nil {
		return Session{}, err
	}
	s, err := e.lookup(sessionID)
	if err != nil {
		return Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if actor.Role == RoleFaculty && s.info.FacultyID != "" && s.info.FacultyID != actor.ID {
		return Session{}, fmt.Errorf("%w: session %s belongs to %s", ErrNotOwner, sessionID, s.info.FacultyID)
	}
	if s.info.State != StateInProgress {
		return Session{}, fmt.Errorf("%w: session %s is %s", ErrInvalidState, sessionID, s.info.State)
	}
	e.complete(s)
	return s.snapshot(), nil
}

// complete discards the token and marks the session completed; callers hold s.mu.
func (e *Engine) complete(s *sessionState) {
	now := e.now().UTC()
	s.info.State = StateCompleted
	s.info.Token = nil
	s.info.Remaining = 0
	s.info.CompletedAt = &now
	e.releaseSection(s.info.SectionID, s.info.ID)

	snap := s.snapshot()
	e.log.append(Event{Kind: EventSessionCompleted, At: now, Session: &snap})
}

func (e *Engine) claimSection(sectionID, sessionID string) error {
	e.activeMu.Lock()
	defer e.activeMu.Unlock()
	if cur, ok := e.active[sectionID]; ok && cur != sessionID {
		return fmt.Errorf("%w: section %s already has session %s in progress", ErrInvalidState, sectionID, cur)
	}
	e.active[sectionID] = sessionID
	return nil
}

func (e *Engine) releaseSection(sectionID, sessionID string) {
	e.activeMu.Lock()
	defer e.activeMu.Unlock()
	if e.active[sectionID] == sessionID {
		delete(e.active, sectionID)
	}
}

func (e *Engine) ticksFor(window time.Duration) int {
	n := int((window + e.unit - 1) / e.unit)
	if n < 1 {
		n = 1
	}
	return n
}
