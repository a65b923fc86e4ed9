package attendance

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Override sets one student's status by hand and appends an audit entry.
// It works on in-progress and completed sessions alike.
func (e *Engine) Override(sessionID, studentID string, status Status, actor Actor, reason string) (AuditEntry, error) {
	reason, err := validateOverride(status, actor, reason)
	if err != nil {
		return AuditEntry{}, err
	}
	s, err := e.lookup(sessionID)
	if err != nil {
		return AuditEntry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := overridable(s); err != nil {
		return AuditEntry{}, err
	}
	rec, ok := s.records[studentID]
	if !ok {
		return AuditEntry{}, fmt.Errorf("%w: %s", ErrUnknownStudent, studentID)
	}

	action := ActionOverride
	if status == StatusExcused {
		action = ActionExcuse
	}
	entries := e.overrideLocked(s, []*Record{rec}, status, actor, reason, action)
	return entries[0], nil
}

// BulkOverride applies the same status to every listed student. Either all
// records are updated, one audit entry each, or none are.
func (e *Engine) BulkOverride(sessionID string, studentIDs []string, status Status, actor Actor, reason string) ([]AuditEntry, error) {
	reason, err := validateOverride(status, actor, reason)
	if err != nil {
		return nil, err
	}
	ids := uniqueIDs(studentIDs)
	if len(ids) == 0 {
		return nil, ErrEmptyBatch
	}
	s, err := e.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := overridable(s); err != nil {
		return nil, err
	}
	recs := make([]*Record, 0, len(ids))
	for _, id := range ids {
		rec, ok := s.records[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownStudent, id)
		}
		recs = append(recs, rec)
	}
	return e.overrideLocked(s, recs, status, actor, reason, ActionBulkUpdate), nil
}

// overrideLocked writes every record and its audit entry; callers hold s.mu
// and have validated the whole batch.
func (e *Engine) overrideLocked(s *sessionState, recs []*Record, status Status, actor Actor, reason string, action Action) []AuditEntry {
	now := e.now().UTC()
	entries := make([]AuditEntry, 0, len(recs))
	e.auditMu.Lock()
	defer e.auditMu.Unlock()
	for _, rec := range recs {
		entry := AuditEntry{
			ID:             uuid.NewString(),
			Timestamp:      now,
			ActorID:        actor.ID,
			ActorRole:      actor.Role,
			StudentID:      rec.StudentID,
			SessionID:      s.info.ID,
			CourseID:       s.info.CourseID,
			SectionID:      s.info.SectionID,
			PreviousStatus: rec.Status,
			NewStatus:      status,
			Action:         action,
		}
		if reason != "" {
			r := reason
			entry.Reason = &r
		}
		rec.IsManualOverride = true
		rec.OverrideReason = reason
		auditCopy := entry
		e.apply(s, rec, status, Source(action), now, &auditCopy)
		e.audit = append(e.audit, entry)
		entries = append(entries, entry)
	}
	return entries
}

func validateOverride(status Status, actor Actor, reason string) (string, error) {
	switch status {
	case StatusPresent, StatusAbsent, StatusExcused:
	case StatusPending:
		return "", fmt.Errorf("%w: cannot override to %s", ErrInvalidStatus, status)
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	reason = strings.TrimSpace(reason)
	if status == StatusExcused && reason == "" {
		return "", ErrReasonRequired
	}
	if err := actor.validate(); err != nil {
		return "", err
	}
	return reason, nil
}

func overridable(s *sessionState) error {
	switch s.info.State {
	case StateInProgress, StateCompleted:
		return nil
	default:
		return fmt.Errorf("%w: session %s is %s", ErrInvalidState, s.info.ID, s.info.State)
	}
}

// AuditFilter narrows AuditLog. Empty fields match everything.
type AuditFilter struct {
	SessionID string
	StudentID string
	CourseID  string
	ActorID   string
	Since     time.Time
	Limit     int
}

// AuditLog lists audit entries, most recently applied first.
func (e *Engine) AuditLog(f AuditFilter) []AuditEntry {
	e.auditMu.RLock()
	defer e.auditMu.RUnlock()

	out := make([]AuditEntry, 0)
	for i := len(e.audit) - 1; i >= 0; i-- {
		if f.Matches(e.audit[i]) {
			out = append(out, e.audit[i])
		}
	}
	return f.limit(out)
}

// Matches reports whether a passes every set field of f. Limit is ignored.
func (f AuditFilter) Matches(a AuditEntry) bool {
	switch {
	case f.SessionID != "" && a.SessionID != f.SessionID:
		return false
	case f.StudentID != "" && a.StudentID != f.StudentID:
		return false
	case f.CourseID != "" && a.CourseID != f.CourseID:
		return false
	case f.ActorID != "" && a.ActorID != f.ActorID:
		return false
	case !f.Since.IsZero() && a.Timestamp.Before(f.Since):
		return false
	}
	return true
}

// Select filters entries already in the desired order and applies Limit.
func (f AuditFilter) Select(entries []AuditEntry) []AuditEntry {
	out := make([]AuditEntry, 0, len(entries))
	for _, a := range entries {
		if f.Matches(a) {
			out = append(out, a)
		}
	}
	return f.limit(out)
}

func (f AuditFilter) limit(out []AuditEntry) []AuditEntry {
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}
