package attendance

import "fmt"

// CheckIn is the outcome of a successful scan.
type CheckIn struct {
	SessionID string `json:"session_id"`
	StudentID string `json:"student_id"`
	Status    Status `json:"status"`
	// Changed is false when the scan left the record as it was, e.g. a
	// repeated scan by a student already present.
	Changed bool `json:"changed"`
}

// Submit validates a scanned token and marks the student present.
//
// A record that is already present is left untouched. Records a human
// already set to absent or excused are also left untouched; the scan only
// ever moves pending to present.
func (e *Engine) Submit(tok Token, studentID string) (CheckIn, error) {
	if tok.Expired(e.now()) {
		return CheckIn{}, ErrExpired
	}
	s, err := e.lookup(tok.SessionID)
	if err != nil {
		return CheckIn{}, fmt.Errorf("%w: %v", ErrSessionMismatch, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.info.State != StateInProgress || s.info.Token == nil {
		return CheckIn{}, fmt.Errorf("%w: session %s is %s", ErrSessionMismatch, tok.SessionID, s.info.State)
	}
	if !s.info.Token.Matches(tok) {
		return CheckIn{}, fmt.Errorf("%w: token is not the active token of session %s", ErrSessionMismatch, tok.SessionID)
	}
	rec, ok := s.records[studentID]
	if !ok {
		return CheckIn{}, fmt.Errorf("%w: %s", ErrUnknownStudent, studentID)
	}

	out := CheckIn{SessionID: tok.SessionID, StudentID: studentID}
	switch rec.Status {
	case StatusPending:
		e.apply(s, rec, StatusPresent, SourceCheckIn, e.now().UTC(), nil)
		out.Changed = true
	case StatusPresent, StatusAbsent, StatusExcused:
	}
	out.Status = rec.Status
	return out, nil
}
