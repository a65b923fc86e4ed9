package attendance

import (
	"sort"
	"time"
)

// Counts summarizes one session.
type Counts struct {
	SessionID string       `json:"session_id"`
	State     SessionState `json:"state"`
	Present   int          `json:"present"`
	Absent    int          `json:"absent"`
	Excused   int          `json:"excused"`
	Pending   int          `json:"pending"`
	Total     int          `json:"total"`
	// Rate is (present + excused) / total as a whole percentage.
	Rate int `json:"rate"`
}

// RoundPercent returns num/den as a whole percentage, halves rounded up.
func RoundPercent(num, den int) int {
	if den <= 0 {
		return 0
	}
	return (200*num + den) / (2 * den)
}

// effective maps a stored status to the one reported for a session in the
// given state. Pending counts as absent once a session is completed.
func effective(st Status, state SessionState) Status {
	if st == StatusPending && state == StateCompleted {
		return StatusAbsent
	}
	return st
}

// countsLocked tallies records; callers hold s.mu.
func (s *sessionState) countsLocked() Counts {
	c := Counts{SessionID: s.info.ID, State: s.info.State, Total: len(s.order)}
	for _, id := range s.order {
		switch effective(s.records[id].Status, s.info.State) {
		case StatusPresent:
			c.Present++
		case StatusAbsent:
			c.Absent++
		case StatusExcused:
			c.Excused++
		case StatusPending:
			c.Pending++
		}
	}
	c.Rate = RoundPercent(c.Present+c.Excused, c.Total)
	return c
}

// Counts returns status counts and the attendance rate of a session.
func (e *Engine) Counts(sessionID string) (Counts, error) {
	s, err := e.lookup(sessionID)
	if err != nil {
		return Counts{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countsLocked(), nil
}

// CourseRate is a student's attendance within one course.
type CourseRate struct {
	CourseID string `json:"course_id"`
	Sessions int    `json:"sessions"`
	Attended int    `json:"attended"`
	Rate     int    `json:"rate"`
}

// StudentRate is a student's attendance over completed sessions.
type StudentRate struct {
	StudentID string       `json:"student_id"`
	Sessions  int          `json:"sessions"`
	Present   int          `json:"present"`
	Excused   int          `json:"excused"`
	Absent    int          `json:"absent"`
	Rate      int          `json:"rate"`
	Threshold int          `json:"threshold"`
	Low       bool         `json:"low"`
	Courses   []CourseRate `json:"courses"`
}

// isLow compares attended/sessions with threshold percent exactly, so a
// rate equal to the threshold is never flagged.
func isLow(attended, sessions, threshold int) bool {
	if sessions == 0 {
		return false
	}
	return attended*100 < threshold*sessions
}

// StudentAttendance computes a student's rate across every completed
// session whose roster snapshot includes them, with a per-course breakdown.
func (e *Engine) StudentAttendance(studentID string, threshold int) StudentRate {
	return e.studentRates()[studentID].finish(studentID, threshold)
}

// LowAttendance reports whether the student's rate is strictly below threshold.
func (e *Engine) LowAttendance(studentID string, threshold int) bool {
	return e.StudentAttendance(studentID, threshold).Low
}

// LowAttendanceReport lists every flagged student, lowest rate first.
func (e *Engine) LowAttendanceReport(threshold int) []StudentRate {
	tallies := e.studentRates()
	out := make([]StudentRate, 0)
	for id, t := range tallies {
		r := t.finish(id, threshold)
		if r.Low {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rate != out[j].Rate {
			return out[i].Rate < out[j].Rate
		}
		return out[i].StudentID < out[j].StudentID
	})
	return out
}

type studentTally struct {
	present, excused, absent int
	courses                  map[string]*CourseRate
}

func (t *studentTally) finish(studentID string, threshold int) StudentRate {
	r := StudentRate{StudentID: studentID, Threshold: threshold, Courses: []CourseRate{}}
	if t == nil {
		return r
	}
	r.Present, r.Excused, r.Absent = t.present, t.excused, t.absent
	r.Sessions = t.present + t.excused + t.absent
	r.Rate = RoundPercent(t.present+t.excused, r.Sessions)
	r.Low = isLow(t.present+t.excused, r.Sessions, threshold)
	for _, c := range t.courses {
		cr := *c
		cr.Rate = RoundPercent(cr.Attended, cr.Sessions)
		r.Courses = append(r.Courses, cr)
	}
	sort.Slice(r.Courses, func(i, j int) bool { return r.Courses[i].CourseID < r.Courses[j].CourseID })
	return r
}

func (e *Engine) studentRates() map[string]*studentTally {
	out := make(map[string]*studentTally)
	for _, s := range e.all() {
		s.mu.Lock()
		if s.info.State == StateCompleted {
			for _, id := range s.order {
				t, ok := out[id]
				if !ok {
					t = &studentTally{courses: make(map[string]*CourseRate)}
					out[id] = t
				}
				c, ok := t.courses[s.info.CourseID]
				if !ok {
					c = &CourseRate{CourseID: s.info.CourseID}
					t.courses[s.info.CourseID] = c
				}
				c.Sessions++
				switch effective(s.records[id].Status, s.info.State) {
				case StatusPresent:
					t.present++
					c.Attended++
				case StatusExcused:
					t.excused++
					c.Attended++
				case StatusAbsent, StatusPending:
					t.absent++
				}
			}
		}
		s.mu.Unlock()
	}
	return out
}

// HistoryFilter selects completed sessions. Zero values match everything;
// From and To are inclusive bounds on the scheduled start.
type HistoryFilter struct {
	CourseID  string
	SectionID string
	From      time.Time
	To        time.Time
}

// SessionSummary is a completed session with its counts.
type SessionSummary struct {
	Session Session `json:"session"`
	Counts  Counts  `json:"counts"`
}

// History returns completed sessions matching f, most recent first, ties
// broken by session id.
func (e *Engine) History(f HistoryFilter) []SessionSummary {
	out := make([]SessionSummary, 0)
	for _, s := range e.all() {
		s.mu.Lock()
		if s.info.State == StateCompleted && f.matches(s.info) {
			out = append(out, SessionSummary{Session: s.snapshot(), Counts: s.countsLocked()})
		}
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Session, out[j].Session
		if !a.StartsAt.Equal(b.StartsAt) {
			return a.StartsAt.After(b.StartsAt)
		}
		return a.ID < b.ID
	})
	return out
}

func (f HistoryFilter) matches(s Session) bool {
	if f.CourseID != "" && s.CourseID != f.CourseID {
		return false
	}
	if f.SectionID != "" && s.SectionID != f.SectionID {
		return false
	}
	if !f.From.IsZero() && s.StartsAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && s.StartsAt.After(f.To) {
		return false
	}
	return true
}

// CourseSummary aggregates completed sessions of one course.
type CourseSummary struct {
	CourseID    string `json:"course_id"`
	Sessions    int    `json:"sessions"`
	Records     int    `json:"records"`
	Attended    int    `json:"attended"`
	AverageRate int    `json:"average_rate"`
}

// CourseSummary pools every record of the course's completed sessions.
func (e *Engine) CourseSummary(courseID string) CourseSummary {
	out := CourseSummary{CourseID: courseID}
	for _, s := range e.all() {
		s.mu.Lock()
		if s.info.State == StateCompleted && s.info.CourseID == courseID {
			c := s.countsLocked()
			out.Sessions++
			out.Records += c.Total
			out.Attended += c.Present + c.Excused
		}
		s.mu.Unlock()
	}
	out.AverageRate = RoundPercent(out.Attended, out.Records)
	return out
}

// StudentSession is one line of a student's own attendance history.
type StudentSession struct {
	SessionID string       `json:"session_id"`
	CourseID  string       `json:"course_id"`
	SectionID string       `json:"section_id"`
	StartsAt  time.Time    `json:"starts_at"`
	State     SessionState `json:"state"`
	Status    Status       `json:"status"`
}

// StudentHistory lists the started sessions a student was rostered in,
// most recent first, with the status as aggregation reports it.
func (e *Engine) StudentHistory(studentID string) []StudentSession {
	out := make([]StudentSession, 0)
	for _, s := range e.all() {
		s.mu.Lock()
		if rec, ok := s.records[studentID]; ok && s.info.State != StateNotStarted {
			out = append(out, StudentSession{
				SessionID: s.info.ID,
				CourseID:  s.info.CourseID,
				SectionID: s.info.SectionID,
				StartsAt:  s.info.StartsAt,
				State:     s.info.State,
				Status:    effective(rec.Status, s.info.State),
			})
		}
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].StartsAt.After(out[j].StartsAt)
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out
}
