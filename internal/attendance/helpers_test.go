package attendance_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"qrattend/internal/attendance"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

var admin = attendance.Actor{ID: "admin-1", Role: attendance.RoleAdmin}

// fixture seeds one section "sec" of course "CS101" with the given students
// and returns an engine on a fake clock with a 30s window and 1s ticks.
func fixture(t *testing.T, students ...string) (*attendance.Engine, *fakeClock) {
	t.Helper()
	ctx := context.Background()
	roster := attendance.NewMemoryRoster()
	for _, id := range students {
		if err := roster.PutStudent(ctx, attendance.Student{ID: id, Name: id}); err != nil {
			t.Fatal(err)
		}
	}
	if err := roster.PutSection(ctx, attendance.CourseSection{ID: "sec", CourseID: "CS101", StudentIDs: students}); err != nil {
		t.Fatal(err)
	}
	clock := newClock()
	e := attendance.NewEngine(roster, attendance.Options{
		TokenWindow: 30 * time.Second,
		TickUnit:    time.Second,
		Clock:       clock.Now,
	})
	return e, clock
}

// started creates and starts a session on section "sec".
func started(t *testing.T, e *attendance.Engine, id string) attendance.Token {
	t.Helper()
	ctx := context.Background()
	if _, err := e.CreateSession(ctx, attendance.SessionParams{ID: id, SectionID: "sec"}); err != nil {
		t.Fatalf("create %s: %v", id, err)
	}
	tok, err := e.StartSession(ctx, id)
	if err != nil {
		t.Fatalf("start %s: %v", id, err)
	}
	return tok
}

func statusOf(t *testing.T, e *attendance.Engine, sessionID, studentID string) attendance.Status {
	t.Helper()
	recs, err := e.Records(sessionID)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range recs {
		if r.StudentID == studentID {
			return r.Status
		}
	}
	t.Fatalf("no record for %s in %s", studentID, sessionID)
	return ""
}

func tickN(e *attendance.Engine, n int) []string {
	var done []string
	for i := 0; i < n; i++ {
		done = append(done, e.Tick()...)
	}
	return done
}
