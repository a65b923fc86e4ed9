package attendance_test

import (
	"context"
	"testing"
	"time"

	"qrattend/internal/attendance"
)

func TestRoundPercent(t *testing.T) {
	cases := []struct{ num, den, want int }{
		{1, 3, 33},
		{2, 3, 67},
		{1, 2, 50},
		{1, 8, 13}, // 12.5 rounds half up
		{3, 4, 75},
		{0, 5, 0},
		{5, 5, 100},
		{1, 0, 0},
	}
	for _, tc := range cases {
		if got := attendance.RoundPercent(tc.num, tc.den); got != tc.want {
			t.Errorf("RoundPercent(%d, %d) = %d, want %d", tc.num, tc.den, got, tc.want)
		}
	}
}

// The three-student walkthrough: one scan, expiry, then an excuse.
func TestScenario_ExpiryThenExcuse(t *testing.T) {
	e, _ := fixture(t, "A", "B", "C")
	tok := started(t, e, "s")

	for i := 0; i < 2; i++ {
		if _, err := e.Submit(tok, "A"); err != nil {
			t.Fatal(err)
		}
	}
	if done := tickN(e, 31); len(done) != 1 {
		t.Fatalf("expected the session to complete, got %v", done)
	}
	for _, st := range []string{"B", "C"} {
		if got := statusOf(t, e, "s", st); got != attendance.StatusPending {
			t.Errorf("%s: expected stored status pending, got %s", st, got)
		}
	}
	counts, _ := e.Counts("s")
	if counts.Present != 1 || counts.Absent != 2 || counts.Rate != 33 {
		t.Fatalf("expected 1 present, 2 absent, 33%%, got %+v", counts)
	}

	entry, err := e.Override("s", "B", attendance.StatusExcused, admin, "Medical")
	if err != nil {
		t.Fatal(err)
	}
	if entry.PreviousStatus != attendance.StatusPending || entry.NewStatus != attendance.StatusExcused {
		t.Errorf("unexpected audit entry %+v", entry)
	}
	counts, _ = e.Counts("s")
	if counts.Excused != 1 || counts.Rate != 67 {
		t.Fatalf("expected 67%% after the excuse, got %+v", counts)
	}
	if n := len(e.AuditLog(attendance.AuditFilter{SessionID: "s"})); n != 1 {
		t.Errorf("expected one audit entry, got %d", n)
	}
}

func TestCounts_InProgressKeepsPending(t *testing.T) {
	e, _ := fixture(t, "A", "B")
	tok := started(t, e, "s")
	if _, err := e.Submit(tok, "A"); err != nil {
		t.Fatal(err)
	}
	counts, _ := e.Counts("s")
	if counts.Pending != 1 || counts.Absent != 0 || counts.Rate != 50 {
		t.Fatalf("unexpected counts %+v", counts)
	}
}

// runSession starts a session on "sec", checks in attendees and completes it.
func runSession(t *testing.T, e *attendance.Engine, id string, attendees ...string) {
	t.Helper()
	tok := started(t, e, id)
	for _, st := range attendees {
		if _, err := e.Submit(tok, st); err != nil {
			t.Fatalf("%s/%s: %v", id, st, err)
		}
	}
	if _, err := e.StopSession(id); err != nil {
		t.Fatal(err)
	}
}

func TestLowAttendance_BoundaryIsNotLow(t *testing.T) {
	e, _ := fixture(t, "A", "B")
	runSession(t, e, "s1", "A", "B")
	runSession(t, e, "s2", "A", "B")
	runSession(t, e, "s3", "A")
	runSession(t, e, "s4", "A", "B")

	b := e.StudentAttendance("B", 75)
	if b.Rate != 75 || b.Sessions != 4 || b.Present != 3 || b.Absent != 1 {
		t.Fatalf("unexpected rate %+v", b)
	}
	if e.LowAttendance("B", 75) {
		t.Error("expected exactly 75% not to be flagged")
	}
	if !e.LowAttendance("B", 76) {
		t.Error("expected 75% to be flagged at threshold 76")
	}
	if e.LowAttendance("nobody", 75) {
		t.Error("expected a student without sessions not to be flagged")
	}
	if len(b.Courses) != 1 || b.Courses[0].CourseID != "CS101" || b.Courses[0].Rate != 75 {
		t.Errorf("unexpected per-course breakdown %+v", b.Courses)
	}
}

func TestLowAttendance_ExactComparisonBelowRounding(t *testing.T) {
	e, _ := fixture(t, "A")
	runSession(t, e, "s1", "A")
	runSession(t, e, "s2", "A")
	runSession(t, e, "s3")

	r := e.StudentAttendance("A", 67)
	if r.Rate != 67 {
		t.Fatalf("expected rounded rate 67, got %d", r.Rate)
	}
	if !r.Low {
		t.Error("expected 66.7% to be flagged at 67 even though it rounds to 67")
	}
}

func TestLowAttendanceReport_SortedByRate(t *testing.T) {
	e, _ := fixture(t, "A", "B", "C", "D")
	runSession(t, e, "s1", "A", "B")
	runSession(t, e, "s2", "A")
	runSession(t, e, "s3", "A", "D")
	runSession(t, e, "s4", "A", "B", "D")

	report := e.LowAttendanceReport(75)
	var ids []string
	for _, r := range report {
		ids = append(ids, r.StudentID)
	}
	// B and D both 50%, tie broken by id; C 0%.
	want := []string{"C", "B", "D"}
	if len(ids) != len(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, ids)
		}
	}
}

func TestStudentAttendance_ExcusedCountsAsAttended(t *testing.T) {
	e, _ := fixture(t, "A")
	runSession(t, e, "s1")
	if _, err := e.Override("s1", "A", attendance.StatusExcused, admin, "sick"); err != nil {
		t.Fatal(err)
	}
	r := e.StudentAttendance("A", 75)
	if r.Rate != 100 || r.Excused != 1 || r.Low {
		t.Fatalf("unexpected rate %+v", r)
	}
}

func TestHistory_FiltersAndOrder(t *testing.T) {
	ctx := context.Background()
	e, clock := fixture(t, "A")
	day := 24 * time.Hour
	base := clock.Now()

	for i, id := range []string{"mon", "tue", "wed"} {
		params := attendance.SessionParams{ID: id, SectionID: "sec", StartsAt: base.Add(time.Duration(i) * day)}
		if _, err := e.CreateSession(ctx, params); err != nil {
			t.Fatal(err)
		}
		if _, err := e.StartSession(ctx, id); err != nil {
			t.Fatal(err)
		}
		if _, err := e.StopSession(id); err != nil {
			t.Fatal(err)
		}
	}
	// Same start as "tue": ordered after it by id.
	if _, err := e.CreateSession(ctx, attendance.SessionParams{ID: "tue-b", SectionID: "sec", StartsAt: base.Add(day)}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.StartSession(ctx, "tue-b"); err != nil {
		t.Fatal(err)
	}

	// tue-b is still running, so it is not history yet.
	got := ids(e.History(attendance.HistoryFilter{}))
	assertIDs(t, got, "wed", "tue", "mon")

	if _, err := e.StopSession("tue-b"); err != nil {
		t.Fatal(err)
	}
	got = ids(e.History(attendance.HistoryFilter{From: base.Add(day), To: base.Add(day)}))
	assertIDs(t, got, "tue", "tue-b")

	got = ids(e.History(attendance.HistoryFilter{CourseID: "NOPE"}))
	assertIDs(t, got)
}

func ids(list []attendance.SessionSummary) []string {
	out := []string{}
	for _, s := range list {
		out = append(out, s.Session.ID)
	}
	return out
}

func assertIDs(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestCourseSummaryAndStudentHistory(t *testing.T) {
	e, _ := fixture(t, "A", "B")
	runSession(t, e, "s1", "A")
	runSession(t, e, "s2", "A", "B")
	started(t, e, "s3")

	sum := e.CourseSummary("CS101")
	if sum.Sessions != 2 || sum.Records != 4 || sum.Attended != 3 || sum.AverageRate != 75 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if empty := e.CourseSummary("NONE"); empty.Sessions != 0 || empty.AverageRate != 0 {
		t.Errorf("unexpected empty summary %+v", empty)
	}

	hist := e.StudentHistory("B")
	if len(hist) != 3 {
		t.Fatalf("expected three sessions for B, got %+v", hist)
	}
	byID := map[string]attendance.Status{}
	for _, h := range hist {
		byID[h.SessionID] = h.Status
	}
	if byID["s1"] != attendance.StatusAbsent || byID["s2"] != attendance.StatusPresent || byID["s3"] != attendance.StatusPending {
		t.Errorf("unexpected statuses %v", byID)
	}
}
