package attendance_test

import (
	"context"
	"testing"

	"qrattend/internal/attendance"
)

func TestEvents_OrderedAndAcked(t *testing.T) {
	e, _ := fixture(t, "A", "B")
	tok := started(t, e, "s")
	if _, err := e.Submit(tok, "A"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Override("s", "B", attendance.StatusAbsent, admin, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := e.StopSession("s"); err != nil {
		t.Fatal(err)
	}

	events := e.EventsSince(0, 0)
	want := []attendance.EventKind{
		attendance.EventSessionCreated,
		attendance.EventSessionStarted,
		attendance.EventCheckedIn,
		attendance.EventOverridden,
		attendance.EventSessionCompleted,
	}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(events))
	}
	for i, ev := range events {
		if ev.Kind != want[i] || ev.Seq != uint64(i+1) || ev.ID == "" {
			t.Errorf("event %d: unexpected %+v", i, ev)
		}
	}
	if len(events[1].Records) != 2 {
		t.Errorf("expected the start event to carry the roster snapshot, got %d records", len(events[1].Records))
	}
	if events[3].Audit == nil || events[3].Audit.StudentID != "B" {
		t.Errorf("expected the override event to carry its audit entry, got %+v", events[3].Audit)
	}
	if events[2].Audit != nil {
		t.Error("expected no audit entry on a check-in")
	}

	if got := e.EventsSince(3, 1); len(got) != 1 || got[0].Seq != 4 {
		t.Errorf("expected only seq 4, got %+v", got)
	}
	e.AckEvents(3)
	if got := e.EventsSince(0, 0); len(got) != 2 || got[0].Seq != 4 {
		t.Errorf("expected seq 4 and 5 left after ack, got %+v", got)
	}
}

func TestEvents_BufferDropsOldest(t *testing.T) {
	ctx := context.Background()
	roster := attendance.NewMemoryRoster()
	_ = roster.PutSection(ctx, attendance.CourseSection{ID: "sec", CourseID: "CS101"})
	e := attendance.NewEngine(roster, attendance.Options{EventBuffer: 3})

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		if _, err := e.CreateSession(ctx, attendance.SessionParams{ID: id, SectionID: "sec"}); err != nil {
			t.Fatal(err)
		}
	}
	events := e.EventsSince(0, 0)
	if len(events) != 3 || events[0].Seq != 3 {
		t.Fatalf("expected the newest three events, got %+v", events)
	}
	if e.DroppedEvents() != 2 {
		t.Errorf("expected 2 dropped, got %d", e.DroppedEvents())
	}
}
